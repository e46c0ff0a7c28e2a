package core

import "time"

// TokenState describes what the service must do with a stored record before
// its access token can be handed to a caller.
type TokenState int

const (
	// TokenStateUsable means the access token has not expired.
	TokenStateUsable TokenState = iota
	// TokenStateRefreshable means the access token expired but a refresh
	// token is stored.
	TokenStateRefreshable
	// TokenStateDead means the record cannot be used or refreshed.
	TokenStateDead
)

func (s TokenState) String() string {
	switch s {
	case TokenStateUsable:
		return "usable"
	case TokenStateRefreshable:
		return "refreshable"
	case TokenStateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// ResolveTokenState classifies a record at the given instant. A record whose
// expiry equals now is already expired; missing expiry metadata is treated
// as expired rather than trusted.
func ResolveTokenState(record TokenRecord, now time.Time) TokenState {
	expired := record.ExpiresAt <= 0 || record.ExpiresAt <= now.UnixMilli()
	if !expired && record.AccessToken != "" {
		return TokenStateUsable
	}
	if record.RefreshToken != "" {
		return TokenStateRefreshable
	}
	return TokenStateDead
}
