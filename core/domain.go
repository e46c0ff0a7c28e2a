package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidProvider = errors.New("core: invalid provider")
	ErrUnknownTenant   = errors.New("core: unknown tenant")
)

// ProviderID identifies one of the two remote systems a tenant connects to.
type ProviderID string

const (
	ProviderSalesforce ProviderID = "salesforce"
	ProviderQuickBooks ProviderID = "quickbooks"
)

func (p ProviderID) Validate() error {
	switch p {
	case ProviderSalesforce, ProviderQuickBooks:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, string(p))
	}
}

func (p ProviderID) String() string {
	return string(p)
}

// NormalizeProvider parses a provider identifier, tolerating case and spacing.
func NormalizeProvider(raw string) (ProviderID, error) {
	provider := ProviderID(strings.TrimSpace(strings.ToLower(raw)))
	if err := provider.Validate(); err != nil {
		return "", err
	}
	return provider, nil
}

// AllProviders returns the closed set of supported providers in stable order.
func AllProviders() []ProviderID {
	return []ProviderID{ProviderSalesforce, ProviderQuickBooks}
}

// TokenRecord is the persisted credential for one (provider, tenant) pair.
// ExpiresAt is epoch milliseconds. InstanceURL and RealmID are provider
// passthrough fields carried verbatim across refreshes unless the provider
// returns an updated value.
type TokenRecord struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresAt    int64  `json:"expiresAt"`
	InstanceURL  string `json:"instanceUrl,omitempty"`
	RealmID      string `json:"realmId,omitempty"`
}

// TenantID returns the identifier that scopes the record within its provider.
func (r TokenRecord) TenantID(provider ProviderID) string {
	switch provider {
	case ProviderSalesforce:
		return strings.TrimSpace(r.InstanceURL)
	case ProviderQuickBooks:
		return strings.TrimSpace(r.RealmID)
	default:
		return ""
	}
}

// Snapshot is the full persisted token state: provider -> tenant id -> record.
// Writes replace the whole snapshot; readers never observe a partial record.
type Snapshot struct {
	Salesforce map[string]TokenRecord `json:"salesforce"`
	QuickBooks map[string]TokenRecord `json:"quickbooks"`
}

func NewSnapshot() Snapshot {
	return Snapshot{
		Salesforce: map[string]TokenRecord{},
		QuickBooks: map[string]TokenRecord{},
	}
}

func (s Snapshot) Records(provider ProviderID) map[string]TokenRecord {
	switch provider {
	case ProviderSalesforce:
		return s.Salesforce
	case ProviderQuickBooks:
		return s.QuickBooks
	default:
		return nil
	}
}

func (s Snapshot) Get(provider ProviderID, tenantID string) (TokenRecord, bool) {
	records := s.Records(provider)
	if records == nil {
		return TokenRecord{}, false
	}
	record, ok := records[strings.TrimSpace(tenantID)]
	return record, ok
}

// Set stores a record under its tenant key. Nil maps are initialized so a
// zero Snapshot is usable.
func (s *Snapshot) Set(provider ProviderID, tenantID string, record TokenRecord) error {
	if s == nil {
		return fmt.Errorf("core: snapshot is nil")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return fmt.Errorf("%w: empty tenant id", ErrUnknownTenant)
	}
	s.normalize()
	switch provider {
	case ProviderSalesforce:
		s.Salesforce[tenantID] = record
	case ProviderQuickBooks:
		s.QuickBooks[tenantID] = record
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, string(provider))
	}
	return nil
}

func (s *Snapshot) normalize() {
	if s.Salesforce == nil {
		s.Salesforce = map[string]TokenRecord{}
	}
	if s.QuickBooks == nil {
		s.QuickBooks = map[string]TokenRecord{}
	}
}

// TenantIDs lists the tenants connected for a provider in sorted order.
func (s Snapshot) TenantIDs(provider ProviderID) []string {
	records := s.Records(provider)
	out := make([]string, 0, len(records))
	for id := range records {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s Snapshot) Clone() Snapshot {
	out := NewSnapshot()
	for id, record := range s.Salesforce {
		out.Salesforce[id] = record
	}
	for id, record := range s.QuickBooks {
		out.QuickBooks[id] = record
	}
	return out
}

// Grant is the outcome of an authorization-code exchange. ExpiresIn is the
// provider-reported lifetime in seconds.
type Grant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	InstanceURL  string
	RealmID      string
}

// TenantID resolves the provider-assigned identifier carried by the grant.
// Identifiers are never invented locally; they come from the provider's own
// token response (or, for QuickBooks, the callback query parameters).
func (g Grant) TenantID(provider ProviderID) string {
	switch provider {
	case ProviderSalesforce:
		return strings.TrimSpace(g.InstanceURL)
	case ProviderQuickBooks:
		return strings.TrimSpace(g.RealmID)
	default:
		return ""
	}
}

// RefreshResult is what a provider adapter returns from a refresh-token call.
// An empty RefreshToken means the provider did not rotate it and the stored
// one stays in effect. InstanceURL, when set, replaces the stored passthrough
// value.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	InstanceURL  string
}

// ConnectionSummary is the status-endpoint view of one tenant connection.
type ConnectionSummary struct {
	TenantID  string `json:"tenantId"`
	ExpiresAt int64  `json:"expiresAt"`
}

// ReconciliationResult reports what a reconciliation workflow run touched.
type ReconciliationResult struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
}

// LifecycleEvent is an audit entry appended on credential mutations and
// terminal refresh failures. Stale records are never pruned from the token
// store; the ledger is how operators find connections needing
// reauthorization.
type LifecycleEvent struct {
	Provider   ProviderID
	TenantID   string
	EventType  string
	Status     string
	Error      string
	Metadata   map[string]any
	OccurredAt time.Time
}

const (
	EventGrantStored    = "grant_stored"
	EventTokenRefreshed = "token_refreshed"
	EventRefreshFailed  = "refresh_failed"
	EventReauthRequired = "reauth_required"
)

const (
	EventStatusOK     = "ok"
	EventStatusFailed = "failed"
)

// EventFilter narrows ledger queries. Zero values match everything.
type EventFilter struct {
	Provider  ProviderID
	TenantID  string
	EventType string
	Limit     int
}
