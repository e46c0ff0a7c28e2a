package core

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Closed error taxonomy. Every error leaving this package carries one of
// these text codes plus structured metadata (provider, tenant_id, upstream
// status) so callers can log and alert without re-deriving state.
const (
	CredentialErrorBadInput            = "CREDENTIALS_BAD_INPUT"
	CredentialErrorEncryptFailed       = "SECRET_ENCRYPT_FAILED"
	CredentialErrorDecryptFailed       = "SECRET_DECRYPT_FAILED"
	CredentialErrorStorageCorrupted    = "STORAGE_CORRUPTED"
	CredentialErrorStorageIO           = "STORAGE_IO_FAILED"
	CredentialErrorMissingRefreshToken = "REFRESH_TOKEN_MISSING"
	CredentialErrorReauthRequired      = "REAUTHORIZATION_REQUIRED"
	CredentialErrorClientCredentials   = "CLIENT_CREDENTIALS_INVALID"
	CredentialErrorRefreshTransient    = "REFRESH_TRANSIENT"
	CredentialErrorGrantIncomplete     = "GRANT_INCOMPLETE"
	CredentialErrorAuthCodeInvalid     = "AUTH_CODE_INVALID"
	CredentialErrorTokenExchange       = "TOKEN_EXCHANGE_FAILED"
	CredentialErrorOAuthStateInvalid   = "OAUTH_STATE_INVALID"
	CredentialErrorInternal            = "CREDENTIALS_INTERNAL_ERROR"
)

// TokenEndpointError is the raw failure from a provider token endpoint,
// before the service classifies it. Provider adapters return it so the
// refresh state machine can distinguish dead grants from transient faults.
type TokenEndpointError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *TokenEndpointError) Error() string {
	if e == nil {
		return "token endpoint error"
	}
	detail := strings.TrimSpace(e.Description)
	if detail == "" {
		detail = strings.TrimSpace(e.Code)
	}
	if detail == "" {
		detail = "unknown error"
	}
	return fmt.Sprintf("token endpoint error (%d): %s", e.StatusCode, detail)
}

func newCredentialError(message string, category goerrors.Category, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return ensureCredentialErrorEnvelope(err)
}

func wrapCredentialError(source error, message string, category goerrors.Category, textCode string, metadata map[string]any) *goerrors.Error {
	if source == nil {
		return newCredentialError(message, category, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return ensureCredentialErrorEnvelope(err)
}

func tenantMetadata(provider ProviderID, tenantID string) map[string]any {
	return map[string]any{
		"provider":  string(provider),
		"tenant_id": strings.TrimSpace(tenantID),
	}
}

func badInputError(message string) *goerrors.Error {
	return newCredentialError(message, goerrors.CategoryBadInput, CredentialErrorBadInput, nil)
}

func missingRefreshTokenError(provider ProviderID, tenantID string) *goerrors.Error {
	return newCredentialError(
		fmt.Sprintf("core: no refresh token stored for %s tenant %q; reauthorization flow required", provider, tenantID),
		goerrors.CategoryAuth,
		CredentialErrorMissingRefreshToken,
		tenantMetadata(provider, tenantID),
	)
}

func reauthorizationRequiredError(provider ProviderID, tenantID string, statusCode int) *goerrors.Error {
	metadata := tenantMetadata(provider, tenantID)
	metadata["status_code"] = statusCode
	return newCredentialError(
		fmt.Sprintf("core: refresh token for %s tenant %q is invalid or expired; manual reauthorization required", provider, tenantID),
		goerrors.CategoryAuth,
		CredentialErrorReauthRequired,
		metadata,
	)
}

func clientCredentialsError(provider ProviderID, tenantID string, statusCode int) *goerrors.Error {
	metadata := tenantMetadata(provider, tenantID)
	metadata["status_code"] = statusCode
	return newCredentialError(
		fmt.Sprintf("core: %s rejected the service client credentials; check client id and secret", provider),
		goerrors.CategoryAuth,
		CredentialErrorClientCredentials,
		metadata,
	)
}

func transientRefreshError(source error, provider ProviderID, tenantID string, statusCode int) *goerrors.Error {
	metadata := tenantMetadata(provider, tenantID)
	if statusCode > 0 {
		metadata["status_code"] = statusCode
	}
	return wrapCredentialError(
		source,
		fmt.Sprintf("core: refresh for %s tenant %q failed; safe to retry", provider, tenantID),
		goerrors.CategoryExternal,
		CredentialErrorRefreshTransient,
		metadata,
	)
}

func grantIncompleteError(provider ProviderID, missing []string) *goerrors.Error {
	return newCredentialError(
		fmt.Sprintf("core: grant for %s is missing required fields: %s", provider, strings.Join(missing, ", ")),
		goerrors.CategoryValidation,
		CredentialErrorGrantIncomplete,
		map[string]any{
			"provider":       string(provider),
			"missing_fields": append([]string(nil), missing...),
		},
	)
}

func authCodeInvalidError(source error, provider ProviderID, statusCode int, description string) *goerrors.Error {
	metadata := map[string]any{
		"provider":    string(provider),
		"status_code": statusCode,
	}
	message := fmt.Sprintf("core: authorization code rejected by %s", provider)
	if detail := strings.TrimSpace(description); detail != "" {
		message = fmt.Sprintf("%s: %s", message, detail)
	}
	return wrapCredentialError(source, message, goerrors.CategoryBadInput, CredentialErrorAuthCodeInvalid, metadata)
}

func tokenExchangeError(source error, provider ProviderID) *goerrors.Error {
	return wrapCredentialError(
		source,
		fmt.Sprintf("core: authorization code exchange with %s failed", provider),
		goerrors.CategoryExternal,
		CredentialErrorTokenExchange,
		map[string]any{"provider": string(provider)},
	)
}

func oauthStateError(source error) *goerrors.Error {
	return wrapCredentialError(source, "core: oauth callback state is invalid", goerrors.CategoryAuth, CredentialErrorOAuthStateInvalid, nil)
}

func ensureCredentialErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = credentialHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultCredentialTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func credentialErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureCredentialErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "oauth state"):
		return newCredentialError(err.Error(), goerrors.CategoryAuth, CredentialErrorOAuthStateInvalid, nil)
	case strings.Contains(msg, "decrypt"):
		return newCredentialError(err.Error(), goerrors.CategoryInternal, CredentialErrorDecryptFailed, nil)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newCredentialError(err.Error(), goerrors.CategoryBadInput, CredentialErrorBadInput, nil)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureCredentialErrorEnvelope(mapped)
}

func defaultCredentialTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return CredentialErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return CredentialErrorReauthRequired
	case goerrors.CategoryExternal:
		return CredentialErrorRefreshTransient
	default:
		return CredentialErrorInternal
	}
}

func credentialHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorTextCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return strings.TrimSpace(richErr.TextCode)
	}
	return ""
}

// IsReauthorizationRequired reports whether the stored refresh token is dead
// and a human must redo the authorization flow.
func IsReauthorizationRequired(err error) bool {
	code := errorTextCode(err)
	return code == CredentialErrorReauthRequired || code == CredentialErrorMissingRefreshToken
}

// IsClientCredentialsInvalid reports whether the service's own client id or
// secret was rejected by the provider.
func IsClientCredentialsInvalid(err error) bool {
	return errorTextCode(err) == CredentialErrorClientCredentials
}

// IsTransientRefresh reports whether the refresh failure is retryable on a
// later call or scheduler tick.
func IsTransientRefresh(err error) bool {
	return errorTextCode(err) == CredentialErrorRefreshTransient
}

// IsStorageCorrupted reports whether the persisted snapshot could not be
// decrypted and operator intervention is required.
func IsStorageCorrupted(err error) bool {
	return errorTextCode(err) == CredentialErrorStorageCorrupted
}

// IsGrantIncomplete reports whether a grant was rejected for missing fields.
func IsGrantIncomplete(err error) bool {
	return errorTextCode(err) == CredentialErrorGrantIncomplete
}
