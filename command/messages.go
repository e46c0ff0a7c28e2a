package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-credentials/core"
)

const (
	TypeRefreshAccessToken    = "credentials.command.token.refresh"
	TypeStoreGrant            = "credentials.command.grant.store"
	TypeBeginAuthorization    = "credentials.command.authorization.begin"
	TypeCompleteAuthorization = "credentials.command.authorization.complete"
	TypeRunReconciliation     = "credentials.command.reconciliation.run"
)

type RefreshAccessTokenMessage struct {
	Provider core.ProviderID
	TenantID string
}

func (RefreshAccessTokenMessage) Type() string { return TypeRefreshAccessToken }

func (m RefreshAccessTokenMessage) Validate() error {
	if err := m.Provider.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid provider")
	}
	if strings.TrimSpace(m.TenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	return nil
}

type StoreGrantMessage struct {
	Provider core.ProviderID
	Grant    core.Grant
}

func (StoreGrantMessage) Type() string { return TypeStoreGrant }

func (m StoreGrantMessage) Validate() error {
	if err := m.Provider.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid provider")
	}
	if strings.TrimSpace(m.Grant.AccessToken) == "" {
		return commandValidationError("access_token", "access token is required")
	}
	return nil
}

type BeginAuthorizationMessage struct {
	Provider core.ProviderID
	Extras   map[string]string
}

func (BeginAuthorizationMessage) Type() string { return TypeBeginAuthorization }

func (m BeginAuthorizationMessage) Validate() error {
	if err := m.Provider.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid provider")
	}
	return nil
}

type CompleteAuthorizationMessage struct {
	State  string
	Code   string
	Extras map[string]string
}

func (CompleteAuthorizationMessage) Type() string { return TypeCompleteAuthorization }

func (m CompleteAuthorizationMessage) Validate() error {
	if strings.TrimSpace(m.State) == "" {
		return commandValidationError("state", "state is required")
	}
	if strings.TrimSpace(m.Code) == "" {
		return commandValidationError("code", "authorization code is required")
	}
	return nil
}

type RunReconciliationMessage struct{}

func (RunReconciliationMessage) Type() string { return TypeRunReconciliation }

func (RunReconciliationMessage) Validate() error { return nil }

// AuthorizationStart is the result stored by BeginAuthorizationCommand.
type AuthorizationStart struct {
	AuthorizeURL string
	State        string
}

// AuthorizationCompletion is the result stored by CompleteAuthorizationCommand.
type AuthorizationCompletion struct {
	Provider core.ProviderID
	TenantID string
}

func (c AuthorizationCompletion) String() string {
	return fmt.Sprintf("%s/%s", c.Provider, c.TenantID)
}
