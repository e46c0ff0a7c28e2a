package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-credentials/core"
)

// MutatingService is the slice of the credential service the commands drive.
type MutatingService interface {
	GetValidAccessToken(ctx context.Context, providerID core.ProviderID, tenantID string) (string, error)
	StoreNewGrant(ctx context.Context, providerID core.ProviderID, grant core.Grant) (string, error)
	BuildAuthorizationURL(ctx context.Context, providerID core.ProviderID, extras map[string]string) (string, string, error)
	ExchangeCode(ctx context.Context, state string, code string, extras map[string]string) (core.ProviderID, string, error)
}

// ReconciliationRunner triggers a reconciliation pass outside the cron cadence.
type ReconciliationRunner interface {
	RunNow(ctx context.Context) (core.ReconciliationResult, error)
}

type RefreshAccessTokenCommand struct {
	service MutatingService
}

func NewRefreshAccessTokenCommand(service MutatingService) *RefreshAccessTokenCommand {
	return &RefreshAccessTokenCommand{service: service}
}

func (c *RefreshAccessTokenCommand) Execute(ctx context.Context, msg RefreshAccessTokenMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credential service is required")
	}
	token, err := c.service.GetValidAccessToken(ctx, msg.Provider, msg.TenantID)
	if err != nil {
		return err
	}
	storeResult(ctx, token)
	return nil
}

type StoreGrantCommand struct {
	service MutatingService
}

func NewStoreGrantCommand(service MutatingService) *StoreGrantCommand {
	return &StoreGrantCommand{service: service}
}

func (c *StoreGrantCommand) Execute(ctx context.Context, msg StoreGrantMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credential service is required")
	}
	tenantID, err := c.service.StoreNewGrant(ctx, msg.Provider, msg.Grant)
	if err != nil {
		return err
	}
	storeResult(ctx, tenantID)
	return nil
}

type BeginAuthorizationCommand struct {
	service MutatingService
}

func NewBeginAuthorizationCommand(service MutatingService) *BeginAuthorizationCommand {
	return &BeginAuthorizationCommand{service: service}
}

func (c *BeginAuthorizationCommand) Execute(ctx context.Context, msg BeginAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credential service is required")
	}
	authorizeURL, state, err := c.service.BuildAuthorizationURL(ctx, msg.Provider, msg.Extras)
	if err != nil {
		return err
	}
	storeResult(ctx, AuthorizationStart{
		AuthorizeURL: authorizeURL,
		State:        state,
	})
	return nil
}

type CompleteAuthorizationCommand struct {
	service MutatingService
}

func NewCompleteAuthorizationCommand(service MutatingService) *CompleteAuthorizationCommand {
	return &CompleteAuthorizationCommand{service: service}
}

func (c *CompleteAuthorizationCommand) Execute(ctx context.Context, msg CompleteAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credential service is required")
	}
	providerID, tenantID, err := c.service.ExchangeCode(ctx, msg.State, msg.Code, msg.Extras)
	if err != nil {
		return err
	}
	storeResult(ctx, AuthorizationCompletion{
		Provider: providerID,
		TenantID: tenantID,
	})
	return nil
}

type RunReconciliationCommand struct {
	runner ReconciliationRunner
}

func NewRunReconciliationCommand(runner ReconciliationRunner) *RunReconciliationCommand {
	return &RunReconciliationCommand{runner: runner}
}

func (c *RunReconciliationCommand) Execute(ctx context.Context, msg RunReconciliationMessage) error {
	if c == nil || c.runner == nil {
		return commandDependencyError("command: reconciliation runner is required")
	}
	result, err := c.runner.RunNow(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, result)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
