package command

import (
	"context"
	"fmt"
	"testing"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-credentials/core"
	goerrors "github.com/goliatone/go-errors"
)

type stubMutatingService struct {
	getTokenFn   func(ctx context.Context, providerID core.ProviderID, tenantID string) (string, error)
	storeGrantFn func(ctx context.Context, providerID core.ProviderID, grant core.Grant) (string, error)
	beginFn      func(ctx context.Context, providerID core.ProviderID, extras map[string]string) (string, string, error)
	exchangeFn   func(ctx context.Context, state string, code string, extras map[string]string) (core.ProviderID, string, error)
}

func (s stubMutatingService) GetValidAccessToken(ctx context.Context, providerID core.ProviderID, tenantID string) (string, error) {
	if s.getTokenFn == nil {
		return "", fmt.Errorf("unexpected GetValidAccessToken call")
	}
	return s.getTokenFn(ctx, providerID, tenantID)
}

func (s stubMutatingService) StoreNewGrant(ctx context.Context, providerID core.ProviderID, grant core.Grant) (string, error) {
	if s.storeGrantFn == nil {
		return "", fmt.Errorf("unexpected StoreNewGrant call")
	}
	return s.storeGrantFn(ctx, providerID, grant)
}

func (s stubMutatingService) BuildAuthorizationURL(ctx context.Context, providerID core.ProviderID, extras map[string]string) (string, string, error) {
	if s.beginFn == nil {
		return "", "", fmt.Errorf("unexpected BuildAuthorizationURL call")
	}
	return s.beginFn(ctx, providerID, extras)
}

func (s stubMutatingService) ExchangeCode(ctx context.Context, state string, code string, extras map[string]string) (core.ProviderID, string, error) {
	if s.exchangeFn == nil {
		return "", "", fmt.Errorf("unexpected ExchangeCode call")
	}
	return s.exchangeFn(ctx, state, code, extras)
}

func TestRefreshAccessTokenCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	called := false
	svc := stubMutatingService{
		getTokenFn: func(_ context.Context, providerID core.ProviderID, tenantID string) (string, error) {
			called = true
			if providerID != core.ProviderSalesforce {
				t.Fatalf("expected salesforce provider, got %q", providerID)
			}
			if tenantID != "https://acme.my.salesforce.com" {
				t.Fatalf("unexpected tenant id %q", tenantID)
			}
			return "fresh-access-token", nil
		},
	}

	cmd := NewRefreshAccessTokenCommand(svc)
	collector := gocmd.NewResult[string]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, RefreshAccessTokenMessage{
		Provider: core.ProviderSalesforce,
		TenantID: "https://acme.my.salesforce.com",
	})
	if err != nil {
		t.Fatalf("execute refresh: %v", err)
	}
	if !called {
		t.Fatalf("expected service invocation")
	}
	token, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if token != "fresh-access-token" {
		t.Fatalf("unexpected token %q", token)
	}
}

func TestStoreGrantCommand_StoresTenantID(t *testing.T) {
	svc := stubMutatingService{
		storeGrantFn: func(_ context.Context, providerID core.ProviderID, grant core.Grant) (string, error) {
			if providerID != core.ProviderQuickBooks {
				t.Fatalf("expected quickbooks provider, got %q", providerID)
			}
			if grant.AccessToken != "at-1" {
				t.Fatalf("unexpected grant payload: %#v", grant)
			}
			return "realm-42", nil
		},
	}

	cmd := NewStoreGrantCommand(svc)
	collector := gocmd.NewResult[string]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, StoreGrantMessage{
		Provider: core.ProviderQuickBooks,
		Grant: core.Grant{
			AccessToken:  "at-1",
			RefreshToken: "rt-1",
			RealmID:      "realm-42",
		},
	})
	if err != nil {
		t.Fatalf("execute store grant: %v", err)
	}
	tenantID, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if tenantID != "realm-42" {
		t.Fatalf("unexpected tenant id %q", tenantID)
	}
}

func TestAuthorizationCommands_DelegateToService(t *testing.T) {
	svc := stubMutatingService{
		beginFn: func(_ context.Context, providerID core.ProviderID, _ map[string]string) (string, string, error) {
			if providerID != core.ProviderQuickBooks {
				t.Fatalf("expected quickbooks provider, got %q", providerID)
			}
			return "https://appcenter.intuit.com/connect/oauth2?state=abc", "abc", nil
		},
		exchangeFn: func(_ context.Context, state string, code string, extras map[string]string) (core.ProviderID, string, error) {
			if state != "abc" || code != "auth-code" {
				t.Fatalf("unexpected exchange payload: %q %q", state, code)
			}
			if extras["realmId"] != "realm-7" {
				t.Fatalf("expected realm extra, got %v", extras)
			}
			return core.ProviderQuickBooks, "realm-7", nil
		},
	}

	beginCollector := gocmd.NewResult[AuthorizationStart]()
	beginCtx := gocmd.ContextWithResult(context.Background(), beginCollector)
	if err := NewBeginAuthorizationCommand(svc).Execute(beginCtx, BeginAuthorizationMessage{
		Provider: core.ProviderQuickBooks,
	}); err != nil {
		t.Fatalf("execute begin authorization: %v", err)
	}
	start, ok := beginCollector.Load()
	if !ok || start.State != "abc" {
		t.Fatalf("unexpected authorization start: %#v", start)
	}

	completeCollector := gocmd.NewResult[AuthorizationCompletion]()
	completeCtx := gocmd.ContextWithResult(context.Background(), completeCollector)
	if err := NewCompleteAuthorizationCommand(svc).Execute(completeCtx, CompleteAuthorizationMessage{
		State:  "abc",
		Code:   "auth-code",
		Extras: map[string]string{"realmId": "realm-7"},
	}); err != nil {
		t.Fatalf("execute complete authorization: %v", err)
	}
	completion, ok := completeCollector.Load()
	if !ok {
		t.Fatalf("expected completion result")
	}
	if completion.Provider != core.ProviderQuickBooks || completion.TenantID != "realm-7" {
		t.Fatalf("unexpected completion: %#v", completion)
	}
}

type stubRunner struct {
	result core.ReconciliationResult
	err    error
}

func (s stubRunner) RunNow(context.Context) (core.ReconciliationResult, error) {
	return s.result, s.err
}

func TestRunReconciliationCommand_StoresResult(t *testing.T) {
	cmd := NewRunReconciliationCommand(stubRunner{
		result: core.ReconciliationResult{Processed: 2, Updated: 1},
	})

	collector := gocmd.NewResult[core.ReconciliationResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := cmd.Execute(ctx, RunReconciliationMessage{}); err != nil {
		t.Fatalf("execute reconciliation: %v", err)
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.Processed != 2 || result.Updated != 1 {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestRefreshAccessTokenMessage_ValidateReturnsRichError(t *testing.T) {
	err := (RefreshAccessTokenMessage{Provider: core.ProviderSalesforce}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.CredentialErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.CredentialErrorBadInput, rich.TextCode)
	}
}

func TestMessages_RejectInvalidProviders(t *testing.T) {
	if err := (RefreshAccessTokenMessage{Provider: "hubspot", TenantID: "t1"}).Validate(); err == nil {
		t.Fatalf("expected invalid provider error")
	}
	if err := (BeginAuthorizationMessage{Provider: ""}).Validate(); err == nil {
		t.Fatalf("expected invalid provider error")
	}
	if err := (StoreGrantMessage{Provider: core.ProviderQuickBooks}).Validate(); err == nil {
		t.Fatalf("expected missing access token error")
	}
	if err := (CompleteAuthorizationMessage{Code: "c"}).Validate(); err == nil {
		t.Fatalf("expected missing state error")
	}
	if err := (CompleteAuthorizationMessage{State: "s"}).Validate(); err == nil {
		t.Fatalf("expected missing code error")
	}
}

func TestCommands_NilDependenciesReturnRichErrors(t *testing.T) {
	var refresh *RefreshAccessTokenCommand
	err := refresh.Execute(context.Background(), RefreshAccessTokenMessage{})
	if err == nil {
		t.Fatalf("expected dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}

	if err := NewRunReconciliationCommand(nil).Execute(context.Background(), RunReconciliationMessage{}); err == nil {
		t.Fatalf("expected dependency error for nil runner")
	}
}
