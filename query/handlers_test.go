package query

import (
	"context"
	"testing"

	"github.com/goliatone/go-credentials/core"
	goerrors "github.com/goliatone/go-errors"
)

type stubConnectionReader struct {
	summaries []core.ConnectionSummary
	provider  core.ProviderID
}

func (s *stubConnectionReader) ListConnections(_ context.Context, providerID core.ProviderID) ([]core.ConnectionSummary, error) {
	s.provider = providerID
	return s.summaries, nil
}

type stubEventReader struct {
	events []core.LifecycleEvent
	filter core.EventFilter
}

func (s *stubEventReader) List(_ context.Context, filter core.EventFilter) ([]core.LifecycleEvent, error) {
	s.filter = filter
	return s.events, nil
}

func TestListConnectionsQuery_DelegatesToReader(t *testing.T) {
	reader := &stubConnectionReader{
		summaries: []core.ConnectionSummary{
			{TenantID: "realm-1", ExpiresAt: 1767272400000},
			{TenantID: "realm-2", ExpiresAt: 1767276000000},
		},
	}

	out, err := NewListConnectionsQuery(reader).Query(context.Background(), ListConnectionsMessage{
		Provider: core.ProviderQuickBooks,
	})
	if err != nil {
		t.Fatalf("list connections: %v", err)
	}
	if reader.provider != core.ProviderQuickBooks {
		t.Fatalf("expected quickbooks provider, got %q", reader.provider)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(out))
	}
}

func TestListEventsQuery_DelegatesFilter(t *testing.T) {
	reader := &stubEventReader{
		events: []core.LifecycleEvent{
			{Provider: core.ProviderSalesforce, TenantID: "t1", EventType: core.EventRefreshFailed, Status: core.EventStatusFailed},
		},
	}

	filter := core.EventFilter{
		Provider:  core.ProviderSalesforce,
		EventType: core.EventRefreshFailed,
		Limit:     10,
	}
	out, err := NewListEventsQuery(reader).Query(context.Background(), ListEventsMessage{Filter: filter})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if reader.filter != filter {
		t.Fatalf("expected filter passthrough, got %#v", reader.filter)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 event, got %d", len(out))
	}
}

func TestListConnectionsMessage_ValidateReturnsRichError(t *testing.T) {
	err := (ListConnectionsMessage{Provider: "hubspot"}).Validate()
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

func TestListEventsMessage_Validate(t *testing.T) {
	if err := (ListEventsMessage{Filter: core.EventFilter{Limit: -1}}).Validate(); err == nil {
		t.Fatalf("expected negative limit rejection")
	}
	if err := (ListEventsMessage{Filter: core.EventFilter{Provider: "hubspot"}}).Validate(); err == nil {
		t.Fatalf("expected invalid provider rejection")
	}
	if err := (ListEventsMessage{}).Validate(); err != nil {
		t.Fatalf("expected empty filter to validate, got %v", err)
	}
}

func TestQueries_NilDependenciesReturnRichErrors(t *testing.T) {
	var connections *ListConnectionsQuery
	if _, err := connections.Query(context.Background(), ListConnectionsMessage{}); err == nil {
		t.Fatalf("expected dependency error")
	}

	_, err := NewListEventsQuery(nil).Query(context.Background(), ListEventsMessage{})
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
}
