package query

import (
	"context"

	"github.com/goliatone/go-credentials/core"
)

// ConnectionReader lists connected tenants for one provider.
type ConnectionReader interface {
	ListConnections(ctx context.Context, providerID core.ProviderID) ([]core.ConnectionSummary, error)
}

// EventReader reads the credential lifecycle ledger.
type EventReader interface {
	List(ctx context.Context, filter core.EventFilter) ([]core.LifecycleEvent, error)
}

type ListConnectionsQuery struct {
	reader ConnectionReader
}

func NewListConnectionsQuery(reader ConnectionReader) *ListConnectionsQuery {
	return &ListConnectionsQuery{reader: reader}
}

func (q *ListConnectionsQuery) Query(ctx context.Context, msg ListConnectionsMessage) ([]core.ConnectionSummary, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: connection reader is required")
	}
	return q.reader.ListConnections(ctx, msg.Provider)
}

type ListEventsQuery struct {
	reader EventReader
}

func NewListEventsQuery(reader EventReader) *ListEventsQuery {
	return &ListEventsQuery{reader: reader}
}

func (q *ListEventsQuery) Query(ctx context.Context, msg ListEventsMessage) ([]core.LifecycleEvent, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: event reader is required")
	}
	return q.reader.List(ctx, msg.Filter)
}
