package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-credentials/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// CredentialEventStore persists lifecycle events to the credential_events
// table. It satisfies core.EventStore.
type CredentialEventStore struct {
	db   *bun.DB
	repo repository.Repository[*credentialEventRecord]
}

// NewCredentialEventStore wires a store against an existing bun handle.
func NewCredentialEventStore(db *bun.DB) (*CredentialEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*credentialEventRecord](db, eventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential event repository wiring: %w", err)
		}
	}
	return &CredentialEventStore{db: db, repo: repo}, nil
}

// NewCredentialEventStoreFrom accepts either a *bun.DB or any client exposing
// DB() *bun.DB, such as a go-persistence-bun client.
func NewCredentialEventStoreFrom(persistenceClient any) (*CredentialEventStore, error) {
	db, err := resolveBunDB(persistenceClient)
	if err != nil {
		return nil, err
	}
	return NewCredentialEventStore(db)
}

func (s *CredentialEventStore) Append(ctx context.Context, event core.LifecycleEvent) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: credential event store is not configured")
	}
	if err := event.Provider.Validate(); err != nil {
		return fmt.Errorf("sqlstore: %w", err)
	}
	tenantID := strings.TrimSpace(event.TenantID)
	if tenantID == "" {
		return fmt.Errorf("sqlstore: tenant id is required")
	}
	eventType := strings.TrimSpace(event.EventType)
	if eventType == "" {
		return fmt.Errorf("sqlstore: event type is required")
	}
	status := strings.TrimSpace(event.Status)
	if status == "" {
		return fmt.Errorf("sqlstore: event status is required")
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	record := &credentialEventRecord{
		Provider:   string(event.Provider),
		TenantID:   tenantID,
		EventType:  eventType,
		Status:     status,
		Error:      strings.TrimSpace(event.Error),
		Metadata:   RedactMetadata(event.Metadata),
		OccurredAt: occurredAt.UTC(),
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

// List returns the most recent ledger entries, newest first.
func (s *CredentialEventStore) List(ctx context.Context, in core.EventFilter) ([]core.LifecycleEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: credential event store is not configured")
	}

	limit := in.Limit
	if limit <= 0 {
		limit = 100
	}

	var records []*credentialEventRecord
	query := s.db.NewSelect().
		Model(&records).
		Order("occurred_at DESC").
		Limit(limit)

	if in.Provider != "" {
		query = query.Where("provider = ?", string(in.Provider))
	}
	if tenantID := strings.TrimSpace(in.TenantID); tenantID != "" {
		query = query.Where("tenant_id = ?", tenantID)
	}
	if eventType := strings.TrimSpace(in.EventType); eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}

	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("sqlstore: list credential events: %w", err)
	}

	events := make([]core.LifecycleEvent, 0, len(records))
	for _, record := range records {
		if record == nil {
			continue
		}
		events = append(events, core.LifecycleEvent{
			Provider:   core.ProviderID(record.Provider),
			TenantID:   record.TenantID,
			EventType:  record.EventType,
			Status:     record.Status,
			Error:      record.Error,
			Metadata:   record.Metadata,
			OccurredAt: record.OccurredAt,
		})
	}
	return events, nil
}
