package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/goliatone/go-credentials/core"
	credentialmigrations "github.com/goliatone/go-credentials/migrations"
	sqlstore "github.com/goliatone/go-credentials/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-credentials-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"credential_events",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "credential_events" {
		t.Fatalf("expected credential_events table, got %q", tableName)
	}
}

func TestCredentialEventStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewCredentialEventStoreFrom(client)
	if err != nil {
		t.Fatalf("new credential event store: %v", err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []core.LifecycleEvent{
		{
			Provider:   core.ProviderSalesforce,
			TenantID:   "https://acme.my.salesforce.com",
			EventType:  core.EventTokenRefreshed,
			Status:     core.EventStatusOK,
			Metadata:   map[string]any{"expires_at": int64(1767272400000)},
			OccurredAt: base,
		},
		{
			Provider:   core.ProviderQuickBooks,
			TenantID:   "realm-9130347",
			EventType:  core.EventRefreshFailed,
			Status:     core.EventStatusFailed,
			Error:      "token endpoint error (503): service unavailable",
			OccurredAt: base.Add(time.Minute),
		},
		{
			Provider:   core.ProviderSalesforce,
			TenantID:   "https://acme.my.salesforce.com",
			EventType:  core.EventGrantStored,
			Status:     core.EventStatusOK,
			OccurredAt: base.Add(2 * time.Minute),
		},
	}
	for _, event := range events {
		if err := store.Append(ctx, event); err != nil {
			t.Fatalf("append event %s: %v", event.EventType, err)
		}
	}

	all, err := store.List(ctx, core.EventFilter{})
	if err != nil {
		t.Fatalf("list all events: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	if all[0].EventType != core.EventGrantStored {
		t.Fatalf("expected newest event first, got %s", all[0].EventType)
	}

	salesforceOnly, err := store.List(ctx, core.EventFilter{
		Provider: core.ProviderSalesforce,
		TenantID: "https://acme.my.salesforce.com",
	})
	if err != nil {
		t.Fatalf("list salesforce events: %v", err)
	}
	if len(salesforceOnly) != 2 {
		t.Fatalf("expected 2 salesforce events, got %d", len(salesforceOnly))
	}

	failures, err := store.List(ctx, core.EventFilter{
		EventType: core.EventRefreshFailed,
	})
	if err != nil {
		t.Fatalf("list failures: %v", err)
	}
	if len(failures) != 1 {
		t.Fatalf("expected 1 refresh failure, got %d", len(failures))
	}
	if failures[0].Error == "" {
		t.Fatalf("expected failure error to survive the round trip")
	}
}

func TestCredentialEventStore_RedactsSensitiveMetadata(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewCredentialEventStoreFrom(client)
	if err != nil {
		t.Fatalf("new credential event store: %v", err)
	}

	if err := store.Append(ctx, core.LifecycleEvent{
		Provider:  core.ProviderQuickBooks,
		TenantID:  "realm-42",
		EventType: core.EventGrantStored,
		Status:    core.EventStatusOK,
		Metadata: map[string]any{
			"access_token":  "super-secret-bearer",
			"refresh_token": "super-secret-refresh",
			"expires_in":    int64(3600),
		},
	}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	listed, err := store.List(ctx, core.EventFilter{TenantID: "realm-42"})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 event, got %d", len(listed))
	}
	metadata := listed[0].Metadata
	if metadata["access_token"] != "[REDACTED]" {
		t.Fatalf("expected access_token to be redacted, got %v", metadata["access_token"])
	}
	if metadata["refresh_token"] != "[REDACTED]" {
		t.Fatalf("expected refresh_token to be redacted, got %v", metadata["refresh_token"])
	}
	if metadata["expires_in"] == "[REDACTED]" {
		t.Fatalf("expires_in should not be redacted")
	}
}

func TestCredentialEventStore_RejectsIncompleteEvents(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewCredentialEventStoreFrom(client)
	if err != nil {
		t.Fatalf("new credential event store: %v", err)
	}

	cases := []core.LifecycleEvent{
		{TenantID: "realm-1", EventType: core.EventGrantStored, Status: core.EventStatusOK},
		{Provider: core.ProviderQuickBooks, EventType: core.EventGrantStored, Status: core.EventStatusOK},
		{Provider: core.ProviderQuickBooks, TenantID: "realm-1", Status: core.EventStatusOK},
		{Provider: core.ProviderQuickBooks, TenantID: "realm-1", EventType: core.EventGrantStored},
	}
	for i, event := range cases {
		if err := store.Append(ctx, event); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestNewCredentialEventStoreFrom_RejectsUnsupportedClients(t *testing.T) {
	if _, err := sqlstore.NewCredentialEventStoreFrom(nil); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := sqlstore.NewCredentialEventStoreFrom("not-a-db"); err == nil {
		t.Fatalf("expected error for unsupported client type")
	}
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:credentials-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = credentialmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != credentialmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, credentialmigrations.WithValidationTargets(credentialmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
