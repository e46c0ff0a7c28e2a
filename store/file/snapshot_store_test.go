package file

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/goliatone/go-credentials/core"
	"github.com/goliatone/go-credentials/security"
	goerrors "github.com/goliatone/go-errors"
)

func newTestSecrets(t *testing.T) core.SecretProvider {
	t.Helper()
	provider, err := security.NewAppKeySecretProviderFromString("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("new secret provider: %v", err)
	}
	return provider
}

func TestSnapshotStoreBootstrapsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.enc")
	store, err := NewSnapshotStore(path, newTestSecrets(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	snapshot, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snapshot.Salesforce == nil || snapshot.QuickBooks == nil {
		t.Fatalf("expected initialized maps, got %+v", snapshot)
	}
	if len(snapshot.Salesforce) != 0 || len(snapshot.QuickBooks) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snapshot)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected encrypted bootstrap file to be written: %v", err)
	}
	if segments := strings.Split(strings.TrimSpace(string(raw)), ":"); len(segments) != 3 {
		t.Fatalf("expected encrypted envelope on disk, got %q", raw)
	}

	again, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if len(again.Salesforce) != 0 || len(again.QuickBooks) != 0 {
		t.Fatalf("expected bootstrap load to be idempotent, got %+v", again)
	}
}

func TestSnapshotStoreRoundTripEncrypted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.enc")
	store, err := NewSnapshotStore(path, newTestSecrets(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	snapshot := core.NewSnapshot()
	if err := snapshot.Set(core.ProviderQuickBooks, "realm_1", core.TokenRecord{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    1234567890,
		RealmID:      "realm_1",
	}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Save(context.Background(), snapshot); err != nil {
		t.Fatalf("save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if strings.Contains(string(raw), "access") || strings.Contains(string(raw), "realm_1") {
		t.Fatalf("expected file content to be encrypted")
	}
	if parts := strings.Split(string(raw), ":"); len(parts) != 3 {
		t.Fatalf("expected envelope with 3 segments, got %d", len(parts))
	}

	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	record, ok := loaded.Get(core.ProviderQuickBooks, "realm_1")
	if !ok || record.AccessToken != "access" || record.ExpiresAt != 1234567890 {
		t.Fatalf("unexpected record %+v ok=%v", record, ok)
	}
}

func TestSnapshotStoreReadsLegacyPlaintext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.enc")
	legacy := `{"salesforce":{"https://acme.my.salesforce.com":{"accessToken":"plain_access","refreshToken":"plain_refresh","expiresAt":42,"instanceUrl":"https://acme.my.salesforce.com"}},"quickbooks":{}}`
	if err := os.WriteFile(path, []byte(legacy), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	store, err := NewSnapshotStore(path, newTestSecrets(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	snapshot, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	record, ok := snapshot.Get(core.ProviderSalesforce, "https://acme.my.salesforce.com")
	if !ok || record.AccessToken != "plain_access" {
		t.Fatalf("expected legacy record, got %+v ok=%v", record, ok)
	}

	// Saving converts the file to the encrypted envelope.
	if err := store.Save(context.Background(), snapshot); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if strings.Contains(string(raw), "plain_access") {
		t.Fatalf("expected plaintext to be gone after save")
	}
}

func TestSnapshotStoreCorruptedFileRefusesWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.enc")
	if err := os.WriteFile(path, []byte("aabb:ccdd:eeff"), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	store, err := NewSnapshotStore(path, newTestSecrets(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	_, err = store.Load(context.Background())
	if !core.IsStorageCorrupted(err) {
		t.Fatalf("expected corrupted classification, got %v", err)
	}

	if err := store.Save(context.Background(), core.NewSnapshot()); !core.IsStorageCorrupted(err) {
		t.Fatalf("expected save to be refused while corrupted, got %v", err)
	}
}

func TestSnapshotStoreSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.enc")
	store, err := NewSnapshotStore(path, newTestSecrets(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if err := store.Save(context.Background(), core.NewSnapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "tokens.enc" {
		t.Fatalf("expected only the snapshot file, got %v", entries)
	}
}

func TestIOErrorClassifiesReason(t *testing.T) {
	cases := []struct {
		cause  error
		reason string
	}{
		{fs.ErrPermission, "permission_denied"},
		{syscall.ENOSPC, "disk_full"},
		{errors.New("device went away"), "unknown"},
	}
	for _, tc := range cases {
		var rich *goerrors.Error
		if !goerrors.As(ioError(tc.cause, "/var/lib/tokens.enc", "write"), &rich) {
			t.Fatalf("expected rich error for cause %v", tc.cause)
		}
		if rich.TextCode != core.CredentialErrorStorageIO {
			t.Fatalf("expected storage io code, got %q", rich.TextCode)
		}
		if rich.Metadata["reason"] != tc.reason {
			t.Fatalf("expected reason %q for cause %v, got %q", tc.reason, tc.cause, rich.Metadata["reason"])
		}
	}
}

func TestSnapshotStoreRejectsMissingDependencies(t *testing.T) {
	if _, err := NewSnapshotStore("  ", newTestSecrets(t)); err == nil {
		t.Fatalf("expected empty path to be rejected")
	}
	if _, err := NewSnapshotStore("tokens.enc", nil); err == nil {
		t.Fatalf("expected missing secret provider to be rejected")
	}
}
