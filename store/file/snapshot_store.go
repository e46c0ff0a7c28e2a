// Package file persists the credential snapshot as a single encrypted file.
// The whole snapshot is rewritten on every save so the file is always a
// complete, internally consistent view of every tenant.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-credentials/core"
)

type Option func(*SnapshotStore)

// SnapshotStore reads and writes the token snapshot at a fixed path through
// a SecretProvider. A snapshot that fails to decrypt marks the store
// corrupted: reads and writes are refused until an operator replaces the
// file, so a good snapshot is never clobbered by a partial view.
type SnapshotStore struct {
	mu        sync.Mutex
	path      string
	secrets   core.SecretProvider
	logger    core.Logger
	corrupted bool
}

func WithLogger(logger core.Logger) Option {
	return func(store *SnapshotStore) {
		if logger != nil {
			store.logger = logger
		}
	}
}

func NewSnapshotStore(path string, secrets core.SecretProvider, opts ...Option) (*SnapshotStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("file: snapshot path is required")
	}
	if secrets == nil {
		return nil, fmt.Errorf("file: secret provider is required")
	}
	store := &SnapshotStore{
		path:    path,
		secrets: secrets,
		logger:  glog.Nop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(store)
	}
	return store, nil
}

// Load reads the persisted snapshot. A missing file bootstraps an empty
// snapshot and persists it encrypted, so the first save has a baseline to
// replace. Plaintext JSON content from deployments that predate encryption
// is accepted as-is and converted to the encrypted envelope on the next
// save.
func (s *SnapshotStore) Load(ctx context.Context) (core.Snapshot, error) {
	if s == nil {
		return core.Snapshot{}, fmt.Errorf("file: snapshot store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.corrupted {
		return core.Snapshot{}, corruptedError(s.path, nil)
	}

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return s.bootstrap(ctx)
	}
	if err != nil {
		return core.Snapshot{}, ioError(err, s.path, "read")
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return s.bootstrap(ctx)
	}

	if snapshot, ok := parsePlaintextSnapshot(raw); ok {
		s.logger.Warn("token snapshot is stored in plaintext, it will be encrypted on next save", "path", s.path)
		return snapshot, nil
	}

	plaintext, err := s.secrets.Decrypt(ctx, raw)
	if err != nil {
		s.corrupted = true
		s.logger.Error("token snapshot failed to decrypt, refusing further writes", "path", s.path, "error", err)
		return core.Snapshot{}, corruptedError(s.path, err)
	}

	var snapshot core.Snapshot
	if err := json.Unmarshal(plaintext, &snapshot); err != nil {
		s.corrupted = true
		return core.Snapshot{}, corruptedError(s.path, err)
	}
	if snapshot.Salesforce == nil || snapshot.QuickBooks == nil {
		normalized := core.NewSnapshot()
		for tenantID, record := range snapshot.Salesforce {
			normalized.Salesforce[tenantID] = record
		}
		for tenantID, record := range snapshot.QuickBooks {
			normalized.QuickBooks[tenantID] = record
		}
		snapshot = normalized
	}
	return snapshot, nil
}

// bootstrap persists an empty snapshot for a store with no usable backing
// file. Called with s.mu held.
func (s *SnapshotStore) bootstrap(ctx context.Context) (core.Snapshot, error) {
	snapshot := core.NewSnapshot()
	if err := s.persist(ctx, snapshot); err != nil {
		return core.Snapshot{}, err
	}
	return snapshot, nil
}

// Save encrypts and atomically replaces the snapshot file. The payload lands
// in a sibling temp file first and is renamed over the target, so a crash
// mid-write leaves the previous snapshot intact.
func (s *SnapshotStore) Save(ctx context.Context, snapshot core.Snapshot) error {
	if s == nil {
		return fmt.Errorf("file: snapshot store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.corrupted {
		return corruptedError(s.path, nil)
	}
	return s.persist(ctx, snapshot)
}

// persist does the encrypt-and-rename cycle. Called with s.mu held.
func (s *SnapshotStore) persist(ctx context.Context, snapshot core.Snapshot) error {
	plaintext, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("file: encode snapshot: %w", err)
	}
	sealed, err := s.secrets.Encrypt(ctx, plaintext)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "file: encrypt snapshot").
			WithTextCode(core.CredentialErrorEncryptFailed)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return ioError(err, s.path, "create temp file")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return ioError(err, s.path, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return ioError(err, s.path, "close temp file")
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return ioError(err, s.path, "rename")
	}
	return nil
}

// parsePlaintextSnapshot accepts legacy unencrypted files. Content must be a
// JSON object to qualify; anything else is assumed to be an encrypted
// envelope.
func parsePlaintextSnapshot(raw []byte) (core.Snapshot, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		return core.Snapshot{}, false
	}
	var snapshot core.Snapshot
	if err := json.Unmarshal([]byte(trimmed), &snapshot); err != nil {
		return core.Snapshot{}, false
	}
	normalized := core.NewSnapshot()
	for tenantID, record := range snapshot.Salesforce {
		normalized.Salesforce[tenantID] = record
	}
	for tenantID, record := range snapshot.QuickBooks {
		normalized.QuickBooks[tenantID] = record
	}
	return normalized, true
}

func corruptedError(path string, cause error) error {
	metadata := map[string]any{"path": path}
	if cause == nil {
		return goerrors.New("file: token snapshot is corrupted and requires operator intervention", goerrors.CategoryInternal).
			WithTextCode(core.CredentialErrorStorageCorrupted).
			WithMetadata(metadata)
	}
	return goerrors.Wrap(cause, goerrors.CategoryInternal, "file: token snapshot is corrupted and requires operator intervention").
		WithTextCode(core.CredentialErrorStorageCorrupted).
		WithMetadata(metadata)
}

func ioError(cause error, path string, operation string) error {
	metadata := map[string]any{
		"path":      path,
		"operation": operation,
	}
	switch {
	case errors.Is(cause, fs.ErrPermission), errors.Is(cause, syscall.EACCES):
		metadata["reason"] = "permission_denied"
	case errors.Is(cause, syscall.ENOSPC):
		metadata["reason"] = "disk_full"
	default:
		metadata["reason"] = "unknown"
	}
	return goerrors.Wrap(cause, goerrors.CategoryInternal, fmt.Sprintf("file: snapshot %s failed", operation)).
		WithTextCode(core.CredentialErrorStorageIO).
		WithMetadata(metadata)
}

var _ core.SnapshotStore = (*SnapshotStore)(nil)
