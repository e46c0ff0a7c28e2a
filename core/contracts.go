package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// SecretProvider encrypts and decrypts opaque byte strings. The file-backed
// token store runs every snapshot through one before it touches disk.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// SnapshotStore persists the whole token snapshot. Save is all-or-nothing:
// either the complete snapshot lands on disk or the previous bytes survive.
type SnapshotStore interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snapshot Snapshot) error
}

// Provider adapts one remote OAuth2 system: it builds the consent URL,
// exchanges authorization codes, and redeems refresh tokens. Adapters never
// touch the snapshot store; the service owns persistence.
type Provider interface {
	ID() ProviderID
	AuthorizationURL(state string) (string, error)
	Exchange(ctx context.Context, code string, extras map[string]string) (Grant, error)
	Refresh(ctx context.Context, record TokenRecord) (RefreshResult, error)
}

// Registry resolves provider adapters by id.
type Registry interface {
	Register(provider Provider) error
	Get(providerID ProviderID) (Provider, bool)
	List() []Provider
}

// EventStore appends credential lifecycle events to a durable ledger.
type EventStore interface {
	Append(ctx context.Context, event LifecycleEvent) error
}

// ReconciliationWorkflow is the business operation the scheduler drives with
// whatever tenant credentials are on hand. Supplied by the integration layer.
type ReconciliationWorkflow func(ctx context.Context, salesforceTenant string, quickbooksRealm string) (ReconciliationResult, error)

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// Clock abstracts wall time for expiry decisions.
type Clock func() time.Time

// JobExecutionMessage is the queue payload for a scheduled reconciliation run
// dispatched through an external job queue instead of inline invocation.
type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

// JobEnqueuer accepts reconciliation runs for asynchronous execution.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}
