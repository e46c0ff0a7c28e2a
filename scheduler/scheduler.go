// Package scheduler drives periodic credential reconciliation. A cron
// schedule selects connected tenant pairs and either runs the workflow
// inline or dispatches it to a job queue.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/robfig/cron/v3"

	"github.com/goliatone/go-credentials/core"
)

// DefaultCronExpr runs reconciliation every two hours.
const DefaultCronExpr = "0 */2 * * *"

type Option func(*Scheduler)

// Scheduler owns the cron loop. Start and Stop are idempotent; a tick that
// finds no connected tenants logs a warning and does nothing.
type Scheduler struct {
	mu       sync.Mutex
	cronExpr string
	cron     *cron.Cron
	entryID  cron.EntryID
	running  bool

	lister   ConnectionLister
	workflow core.ReconciliationWorkflow
	policy   SelectionPolicy
	enqueuer core.JobEnqueuer
	logger   core.Logger
	clock    func() time.Time
}

func WithCronExpr(expr string) Option {
	return func(s *Scheduler) {
		if trimmed := strings.TrimSpace(expr); trimmed != "" {
			s.cronExpr = trimmed
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithSelectionPolicy(policy SelectionPolicy) Option {
	return func(s *Scheduler) {
		if policy != nil {
			s.policy = policy
		}
	}
}

// WithEnqueuer switches ticks from inline workflow execution to dispatching
// a job message per tenant pair.
func WithEnqueuer(enqueuer core.JobEnqueuer) Option {
	return func(s *Scheduler) {
		s.enqueuer = enqueuer
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func New(lister ConnectionLister, workflow core.ReconciliationWorkflow, opts ...Option) (*Scheduler, error) {
	if lister == nil {
		return nil, fmt.Errorf("scheduler: connection lister is required")
	}
	if workflow == nil {
		return nil, fmt.Errorf("scheduler: reconciliation workflow is required")
	}
	scheduler := &Scheduler{
		cronExpr: DefaultCronExpr,
		lister:   lister,
		workflow: workflow,
		policy:   FirstTenantPolicy{},
		logger:   glog.Nop(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(scheduler)
	}
	return scheduler, nil
}

// Start registers the cron entry and launches the loop. Calling Start on a
// running scheduler is a no-op.
func (s *Scheduler) Start() error {
	if s == nil {
		return fmt.Errorf("scheduler: scheduler is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	runner := cron.New()
	entryID, err := runner.AddFunc(s.cronExpr, s.tick)
	if err != nil {
		return fmt.Errorf("scheduler: invalid cron expression %q: %w", s.cronExpr, err)
	}
	runner.Start()

	s.cron = runner
	s.entryID = entryID
	s.running = true
	s.logger.Info("reconciliation scheduler started", "cron", s.cronExpr)
	return nil
}

// Stop halts the cron loop and waits for an in-flight tick to finish.
// Calling Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	runner := s.cron
	running := s.running
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	if !running || runner == nil {
		return
	}
	<-runner.Stop().Done()
	s.logger.Info("reconciliation scheduler stopped")
}

// Running reports whether the cron loop is active.
func (s *Scheduler) Running() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	if _, err := s.RunNow(ctx); err != nil {
		s.logger.Error("scheduled reconciliation failed", "error", err)
	}
}

// RunNow performs one reconciliation pass immediately, outside the cron
// cadence. It returns the aggregate result of the inline runs; dispatched
// queue runs count as processed only.
func (s *Scheduler) RunNow(ctx context.Context) (core.ReconciliationResult, error) {
	if s == nil {
		return core.ReconciliationResult{}, fmt.Errorf("scheduler: scheduler is nil")
	}

	pairs, err := s.policy.Select(ctx, s.lister)
	if err != nil {
		return core.ReconciliationResult{}, err
	}
	if len(pairs) == 0 {
		s.logger.Warn("no connected tenants, skipping reconciliation run")
		return core.ReconciliationResult{}, nil
	}

	var total core.ReconciliationResult
	var firstErr error
	for _, pair := range pairs {
		result, runErr := s.runPair(ctx, pair)
		total.Processed += result.Processed
		total.Updated += result.Updated
		if runErr != nil {
			s.logger.Error("reconciliation pair failed",
				"salesforce_tenant", pair.SalesforceTenant,
				"quickbooks_realm", pair.QuickBooksRealm,
				"error", runErr,
			)
			if firstErr == nil {
				firstErr = runErr
			}
		}
	}
	return total, firstErr
}

func (s *Scheduler) runPair(ctx context.Context, pair TenantPair) (core.ReconciliationResult, error) {
	if s.enqueuer != nil {
		msg := &core.JobExecutionMessage{
			JobID: "credentials.reconcile",
			Parameters: map[string]any{
				"salesforce_tenant": pair.SalesforceTenant,
				"quickbooks_realm":  pair.QuickBooksRealm,
			},
			IdempotencyKey: s.idempotencyKey(pair),
			DedupPolicy:    "drop",
		}
		if err := s.enqueuer.Enqueue(ctx, msg); err != nil {
			return core.ReconciliationResult{}, fmt.Errorf("scheduler: enqueue reconciliation: %w", err)
		}
		return core.ReconciliationResult{Processed: 1}, nil
	}
	return s.workflow(ctx, pair.SalesforceTenant, pair.QuickBooksRealm)
}

// idempotencyKey dedupes queue dispatches of the same pair within the same
// minute, so an overlapping manual run does not double-enqueue.
func (s *Scheduler) idempotencyKey(pair TenantPair) string {
	stamp := s.clock().UTC().Format("200601021504")
	return strings.Join([]string{"reconcile", pair.SalesforceTenant, pair.QuickBooksRealm, stamp}, "|")
}
