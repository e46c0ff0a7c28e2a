// Package gojob bridges the credential contracts to go-job's queue types so
// reconciliation runs can be dispatched through an external job queue.
package gojob

import (
	"context"
	"fmt"
	"strings"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"

	"github.com/goliatone/go-credentials/core"
)

// JobIDReconcile is the job id scheduled reconciliation runs enqueue under.
const JobIDReconcile = "credentials.reconcile"

// ToExecutionMessage maps a credential job message to go-job.
func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

// FromExecutionMessage maps a go-job message into the credential contract.
func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
	logger   job.Logger
}

type EnqueuerOption func(*EnqueuerAdapter)

// WithJobLogger attaches a go-job logger so dispatches are visible in the
// same sink the queue workers log to.
func WithJobLogger(logger job.Logger) EnqueuerOption {
	return func(a *EnqueuerAdapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer, opts ...EnqueuerOption) *EnqueuerAdapter {
	adapter := &EnqueuerAdapter{enqueuer: enqueuer}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(adapter)
	}
	return adapter
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	if _, err := a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg)); err != nil {
		return err
	}
	if a.logger != nil {
		a.logger.Debug("reconciliation job enqueued", "job_id", msg.JobID)
	}
	return nil
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var _ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
