// Package gologger maps the manager's glog logging onto go-job's logging
// contracts so queue-dispatched reconciliation runs log through the same
// sink as the rest of the credential service.
package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// JobLogging is the bridged pair a go-job queue consumer needs.
type JobLogging struct {
	Provider job.LoggerProvider
	Logger   job.Logger
}

// ForJobQueue resolves the credential manager's logging with glog precedence
// (provider > logger > nop) and bridges the result onto go-job's contracts.
// The returned pair is never nil-valued; an unconfigured caller gets a nop
// backed logger.
func ForJobQueue(name string, provider glog.LoggerProvider, logger glog.Logger) JobLogging {
	resolvedProvider, resolvedLogger := glog.Resolve(name, provider, logger)
	return JobLogging{
		Provider: ToJobProvider(resolvedProvider),
		Logger:   ToJobLogger(glog.Ensure(resolvedLogger)),
	}
}

// ToJobProvider bridges a glog provider to go-job. Nil stays nil so go-job
// falls back to its own default provider.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger bridges a single glog logger to go-job.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}
