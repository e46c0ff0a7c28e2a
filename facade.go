package credentials

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-credentials/adapters/gojob"
	"github.com/goliatone/go-credentials/adapters/gologger"
	credcommand "github.com/goliatone/go-credentials/command"
	"github.com/goliatone/go-credentials/core"
	"github.com/goliatone/go-credentials/providers/quickbooks"
	"github.com/goliatone/go-credentials/providers/salesforce"
	credquery "github.com/goliatone/go-credentials/query"
	"github.com/goliatone/go-credentials/scheduler"
	"github.com/goliatone/go-credentials/security"
	filestore "github.com/goliatone/go-credentials/store/file"
	"github.com/goliatone/go-job/queue"
	glog "github.com/goliatone/go-logger/glog"
)

// CommandQueryService is the slice of the credential service the facade
// exposes through command and query handlers.
type CommandQueryService interface {
	credcommand.MutatingService
	credquery.ConnectionReader
}

type Commands struct {
	RefreshAccessToken    *credcommand.RefreshAccessTokenCommand
	StoreGrant            *credcommand.StoreGrantCommand
	BeginAuthorization    *credcommand.BeginAuthorizationCommand
	CompleteAuthorization *credcommand.CompleteAuthorizationCommand
	RunReconciliation     *credcommand.RunReconciliationCommand
}

type Queries struct {
	ListConnections *credquery.ListConnectionsQuery
	ListEvents      *credquery.ListEventsQuery
}

// Manager wires the credential service, its token storage, the provider
// adapters, and the reconciliation scheduler into one lifecycle.
type Manager struct {
	service   *core.Service
	scheduler *scheduler.Scheduler
	commands  Commands
	queries   Queries
	logger    core.Logger
}

type Option func(*managerOptions)

type managerOptions struct {
	logger           core.Logger
	serviceOptions   []core.Option
	schedulerOptions []scheduler.Option
	workflow         core.ReconciliationWorkflow
	eventReader      credquery.EventReader
	jobQueue         queue.Enqueuer
}

func WithLogger(logger core.Logger) Option {
	return func(options *managerOptions) {
		if logger != nil {
			options.logger = logger
		}
	}
}

// WithServiceOptions forwards options to the underlying core service, for
// callers that swap the snapshot store, event store, clock, or providers.
func WithServiceOptions(opts ...core.Option) Option {
	return func(options *managerOptions) {
		options.serviceOptions = append(options.serviceOptions, opts...)
	}
}

func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(options *managerOptions) {
		options.schedulerOptions = append(options.schedulerOptions, opts...)
	}
}

// WithWorkflow replaces the default reconciliation workflow, which refreshes
// the selected tenants' access tokens through the credential service.
func WithWorkflow(workflow core.ReconciliationWorkflow) Option {
	return func(options *managerOptions) {
		if workflow != nil {
			options.workflow = workflow
		}
	}
}

// WithEventReader wires the ledger query handler. Without it ListEvents
// reports a dependency error when invoked.
func WithEventReader(reader credquery.EventReader) Option {
	return func(options *managerOptions) {
		if reader != nil {
			options.eventReader = reader
		}
	}
}

// WithJobQueue dispatches scheduled reconciliation runs through a go-job
// queue instead of running the workflow inline on each tick. Queue logging
// is bridged onto the manager's logger.
func WithJobQueue(enqueuer queue.Enqueuer) Option {
	return func(options *managerOptions) {
		if enqueuer != nil {
			options.jobQueue = enqueuer
		}
	}
}

// New builds a fully wired credential manager: encryption key resolution,
// the encrypted snapshot file store, both OAuth provider adapters, and the
// cron-driven reconciliation scheduler.
func New(cfg core.Config, opts ...Option) (*Manager, error) {
	options := managerOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&options)
	}

	logger := options.logger
	if logger == nil {
		_, logger = glog.Resolve("credentials", nil, nil)
	}

	secrets, err := security.Resolve(cfg.Security.EncryptionKey, cfg.Security.Environment, logger)
	if err != nil {
		return nil, err
	}

	tokenPath := strings.TrimSpace(cfg.Storage.TokenFilePath)
	if tokenPath == "" {
		tokenPath = core.DefaultConfig().Storage.TokenFilePath
	}
	snapshots, err := filestore.NewSnapshotStore(tokenPath, secrets, filestore.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	serviceOptions := []core.Option{
		core.WithLogger(logger),
		core.WithSecretProvider(secrets),
		core.WithSnapshotStore(snapshots),
	}
	if strings.TrimSpace(cfg.Salesforce.ClientID) != "" {
		sfProvider, sfErr := salesforce.New(salesforce.Config{
			ClientID:     cfg.Salesforce.ClientID,
			ClientSecret: cfg.Salesforce.ClientSecret,
			RedirectURI:  cfg.Salesforce.RedirectURI,
			LoginURL:     cfg.Salesforce.LoginURL,
		})
		if sfErr != nil {
			return nil, sfErr
		}
		serviceOptions = append(serviceOptions, core.WithProvider(sfProvider))
	}
	if strings.TrimSpace(cfg.QuickBooks.ClientID) != "" {
		qbProvider, qbErr := quickbooks.New(quickbooks.Config{
			ClientID:     cfg.QuickBooks.ClientID,
			ClientSecret: cfg.QuickBooks.ClientSecret,
			RedirectURI:  cfg.QuickBooks.RedirectURI,
		})
		if qbErr != nil {
			return nil, qbErr
		}
		serviceOptions = append(serviceOptions, core.WithProvider(qbProvider))
	}
	serviceOptions = append(serviceOptions, options.serviceOptions...)

	service, err := core.NewService(cfg, serviceOptions...)
	if err != nil {
		return nil, err
	}

	workflow := options.workflow
	if workflow == nil {
		workflow = refreshWorkflow(service)
	}

	schedulerOptions := []scheduler.Option{
		scheduler.WithLogger(logger),
	}
	if cron := strings.TrimSpace(service.Config().Scheduler.ReconcileCron); cron != "" {
		schedulerOptions = append(schedulerOptions, scheduler.WithCronExpr(cron))
	}
	if options.jobQueue != nil {
		bridge := gologger.ForJobQueue("credentials-jobs", service.Dependencies().LoggerProvider, logger)
		schedulerOptions = append(schedulerOptions, scheduler.WithEnqueuer(
			gojob.NewEnqueuerAdapter(options.jobQueue, gojob.WithJobLogger(bridge.Logger)),
		))
	}
	schedulerOptions = append(schedulerOptions, options.schedulerOptions...)

	runner, err := scheduler.New(service, workflow, schedulerOptions...)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		service:   service,
		scheduler: runner,
		logger:    logger,
	}
	manager.commands = Commands{
		RefreshAccessToken:    credcommand.NewRefreshAccessTokenCommand(service),
		StoreGrant:            credcommand.NewStoreGrantCommand(service),
		BeginAuthorization:    credcommand.NewBeginAuthorizationCommand(service),
		CompleteAuthorization: credcommand.NewCompleteAuthorizationCommand(service),
		RunReconciliation:     credcommand.NewRunReconciliationCommand(runner),
	}
	manager.queries = Queries{
		ListConnections: credquery.NewListConnectionsQuery(service),
		ListEvents:      credquery.NewListEventsQuery(resolveEventReader(service, options.eventReader)),
	}

	return manager, nil
}

func (m *Manager) Service() *core.Service {
	if m == nil {
		return nil
	}
	return m.service
}

func (m *Manager) Scheduler() *scheduler.Scheduler {
	if m == nil {
		return nil
	}
	return m.scheduler
}

func (m *Manager) Commands() Commands {
	if m == nil {
		return Commands{}
	}
	return m.commands
}

func (m *Manager) Queries() Queries {
	if m == nil {
		return Queries{}
	}
	return m.queries
}

// Start begins the reconciliation schedule. It is idempotent.
func (m *Manager) Start() error {
	if m == nil || m.scheduler == nil {
		return fmt.Errorf("credentials: manager is not configured")
	}
	return m.scheduler.Start()
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (m *Manager) Stop() {
	if m == nil || m.scheduler == nil {
		return
	}
	m.scheduler.Stop()
}

// refreshWorkflow is the default reconciliation pass: revalidate the access
// token of each selected tenant, refreshing through the provider when the
// stored token has expired.
func refreshWorkflow(service *core.Service) core.ReconciliationWorkflow {
	return func(ctx context.Context, salesforceTenant string, quickbooksRealm string) (core.ReconciliationResult, error) {
		result := core.ReconciliationResult{}
		var firstErr error

		refresh := func(provider core.ProviderID, tenantID string) {
			if strings.TrimSpace(tenantID) == "" {
				return
			}
			result.Processed++
			if _, err := service.GetValidAccessToken(ctx, provider, tenantID); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			result.Updated++
		}

		refresh(core.ProviderSalesforce, salesforceTenant)
		refresh(core.ProviderQuickBooks, quickbooksRealm)
		return result, firstErr
	}
}

func resolveEventReader(service *core.Service, override credquery.EventReader) credquery.EventReader {
	if override != nil {
		return override
	}
	if service == nil {
		return nil
	}
	if reader, ok := service.Dependencies().EventStore.(credquery.EventReader); ok {
		return reader
	}
	return nil
}
