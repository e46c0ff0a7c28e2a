package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

var ErrProviderNotFound = errors.New("core: provider not found")

// Salesforce refresh responses omit expires_in; the platform default session
// length is two hours.
const fallbackExpiresInSeconds = 7200

// Service owns the credential lifecycle for every registered provider: it
// hands out valid access tokens, refreshing behind a per-tenant lock when
// needed, stores new grants from the authorization flow, and appends
// lifecycle events for operators.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	secretProvider  SecretProvider
	snapshotStore   SnapshotStore
	oauthStateStore OAuthStateStore
	eventStore      EventStore
	registry        Registry
	clock           Clock
	locker          *tenantLocker
}

type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	SecretProvider  SecretProvider
	SnapshotStore   SnapshotStore
	OAuthStateStore OAuthStateStore
	EventStore      EventStore
	Registry        Registry
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("credentials", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("credentials"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewProviderRegistry()
	}
	if builder.oauthStateStore == nil {
		builder.oauthStateStore = NewMemoryOAuthStateStore(defaultOAuthStateTTL)
	}
	if builder.clock == nil {
		builder.clock = time.Now
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.snapshotStore == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: snapshot store is required"))
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		secretProvider:  builder.secretProvider,
		snapshotStore:   builder.snapshotStore,
		oauthStateStore: builder.oauthStateStore,
		eventStore:      builder.eventStore,
		registry:        builder.registry,
		clock:           builder.clock,
		locker:          newTenantLocker(),
	}, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorMapper:     s.errorMapper,
		ConfigProvider:  s.configProvider,
		OptionsResolver: s.optionsResolver,
		SecretProvider:  s.secretProvider,
		SnapshotStore:   s.snapshotStore,
		OAuthStateStore: s.oauthStateStore,
		EventStore:      s.eventStore,
		Registry:        s.registry,
	}
}

func (s *Service) Registry() Registry {
	if s == nil {
		return nil
	}
	return s.registry
}

func (s *Service) now() time.Time {
	if s == nil || s.clock == nil {
		return time.Now()
	}
	return s.clock()
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

// GetValidAccessToken returns an access token that is usable right now for
// the (provider, tenant) pair, refreshing the stored credential first when
// it has expired. Concurrent calls for the same pair serialize on a lock so
// the token endpoint sees one refresh.
func (s *Service) GetValidAccessToken(ctx context.Context, providerID ProviderID, tenantID string) (token string, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider":  string(providerID),
		"tenant_id": tenantID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_valid_access_token", err, fields)
	}()

	if err = providerID.Validate(); err != nil {
		err = s.mapError(badInputError(err.Error()))
		return "", err
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		err = s.mapError(badInputError("core: tenant id is required"))
		return "", err
	}

	snapshot, loadErr := s.snapshotStore.Load(ctx)
	if loadErr != nil {
		err = s.mapError(loadErr)
		return "", err
	}
	record, ok := snapshot.Get(providerID, tenantID)
	if ok && ResolveTokenState(record, s.now()) == TokenStateUsable {
		return record.AccessToken, nil
	}

	refreshed, refreshErr := s.refreshTenant(ctx, providerID, tenantID)
	if refreshErr != nil {
		err = refreshErr
		return "", err
	}
	return refreshed.AccessToken, nil
}

// refreshTenant performs the serialized refresh for one (provider, tenant)
// pair. The snapshot is re-read under the lock so a refresh completed by a
// concurrent caller is observed instead of repeated.
func (s *Service) refreshTenant(ctx context.Context, providerID ProviderID, tenantID string) (TokenRecord, error) {
	release := s.locker.Lock(providerID, tenantID)
	defer release()

	snapshot, err := s.snapshotStore.Load(ctx)
	if err != nil {
		return TokenRecord{}, s.mapError(err)
	}
	record, ok := snapshot.Get(providerID, tenantID)
	if ok && ResolveTokenState(record, s.now()) == TokenStateUsable {
		return record, nil
	}

	// An absent record and a record without a refresh token are the same
	// condition for the caller: the tenant must re-authorize.
	if !ok || strings.TrimSpace(record.RefreshToken) == "" {
		failure := s.mapError(missingRefreshTokenError(providerID, tenantID))
		s.appendEvent(ctx, LifecycleEvent{
			Provider:  providerID,
			TenantID:  tenantID,
			EventType: EventReauthRequired,
			Status:    EventStatusFailed,
			Error:     failure.Error(),
		})
		return TokenRecord{}, failure
	}

	provider, ok := s.registry.Get(providerID)
	if !ok {
		return TokenRecord{}, s.mapError(fmt.Errorf("%w: %s", ErrProviderNotFound, providerID))
	}

	result, refreshErr := provider.Refresh(ctx, record)
	if refreshErr != nil {
		classified := s.classifyRefreshError(refreshErr, providerID, tenantID)
		eventType := EventRefreshFailed
		if IsReauthorizationRequired(classified) {
			eventType = EventReauthRequired
		}
		s.appendEvent(ctx, LifecycleEvent{
			Provider:  providerID,
			TenantID:  tenantID,
			EventType: eventType,
			Status:    EventStatusFailed,
			Error:     classified.Error(),
		})
		return TokenRecord{}, classified
	}

	updated := mergeRefreshResult(record, result, s.now())
	if err := snapshot.Set(providerID, tenantID, updated); err != nil {
		return TokenRecord{}, s.mapError(err)
	}
	if err := s.snapshotStore.Save(ctx, snapshot); err != nil {
		return TokenRecord{}, s.mapError(err)
	}

	s.appendEvent(ctx, LifecycleEvent{
		Provider:  providerID,
		TenantID:  tenantID,
		EventType: EventTokenRefreshed,
		Status:    EventStatusOK,
		Metadata:  map[string]any{"expires_at": updated.ExpiresAt},
	})
	return updated, nil
}

// classifyRefreshError turns a raw token endpoint failure into one of the
// three terminal refresh outcomes. A 400 invalid_grant means the refresh
// token itself is dead; a 401 means our client credentials were rejected;
// anything else is assumed retryable.
func (s *Service) classifyRefreshError(err error, providerID ProviderID, tenantID string) error {
	var endpointErr *TokenEndpointError
	if errors.As(err, &endpointErr) {
		switch {
		case endpointErr.StatusCode == 400 && strings.EqualFold(endpointErr.Code, "invalid_grant"):
			return s.mapError(reauthorizationRequiredError(providerID, tenantID, endpointErr.StatusCode))
		case endpointErr.StatusCode == 401:
			return s.mapError(clientCredentialsError(providerID, tenantID, endpointErr.StatusCode))
		default:
			return s.mapError(transientRefreshError(err, providerID, tenantID, endpointErr.StatusCode))
		}
	}
	return s.mapError(transientRefreshError(err, providerID, tenantID, 0))
}

// mergeRefreshResult folds a refresh response into the stored record. A
// provider that does not rotate refresh tokens returns an empty RefreshToken
// and the stored one survives; same for the instance URL.
func mergeRefreshResult(record TokenRecord, result RefreshResult, now time.Time) TokenRecord {
	updated := record
	updated.AccessToken = result.AccessToken
	if rotated := strings.TrimSpace(result.RefreshToken); rotated != "" {
		updated.RefreshToken = rotated
	}
	if instanceURL := strings.TrimSpace(result.InstanceURL); instanceURL != "" {
		updated.InstanceURL = instanceURL
	}
	updated.ExpiresAt = expiryMillis(now, result.ExpiresIn)
	return updated
}

func expiryMillis(now time.Time, expiresIn int64) int64 {
	if expiresIn <= 0 {
		expiresIn = fallbackExpiresInSeconds
	}
	return now.UnixMilli() + expiresIn*1000
}

// StoreNewGrant persists a freshly exchanged grant and returns the tenant id
// it was filed under.
func (s *Service) StoreNewGrant(ctx context.Context, providerID ProviderID, grant Grant) (tenantID string, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"provider": string(providerID)}
	defer func() {
		s.observeOperation(ctx, startedAt, "store_grant", err, fields)
	}()

	if err = providerID.Validate(); err != nil {
		err = s.mapError(badInputError(err.Error()))
		return "", err
	}
	if missing := missingGrantFields(providerID, grant); len(missing) > 0 {
		err = s.mapError(grantIncompleteError(providerID, missing))
		return "", err
	}

	tenantID = grant.TenantID(providerID)
	fields["tenant_id"] = tenantID

	release := s.locker.Lock(providerID, tenantID)
	defer release()

	snapshot, loadErr := s.snapshotStore.Load(ctx)
	if loadErr != nil {
		err = s.mapError(loadErr)
		return "", err
	}

	record := TokenRecord{
		AccessToken:  strings.TrimSpace(grant.AccessToken),
		RefreshToken: strings.TrimSpace(grant.RefreshToken),
		ExpiresAt:    expiryMillis(s.now(), grant.ExpiresIn),
		InstanceURL:  strings.TrimSpace(grant.InstanceURL),
		RealmID:      strings.TrimSpace(grant.RealmID),
	}
	if setErr := snapshot.Set(providerID, tenantID, record); setErr != nil {
		err = s.mapError(setErr)
		return "", err
	}
	if saveErr := s.snapshotStore.Save(ctx, snapshot); saveErr != nil {
		err = s.mapError(saveErr)
		return "", err
	}

	s.appendEvent(ctx, LifecycleEvent{
		Provider:  providerID,
		TenantID:  tenantID,
		EventType: EventGrantStored,
		Status:    EventStatusOK,
		Metadata:  map[string]any{"expires_at": record.ExpiresAt},
	})
	return tenantID, nil
}

func missingGrantFields(providerID ProviderID, grant Grant) []string {
	var missing []string
	if strings.TrimSpace(grant.AccessToken) == "" {
		missing = append(missing, "access_token")
	}
	if strings.TrimSpace(grant.RefreshToken) == "" {
		missing = append(missing, "refresh_token")
	}
	switch providerID {
	case ProviderSalesforce:
		if strings.TrimSpace(grant.InstanceURL) == "" {
			missing = append(missing, "instance_url")
		}
	case ProviderQuickBooks:
		if strings.TrimSpace(grant.RealmID) == "" {
			missing = append(missing, "realm_id")
		}
	}
	return missing
}

// ListConnections reports the stored tenants for one provider together with
// their current expiry, sorted by tenant id.
func (s *Service) ListConnections(ctx context.Context, providerID ProviderID) ([]ConnectionSummary, error) {
	if err := providerID.Validate(); err != nil {
		return nil, s.mapError(badInputError(err.Error()))
	}
	snapshot, err := s.snapshotStore.Load(ctx)
	if err != nil {
		return nil, s.mapError(err)
	}
	records := snapshot.Records(providerID)
	summaries := make([]ConnectionSummary, 0, len(records))
	for _, tenantID := range snapshot.TenantIDs(providerID) {
		summaries = append(summaries, ConnectionSummary{
			TenantID:  tenantID,
			ExpiresAt: records[tenantID].ExpiresAt,
		})
	}
	return summaries, nil
}

// BuildAuthorizationURL generates a single-use state, records the pending
// authorization, and returns the provider consent URL to redirect to.
func (s *Service) BuildAuthorizationURL(ctx context.Context, providerID ProviderID, extras map[string]string) (authorizeURL string, state string, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"provider": string(providerID)}
	defer func() {
		s.observeOperation(ctx, startedAt, "build_authorization_url", err, fields)
	}()

	if err = providerID.Validate(); err != nil {
		err = s.mapError(badInputError(err.Error()))
		return "", "", err
	}
	provider, ok := s.registry.Get(providerID)
	if !ok {
		err = s.mapError(fmt.Errorf("%w: %s", ErrProviderNotFound, providerID))
		return "", "", err
	}

	state, err = generateOAuthState()
	if err != nil {
		err = s.mapError(err)
		return "", "", err
	}
	authorizeURL, err = provider.AuthorizationURL(state)
	if err != nil {
		err = s.mapError(err)
		return "", "", err
	}

	if err = s.oauthStateStore.Save(ctx, OAuthStateRecord{
		State:    state,
		Provider: providerID,
		Extras:   copyStringMap(extras),
	}); err != nil {
		err = s.mapError(err)
		return "", "", err
	}
	return authorizeURL, state, nil
}

// ExchangeCode consumes the callback state, redeems the authorization code
// with the pending provider, and stores the resulting grant.
func (s *Service) ExchangeCode(ctx context.Context, state string, code string, extras map[string]string) (providerID ProviderID, tenantID string, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		s.observeOperation(ctx, startedAt, "exchange_code", err, fields)
	}()

	if strings.TrimSpace(code) == "" {
		err = s.mapError(badInputError("core: authorization code is required"))
		return "", "", err
	}

	record, consumeErr := s.oauthStateStore.Consume(ctx, state)
	if consumeErr != nil {
		err = s.mapError(oauthStateError(consumeErr))
		return "", "", err
	}
	providerID = record.Provider
	fields["provider"] = string(providerID)

	provider, ok := s.registry.Get(providerID)
	if !ok {
		err = s.mapError(fmt.Errorf("%w: %s", ErrProviderNotFound, providerID))
		return "", "", err
	}

	merged := copyStringMap(record.Extras)
	for key, value := range extras {
		merged[key] = value
	}

	grant, exchangeErr := provider.Exchange(ctx, code, merged)
	if exchangeErr != nil {
		err = s.classifyExchangeError(exchangeErr, providerID)
		return "", "", err
	}

	tenantID, err = s.StoreNewGrant(ctx, providerID, grant)
	if err != nil {
		return "", "", err
	}
	fields["tenant_id"] = tenantID
	return providerID, tenantID, nil
}

func (s *Service) classifyExchangeError(err error, providerID ProviderID) error {
	var endpointErr *TokenEndpointError
	if errors.As(err, &endpointErr) && endpointErr.StatusCode == 400 {
		return s.mapError(authCodeInvalidError(err, providerID, endpointErr.StatusCode, endpointErr.Description))
	}
	return s.mapError(tokenExchangeError(err, providerID))
}

// appendEvent records a lifecycle event when a ledger is configured. Ledger
// failures never fail the credential operation that produced them.
func (s *Service) appendEvent(ctx context.Context, event LifecycleEvent) {
	if s == nil || s.eventStore == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}
	if err := s.eventStore.Append(ctx, event); err != nil {
		s.logWarn(ctx, "lifecycle event append failed", map[string]any{
			"provider":   string(event.Provider),
			"tenant_id":  event.TenantID,
			"event_type": event.EventType,
			"error":      err.Error(),
		})
	}
}
