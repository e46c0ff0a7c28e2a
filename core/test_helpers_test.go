package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memorySnapshotStore struct {
	mu       sync.Mutex
	snapshot Snapshot
	loadErr  error
	saveErr  error
	loads    int
	saves    int
}

func newMemorySnapshotStore() *memorySnapshotStore {
	return &memorySnapshotStore{snapshot: NewSnapshot()}
}

func (s *memorySnapshotStore) Load(context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.loadErr != nil {
		return Snapshot{}, s.loadErr
	}
	return s.snapshot.Clone(), nil
}

func (s *memorySnapshotStore) Save(_ context.Context, snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.snapshot = snapshot.Clone()
	return nil
}

func (s *memorySnapshotStore) put(provider ProviderID, tenantID string, record TokenRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.snapshot.Set(provider, tenantID, record); err != nil {
		panic(err)
	}
}

func (s *memorySnapshotStore) get(provider ProviderID, tenantID string) (TokenRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Get(provider, tenantID)
}

type fakeProvider struct {
	id           ProviderID
	authorizeURL string
	authorizeErr error

	mu           sync.Mutex
	refreshCalls int
	refreshFn    func(ctx context.Context, record TokenRecord) (RefreshResult, error)
	exchangeFn   func(ctx context.Context, code string, extras map[string]string) (Grant, error)
}

func (p *fakeProvider) ID() ProviderID { return p.id }

func (p *fakeProvider) AuthorizationURL(state string) (string, error) {
	if p.authorizeErr != nil {
		return "", p.authorizeErr
	}
	if p.authorizeURL != "" {
		return p.authorizeURL + "?state=" + state, nil
	}
	return "https://example.com/authorize?state=" + state, nil
}

func (p *fakeProvider) Exchange(ctx context.Context, code string, extras map[string]string) (Grant, error) {
	if p.exchangeFn == nil {
		return Grant{}, fmt.Errorf("exchange not configured")
	}
	return p.exchangeFn(ctx, code, extras)
}

func (p *fakeProvider) Refresh(ctx context.Context, record TokenRecord) (RefreshResult, error) {
	p.mu.Lock()
	p.refreshCalls++
	p.mu.Unlock()
	if p.refreshFn == nil {
		return RefreshResult{}, fmt.Errorf("refresh not configured")
	}
	return p.refreshFn(ctx, record)
}

func (p *fakeProvider) refreshCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshCalls
}

type memoryEventStore struct {
	mu     sync.Mutex
	events []LifecycleEvent
}

func (s *memoryEventStore) Append(_ context.Context, event LifecycleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memoryEventStore) all() []LifecycleEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LifecycleEvent(nil), s.events...)
}

func newTestService(store SnapshotStore, options ...Option) (*Service, error) {
	base := []Option{WithSnapshotStore(store)}
	return NewService(Config{}, append(base, options...)...)
}

func fixedClock(at time.Time) Clock {
	return func() time.Time { return at }
}
