package core

import (
	"strings"
	"sync"
)

// tenantLocker serializes refreshes per (provider, tenant) pair so two
// concurrent callers of the same expired tenant cannot both hit the token
// endpoint. Entries are refcounted and removed once the last holder
// releases, so the map stays bounded by in-flight refreshes.
type tenantLocker struct {
	mu      sync.Mutex
	entries map[string]*tenantLockEntry
}

type tenantLockEntry struct {
	mu       sync.Mutex
	refCount int
}

func newTenantLocker() *tenantLocker {
	return &tenantLocker{entries: map[string]*tenantLockEntry{}}
}

func tenantLockKey(provider ProviderID, tenantID string) string {
	return string(provider) + "::" + strings.TrimSpace(tenantID)
}

// Lock blocks until the pair's lock is held and returns the release func.
func (l *tenantLocker) Lock(provider ProviderID, tenantID string) func() {
	key := tenantLockKey(provider, tenantID)

	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &tenantLockEntry{}
		l.entries[key] = entry
	}
	entry.refCount++
	l.mu.Unlock()

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()

			l.mu.Lock()
			entry.refCount--
			if entry.refCount <= 0 {
				delete(l.entries, key)
			}
			l.mu.Unlock()
		})
	}
}
