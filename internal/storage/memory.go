package storage

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStorage is a process-local Storage. It backs tests and single
// instance deployments that do not need the cache to survive restarts.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	sets    map[string]map[string]struct{}
	now     func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[string]memoryEntry),
		sets:    make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

// WithClock replaces the time source, for simulating expiry.
func (m *MemoryStorage) WithClock(now func() time.Time) *MemoryStorage {
	m.now = now
	return m
}

func (m *MemoryStorage) Get(ctx context.Context, key string) (string, error) {
	val, _, err := m.GetWithTTL(ctx, key)
	return val, err
}

func (m *MemoryStorage) GetWithTTL(_ context.Context, key string) (string, time.Duration, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return "", 0, ErrNotFound
	}

	remaining := entry.expiresAt.Sub(m.now())
	if remaining <= 0 {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && !cur.expiresAt.After(m.now()) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return "", 0, ErrNotFound
	}
	return entry.value, remaining, nil
}

func (m *MemoryStorage) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return m.Delete(ctx, key)
	}
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) TTL(ctx context.Context, key string) (time.Duration, error) {
	_, ttl, err := m.GetWithTTL(ctx, key)
	return ttl, err
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) RandomMember(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := m.sets[key]
	if len(set) == 0 {
		return "", ErrNotFound
	}

	target := rand.IntN(len(set))
	i := 0
	for member := range set {
		if i == target {
			return member, nil
		}
		i++
	}
	return "", ErrNotFound
}

func (m *MemoryStorage) RemoveMember(_ context.Context, key, member string) error {
	m.mu.Lock()
	delete(m.sets[key], member)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) AddMembers(_ context.Context, key string, members ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{}, len(members))
		m.sets[key] = set
	}

	var added int64
	for _, member := range members {
		if _, exists := set[member]; !exists {
			set[member] = struct{}{}
			added++
		}
	}
	return added, nil
}

func (m *MemoryStorage) Cardinality(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.sets[key])), nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
