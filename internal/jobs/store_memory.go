package jobs

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore keeps job records in a process-local map with the same TTL
// semantics as the durable store. It is the degraded-mode fallback when the
// database cannot be opened: polling works within the process, but records
// do not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	records map[string]*Record
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		records: make(map[string]*Record),
	}
}

func (m *MemoryStore) Put(_ context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, existing := range m.records {
		if m.expired(existing, now) {
			delete(m.records, id)
		}
	}
	m.records[rec.ID] = rec.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok || m.expired(rec, m.now()) {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) ListActive(_ context.Context) (map[string]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := make(map[string]*Record)
	now := m.now()
	for id, rec := range m.records {
		if m.expired(rec, now) {
			continue
		}
		if rec.Status == StatusQueued || rec.Status == StatusProcessing {
			active[id] = rec.Clone()
		}
	}
	return active, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) expired(rec *Record, now time.Time) bool {
	return now.Sub(rec.StartedAt) >= m.ttl
}
