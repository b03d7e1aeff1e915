package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shakilkhan1801/NYXAR/wire"
)

// MemoryStore implements DirectoryStore and QueueStore in memory.
// State does not survive a restart; use storage/postgres for durability.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]DirectoryRecord
	queue   map[string][]QueueEntry
	nextSeq int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]DirectoryRecord),
		queue:   make(map[string][]QueueEntry),
		nextSeq: 1,
	}
}

func (m *MemoryStore) Upsert(_ context.Context, rec DirectoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[rec.ID] = rec
	return nil
}

func (m *MemoryStore) SetOnline(_ context.Context, id string, online bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.entries[id]
	if !ok {
		return ErrNotFound
	}
	rec.Online = online
	rec.LastActive = at
	m.entries[id] = rec
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (DirectoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.entries[id]
	if !ok {
		return DirectoryRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) List(_ context.Context) ([]DirectoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DirectoryRecord, 0, len(m.entries))
	for _, rec := range m.entries {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Append(_ context.Context, recipientID string, env wire.Envelope, arrivedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := QueueEntry{
		Seq:         m.nextSeq,
		RecipientID: recipientID,
		Envelope:    env,
		ArrivedAt:   arrivedAt,
	}
	m.nextSeq++
	m.queue[recipientID] = append(m.queue[recipientID], entry)
	return nil
}

func (m *MemoryStore) Pending(_ context.Context, recipientID string) ([]QueueEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pending := m.queue[recipientID]
	out := make([]QueueEntry, len(pending))
	copy(out, pending)
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, seq int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for recipient, entries := range m.queue {
		for i, e := range entries {
			if e.Seq == seq {
				m.queue[recipient] = append(entries[:i], entries[i+1:]...)
				if len(m.queue[recipient]) == 0 {
					delete(m.queue, recipient)
				}
				return nil
			}
		}
	}
	return ErrNotFound
}

// Interface conformance.
var (
	_ DirectoryStore = (*MemoryStore)(nil)
	_ QueueStore     = (*MemoryStore)(nil)
)
