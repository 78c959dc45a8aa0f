package audit

import (
	"context"
	"embed"
	"sort"
	"sync"

	"github.com/google/uuid"
)

//go:embed migrations
var migrationsFS embed.FS

// LinkFunc builds the next entry from the current tail, which is nil for an empty trail.
type LinkFunc func(tail *Entry) Entry

// Store persists audit entries. Implementations never update or delete.
type Store interface {
	// Append reads the tail and inserts link(tail) atomically with respect to
	// every other writer of the same trail, including other processes.
	Append(ctx context.Context, link LinkFunc) (Entry, error)
	// Last returns the newest entry, or nil for an empty trail.
	Last(ctx context.Context) (*Entry, error)
	// List returns up to limit entries with Sequence > after, oldest first.
	List(ctx context.Context, after int64, limit int) ([]Entry, error)
	// Dangling returns pending entries whose attempt never completed.
	Dangling(ctx context.Context) ([]Entry, error)
	Ping(ctx context.Context) error
	Close() error
}

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(_ context.Context, link LinkFunc) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tail *Entry
	if n := len(m.entries); n > 0 {
		last := m.entries[n-1]
		tail = &last
	}
	e := link(tail)
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *MemoryStore) Last(_ context.Context) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return nil, nil
	}
	last := m.entries[len(m.entries)-1]
	return &last, nil
}

func (m *MemoryStore) List(_ context.Context, after int64, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if e.Sequence > after {
			out = append(out, e)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) Dangling(_ context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	completed := make(map[uuid.UUID]bool)
	for _, e := range m.entries {
		if e.Outcome != OutcomePending {
			completed[e.AttemptID] = true
		}
	}
	var out []Entry
	for _, e := range m.entries {
		if e.Outcome == OutcomePending && !completed[e.AttemptID] {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// Entries returns a copy of everything appended so far.
func (m *MemoryStore) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
func (m *MemoryStore) Close() error               { return nil }
