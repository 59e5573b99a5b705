package session

import (
	"context"
	"sync"
	"time"

	"github.com/stemsi/certify-backend/internal/model"
)

// MemoryStore is a fixed-capacity session store. Sessions live in a slot
// arena addressed through an id index; freed slots are reused. Live sessions
// are never evicted: Set returns ErrFull instead.
type MemoryStore struct {
	mu       sync.Mutex
	slots    []memorySlot
	index    map[string]int
	free     []int
	capacity int
	grace    time.Duration
	seq      uint64
	now      func() time.Time
}

type memorySlot struct {
	session   *model.TestSession
	expiresAt time.Time
	seq       uint64
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source used for TTL checks.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

// NewMemoryStore creates a store holding at most capacity sessions.
func NewMemoryStore(capacity int, grace time.Duration, opts ...MemoryOption) *MemoryStore {
	if capacity <= 0 {
		capacity = 1
	}
	m := &MemoryStore{
		slots:    make([]memorySlot, 0, capacity),
		index:    make(map[string]int, capacity),
		capacity: capacity,
		grace:    grace,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) Get(_ context.Context, id string) (*model.TestSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.index[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !m.now().Before(m.slots[i].expiresAt) {
		m.release(id, i)
		return nil, ErrNotFound
	}
	return m.slots[i].session.Clone(), nil
}

func (m *MemoryStore) Set(_ context.Context, s *model.TestSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.seq++
	slot := memorySlot{
		session:   s.Clone(),
		expiresAt: retention(s, m.grace),
		seq:       m.seq,
	}

	if i, ok := m.index[s.ID]; ok {
		// Keep insertion order for eviction; only the payload changes.
		slot.seq = m.slots[i].seq
		m.slots[i] = slot
		return nil
	}

	var i int
	switch {
	case len(m.free) > 0:
		i = m.free[len(m.free)-1]
		m.free = m.free[:len(m.free)-1]
		m.slots[i] = slot
	case len(m.slots) < m.capacity:
		i = len(m.slots)
		m.slots = append(m.slots, slot)
	default:
		if i = m.victim(now); i < 0 {
			return ErrFull
		}
		delete(m.index, m.slots[i].session.ID)
		m.slots[i] = slot
	}
	m.index[s.ID] = i
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i, ok := m.index[id]; ok {
		m.release(id, i)
	}
	return nil
}

func (m *MemoryStore) ListExpired(_ context.Context, now time.Time) ([]*model.TestSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.TestSession
	for id, i := range m.index {
		slot := m.slots[i]
		if !m.now().Before(slot.expiresAt) {
			m.release(id, i)
			continue
		}
		if slot.session.IsOpen() && !slot.session.WithinTime(now) {
			out = append(out, slot.session.Clone())
		}
	}
	return out, nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.index)
}

// release frees slot i. Caller holds mu.
func (m *MemoryStore) release(id string, i int) {
	delete(m.index, id)
	m.slots[i] = memorySlot{}
	m.free = append(m.free, i)
}

// victim picks the slot to overwrite when the arena is full: anything past
// its TTL first, then the oldest terminal session. Returns -1 when every slot
// holds a live session. Caller holds mu.
func (m *MemoryStore) victim(now time.Time) int {
	best, bestRank := -1, 2
	var bestSeq uint64
	for i, slot := range m.slots {
		var rank int
		switch {
		case !now.Before(slot.expiresAt):
			rank = 0
		case slot.session.IsTerminal():
			rank = 1
		default:
			continue
		}
		if best < 0 || rank < bestRank || (rank == bestRank && slot.seq < bestSeq) {
			best, bestRank, bestSeq = i, rank, slot.seq
		}
	}
	return best
}
