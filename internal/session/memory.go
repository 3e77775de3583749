package session

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/ashureev/hope-map/internal/domain"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Memory is an in-process LRU session store. When full, the least recently
// used session is evicted to make room for a new one.
type Memory struct {
	// mu guards read-modify-write sequences on cached sessions.
	mu       sync.Mutex
	sessions *simplelru.LRU[string, *domain.Session]
	now      func() time.Time
}

// NewMemory creates a store holding at most maxSessions sessions. A non-positive value
// means unbounded.
func NewMemory(maxSessions int) *Memory {
	if maxSessions <= 0 {
		maxSessions = math.MaxInt
	}
	sessions, err := simplelru.NewLRU[string, *domain.Session](maxSessions, nil)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &Memory{sessions: sessions, now: time.Now}
}

func (m *Memory) Get(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(s), nil
}

func (m *Memory) Create(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySession(m.getOrCreate(id)), nil
}

func (m *Memory) Append(_ context.Context, id string, turns ...domain.ChatTurn) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.getOrCreate(id)
	s.History = append(s.History, turns...)
	s.UpdatedAt = m.now()
	return copySession(s), nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions.Remove(id)
	return nil
}

func (m *Memory) Sweep(_ context.Context, idle time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for _, id := range m.sessions.Keys() {
		// Peek leaves recency untouched.
		s, ok := m.sessions.Peek(id)
		if ok && s.IdleFor(now) > idle {
			m.sessions.Remove(id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions.Len()
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// getOrCreate must be called with mu held.
func (m *Memory) getOrCreate(id string) *domain.Session {
	if s, ok := m.sessions.Get(id); ok {
		return s
	}
	now := m.now()
	s := &domain.Session{ID: id, History: domain.History{}, CreatedAt: now, UpdatedAt: now}
	m.sessions.Add(id, s)
	return s
}

func copySession(s *domain.Session) *domain.Session {
	out := *s
	out.History = s.History.Clone()
	return &out
}
