package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/hope-map/internal/config"
	"github.com/ashureev/hope-map/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var (
	userHi  = domain.ChatTurn{Role: domain.RoleUser, Text: "hi"}
	modelHi = domain.ChatTurn{Role: domain.RoleModel, Text: "hello"}
)

// storeContract exercises behavior every backend must share.
func storeContract(t *testing.T, s Store, clock *fakeClock) {
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	created, err := s.Create(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", created.ID)
	assert.Empty(t, created.History)

	sess, err := s.Append(ctx, "s1", userHi, modelHi)
	require.NoError(t, err)
	assert.Equal(t, domain.History{userHi, modelHi}, sess.History)

	// Append creates unknown sessions.
	sess, err = s.Append(ctx, "s2", userHi)
	require.NoError(t, err)
	assert.Len(t, sess.History, 1)

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.History{userHi, modelHi}, got.History)

	// Returned histories are copies.
	got.History[0].Text = "mutated"
	again, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "hi", again.History[0].Text)

	// Create on an existing session does not reset it.
	existing, err := s.Create(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, existing.History, 2)

	require.NoError(t, s.Delete(ctx, "s1"))
	require.NoError(t, s.Delete(ctx, "s1"))
	_, err = s.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)

	if clock != nil {
		clock.Advance(2 * time.Hour)
		_, err = s.Append(ctx, "fresh", userHi)
		require.NoError(t, err)

		removed, err := s.Sweep(ctx, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		_, err = s.Get(ctx, "s2")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Get(ctx, "fresh")
		assert.NoError(t, err)
	}

	assert.NoError(t, s.Ping(ctx))
}

func TestMemoryStore(t *testing.T) {
	clock := newFakeClock()
	m := NewMemory(0)
	m.now = clock.Now
	storeContract(t, m, clock)
}

func TestMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	_, _ = m.Append(ctx, "a", userHi)
	_, _ = m.Append(ctx, "b", userHi)
	_, err := m.Get(ctx, "a") // a is now most recent
	require.NoError(t, err)
	_, _ = m.Append(ctx, "c", userHi)

	assert.Equal(t, 2, m.Len())
	_, err = m.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(ctx, "a")
	assert.NoError(t, err)
	_, err = m.Get(ctx, "c")
	assert.NoError(t, err)
}

func TestMemoryStoreSweepKeepsRecencyOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	_, _ = m.Append(ctx, "a", userHi)
	_, _ = m.Append(ctx, "b", userHi)
	removed, err := m.Sweep(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)
	_, _ = m.Append(ctx, "c", userHi)

	_, err = m.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(ctx, "b")
	assert.NoError(t, err)
}

func TestMemoryStoreConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Append(ctx, "shared", domain.ChatTurn{Role: domain.RoleUser, Text: fmt.Sprint(i)})
		}()
	}
	wg.Wait()

	sess, err := m.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, sess.History, 50)
}

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "sessions.db")
	s, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestSQLiteStore(t *testing.T) {
	clock := newFakeClock()
	s, _ := newTestSQLite(t)
	s.now = clock.Now
	storeContract(t, s, clock)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	s, path := newTestSQLite(t)

	_, err := s.Append(ctx, "keep", userHi, modelHi)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	sess, err := reopened.Get(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, domain.History{userHi, modelHi}, sess.History)
}

func TestSQLiteStoreConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSQLite(t)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Append(ctx, "shared", userHi, modelHi)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sess, err := s.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, sess.History, 40)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, RedisOptions{Addr: addr, TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	for _, id := range []string{"s1", "s2", "fresh", "missing"} {
		require.NoError(t, r.Delete(ctx, id))
	}
	storeContract(t, r, nil)
	require.NoError(t, r.Delete(ctx, "s2"))
}

func TestIsBusyError(t *testing.T) {
	assert.False(t, isBusyError(nil))
	assert.True(t, isBusyError(fmt.Errorf("exec: database is locked")))
	assert.True(t, isBusyError(fmt.Errorf("SQLITE_BUSY (5)")))
	assert.False(t, isBusyError(fmt.Errorf("no such table")))
}

func TestWithBusyRetry(t *testing.T) {
	calls := 0
	err := withBusyRetry(context.Background(), "op", func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("database is locked")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = withBusyRetry(context.Background(), "op", func() error {
		calls++
		return fmt.Errorf("constraint failed")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()

	var mu sync.Mutex
	active, maxActive := 0, 0
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("s")
			defer unlock()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
	assert.Zero(t, k.Len())
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	k := NewKeyedMutex()
	unlockA := k.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := k.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestSweeperRemovesIdleSessions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMemory(0)
	_, err := m.Append(ctx, "old", userHi)
	require.NoError(t, err)

	StartSweeper(ctx, m, 5*time.Millisecond, time.Nanosecond)

	assert.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, config.SessionConfig{Backend: "memory", MaxSessions: 3}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = New(ctx, config.SessionConfig{Backend: "sqlite", DBPath: filepath.Join(t.TempDir(), "s.db")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	require.NoError(t, s.Close())

	_, err = New(ctx, config.SessionConfig{Backend: "etcd"}, nil)
	assert.Error(t, err)
}
