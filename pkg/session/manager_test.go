package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/sherpa/pkg/adapters/memory"
	"github.com/aretw0/sherpa/pkg/flow"
	"github.com/aretw0/sherpa/pkg/ports"
	"github.com/aretw0/sherpa/pkg/session"
)

// slowStore simulates IO latency to provoke races if locking is missing.
type slowStore struct {
	mu   sync.Mutex
	data map[string]*flow.Snapshot
}

func (s *slowStore) Save(ctx context.Context, sessionID string, snap *flow.Snapshot) error {
	time.Sleep(10 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string]*flow.Snapshot)
	}
	s.data[sessionID] = snap
	return nil
}

func (s *slowStore) Load(ctx context.Context, sessionID string) (*flow.Snapshot, error) {
	time.Sleep(10 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.data[sessionID]; ok {
		return snap, nil
	}
	return nil, flow.ErrSessionNotFound
}

func (s *slowStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

func (s *slowStore) List(ctx context.Context) ([]string, error) {
	return nil, nil
}

func TestManager_ConcurrentSaves(t *testing.T) {
	store := &slowStore{}
	manager := session.NewManager(store)
	ctx := context.Background()
	id := "race-test"

	require.NoError(t, manager.Save(ctx, id, flow.NewSnapshot(flow.NewContext(), "start")))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := manager.Save(ctx, id, flow.NewSnapshot(flow.NewContext(), "updated"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := manager.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "updated", snap.StepID())
}

func TestManager_LoadOrCreate(t *testing.T) {
	ctx := context.Background()
	manager := session.NewManager(memory.NewStore())

	fc := flow.NewContext()
	fc.Set("seed", true)
	initial := flow.NewSnapshot(fc, "welcome")

	snap, created, err := manager.LoadOrCreate(ctx, "s1", initial)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "welcome", snap.StepID())

	// The ID is reserved: a second call resumes instead of re-seeding.
	other := flow.NewSnapshot(flow.NewContext(), "elsewhere")
	snap, created, err = manager.LoadOrCreate(ctx, "s1", other)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "welcome", snap.StepID())
	_, ok := snap.FlowData.Value("seed")
	assert.True(t, ok)
}

func TestManager_DeleteAndList(t *testing.T) {
	ctx := context.Background()
	manager := session.NewManager(memory.NewStore())

	require.NoError(t, manager.Save(ctx, "a", flow.NewSnapshot(flow.NewContext(), "x")))
	require.NoError(t, manager.Save(ctx, "b", flow.NewSnapshot(flow.NewContext(), "y")))

	ids, err := manager.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	require.NoError(t, manager.Delete(ctx, "a"))
	_, err = manager.Load(ctx, "a")
	assert.ErrorIs(t, err, flow.ErrSessionNotFound)
}

// fakeLocker records lock traffic.
type fakeLocker struct {
	mu       sync.Mutex
	acquired []string
	released []string
}

func (l *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	l.acquired = append(l.acquired, key)
	l.mu.Unlock()
	return func(ctx context.Context) error {
		l.mu.Lock()
		l.released = append(l.released, key)
		l.mu.Unlock()
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	ctx := context.Background()
	locker := &fakeLocker{}
	manager := session.NewManager(memory.NewStore(), session.WithLocker(locker))

	require.NoError(t, manager.Save(ctx, "s1", flow.NewSnapshot(flow.NewContext(), "x")))
	_, err := manager.Load(ctx, "s1")
	require.NoError(t, err)

	assert.Equal(t, []string{"s1", "s1"}, locker.acquired)
	assert.Equal(t, []string{"s1", "s1"}, locker.released)
}

func TestNewID(t *testing.T) {
	assert.NotEmpty(t, session.NewID())
	assert.NotEqual(t, session.NewID(), session.NewID())
}
