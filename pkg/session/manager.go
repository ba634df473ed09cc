package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/aretw0/sherpa/internal/logging"
	"github.com/aretw0/sherpa/pkg/flow"
	"github.com/aretw0/sherpa/pkg/ports"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates session access, ensuring safe concurrent
// operations. It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.StateStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the distributed lock TTL (default 30s).
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a session manager over the given store.
func NewManager(store ports.StateStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: 30 * time.Second,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

// acquire gets or creates a lock entry and increments its reference
// count. Callers lock entry.mu and call release(sessionID) afterwards.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// Load retrieves an existing session snapshot from the store.
func (m *Manager) Load(ctx context.Context, sessionID string) (*flow.Snapshot, error) {
	var snap *flow.Snapshot
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		snap, err = m.store.Load(ctx, sessionID)
		return err
	})
	return snap, err
}

// LoadOrCreate tries to load a session snapshot. When the session does
// not exist yet it persists the provided initial snapshot to reserve the
// ID and returns it, reporting created=true.
func (m *Manager) LoadOrCreate(ctx context.Context, sessionID string, initial *flow.Snapshot) (snap *flow.Snapshot, created bool, err error) {
	err = m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var loadErr error
		snap, loadErr = m.store.Load(ctx, sessionID)
		if loadErr == nil {
			return nil
		}
		if !errors.Is(loadErr, flow.ErrSessionNotFound) {
			return fmt.Errorf("failed to check session existence: %w", loadErr)
		}

		if initial == nil {
			initial = flow.NewSnapshot(flow.NewContext(), "")
		}
		if saveErr := m.store.Save(ctx, sessionID, initial); saveErr != nil {
			return fmt.Errorf("failed to initialize session: %w", saveErr)
		}
		snap = initial
		created = true
		return nil
	})
	return snap, created, err
}

// Save persists the session snapshot.
func (m *Manager) Save(ctx context.Context, sessionID string, snap *flow.Snapshot) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Save(ctx, sessionID, snap)
	})
}

// Delete removes the session from the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying state store.
func (m *Manager) Store() ports.StateStore {
	return m.store
}

// WithLock executes fn while holding the local lock for the session and,
// when a distributed locker is configured, the cross-replica lock too.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
