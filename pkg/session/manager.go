package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/stride/internal/logging"
	"github.com/aretw0/stride/pkg/pipeline"
	"github.com/aretw0/stride/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock is held if the holder dies.
const DefaultLockTTL = 30 * time.Second

// Factory builds the pipeline for a user that has none yet.
type Factory func(userID string) *pipeline.Machine

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager keeps the live pipelines keyed by user and serializes operations
// on each of them. Lock entries are reference counted and removed when unused.
type Manager struct {
	factory Factory

	mu       sync.Mutex            // Guards locks and machines
	locks    map[string]*lockEntry // Per-user locks
	machines map[string]*pipeline.Machine

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger

	draining sync.WaitGroup // Background writes of dropped machines
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the distributed lock expiry.
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
		m.logger = logger
	}
}

// NewManager creates a registry that builds pipelines with factory.
func NewManager(factory Factory, opts ...Option) *Manager {
	m := &Manager{
		factory:  factory,
		locks:    make(map[string]*lockEntry),
		machines: make(map[string]*pipeline.Machine),
		lockTTL:  DefaultLockTTL,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(key) after unlocking.
func (m *Manager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// Open returns the user's pipeline, creating it on first use.
func (m *Manager) Open(userID string) *pipeline.Machine {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.machines[userID]; ok {
		return p
	}
	p := m.factory(userID)
	m.machines[userID] = p
	m.logger.Debug("pipeline opened", "user_id", userID, "session_id", p.SessionID())
	return p
}

// Get returns the user's pipeline if one is live.
func (m *Manager) Get(userID string) (*pipeline.Machine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.machines[userID]
	return p, ok
}

// Drop forgets the user's pipeline. Its pending background writes still
// complete and are awaited by Wait.
func (m *Manager) Drop(userID string) {
	m.mu.Lock()
	p, ok := m.machines[userID]
	delete(m.machines, userID)
	m.mu.Unlock()

	if !ok {
		return
	}
	m.draining.Add(1)
	go func() {
		defer m.draining.Done()
		p.Wait()
	}()
	m.logger.Debug("pipeline dropped", "user_id", userID)
}

// List returns the users with a live pipeline, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.machines))
	for id := range m.machines {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// WithPipeline runs fn on the user's pipeline while holding the user's lock.
func (m *Manager) WithPipeline(ctx context.Context, userID string, fn func(context.Context, *pipeline.Machine) error) error {
	return m.WithLock(ctx, userID, func(ctx context.Context) error {
		return fn(ctx, m.Open(userID))
	})
}

// WithLock executes a function while holding the lock for key.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := m.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(key)
	}()

	// Distributed Locking
	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"key", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Wait blocks until the background writes of every live and dropped
// pipeline have finished.
func (m *Manager) Wait() {
	m.mu.Lock()
	live := make([]*pipeline.Machine, 0, len(m.machines))
	for _, p := range m.machines {
		live = append(live, p)
	}
	m.mu.Unlock()

	for _, p := range live {
		p.Wait()
	}
	m.draining.Wait()
}
