package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/stride/internal/logging"
	"github.com/aretw0/stride/pkg/domain"
	"github.com/aretw0/stride/pkg/ports"
	"golang.org/x/sync/singleflight"
)

// Defaults for the coordination windows.
const (
	DefaultCooldown     = 5 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// Coordinator suppresses duplicate plan generations for a session.
//
// It combines a local time-boxed lock, set synchronously before the remote
// call is issued, with a persisted check that survives reloads. Persisted
// writes run detached from the caller; a failing store never blocks a user.
type Coordinator struct {
	store        ports.SessionStateStore
	cooldown     time.Duration
	writeTimeout time.Duration
	logger       *slog.Logger
	hooks        domain.LifecycleHooks
	now          func() time.Time

	mu    sync.Mutex
	locks map[string]domain.GenerationLock

	group singleflight.Group
	wg    sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithStore sets the persisted session-state store. Without one only the
// local lock applies.
func WithStore(s ports.SessionStateStore) Option {
	return func(c *Coordinator) {
		c.store = s
	}
}

// WithCooldown sets the window during which a triggered generation blocks
// another one.
func WithCooldown(d time.Duration) Option {
	return func(c *Coordinator) {
		c.cooldown = d
	}
}

// WithWriteTimeout bounds each detached persisted write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.writeTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(c *Coordinator) {
		c.hooks = h
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// New creates a Coordinator.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		cooldown:     DefaultCooldown,
		writeTimeout: DefaultWriteTimeout,
		now:          time.Now,
		locks:        make(map[string]domain.GenerationLock),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithCategory(c.logger, logging.CategoryGeneration)
	return c
}

// Cooldown returns the configured cooldown window.
func (c *Coordinator) Cooldown() time.Duration {
	return c.cooldown
}

// CanTrigger reports whether a new generation may start for session.
func (c *Coordinator) CanTrigger(ctx context.Context, session *domain.PipelineSession) bool {
	return c.Check(ctx, session).Allowed
}

// Check evaluates, in order: an existing plan, a missing session id, the
// local lock and the persisted record. A store failure allows the trigger.
func (c *Coordinator) Check(ctx context.Context, session *domain.PipelineSession) domain.GenerationCheck {
	check := c.evaluate(ctx, session)

	sessionID := ""
	if session != nil {
		sessionID = session.SessionID
	}
	if !check.Allowed {
		c.logger.Debug("generation blocked", "session_id", sessionID, "reason", check.Reason)
	}
	if c.hooks.OnGenerationCheck != nil {
		c.hooks.OnGenerationCheck(ctx, &domain.GenerationEvent{
			EventBase: domain.EventBase{Timestamp: c.now(), Type: domain.EventGenerationCheck, SessionID: sessionID},
			Allowed:   check.Allowed,
			Reason:    check.Reason,
		})
	}
	return check
}

func (c *Coordinator) evaluate(ctx context.Context, session *domain.PipelineSession) domain.GenerationCheck {
	if session != nil && session.Plan != nil {
		return domain.GenerationCheck{Reason: domain.ReasonPlanExists}
	}
	if session == nil || session.SessionID == "" {
		return domain.GenerationCheck{Reason: domain.ReasonNoSession}
	}

	now := c.now()
	c.mu.Lock()
	lock, ok := c.locks[session.SessionID]
	c.mu.Unlock()
	if ok && lock.Active(session.SessionID, now, c.cooldown) {
		return domain.GenerationCheck{Reason: domain.ReasonLocalCooldown}
	}

	if c.store == nil {
		return domain.GenerationCheck{Allowed: true}
	}
	check, err := c.store.CanTriggerGeneration(ctx, session.SessionID, c.cooldown)
	if err != nil {
		c.logger.Warn("persisted generation check failed, allowing",
			"session_id", session.SessionID,
			"error", err,
		)
		return domain.GenerationCheck{Allowed: true, Reason: domain.ReasonStoreUnavailable}
	}
	return check
}

// MarkTriggered sets the local lock before returning and records the trigger
// in the store in the background.
func (c *Coordinator) MarkTriggered(ctx context.Context, sessionID, userID string) {
	now := c.now()
	c.mu.Lock()
	for id, l := range c.locks {
		if now.Sub(l.TriggeredAt) >= c.cooldown {
			delete(c.locks, id)
		}
	}
	c.locks[sessionID] = domain.GenerationLock{HasTriggered: true, TriggeredAt: now, SessionID: sessionID}
	c.mu.Unlock()

	c.detach(ctx, "mark triggered", sessionID, func(ctx context.Context) error {
		return c.store.MarkTriggered(ctx, sessionID, userID)
	})
}

// MarkCompleted records in the background that the plan was captured.
func (c *Coordinator) MarkCompleted(ctx context.Context, sessionID string) {
	c.detach(ctx, "mark completed", sessionID, func(ctx context.Context) error {
		return c.store.MarkCompleted(ctx, sessionID)
	})
}

// Reset clears the local lock for sessionID.
func (c *Coordinator) Reset(sessionID string) {
	c.mu.Lock()
	delete(c.locks, sessionID)
	c.mu.Unlock()
}

// Lock returns the local lock for sessionID.
func (c *Coordinator) Lock(sessionID string) (domain.GenerationLock, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[sessionID]
	return l, ok
}

// Do collapses concurrent calls for the same session into one execution.
// shared reports whether the result was handed to more than one caller.
func (c *Coordinator) Do(sessionID string, fn func() (any, error)) (v any, err error, shared bool) {
	return c.group.Do(sessionID, fn)
}

// Wait blocks until all background writes have finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) detach(ctx context.Context, op, sessionID string, fn func(context.Context) error) {
	if c.store == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.writeTimeout)
		defer cancel()
		if err := fn(wctx); err != nil {
			c.logger.Warn("session state write failed", "op", op, "session_id", sessionID, "error", err)
		}
	}()
}
