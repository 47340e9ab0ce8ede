package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/stride/internal/coordinator"
	"github.com/aretw0/stride/internal/logging"
	"github.com/aretw0/stride/pkg/domain"
	"github.com/aretw0/stride/pkg/ports"
	"github.com/google/uuid"
)

const (
	// DefaultDraftTTL is how long a saved draft stays loadable.
	DefaultDraftTTL = 48 * time.Hour
	// DefaultWriteTimeout bounds each background persistence write.
	DefaultWriteTimeout = 10 * time.Second
)

// Coordinator decides whether a plan generation may start.
// *coordinator.Coordinator is the production implementation.
type Coordinator interface {
	Check(ctx context.Context, session *domain.PipelineSession) domain.GenerationCheck
	MarkTriggered(ctx context.Context, sessionID, userID string)
	MarkCompleted(ctx context.Context, sessionID string)
	Reset(sessionID string)
	Do(sessionID string, fn func() (any, error)) (any, error, bool)
}

var _ Coordinator = (*coordinator.Coordinator)(nil)

// Machine drives one user's session through the five stages.
//
// A Machine is safe for concurrent use. Lifecycle hooks run while the
// machine lock is held and must not call back into the Machine.
type Machine struct {
	mu      sync.Mutex
	session *domain.PipelineSession
	// epoch changes whenever the session is abandoned or replaced; results of
	// in-flight remote calls are dropped when it no longer matches.
	epoch uint64

	coord     Coordinator
	generator ports.PlanGenerator
	analyzer  ports.Analyzer
	state     ports.SessionStateStore
	archive   ports.ArchiveStore
	drafts    ports.DraftStore
	recovery  ports.RecoveryProvider

	logger       *slog.Logger
	hooks        domain.LifecycleHooks
	now          func() time.Time
	newID        func() string
	draftTTL     time.Duration
	writeTimeout time.Duration

	wg sync.WaitGroup
}

// Option configures a Machine.
type Option func(*Machine)

// WithCoordinator injects the generation coordinator. Machines of the same
// process should share one so that locks cover every session.
func WithCoordinator(c Coordinator) Option {
	return func(m *Machine) { m.coord = c }
}

// WithGenerator sets the plan generator.
func WithGenerator(g ports.PlanGenerator) Option {
	return func(m *Machine) { m.generator = g }
}

// WithAnalyzer sets the session analyzer.
func WithAnalyzer(a ports.Analyzer) Option {
	return func(m *Machine) { m.analyzer = a }
}

// WithStateStore sets the persisted session-state store.
func WithStateStore(s ports.SessionStateStore) Option {
	return func(m *Machine) { m.state = s }
}

// WithArchive sets where abandoned sessions are kept.
func WithArchive(a ports.ArchiveStore) Option {
	return func(m *Machine) { m.archive = a }
}

// WithDrafts sets the draft store.
func WithDrafts(d ports.DraftStore) Option {
	return func(m *Machine) { m.drafts = d }
}

// WithRecovery sets the wearable recovery provider.
func WithRecovery(r ports.RecoveryProvider) Option {
	return func(m *Machine) { m.recovery = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(m *Machine) { m.hooks = m.hooks.Merge(h) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithIDGenerator overrides the session id generator.
func WithIDGenerator(fn func() string) Option {
	return func(m *Machine) { m.newID = fn }
}

// WithDraftTTL sets the draft expiry.
func WithDraftTTL(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.draftTTL = d
		}
	}
}

// WithWriteTimeout bounds background persistence writes.
func WithWriteTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.writeTimeout = d
		}
	}
}

// New creates a machine for userID at the prepare stage.
// Without WithCoordinator a private coordinator backed by the state store is used.
func New(userID string, opts ...Option) *Machine {
	m := &Machine{
		now:          time.Now,
		newID:        uuid.NewString,
		draftTTL:     DefaultDraftTTL,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.NewNop()
	}
	m.logger = logging.WithCategory(m.logger, logging.CategoryPipeline)
	if m.coord == nil {
		m.coord = coordinator.New(
			coordinator.WithStore(m.state),
			coordinator.WithLogger(m.logger),
			coordinator.WithLifecycleHooks(m.hooks),
			coordinator.WithClock(m.now),
			coordinator.WithWriteTimeout(m.writeTimeout),
		)
	}
	m.session = domain.NewSession(m.newID(), userID, m.now())
	return m
}

// Session returns a snapshot of the current session.
func (m *Machine) Session() *domain.PipelineSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Snapshot()
}

// SessionID returns the current session id.
func (m *Machine) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.SessionID
}

// UserID returns the owner of the machine.
func (m *Machine) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.UserID
}

// Stage returns the catalog entry of the current stage.
func (m *Machine) Stage() domain.Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, _ := domain.LookupStage(m.session.CurrentStage)
	return st
}

// Wait blocks until background writes issued by the machine, and by its
// coordinator when it exposes Wait, have finished.
func (m *Machine) Wait() {
	m.wg.Wait()
	if w, ok := m.coord.(interface{ Wait() }); ok {
		w.Wait()
	}
}

func (m *Machine) base(t domain.EventType) domain.EventBase {
	return domain.EventBase{Timestamp: m.now(), Type: t, SessionID: m.session.SessionID}
}

// touch refreshes the activity timestamp. Caller must hold m.mu.
func (m *Machine) touch() {
	m.session.LastActivityAt = m.now()
}

// enter moves the session to stage, firing hooks and persisting the stage.
// Caller must hold m.mu.
func (m *Machine) enter(ctx context.Context, to domain.Stage) {
	from := m.session.CurrentStage
	if m.hooks.OnStageLeave != nil {
		m.hooks.OnStageLeave(ctx, &domain.StageEvent{
			EventBase: m.base(domain.EventStageLeave),
			From:      from,
			To:        to.ID,
			Progress:  m.session.Progress,
		})
	}

	m.session.CurrentStage = to.ID
	m.session.Progress = to.ProgressStart
	m.touch()

	if m.hooks.OnStageEnter != nil {
		m.hooks.OnStageEnter(ctx, &domain.StageEvent{
			EventBase: m.base(domain.EventStageEnter),
			From:      from,
			To:        to.ID,
			Progress:  m.session.Progress,
		})
	}
	m.logger.Debug("stage changed", "session_id", m.session.SessionID, "from", from, "to", to.ID)
	m.persistStage(ctx)
}

// persistStage writes the current stage through to the state store.
// Caller must hold m.mu.
func (m *Machine) persistStage(ctx context.Context) {
	if m.state == nil {
		return
	}
	sid, uid, stage := m.session.SessionID, m.session.UserID, m.session.CurrentStage
	m.detach(ctx, "update stage", sid, func(ctx context.Context) error {
		return m.state.UpdateStage(ctx, sid, uid, stage)
	})
}

// detach runs fn in the background on a context that survives ctx's
// cancellation but is bounded by the write timeout. Failures are logged.
func (m *Machine) detach(ctx context.Context, op, sessionID string, fn func(context.Context) error) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.writeTimeout)
		defer cancel()
		if err := fn(wctx); err != nil {
			m.logger.Warn("background write failed", "op", op, "session_id", sessionID, "error", err)
		}
	}()
}
