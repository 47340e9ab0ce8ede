package stride

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/stride/internal/analysis"
	"github.com/aretw0/stride/internal/config"
	"github.com/aretw0/stride/internal/coordinator"
	"github.com/aretw0/stride/internal/logging"
	"github.com/aretw0/stride/internal/remote"
	"github.com/aretw0/stride/pkg/adapters/file"
	"github.com/aretw0/stride/pkg/adapters/memory"
	"github.com/aretw0/stride/pkg/adapters/redis"
	"github.com/aretw0/stride/pkg/domain"
	"github.com/aretw0/stride/pkg/persistence/middleware"
	"github.com/aretw0/stride/pkg/pipeline"
	"github.com/aretw0/stride/pkg/ports"
	"github.com/aretw0/stride/pkg/session"
)

// Version is the library version reported by the CLI.
const Version = "0.4.0"

// ArchiveDrafts is implemented by every bundled archive adapter.
type ArchiveDrafts interface {
	ports.ArchiveStore
	ports.DraftStore
}

// Engine is the high-level entry point for the stride library.
// It wires configuration, persistence, the coordinator and the remote
// services, and hands out pipelines through a session registry.
type Engine struct {
	cfg       config.Config
	state     ports.SessionStateStore
	archive   ArchiveDrafts
	locker    ports.DistributedLocker
	generator ports.PlanGenerator
	analyzer  ports.Analyzer
	recovery  ports.RecoveryProvider
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	http      *http.Client

	coord    *coordinator.Coordinator
	service  *analysis.Service
	sessions *session.Manager
	closers  []func() error
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithStateStore injects the session-state store, bypassing the configured driver.
func WithStateStore(s ports.SessionStateStore) Option {
	return func(e *Engine) {
		e.state = s
	}
}

// WithArchive injects the archive and draft store, bypassing the configured driver.
func WithArchive(a ArchiveDrafts) Option {
	return func(e *Engine) {
		e.archive = a
	}
}

// WithGenerator injects a plan generator instead of the remote one.
func WithGenerator(g ports.PlanGenerator) Option {
	return func(e *Engine) {
		e.generator = g
	}
}

// WithAnalyzer injects an analyzer instead of the remote one.
func WithAnalyzer(a ports.Analyzer) Option {
	return func(e *Engine) {
		e.analyzer = a
	}
}

// WithRecovery sets the wearable recovery provider.
func WithRecovery(r ports.RecoveryProvider) Option {
	return func(e *Engine) {
		e.recovery = r
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithHTTPClient sets the client used for remote calls.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		e.http = c
	}
}

// New initializes a stride Engine.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{cfg: config.Default()}
	for _, opt := range opts {
		opt(eng)
	}
	if err := eng.cfg.Validate(); err != nil {
		return nil, err
	}
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}

	if err := eng.openStores(); err != nil {
		return nil, err
	}
	if err := eng.secureArchive(); err != nil {
		eng.closeStores()
		return nil, err
	}

	eng.coord = coordinator.New(
		coordinator.WithStore(eng.state),
		coordinator.WithCooldown(eng.cfg.Generation.Cooldown),
		coordinator.WithWriteTimeout(eng.cfg.Generation.WriteTimeout),
		coordinator.WithLogger(eng.logger),
		coordinator.WithLifecycleHooks(eng.hooks),
	)

	client := eng.remoteClient()
	callOpts := remote.CallOptions{MaxRetries: eng.cfg.Remote.MaxRetries, Timeout: eng.cfg.Remote.Timeout}
	if eng.analyzer == nil && eng.cfg.Remote.AnalysisURL != "" {
		eng.service = analysis.NewService(client, eng.cfg.Remote.AnalysisURL,
			analysis.WithArchive(eng.archive),
			analysis.WithCallOptions(callOpts),
			analysis.WithWriteTimeout(eng.cfg.Generation.WriteTimeout),
			analysis.WithLogger(eng.logger),
			analysis.WithLifecycleHooks(eng.hooks),
		)
		eng.analyzer = eng.service
	}
	if eng.generator == nil && eng.cfg.Remote.GenerationURL != "" {
		eng.generator = analysis.NewRemoteGenerator(client, eng.cfg.Remote.GenerationURL,
			analysis.WithCallOptions(callOpts),
			analysis.WithLogger(eng.logger),
		)
	}

	sessOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.locker != nil {
		sessOpts = append(sessOpts,
			session.WithLocker(eng.locker),
			session.WithLockTTL(lockTTL(eng.cfg.Remote)),
		)
	}
	eng.sessions = session.NewManager(eng.NewPipeline, sessOpts...)

	eng.logger.Debug("engine ready",
		"store", eng.cfg.Store.Driver,
		"analysis_url", eng.cfg.Remote.AnalysisURL,
		"generation_url", eng.cfg.Remote.GenerationURL,
	)
	return eng, nil
}

// lockTTL outlives one full remote call, retries included, with the
// default TTL left over as margin.
func lockTTL(rc config.Remote) time.Duration {
	return rc.Budget() + session.DefaultLockTTL
}

func (e *Engine) openStores() error {
	if e.state != nil && e.archive != nil {
		return nil
	}
	sc := e.cfg.Store
	var (
		state   ports.SessionStateStore
		archive ArchiveDrafts
	)
	switch sc.Driver {
	case "", "memory":
		state, archive = memory.NewStore(), memory.NewArchive()
	case "redis":
		opts := []redis.Option{redis.WithPrefix(sc.Prefix)}
		if sc.TTL > 0 {
			opts = append(opts, redis.WithTTL(sc.TTL))
		}
		rs := redis.New(sc.RedisAddr, sc.RedisPassword, sc.RedisDB, opts...)
		state = rs
		archive = redis.NewArchive(rs.Client(), opts...)
		e.locker = redis.NewLocker(rs.Client(), sc.Prefix)
		e.closers = append(e.closers, rs.Close)
	case "file":
		state, archive = file.New(sc.Dir), file.NewArchive(sc.Dir)
	default:
		return fmt.Errorf("unknown store driver %q", sc.Driver)
	}
	if e.state == nil {
		e.state = state
	}
	if e.archive == nil {
		e.archive = archive
	}
	return nil
}

// secureArchive wraps the archive with the privacy middlewares the
// configuration enables.
func (e *Engine) secureArchive() error {
	sc := e.cfg.Store
	var mws []middleware.Middleware
	if sc.RedactNotes {
		mws = append(mws, middleware.NewPIIMiddleware(middleware.DefaultPIIPatterns))
	}
	if sc.EncryptionKey != "" {
		active, err := middleware.DecodeKey(sc.EncryptionKey)
		if err != nil {
			return fmt.Errorf("store.encryptionKey: %w", err)
		}
		enc := middleware.EncryptionConfig{ActiveKey: active}
		for i, k := range sc.FallbackKeys {
			key, err := middleware.DecodeKey(k)
			if err != nil {
				return fmt.Errorf("store.fallbackKeys[%d]: %w", i, err)
			}
			enc.FallbackKeys = append(enc.FallbackKeys, key)
		}
		mw, err := middleware.NewEncryptionMiddleware(enc)
		if err != nil {
			return err
		}
		mws = append(mws, mw)
	}
	if len(mws) > 0 {
		e.archive = middleware.Chain(e.archive, mws...)
	}
	return nil
}

func (e *Engine) remoteClient() *remote.Client {
	rc := e.cfg.Remote
	opts := []remote.Option{
		remote.WithBackoffBase(rc.BackoffBase),
		remote.WithExtendedTimeout(rc.ExtendedTimeout),
		remote.WithLogger(e.logger),
	}
	if e.http != nil {
		opts = append(opts, remote.WithHTTPClient(e.http))
	}
	if rc.APIKey != "" {
		opts = append(opts, remote.WithHeader("Authorization", "Bearer "+rc.APIKey))
	}
	if rc.RateLimit > 0 {
		opts = append(opts, remote.WithRateLimit(rc.RateLimit, rc.Burst))
	}
	if e.hooks.OnRemoteAttempt != nil {
		opts = append(opts, remote.WithAttemptObserver(e.hooks.OnRemoteAttempt))
	}
	return remote.New(opts...)
}

// NewPipeline builds a machine for userID wired to the engine's
// collaborators. It is the factory behind Sessions.
func (e *Engine) NewPipeline(userID string) *pipeline.Machine {
	return pipeline.New(userID,
		pipeline.WithCoordinator(e.coord),
		pipeline.WithGenerator(e.generator),
		pipeline.WithAnalyzer(e.analyzer),
		pipeline.WithStateStore(e.state),
		pipeline.WithArchive(e.archive),
		pipeline.WithDrafts(e.archive),
		pipeline.WithRecovery(e.recovery),
		pipeline.WithLogger(e.logger),
		pipeline.WithLifecycleHooks(e.hooks),
		pipeline.WithDraftTTL(e.cfg.Session.DraftTTL),
		pipeline.WithWriteTimeout(e.cfg.Generation.WriteTimeout),
	)
}

// Sessions returns the registry of live pipelines.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// StateStore returns the session-state store in use.
func (e *Engine) StateStore() ports.SessionStateStore {
	return e.state
}

// Archive returns the archive and draft store in use.
func (e *Engine) Archive() ArchiveDrafts {
	return e.archive
}

// Config returns the effective configuration.
func (e *Engine) Config() config.Config {
	return e.cfg
}

// Close waits for background writes and releases store connections.
func (e *Engine) Close() error {
	e.sessions.Wait()
	e.coord.Wait()
	if e.service != nil {
		e.service.Wait()
	}
	return e.closeStores()
}

func (e *Engine) closeStores() error {
	var first error
	for _, c := range e.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
