package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/stride"
	"github.com/aretw0/stride/internal/config"
	"github.com/aretw0/stride/internal/logging"
	"github.com/aretw0/stride/pkg/domain"
	"github.com/aretw0/stride/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// Options are the settings shared by every command.
type Options struct {
	ConfigPath string
	LogLevel   string // Overrides the configured level when set

	// Registry receives the pipeline metrics when non-nil.
	Registry prometheus.Registerer
}

// LoadConfig reads the configuration file and applies the log level flag.
func LoadConfig(opts Options) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return cfg, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
		if err := cfg.Validate(); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// CreateLogger builds the logger described by cfg. Logs always go to
// Stderr so Stdout stays free for JSON-RPC and reports.
func CreateLogger(cfg config.Config) *slog.Logger {
	level := logging.ParseLevel(cfg.Log.Level)
	if cfg.Log.Format == "json" {
		return logging.NewJSON(os.Stderr, level)
	}
	return logging.New(level)
}

// CreateEngine initializes a stride engine with standard CLI conventions.
func CreateEngine(cfg config.Config, logger *slog.Logger, reg prometheus.Registerer) (*stride.Engine, error) {
	engineOpts := []stride.Option{
		stride.WithConfig(cfg),
		stride.WithLogger(logger),
	}
	if reg != nil {
		engineOpts = append(engineOpts, stride.WithLifecycleHooks(observability.NewMetrics(reg).Hooks()))
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		engineOpts = append(engineOpts, stride.WithLifecycleHooks(createDebugHooks(logger)))
	}

	engine, err := stride.New(engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	return engine, nil
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageEnter: func(ctx context.Context, e *domain.StageEvent) {
			logger.Debug("Enter Stage", "session_id", e.SessionID, "from", e.From, "to", e.To)
		},
		OnGenerationCheck: func(ctx context.Context, e *domain.GenerationEvent) {
			logger.Debug("Generation Check", "session_id", e.SessionID, "allowed", e.Allowed, "reason", e.Reason)
		},
		OnRemoteAttempt: func(ctx context.Context, e *domain.RemoteAttemptEvent) {
			logger.Debug("Remote Attempt", "endpoint", e.Endpoint, "attempt", e.Attempt, "outcome", e.Outcome, "duration", e.Duration)
		},
		OnExit: func(ctx context.Context, e *domain.ExitEvent) {
			logger.Debug("Session Exit", "session_id", e.SessionID, "stage", e.Stage, "saved", e.Saved, "complete", e.Complete)
		},
	}
}
