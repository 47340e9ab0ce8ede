package analysis

import (
	"log/slog"
	"time"

	"github.com/aretw0/stride/internal/remote"
	"github.com/aretw0/stride/pkg/domain"
	"github.com/aretw0/stride/pkg/ports"
)

type options struct {
	logger       *slog.Logger
	hooks        domain.LifecycleHooks
	archive      ports.ArchiveStore
	writeTimeout time.Duration
	callOptions  remote.CallOptions
	now          func() time.Time
}

// Option configures the analysis components.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(o *options) {
		o.hooks = h
	}
}

// WithArchive persists completed analyses.
func WithArchive(a ports.ArchiveStore) Option {
	return func(o *options) {
		o.archive = a
	}
}

// WithWriteTimeout bounds background archive writes.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = d
	}
}

// WithCallOptions sets the retry policy used for remote calls.
func WithCallOptions(c remote.CallOptions) Option {
	return func(o *options) {
		o.callOptions = c
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func applyOptions(opts []Option) options {
	o := options{
		writeTimeout: 10 * time.Second,
		callOptions:  remote.DefaultCallOptions(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
