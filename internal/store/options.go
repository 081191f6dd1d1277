package store

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/sessionstore/internal/audit"
)

// Clock supplies wall-clock time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// IDGenerator produces session ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Option configures a Store.
type Option func(*Store)

// WithBatchSize sets how many updates trigger a save. Values below 1 are
// ignored.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batch.size = n
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithIDGenerator overrides the session id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) {
		if g != nil {
			s.ids = g
		}
	}
}

// WithLogger sets the logger used for diagnostics and as the audit echo.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSink attaches an external event sink. With a sink attached every
// event is recorded, not only audit events.
func WithSink(sink audit.Sink) Option {
	return func(s *Store) {
		s.sink = sink
	}
}

// WithMetrics registers the store's collectors on reg. Each store needs
// its own registerer; wrap a shared one with prometheus.WrapRegistererWith
// to run several stores side by side.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Store) {
		s.registerer = reg
	}
}
