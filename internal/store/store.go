package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/sessionstore/internal/audit"
	"github.com/roach88/sessionstore/internal/record"
	"github.com/roach88/sessionstore/internal/schema"
)

// Params configures Initialize.
type Params struct {
	// StudyKey names the dataset. Generated when empty.
	StudyKey string

	Config   schema.StudyConfig
	ItemBank schema.ItemBank

	// OutputDir receives the snapshots. Defaults to the working directory.
	OutputDir string

	// EnableBackup saves after every Add.
	EnableBackup bool
}

// Handle is returned by Initialize.
type Handle struct {
	StudyKey    string
	PrimaryPath string
	Active      bool
}

// Store holds one study's dataset. It is safe for concurrent use, but is
// meant to be owned by a single session.
type Store struct {
	mu sync.Mutex

	clock      Clock
	ids        IDGenerator
	logger     *slog.Logger
	sink       audit.Sink
	registerer prometheus.Registerer

	events  *audit.Logger
	metrics *metrics
	batch   batch

	initialized bool
	active      bool
	backup      bool

	data    record.Dataset
	index   map[string]int
	current string
	target  Target

	lastSave time.Time
	lastErr  error
}

// New creates an uninitialized store.
func New(opts ...Option) *Store {
	s := &Store{
		clock:  systemClock{},
		ids:    UUIDv7Generator{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		batch:  batch{size: DefaultBatchSize},
	}
	for _, opt := range opts {
		opt(s)
	}

	eventOpts := []audit.Option{audit.WithClock(s.clock.Now)}
	if s.sink != nil {
		eventOpts = append(eventOpts, audit.WithSink(s.sink))
	}
	s.events = audit.New(s.logger, eventOpts...)
	s.metrics = newMetrics(s.registerer)
	return s
}

// Initialize resets the store for a new study and activates it. Calling it
// again discards all in-memory state; the event log is kept.
func (s *Store) Initialize(p Params) (h Handle) {
	defer s.recoverPanic("initialize", audit.EventInitError)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	key := strings.TrimSpace(p.StudyKey)
	if key == "" {
		key = newStudyKey(now)
	}
	dir := p.OutputDir
	if dir == "" {
		dir = "."
	}

	sch := schema.Build(p.Config, p.ItemBank)
	s.data = record.NewDataset(key, now, sch)
	s.index = make(map[string]int)
	s.current = ""
	s.target = newTarget(dir, key, now)
	s.batch.reset()
	s.lastSave = time.Time{}
	s.lastErr = nil
	s.backup = p.EnableBackup
	s.initialized = true
	s.active = true
	s.metrics.setRecords(0)

	if err := os.MkdirAll(dir, 0o750); err != nil {
		s.fail(audit.EventInitError, &OpError{
			Op:   "initialize",
			Kind: ErrPersistence,
			Err:  fmt.Errorf("create output directory: %w", err),
		})
	}

	s.events.Log(audit.EventInit, "data management initialized", map[string]any{
		"study_key":  key,
		"path":       s.target.Primary(),
		"items":      sch.ItemCount(),
		"batch_size": s.batch.size,
		"backup":     p.EnableBackup,
	})

	return Handle{
		StudyKey:    key,
		PrimaryPath: s.target.Primary(),
		Active:      true,
	}
}

// Active reports whether the store accepts mutations.
func (s *Store) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Data returns a deep copy of the dataset.
func (s *Store) Data() record.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone()
}

// Current returns the session id Update applies to, or "".
func (s *Store) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Target returns the snapshot paths.
func (s *Store) Target() Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// BatchCount is the number of updates since the last successful save.
func (s *Store) BatchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batch.count
}

// BatchSize is the update count that triggers a save.
func (s *Store) BatchSize() int {
	return s.batch.size
}

// LastError returns the most recent failure swallowed by a public
// operation, or nil.
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Entries returns a copy of the event log.
func (s *Store) Entries() []audit.Entry {
	return s.events.Entries()
}

// checkActive logs and reports false when op cannot run. The refusal is
// exposed through LastError as an ErrInactive OpError.
// Must be called with s.mu held.
func (s *Store) checkActive(op string) bool {
	if s.initialized && s.active {
		return true
	}
	reason := "store is finalized"
	if !s.initialized {
		reason = "store is not initialized"
	}
	s.lastErr = &OpError{Op: op, Kind: ErrInactive, Err: errors.New(reason)}
	s.events.Log(audit.EventInactive, op+" ignored: "+reason, map[string]any{"op": op})
	return false
}

// fail records a swallowed failure. Must be called with s.mu held.
func (s *Store) fail(eventType string, err *OpError) {
	s.lastErr = err
	detail := map[string]any{
		"op":    err.Op,
		"error": err.Error(),
	}
	if err.SessionID != "" {
		detail["session_id"] = err.SessionID
	}
	if !audit.IsAuditEvent(eventType) {
		s.logger.Warn("store operation failed", "op", err.Op, "error", err)
	}
	s.events.Log(eventType, err.Op+" failed", detail)
}

// recoverPanic converts a panic in a public operation into an event. It
// must be deferred before s.mu is locked.
func (s *Store) recoverPanic(op, eventType string) {
	r := recover()
	if r == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail(eventType, &OpError{
		Op:   op,
		Kind: kindFor(eventType),
		Err:  fmt.Errorf("panic: %v", r),
	})
}

func kindFor(eventType string) error {
	switch eventType {
	case audit.EventMutationError:
		return ErrMutation
	case audit.EventRecoveryError:
		return ErrRecovery
	default:
		return ErrPersistence
	}
}
