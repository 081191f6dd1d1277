package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// Event types emitted by the session store.
const (
	EventInit          = "DATA_MGMT_INIT"
	EventSaved         = "DATA_SAVED"
	EventFinalized     = "DATA_FINALIZED"
	EventSaveError     = "SAVE_ERROR"
	EventFinalizeError = "FINALIZE_ERROR"

	EventSessionAdded   = "SESSION_ADDED"
	EventSessionUpdated = "SESSION_UPDATED"
	EventMutationError  = "MUTATION_ERROR"
	EventSaveSkipped    = "SAVE_SKIPPED"
	EventInactive       = "STORE_INACTIVE"
	EventRecoveryError  = "RECOVERY_ERROR"
	EventRecovered      = "DATA_RECOVERED"
	EventRestored       = "DATA_RESTORED"
	EventAbandoned      = "DATA_ABANDONED"
	EventInitError      = "INIT_ERROR"
)

var auditEvents = []string{
	EventInit,
	EventSaved,
	EventFinalized,
	EventSaveError,
	EventFinalizeError,
}

// IsAuditEvent reports whether eventType is on the audit allow-list.
func IsAuditEvent(eventType string) bool {
	return slices.Contains(auditEvents, eventType)
}

// Entry is one recorded event.
type Entry struct {
	Time    time.Time
	Type    string
	Message string
	Detail  map[string]any
}

// Sink receives every recorded entry.
type Sink interface {
	Record(Entry) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Entry) error

func (f SinkFunc) Record(e Entry) error { return f(e) }

// SlogSink forwards entries to a structured logger at info level, or at
// error level for *_ERROR events.
type SlogSink struct {
	Logger *slog.Logger
}

func (s SlogSink) Record(e Entry) error {
	if s.Logger == nil {
		return nil
	}
	level := slog.LevelInfo
	if isErrorEvent(e.Type) {
		level = slog.LevelError
	}
	s.Logger.LogAttrs(context.Background(), level, e.Message, entryAttrs(e)...)
	return nil
}

// Option configures a Logger.
type Option func(*Logger)

// WithSink attaches an external sink. With a sink attached every event is
// recorded, not only audit events.
func WithSink(s Sink) Option {
	return func(l *Logger) {
		l.sink = s
	}
}

// WithClock sets the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

// Logger is a fail-soft event log. It is safe for concurrent use.
type Logger struct {
	mu      sync.Mutex
	audit   *slog.Logger
	sink    Sink
	now     func() time.Time
	entries []Entry
	dropped int
}

// New creates a Logger echoing audit events to audit. A nil audit logger
// discards the echo.
func New(audit *slog.Logger, opts ...Option) *Logger {
	if audit == nil {
		audit = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	l := &Logger{
		audit: audit,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log records an event. It never returns an error and never panics.
func (l *Logger) Log(eventType, message string, detail map[string]any) {
	if l == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.drop()
		}
	}()

	audit := IsAuditEvent(eventType)
	if !audit && l.sink == nil {
		return
	}
	e := Entry{
		Time:    l.now().UTC(),
		Type:    eventType,
		Message: message,
		Detail:  maps.Clone(detail),
	}

	l.mu.Lock()
	l.entries = append(l.entries, e)
	sink := l.sink
	l.mu.Unlock()

	if audit {
		if err := (SlogSink{Logger: l.audit}).Record(e); err != nil {
			l.drop()
		}
	}
	if sink != nil {
		l.forward(sink, e)
	}
}

func (l *Logger) forward(sink Sink, e Entry) {
	defer func() {
		if r := recover(); r != nil {
			l.drop()
		}
	}()
	if err := sink.Record(e); err != nil {
		l.drop()
	}
}

func (l *Logger) drop() {
	l.mu.Lock()
	l.dropped++
	l.mu.Unlock()
}

// Entries returns a copy of the recorded entries in order.
func (l *Logger) Entries() []Entry {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		e.Detail = maps.Clone(e.Detail)
		out[i] = e
	}
	return out
}

// Count returns how many recorded entries have the given type.
func (l *Logger) Count(eventType string) int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// Dropped is the number of failures swallowed while logging.
func (l *Logger) Dropped() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

func isErrorEvent(eventType string) bool {
	return strings.HasSuffix(eventType, "_ERROR")
}

func entryAttrs(e Entry) []slog.Attr {
	attrs := []slog.Attr{slog.String("event", e.Type)}
	keys := slices.Sorted(maps.Keys(e.Detail))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, detailValue(e.Detail[k])))
	}
	return attrs
}

func detailValue(v any) any {
	if err, ok := v.(error); ok {
		return fmt.Sprint(err)
	}
	return v
}
