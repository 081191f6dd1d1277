package record

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Status is the completion state of a session.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusInProgress || s == StatusCompleted
}

// ErrInvariant is returned when a record violates one of its invariants.
var ErrInvariant = errors.New("record invariant violated")

// Record is one participant session.
type Record struct {
	SessionID     string
	StudyID       string
	ParticipantID string

	StartTime time.Time
	EndTime   time.Time // zero until the session is finalized

	Status Status

	TotalItems        int
	AdministeredItems int

	// Ability and StdError come from the psychometrics collaborator and
	// are stored as given.
	Ability  *float64
	StdError *float64

	StudyType string
	Language  string
	Device    string
	Browser   string

	// Responses maps item id to response value. An item is present only
	// when it was administered.
	Responses map[string]float64

	Age             string
	Gender          string
	Education       string
	ParticipantCode string
	Extra           map[string]string

	// Flow is set only when the schema declares a custom flow.
	Flow *Flow
}

// Flow is custom-flow page telemetry.
type Flow struct {
	PagesCompleted int
	PagesTotal     int
	PageTimings    map[string]float64 // page id -> seconds
}

// DurationSeconds is EndTime - StartTime in seconds. ok is false until both
// timestamps are set.
func (r Record) DurationSeconds() (seconds float64, ok bool) {
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return 0, false
	}
	return r.EndTime.Sub(r.StartTime).Seconds(), true
}

// ResponseCount is the number of administered items with a stored response.
func (r Record) ResponseCount() int {
	return len(r.Responses)
}

// Completed reports whether the session reached its terminal state.
func (r Record) Completed() bool {
	return r.Status == StatusCompleted
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	c := r
	if r.Ability != nil {
		v := *r.Ability
		c.Ability = &v
	}
	if r.StdError != nil {
		v := *r.StdError
		c.StdError = &v
	}
	c.Responses = cloneMap(r.Responses)
	c.Extra = cloneMap(r.Extra)
	if r.Flow != nil {
		f := *r.Flow
		f.PageTimings = cloneMap(r.Flow.PageTimings)
		c.Flow = &f
	}
	return c
}

func cloneMap[M ~map[K]V, K comparable, V any](m M) M {
	if len(m) == 0 {
		return nil
	}
	return maps.Clone(m)
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("%w: empty session id", ErrInvariant)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvariant, r.Status)
	}
	if r.TotalItems < 0 || r.AdministeredItems < 0 {
		return fmt.Errorf("%w: negative item count", ErrInvariant)
	}
	if r.AdministeredItems > r.TotalItems {
		return fmt.Errorf("%w: administered_items %d > total_items %d", ErrInvariant, r.AdministeredItems, r.TotalItems)
	}
	if !r.StartTime.IsZero() && !r.EndTime.IsZero() && r.EndTime.Before(r.StartTime) {
		return fmt.Errorf("%w: end_time before start_time", ErrInvariant)
	}
	for _, s := range r.textFields() {
		if strings.ContainsRune(s, '\r') {
			return fmt.Errorf("%w: carriage return in %q", ErrInvariant, s)
		}
	}
	if r.Ability != nil && !finite(*r.Ability) {
		return fmt.Errorf("%w: ability is not finite", ErrInvariant)
	}
	if r.StdError != nil && !finite(*r.StdError) {
		return fmt.Errorf("%w: std_error is not finite", ErrInvariant)
	}
	for id, v := range r.Responses {
		if !finite(v) {
			return fmt.Errorf("%w: response %q is not finite", ErrInvariant, id)
		}
	}
	if r.Flow != nil {
		if r.Flow.PagesCompleted < 0 || r.Flow.PagesTotal < 0 {
			return fmt.Errorf("%w: negative page count", ErrInvariant)
		}
		for page, v := range r.Flow.PageTimings {
			if !finite(v) {
				return fmt.Errorf("%w: page timing %q is not finite", ErrInvariant, page)
			}
		}
	}
	return nil
}

// textFields lists the canonical text fields.
func (r Record) textFields() []string {
	return []string{
		r.SessionID, r.StudyID, r.ParticipantID, r.StudyType, r.Language,
		r.Device, r.Browser, r.Age, r.Gender, r.Education, r.ParticipantCode,
	}
}

// transition checks a status change. Completed never goes back.
func transition(from, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvariant, to)
	}
	if from == StatusCompleted && to != StatusCompleted {
		return fmt.Errorf("%w: completed session cannot return to %s", ErrInvariant, to)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// normalizeString applies NFC normalization and turns CRLF and lone CR
// line endings into LF.
func normalizeString(s string) string {
	return lineEndings.Replace(norm.NFC.String(s))
}

// normalizeTime drops location and monotonic reading.
func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC()
}
