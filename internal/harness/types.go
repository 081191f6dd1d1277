package harness

import (
	"github.com/roach88/sessionstore/internal/record"
)

// TraceEvent is one event emitted by the store during a scenario.
type TraceEvent struct {
	Seq     int                    `json:"seq"`
	Event   string                 `json:"event"`
	Message string                 `json:"message"`
	Detail  map[string]interface{} `json:"detail,omitempty"`
}

// SessionID returns the session the event refers to, if any.
func (e TraceEvent) SessionID() string {
	id, _ := e.Detail["session_id"].(string)
	return id
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step expectation and assertion holds.
	Pass bool `json:"pass"`

	// Trace contains every store event in emission order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Dataset is a copy of the store's dataset after the last step.
	Dataset record.Dataset `json:"-"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends an event to the trace with the next sequence number.
func (r *Result) AddEvent(event, message string, detail map[string]interface{}) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:     len(r.Trace) + 1,
		Event:   event,
		Message: message,
		Detail:  detail,
	})
}
