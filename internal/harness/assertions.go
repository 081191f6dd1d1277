package harness

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/roach88/sessionstore/internal/record"
	"github.com/roach88/sessionstore/internal/snapshot"
	"github.com/roach88/sessionstore/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	// Header with assertion type
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Event, event.Message)
		}
	}

	return buf.String()
}

// assertEventContains checks if the trace contains an event of the given
// type whose detail matches (subset match).
func assertEventContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Event == assertion.Event && matchDetail(event.Detail, assertion.Detail) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertEventContains,
		Expected: fmt.Sprintf("event %s with detail %v", assertion.Event, assertion.Detail),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertEventOrder checks if event types appear in the specified order.
// Events don't need to be consecutive (intervening events are allowed).
// Each expected event is matched after the previous match, so repeated
// types are supported.
func assertEventOrder(trace []TraceEvent, assertion Assertion) error {
	pos := 0
	for _, expected := range assertion.Events {
		found := false
		for pos < len(trace) {
			event := trace[pos]
			pos++
			if event.Event == expected {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("events in order: %v", assertion.Events),
				Actual:   fmt.Sprintf("%s not found after position %d", expected, pos),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertEventCount checks if the event type appears exactly the specified
// number of times.
func assertEventCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Event == assertion.Event {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Event),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertFinalState checks a record's cells in the final dataset. Expected
// values are compared with the cell text a tabular snapshot would hold.
func assertFinalState(d record.Dataset, assertion Assertion) error {
	var rec *record.Record
	for i := range d.Records {
		if d.Records[i].SessionID == assertion.Session {
			rec = &d.Records[i]
			break
		}
	}
	if rec == nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("record with session_id %s", assertion.Session),
			Actual:   fmt.Sprintf("record not found among %d records", d.Len()),
		}
	}

	for _, key := range sortedKeys(assertion.Expect) {
		col, ok := d.Schema.Column(key)
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("column %q to exist", key),
				Actual:   fmt.Sprintf("column %q not in schema: %v", key, d.Schema.Names()),
			}
		}
		actual, err := rec.Cell(col)
		if err != nil {
			return fmt.Errorf("%s: cell %q: %w", AssertFinalState, key, err)
		}
		expected := cellText(assertion.Expect[key])
		if expected != actual {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %q", assertion.Session, key, expected),
				Actual:   fmt.Sprintf("%s.%s = %q", assertion.Session, key, actual),
			}
		}
	}

	return nil
}

// assertSnapshot loads the snapshot of the given format from disk and
// checks its record count.
func assertSnapshot(target store.Target, assertion Assertion) error {
	path := target.Tabular
	if snapshot.Format(assertion.Format) == snapshot.FormatSQLite {
		path = target.Binary
	}

	d, err := snapshot.Load(path)
	if err != nil {
		return &AssertionError{
			Type:     AssertSnapshot,
			Expected: fmt.Sprintf("%s snapshot with %d records", assertion.Format, assertion.Count),
			Actual:   fmt.Sprintf("load error: %v", err),
		}
	}
	if d.Len() != assertion.Count {
		return &AssertionError{
			Type:     AssertSnapshot,
			Expected: fmt.Sprintf("%s snapshot with %d records", assertion.Format, assertion.Count),
			Actual:   fmt.Sprintf("%d records", d.Len()),
		}
	}
	return nil
}

// cellText renders an expected YAML value the way a snapshot cell stores
// it.
func cellText(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case time.Time:
		return record.FormatTime(val)
	case float64:
		return record.FormatFloat(val)
	default:
		return cast.ToString(val)
	}
}

// matchDetail checks if actual detail contains all expected keys (subset
// match). Values are compared by their printed form so YAML numbers and
// lists match the store's typed values.
func matchDetail(actual, expected map[string]interface{}) bool {
	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false
		}
		if fmt.Sprint(actualVal) != fmt.Sprint(expectedVal) {
			return false
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AssertionContext provides what assertions evaluate against besides the
// trace.
type AssertionContext struct {
	Dataset record.Dataset
	Target  store.Target
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides the dataset and snapshot paths for
// final_state and snapshot assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertEventContains:
			err = assertEventContains(result.Trace, assertion)
		case AssertEventOrder:
			err = assertEventOrder(result.Trace, assertion)
		case AssertEventCount:
			err = assertEventCount(result.Trace, assertion)
		case AssertFinalState, AssertSnapshot:
			if actx == nil {
				err = fmt.Errorf("assertion[%d]: %s requires an assertion context", i, assertion.Type)
			} else if assertion.Type == AssertFinalState {
				err = assertFinalState(actx.Dataset, assertion)
			} else {
				err = assertSnapshot(actx.Target, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
