package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/sessionstore/internal/audit"
	"github.com/roach88/sessionstore/internal/record"
	"github.com/roach88/sessionstore/internal/store"
	"github.com/roach88/sessionstore/internal/testutil"
)

// OutputPlaceholder replaces the run's output directory in event details.
const OutputPlaceholder = "$OUT"

var errorKinds = map[string]error{
	"mutation":    store.ErrMutation,
	"persistence": store.ErrPersistence,
	"recovery":    store.ErrRecovery,
	"inactive":    store.ErrInactive,
}

// Harness is the test execution engine.
// It runs one scenario against one store with a deterministic clock and
// session ids.
type Harness struct {
	scenario  *Scenario
	store     *store.Store
	clock     *testutil.FixedClock
	outDir    string
	logger    *slog.Logger
	result    *Result
	recovered *record.Dataset
}

// outcome is what a step produced, for comparison with its expect clause.
type outcome struct {
	ok      bool
	id      string
	records int
	counted bool // records is meaningful
	failed  bool // an *_ERROR or STORE_INACTIVE event was emitted during the step
}

// Run executes a test scenario and returns the result.
//
// Each scenario writes to a fresh temp directory that is removed when Run
// returns. Assertions are evaluated before the directory is removed.
//
// Execution flow:
// 1. Create the output directory and a store with deterministic helpers
// 2. Execute steps, checking each expect clause
// 3. Evaluate assertions against trace, dataset and snapshots
func Run(scenario *Scenario) (*Result, error) {
	outDir, err := os.MkdirTemp("", "sessionstore-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	start := scenario.Start
	if start.IsZero() {
		start = DefaultStart
	}

	h := &Harness{
		scenario: scenario,
		clock:    testutil.NewFixedClock(start, time.Second),
		outDir:   outDir,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		result:   NewResult(),
	}

	opts := append(scenario.Study.StoreOptions(),
		store.WithClock(h.clock),
		store.WithIDGenerator(testutil.NewSequenceGenerator("session")),
		store.WithLogger(h.logger),
		store.WithSink(audit.SinkFunc(h.recordEvent)),
	)
	h.store = store.New(opts...)

	for i, step := range scenario.Steps {
		if err := h.execute(i, step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}

	h.result.Dataset = h.store.Data()
	actx := &AssertionContext{
		Dataset: h.result.Dataset,
		Target:  h.store.Target(),
	}
	for _, errMsg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(errMsg)
	}

	return h.result, nil
}

// recordEvent appends a store event to the trace with output paths made
// relative to the run directory.
func (h *Harness) recordEvent(e audit.Entry) error {
	detail := maps.Clone(e.Detail)
	for k, v := range detail {
		switch val := v.(type) {
		case string:
			detail[k] = h.relativize(val)
		case error:
			detail[k] = h.relativize(val.Error())
		}
	}
	h.result.AddEvent(e.Type, h.relativize(e.Message), detail)
	return nil
}

func (h *Harness) relativize(s string) string {
	return strings.ReplaceAll(s, h.outDir, OutputPlaceholder)
}

// execute runs one step and checks its expect clause.
func (h *Harness) execute(i int, step Step) error {
	before := len(h.result.Trace)

	out, err := h.apply(step)
	if err != nil {
		return err
	}

	for _, ev := range h.result.Trace[before:] {
		if strings.HasSuffix(ev.Event, "_ERROR") || ev.Event == audit.EventInactive {
			out.failed = true
		}
	}

	h.checkExpect(i, step, out)

	h.logger.Info("step completed",
		"step", i,
		"op", step.Op,
		"ok", out.ok,
		"events", len(h.result.Trace)-before,
	)
	return nil
}

func (h *Harness) apply(step Step) (outcome, error) {
	st := h.store
	fields := record.Fields(step.Fields)

	switch step.Op {
	case OpInitialize:
		params := h.scenario.Study.Params()
		params.OutputDir = h.outDir
		handle := st.Initialize(params)
		return outcome{ok: handle.Active}, nil

	case OpAdd:
		id := st.Add(step.Input.Input())
		return outcome{ok: id != "", id: id}, nil

	case OpUpdate:
		return outcome{ok: st.Update(fields)}, nil

	case OpUpdateSession:
		return outcome{ok: st.UpdateSession(step.Session, fields)}, nil

	case OpSave:
		return outcome{ok: st.Save(step.Force)}, nil

	case OpFinalize, OpClose:
		before := len(h.result.Trace)
		var d record.Dataset
		if step.Op == OpFinalize {
			d = st.Finalize(fields)
		} else {
			d = st.Close()
		}
		ok := true
		for _, ev := range h.result.Trace[before:] {
			if ev.Event == audit.EventFinalizeError || ev.Event == audit.EventInactive {
				ok = false
			}
		}
		return outcome{ok: ok, records: d.Len(), counted: true}, nil

	case OpAbandon:
		return outcome{ok: st.Abandon()}, nil

	case OpRecover:
		d, ok := st.Recover(h.recoverPath(step.Path))
		if ok {
			h.recovered = &d
		}
		return outcome{ok: ok, records: d.Len(), counted: true}, nil

	case OpRestore:
		if h.recovered == nil {
			return outcome{}, errors.New("restore requires a successful recover step first")
		}
		return outcome{ok: st.Restore(*h.recovered)}, nil

	case OpStats:
		return outcome{ok: true}, nil

	case OpBlockOutput:
		if err := os.RemoveAll(h.outDir); err != nil {
			return outcome{}, fmt.Errorf("remove output dir: %w", err)
		}
		if err := os.WriteFile(h.outDir, []byte("blocked"), 0o600); err != nil {
			return outcome{}, fmt.Errorf("block output dir: %w", err)
		}
		return outcome{ok: true}, nil

	case OpUnblockOutput:
		if err := os.Remove(h.outDir); err != nil {
			return outcome{}, fmt.Errorf("unblock output dir: %w", err)
		}
		if err := os.MkdirAll(h.outDir, 0o750); err != nil {
			return outcome{}, fmt.Errorf("recreate output dir: %w", err)
		}
		return outcome{ok: true}, nil

	default:
		return outcome{}, fmt.Errorf("unknown op %q", step.Op)
	}
}

// recoverPath resolves a recover step's path selector.
func (h *Harness) recoverPath(sel string) string {
	switch sel {
	case "":
		return ""
	case "tabular":
		return h.store.Target().Tabular
	case "binary":
		return h.store.Target().Binary
	default:
		return filepath.Join(h.outDir, sel)
	}
}

// checkExpect compares a step's outcome with its expect clause and records
// mismatches on the result.
func (h *Harness) checkExpect(i int, step Step, out outcome) {
	e := step.Expect
	if e == nil {
		return
	}
	fail := func(format string, args ...interface{}) {
		h.result.AddError(fmt.Sprintf("step %d (%s): ", i, step.Op) + fmt.Sprintf(format, args...))
	}

	if e.OK != nil && *e.OK != out.ok {
		fail("expected ok=%t, got %t", *e.OK, out.ok)
	}
	if e.ID != "" && e.ID != out.id {
		fail("expected id %q, got %q", e.ID, out.id)
	}
	if e.Records != nil {
		if !out.counted {
			fail("records is not reported by %s", step.Op)
		} else if *e.Records != out.records {
			fail("expected %d records, got %d", *e.Records, out.records)
		}
	}
	if e.Error != "" {
		if !out.failed {
			fail("expected a %s error event, got none", e.Error)
		} else if err := h.store.LastError(); !errors.Is(err, errorKinds[e.Error]) {
			fail("expected %s error, got %v", e.Error, err)
		}
	}
	if len(e.Stats) > 0 {
		st := h.store.Stats()
		actual := map[string]int{
			"total":           st.Total,
			"completed":       st.Completed,
			"incomplete":      st.Incomplete,
			"total_responses": st.TotalResponses,
		}
		for _, key := range sortedKeys(e.Stats) {
			got, known := actual[key]
			if !known {
				fail("unknown stats field %q", key)
				continue
			}
			if got != e.Stats[key] {
				fail("expected stats %s=%d, got %d", key, e.Stats[key], got)
			}
		}
	}
}
