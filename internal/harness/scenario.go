package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sessionstore/internal/config"
	"github.com/roach88/sessionstore/internal/record"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Study is the study configuration passed to initialize steps. Its
	// output_dir is ignored; every run writes to a fresh temp directory.
	Study config.File `yaml:"study"`

	// Start is the clock's initial reading. Defaults to DefaultStart.
	Start time.Time `yaml:"start,omitempty"`

	// Steps run in order against a single store.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace, final dataset and snapshots.
	Assertions []Assertion `yaml:"assertions"`
}

// DefaultStart is the clock reading used when a scenario sets no start.
var DefaultStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Step is one store operation.
type Step struct {
	// Op names the operation. See the Op* constants.
	Op string `yaml:"op"`

	// Input is the add payload.
	Input *AddInput `yaml:"input,omitempty"`

	// Fields is the update, update_session or finalize payload.
	Fields map[string]interface{} `yaml:"fields,omitempty"`

	// Session is the target of update_session.
	Session string `yaml:"session,omitempty"`

	// Force is passed to save.
	Force bool `yaml:"force,omitempty"`

	// Path selects the snapshot for recover.
	Path string `yaml:"path,omitempty"`

	// Expect validates the step's outcome. If nil, the outcome is not
	// checked.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// AddInput mirrors record.Input in YAML form.
type AddInput struct {
	SessionID         string                 `yaml:"session_id,omitempty"`
	StudyID           string                 `yaml:"study_id,omitempty"`
	ParticipantID     string                 `yaml:"participant_id,omitempty"`
	StartTime         time.Time              `yaml:"start_time,omitempty"`
	EndTime           time.Time              `yaml:"end_time,omitempty"`
	Status            string                 `yaml:"status,omitempty"`
	TotalItems        int                    `yaml:"total_items,omitempty"`
	AdministeredItems int                    `yaml:"administered_items,omitempty"`
	Ability           *float64               `yaml:"ability,omitempty"`
	StdError          *float64               `yaml:"std_error,omitempty"`
	StudyType         string                 `yaml:"study_type,omitempty"`
	Language          string                 `yaml:"language,omitempty"`
	Device            string                 `yaml:"device,omitempty"`
	Browser           string                 `yaml:"browser,omitempty"`
	Responses         []float64              `yaml:"responses,omitempty"`
	Demographics      map[string]interface{} `yaml:"demographics,omitempty"`
	Custom            *CustomInput           `yaml:"custom,omitempty"`
}

// CustomInput mirrors record.CustomData in YAML form.
type CustomInput struct {
	PagesCompleted int                `yaml:"pages_completed,omitempty"`
	PagesTotal     int                `yaml:"pages_total,omitempty"`
	PageTimings    map[string]float64 `yaml:"page_timings,omitempty"`
}

// Input converts a to the store's add payload.
func (a *AddInput) Input() record.Input {
	if a == nil {
		return record.Input{}
	}
	in := record.Input{
		Session: record.SessionData{
			SessionID:         a.SessionID,
			StudyID:           a.StudyID,
			ParticipantID:     a.ParticipantID,
			StartTime:         a.StartTime,
			EndTime:           a.EndTime,
			Status:            record.Status(a.Status),
			TotalItems:        a.TotalItems,
			AdministeredItems: a.AdministeredItems,
			Ability:           a.Ability,
			StdError:          a.StdError,
			StudyType:         a.StudyType,
			Language:          a.Language,
			Device:            a.Device,
			Browser:           a.Browser,
		},
		Responses:    a.Responses,
		Demographics: a.Demographics,
	}
	if a.Custom != nil {
		in.Custom = &record.CustomData{
			PagesCompleted: a.Custom.PagesCompleted,
			PagesTotal:     a.Custom.PagesTotal,
			PageTimings:    a.Custom.PageTimings,
		}
	}
	return in
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// OK is the expected boolean result of the operation. For add it means
	// a non-empty session id; for initialize, an active handle.
	OK *bool `yaml:"ok,omitempty"`

	// ID is the session id add must return.
	ID string `yaml:"id,omitempty"`

	// Records is the record count of the dataset returned by finalize,
	// close or recover.
	Records *int `yaml:"records,omitempty"`

	// Error is the expected failure kind of the store's last error:
	// "mutation", "persistence", "recovery" or "inactive".
	Error string `yaml:"error,omitempty"`

	// Stats holds expected store summary fields for stats steps.
	// Keys: total, completed, incomplete, total_responses.
	Stats map[string]int `yaml:"stats,omitempty"`
}

// Assertion validates the trace, the final dataset or a snapshot.
type Assertion struct {
	// Type specifies the assertion type:
	// - "event_contains": Check an event appears with matching detail
	// - "event_order": Check event types appear in order
	// - "event_count": Check an event type appears exactly N times
	// - "final_state": Check a record's cells
	// - "snapshot": Check a snapshot on disk loads with Count records
	Type string `yaml:"type"`

	// Event is the event type (used by event_contains, event_count).
	Event string `yaml:"event,omitempty"`

	// Detail holds expected event detail values (used by event_contains).
	// Subset match - only specified keys are validated.
	Detail map[string]interface{} `yaml:"detail,omitempty"`

	// Events is the expected event order (used by event_order).
	Events []string `yaml:"events,omitempty"`

	// Count is the expected number of occurrences (event_count) or
	// records (snapshot).
	Count int `yaml:"count,omitempty"`

	// Session identifies the record (used by final_state).
	Session string `yaml:"session,omitempty"`

	// Expect contains expected cell values keyed by column (used by
	// final_state). Subset match - only specified columns are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Format selects the snapshot (used by snapshot): "csv" or "sqlite".
	Format string `yaml:"format,omitempty"`
}

// Step operations.
const (
	OpInitialize    = "initialize"
	OpAdd           = "add"
	OpUpdate        = "update"
	OpUpdateSession = "update_session"
	OpSave          = "save"
	OpFinalize      = "finalize"
	OpClose         = "close"
	OpAbandon       = "abandon"
	OpRecover       = "recover"
	OpRestore       = "restore"
	OpStats         = "stats"
	OpBlockOutput   = "block_output"
	OpUnblockOutput = "unblock_output"
)

// Assertion type constants.
const (
	AssertEventContains = "event_contains"
	AssertEventOrder    = "event_order"
	AssertEventCount    = "event_count"
	AssertFinalState    = "final_state"
	AssertSnapshot      = "snapshot"
)

var knownOps = map[string]bool{
	OpInitialize: true, OpAdd: true, OpUpdate: true, OpUpdateSession: true,
	OpSave: true, OpFinalize: true, OpClose: true, OpAbandon: true,
	OpRecover: true, OpRestore: true, OpStats: true,
	OpBlockOutput: true, OpUnblockOutput: true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	// #nosec G304 -- scenario path is supplied by the test.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml scenario in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("scan scenario dir: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios found in %s", dir)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	names := make(map[string]string, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if prev, dup := names[s.Name]; dup {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", filepath.Base(path), s.Name, prev)
		}
		names[s.Name] = filepath.Base(path)
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Study.Name == "" {
		return fmt.Errorf("study.name is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep validates a single step based on its operation.
func validateStep(index int, step *Step) error {
	if step.Op == "" {
		return fmt.Errorf("steps[%d]: op is required", index)
	}
	if !knownOps[step.Op] {
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}

	switch step.Op {
	case OpUpdate:
		if step.Fields == nil {
			return fmt.Errorf("steps[%d]: fields is required for update (use empty map if no fields)", index)
		}
	case OpUpdateSession:
		if step.Session == "" {
			return fmt.Errorf("steps[%d]: session is required for update_session", index)
		}
		if step.Fields == nil {
			return fmt.Errorf("steps[%d]: fields is required for update_session (use empty map if no fields)", index)
		}
	case OpStats:
		if step.Expect == nil || len(step.Expect.Stats) == 0 {
			return fmt.Errorf("steps[%d]: expect.stats is required for stats", index)
		}
	}

	if e := step.Expect; e != nil && e.Error != "" {
		if _, ok := errorKinds[e.Error]; !ok {
			return fmt.Errorf("steps[%d].expect: unknown error kind %q", index, e.Error)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEventContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_contains", index)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertFinalState:
		if a.Session == "" {
			return fmt.Errorf("assertions[%d]: session is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertSnapshot:
		if a.Format != "csv" && a.Format != "sqlite" {
			return fmt.Errorf("assertions[%d]: format must be csv or sqlite for snapshot", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for snapshot", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
