package cli

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/sessionstore/internal/audit"
	"github.com/roach88/sessionstore/internal/config"
	"github.com/roach88/sessionstore/internal/record"
	"github.com/roach88/sessionstore/internal/snapshot"
	"github.com/roach88/sessionstore/internal/store"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Sessions  int
	OutputDir string
}

// SimulateResult reports a simulated study run.
type SimulateResult struct {
	StudyKey  string             `json:"study_key"`
	Paths     []string           `json:"paths"`
	Sessions  int                `json:"sessions"`
	Stats     SimulateStats      `json:"stats"`
	Events    map[string]int     `json:"events"`
	Recovered []RecoveryCheck    `json:"recovered"`
	Metrics   map[string]float64 `json:"metrics"`
}

// SimulateStats is the store's summary taken just before finalization.
type SimulateStats struct {
	Total          int   `json:"total"`
	Completed      int   `json:"completed"`
	Incomplete     int   `json:"incomplete"`
	TotalResponses int   `json:"total_responses"`
	FileSizeBytes  int64 `json:"file_size_bytes"`
}

// RecoveryCheck reports whether a snapshot reproduces the final dataset.
type RecoveryCheck struct {
	Path    string `json:"path"`
	Records int    `json:"records"`
	Match   bool   `json:"match"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <config>",
		Short: "Run synthetic sessions through a store and verify recovery",
		Long: `Initialize a store from a study config, add synthetic sessions with
responses for every item, finalize the last one and recover the dataset
from both snapshots.

Every session but the last is completed through updates. The last session
is sealed by finalization. The command fails if either snapshot does not
reproduce the final dataset.

Example:
  sessionstore simulate ./study.yaml
  sessionstore simulate --sessions 10 --out /tmp/sessions ./study.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Sessions, "sessions", "n", 3, "number of sessions to simulate")
	cmd.Flags().StringVarP(&opts.OutputDir, "out", "o", "", "output directory (overrides output_dir in the config)")

	return cmd
}

func runSimulate(opts *SimulateOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.Sessions < 1 {
		return commandError(formatter, ErrCodeGeneric, fmt.Sprintf("--sessions must be at least 1, got %d", opts.Sessions), nil)
	}

	file, err := config.Load(path)
	if err != nil {
		return configError(formatter, path, err)
	}
	params := file.Params()
	if opts.OutputDir != "" {
		params.OutputDir = opts.OutputDir
	}

	logger := newLogger(opts.RootOptions, formatter.GetErrWriter())
	reg := prometheus.NewRegistry()
	storeOpts := append(file.StoreOptions(),
		store.WithLogger(logger),
		store.WithMetrics(reg),
		store.WithSink(debugSink(logger)),
	)

	st := store.New(storeOpts...)
	h := st.Initialize(params)
	if err := st.LastError(); err != nil {
		return commandError(formatter, ErrCodeWriteFailed, err.Error(), nil)
	}
	logger.Debug("store initialized", "study_key", h.StudyKey, "path", h.PrimaryPath)

	for i := range opts.Sessions {
		if err := simulateSession(st, i, i == opts.Sessions-1); err != nil {
			return failure(formatter, ErrCodeInactive, err.Error(), err)
		}
	}

	stats := st.Stats()
	final := st.Finalize(nil)
	if err := st.LastError(); err != nil {
		return failure(formatter, ErrCodeWriteFailed, "finalize failed", err)
	}

	result := SimulateResult{
		StudyKey: h.StudyKey,
		Paths:    st.Target().Paths(),
		Sessions: final.Len(),
		Stats: SimulateStats{
			Total:          stats.Total,
			Completed:      stats.Completed,
			Incomplete:     stats.Incomplete,
			TotalResponses: stats.TotalResponses,
			FileSizeBytes:  stats.FileSizeBytes,
		},
		Events: countEvents(st),
	}

	result.Recovered, err = verifyRecovery(logger, reg, result.Paths, final)
	if err != nil {
		return failure(formatter, ErrCodeGeneric, "encode final dataset", err)
	}

	result.Metrics, err = gatherMetrics(reg)
	if err != nil {
		return failure(formatter, ErrCodeGeneric, "gather metrics", err)
	}

	for _, check := range result.Recovered {
		if !check.Match {
			_ = outputSimulate(formatter, result)
			return NewExitError(ExitFailure, fmt.Sprintf("%s: snapshot %s does not match the final dataset", ErrCodeMismatch, check.Path))
		}
	}

	return outputSimulate(formatter, result)
}

// simulateSession adds session n and answers every item. Sessions other
// than the last are completed explicitly; the last one is left for
// Finalize.
func simulateSession(st *store.Store, n int, last bool) error {
	sch := st.Data().Schema
	id := st.Add(record.Input{
		Session: record.SessionData{
			StudyID:       sch.Config.Name,
			ParticipantID: fmt.Sprintf("p%03d", n+1),
			TotalItems:    sch.ItemCount(),
			StudyType:     sch.Config.StudyType,
			Language:      sch.Config.Language,
			Device:        "desktop",
			Browser:       "simulated",
		},
		Demographics: simulatedDemographics(n, sch.ExtraDemographics),
	})
	if id == "" {
		return fmt.Errorf("add session %d: %w", n+1, st.LastError())
	}

	for j, item := range sch.ItemIDs {
		if !st.Update(record.Fields{
			item:                 float64((n+j)%5 + 1),
			"administered_items": j + 1,
		}) {
			return fmt.Errorf("update session %s: %w", id, st.LastError())
		}
	}

	if last {
		return nil
	}
	if !st.Update(record.Fields{
		"status":   string(record.StatusCompleted),
		"end_time": time.Now().UTC(),
	}) {
		return fmt.Errorf("complete session %s: %w", id, st.LastError())
	}
	return nil
}

func simulatedDemographics(n int, extra []string) map[string]any {
	genders := []string{"female", "male", "diverse"}
	d := map[string]any{
		"age":    18 + n%40,
		"gender": genders[n%len(genders)],
	}
	for _, key := range extra {
		d[key] = fmt.Sprintf("%s-%d", key, n+1)
	}
	return d
}

// debugSink echoes every store event at debug level. Installing a sink also
// makes the store keep non-audit events in its entry log.
func debugSink(logger *slog.Logger) audit.Sink {
	return audit.SinkFunc(func(e audit.Entry) error {
		logger.Debug("store event", "event", e.Type, "message", e.Message)
		return nil
	})
}

func countEvents(st *store.Store) map[string]int {
	counts := make(map[string]int)
	for _, e := range st.Entries() {
		counts[e.Type]++
	}
	return counts
}

// verifyRecovery loads each snapshot through a fresh store and compares its
// tabular encoding with the final dataset's. The recovering store's metrics
// are registered with a recovery_ prefix.
func verifyRecovery(logger *slog.Logger, reg prometheus.Registerer, paths []string, final record.Dataset) ([]RecoveryCheck, error) {
	want, err := snapshot.EncodeCSV(final)
	if err != nil {
		return nil, err
	}

	recoverer := store.New(
		store.WithLogger(logger),
		store.WithMetrics(prometheus.WrapRegistererWithPrefix("recovery_", reg)),
	)
	checks := make([]RecoveryCheck, 0, len(paths))
	for _, p := range paths {
		check := RecoveryCheck{Path: p}
		if d, ok := recoverer.Recover(p); ok {
			check.Records = d.Len()
			got, err := snapshot.EncodeCSV(d)
			check.Match = err == nil && bytes.Equal(got, want)
		}
		checks = append(checks, check)
	}
	return checks, nil
}

// gatherMetrics flattens counters and gauges to name{labels} keys.
// Histograms report their sample count under name_count.
func gatherMetrics(reg prometheus.Gatherer) (map[string]float64, error) {
	families, err := reg.Gather()
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			sort.Strings(labels)

			name := mf.GetName()
			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				name += "_count"
				value = float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			out[name] += value
		}
	}
	return out, nil
}

func outputSimulate(formatter *OutputFormatter, result SimulateResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	return writeSimulateText(formatter.Writer, result)
}

func writeSimulateText(w io.Writer, result SimulateResult) error {
	fmt.Fprintf(w, "Study %s: %d session(s)\n", result.StudyKey, result.Sessions)
	fmt.Fprintf(w, "Before finalize: %d total, %d completed, %d incomplete, %d responses, %d bytes\n",
		result.Stats.Total, result.Stats.Completed, result.Stats.Incomplete,
		result.Stats.TotalResponses, result.Stats.FileSizeBytes)

	fmt.Fprintln(w, "\nSnapshots:")
	for _, check := range result.Recovered {
		mark := "✓"
		if !check.Match {
			mark = "✗"
		}
		fmt.Fprintf(w, "  %s %s (%d records)\n", mark, check.Path, check.Records)
	}

	fmt.Fprintln(w, "\nEvents:")
	events := make([]string, 0, len(result.Events))
	for name := range result.Events {
		events = append(events, name)
	}
	sort.Strings(events)
	for _, name := range events {
		fmt.Fprintf(w, "  %-20s %d\n", name, result.Events[name])
	}
	return nil
}
