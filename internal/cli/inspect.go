package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/sessionstore/internal/record"
	"github.com/roach88/sessionstore/internal/snapshot"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Sessions bool
}

// InspectResult summarizes a snapshot.
type InspectResult struct {
	Path           string           `json:"path"`
	Format         string           `json:"format"`
	StudyKey       string           `json:"study_key"`
	Study          string           `json:"study"`
	CreatedAt      string           `json:"created_at"`
	ItemCount      int              `json:"item_count"`
	Columns        int              `json:"columns"`
	Total          int              `json:"total"`
	Completed      int              `json:"completed"`
	Incomplete     int              `json:"incomplete"`
	TotalResponses int              `json:"total_responses"`
	Sessions       []SessionSummary `json:"sessions,omitempty"`
}

// SessionSummary is one record of an inspected snapshot.
type SessionSummary struct {
	SessionID       string   `json:"session_id"`
	ParticipantID   string   `json:"participant_id,omitempty"`
	Status          string   `json:"status"`
	StartTime       string   `json:"start_time"`
	EndTime         string   `json:"end_time,omitempty"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	Responses       int      `json:"responses"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <snapshot>",
		Short: "Load a session snapshot and summarize it",
		Long: `Load a tabular (.csv) or binary (.db) session snapshot and print its
study metadata and completion counts.

The snapshot is opened read-only. A missing file and a corrupt file are
reported with different error codes.

Example:
  sessionstore inspect ./data/study_20240101_120000_ab12cd34.csv
  sessionstore inspect --sessions --format json ./data/hilfo.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Sessions, "sessions", false, "list every session in the snapshot")

	return cmd
}

func runInspect(opts *InspectOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	format := snapshot.DetectFormat(path)
	formatter.VerboseLog("Loading %s snapshot %s", format, path)

	d, err := snapshot.Load(path)
	if err != nil {
		return snapshotError(formatter, path, err)
	}

	result := summarize(path, format, d, opts.Sessions)
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	return writeInspectText(formatter.Writer, result)
}

func summarize(path string, format snapshot.Format, d record.Dataset, sessions bool) InspectResult {
	completed, incomplete, responses := d.Counts()
	result := InspectResult{
		Path:           path,
		Format:         string(format),
		StudyKey:       d.Meta.StudyKey,
		Study:          d.Meta.ConfigName,
		CreatedAt:      record.FormatTime(d.Meta.CreatedAt),
		ItemCount:      d.Meta.ItemCount,
		Columns:        len(d.Schema.Columns),
		Total:          d.Len(),
		Completed:      completed,
		Incomplete:     incomplete,
		TotalResponses: responses,
	}
	if !sessions {
		return result
	}

	result.Sessions = make([]SessionSummary, 0, d.Len())
	for _, r := range d.Records {
		s := SessionSummary{
			SessionID:     r.SessionID,
			ParticipantID: r.ParticipantID,
			Status:        string(r.Status),
			StartTime:     record.FormatTime(r.StartTime),
			EndTime:       record.FormatTime(r.EndTime),
			Responses:     r.ResponseCount(),
		}
		if secs, ok := r.DurationSeconds(); ok {
			s.DurationSeconds = &secs
		}
		result.Sessions = append(result.Sessions, s)
	}
	return result
}

func writeInspectText(w io.Writer, result InspectResult) error {
	fmt.Fprintf(w, "Snapshot: %s (%s)\n", result.Path, result.Format)
	fmt.Fprintf(w, "Study:    %s [%s]\n", result.Study, result.StudyKey)
	fmt.Fprintf(w, "Created:  %s\n", result.CreatedAt)
	fmt.Fprintf(w, "Items:    %d (%d columns)\n", result.ItemCount, result.Columns)
	fmt.Fprintf(w, "Sessions: %d total, %d completed, %d incomplete\n", result.Total, result.Completed, result.Incomplete)
	fmt.Fprintf(w, "Responses: %d\n", result.TotalResponses)

	if len(result.Sessions) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tPARTICIPANT\tSTATUS\tRESPONSES\tDURATION")
	for _, s := range result.Sessions {
		duration := "-"
		if s.DurationSeconds != nil {
			duration = record.FormatFloat(*s.DurationSeconds) + "s"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", s.SessionID, s.ParticipantID, s.Status, s.Responses, duration)
	}
	return tw.Flush()
}

// snapshotError maps a snapshot.Load failure to an error code.
func snapshotError(formatter *OutputFormatter, path string, err error) error {
	switch {
	case snapshot.IsNotExist(err):
		return commandError(formatter, ErrCodeNotFound, fmt.Sprintf("snapshot not found: %s", path), nil)
	case errors.Is(err, snapshot.ErrCorrupt):
		return commandError(formatter, ErrCodeCorrupt, err.Error(), nil)
	default:
		return commandError(formatter, ErrCodeGeneric, err.Error(), nil)
	}
}
