package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/sessionstore/internal/config"
	"github.com/roach88/sessionstore/internal/schema"
)

// SchemaResult describes the columns a study config produces.
type SchemaResult struct {
	Study             string         `json:"study"`
	ItemCount         int            `json:"item_count"`
	ExtraDemographics []string       `json:"extra_demographics,omitempty"`
	CustomFlow        bool           `json:"custom_flow"`
	Columns           []ColumnResult `json:"columns"`
}

// ColumnResult is one column of the dataset schema.
type ColumnResult struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Group string `json:"group"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema <config>",
		Short: "Validate a study config and print its dataset columns",
		Long: `Validate a study config (YAML or CUE) and print the ordered column
list that snapshots of the study will carry.

Example:
  sessionstore schema ./study.yaml
  sessionstore schema --format json ./study.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runSchema(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	formatter.VerboseLog("Loading study config %s", path)
	file, err := config.Load(path)
	if err != nil {
		return configError(formatter, path, err)
	}

	sch := schema.Build(file.StudyConfig(), file.ItemBank)
	result := SchemaResult{
		Study:             sch.Config.Name,
		ItemCount:         sch.ItemCount(),
		ExtraDemographics: sch.ExtraDemographics,
		CustomFlow:        sch.CustomFlow,
		Columns:           make([]ColumnResult, 0, len(sch.Columns)),
	}
	for _, col := range sch.Columns {
		result.Columns = append(result.Columns, ColumnResult{
			Name:  col.Name,
			Kind:  col.Kind.String(),
			Group: col.Group.String(),
		})
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	return writeSchemaText(formatter.Writer, result)
}

func writeSchemaText(w io.Writer, result SchemaResult) error {
	fmt.Fprintf(w, "Study %s: %d columns, %d items\n", result.Study, len(result.Columns), result.ItemCount)
	if result.CustomFlow {
		fmt.Fprintln(w, "Custom flow: enabled")
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tKIND\tGROUP")
	for _, col := range result.Columns {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", col.Name, col.Kind, col.Group)
	}
	return tw.Flush()
}

// configError maps a config.Load failure to an error code.
func configError(formatter *OutputFormatter, path string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return commandError(formatter, ErrCodeNotFound, fmt.Sprintf("config not found: %s", path), nil)
	case errors.Is(err, config.ErrUnsupportedFormat):
		return commandError(formatter, ErrCodeUnsupported, fmt.Sprintf("unsupported config format: %s", path), nil)
	default:
		var vErr *config.ValidationError
		if errors.As(err, &vErr) && vErr.Pos.IsValid() {
			return commandError(formatter, ErrCodeConfigInvalid, err.Error(), map[string]any{
				"file":   vErr.Pos.Filename(),
				"line":   vErr.Pos.Line(),
				"column": vErr.Pos.Column(),
			})
		}
		return commandError(formatter, ErrCodeConfigInvalid, err.Error(), nil)
	}
}
