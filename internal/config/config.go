package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/sessionstore/internal/schema"
	"github.com/roach88/sessionstore/internal/store"
)

//go:embed study.cue
var studySchema string

// ErrUnsupportedFormat is returned for files that are neither YAML nor CUE.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// File is a study configuration file.
type File struct {
	Name         string          `yaml:"name" json:"name"`
	StudyKey     string          `yaml:"study_key,omitempty" json:"study_key,omitempty"`
	StudyType    string          `yaml:"study_type,omitempty" json:"study_type,omitempty"`
	Language     string          `yaml:"language,omitempty" json:"language,omitempty"`
	Demographics []string        `yaml:"demographics,omitempty" json:"demographics,omitempty"`
	CustomFlow   bool            `yaml:"custom_flow,omitempty" json:"custom_flow,omitempty"`
	ItemBank     schema.ItemBank `yaml:"item_bank" json:"item_bank"`
	OutputDir    string          `yaml:"output_dir,omitempty" json:"output_dir,omitempty"`
	EnableBackup bool            `yaml:"enable_backup,omitempty" json:"enable_backup,omitempty"`
	BatchSize    int             `yaml:"batch_size,omitempty" json:"batch_size,omitempty"`
}

// StudyConfig returns the part of f that shapes the dataset.
func (f File) StudyConfig() schema.StudyConfig {
	return schema.StudyConfig{
		Name:              f.Name,
		StudyType:         f.StudyType,
		Language:          f.Language,
		DemographicFields: f.Demographics,
		CustomFlow:        f.CustomFlow,
	}
}

// Params returns the Initialize parameters described by f.
func (f File) Params() store.Params {
	return store.Params{
		StudyKey:     f.StudyKey,
		Config:       f.StudyConfig(),
		ItemBank:     f.ItemBank,
		OutputDir:    f.OutputDir,
		EnableBackup: f.EnableBackup,
	}
}

// StoreOptions returns the store options described by f.
func (f File) StoreOptions() []store.Option {
	var opts []store.Option
	if f.BatchSize > 0 {
		opts = append(opts, store.WithBatchSize(f.BatchSize))
	}
	return opts
}

// ValidationError reports a study file that violates the #Study schema.
type ValidationError struct {
	Message string
	Pos     token.Pos
}

func (e *ValidationError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// Load reads a study file, choosing the parser from its extension.
func Load(path string) (File, error) {
	// #nosec G304 -- config path is supplied by the operator.
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".cue":
		return ParseCUE(data, filepath.Base(path))
	default:
		return File{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// ParseYAML decodes and validates a YAML study file.
func ParseYAML(data []byte) (File, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&f); err != nil {
		return File{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	ctx := cuecontext.New()
	if err := validate(ctx, ctx.Encode(f)); err != nil {
		return File{}, err
	}
	return f, nil
}

// ParseCUE compiles and validates a CUE study file. filename is used in
// error positions.
func ParseCUE(data []byte, filename string) (File, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return File{}, fmt.Errorf("failed to compile CUE: %w", formatCUEError(err))
	}
	if err := validate(ctx, v); err != nil {
		return File{}, err
	}

	var f File
	if err := v.Decode(&f); err != nil {
		return File{}, fmt.Errorf("failed to decode CUE: %w", formatCUEError(err))
	}
	return f, nil
}

// validate unifies v with #Study and checks semantic rules CUE cannot
// express.
func validate(ctx *cue.Context, v cue.Value) error {
	def := ctx.CompileString(studySchema, cue.Filename("study.cue")).LookupPath(cue.ParsePath("#Study"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("invalid embedded schema: %w", err)
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid study config: %w", formatCUEError(err))
	}

	bank := unified.LookupPath(cue.ParsePath("item_bank"))
	count, _ := bank.LookupPath(cue.ParsePath("count")).Int64()
	var ids int64
	if list := bank.LookupPath(cue.ParsePath("ids")); list.Exists() {
		ids, _ = list.Len().Int64()
	}
	if count == 0 && ids == 0 {
		return fmt.Errorf("invalid study config: %w", &ValidationError{
			Message: "item_bank: count or ids is required",
			Pos:     bank.Pos(),
		})
	}
	return nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	first := errs[0]
	positions := cueerrors.Positions(first)
	if len(positions) > 0 {
		return &ValidationError{
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return &ValidationError{Message: first.Error()}
}
