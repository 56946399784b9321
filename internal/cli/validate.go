package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rgf/internal/config"
	"github.com/roach88/rgf/internal/manifest"
	"github.com/roach88/rgf/internal/plugin"
)

// ValidationError locates one manifest problem.
type ValidationError struct {
	Code    string `json:"code"`
	Source  string `json:"source,omitempty"`
	Field   string `json:"field,omitempty"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

// ManifestSummary describes a manifest plugin after a trial activation.
type ManifestSummary struct {
	Name          string `json:"name"`
	Version       string `json:"version,omitempty"`
	Components    int    `json:"components"`
	EntityTypes   int    `json:"entity_types"`
	RelationTypes int    `json:"relation_types"`
	Flows         int    `json:"flows"`
	State         string `json:"state"`
	Error         string `json:"error,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Plugins []ManifestSummary `json:"plugins"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifest>...",
		Short: "Validate plugin manifests",
		Long: `Validate YAML or CUE plugin manifests.

Each manifest is parsed and checked, then installed next to the built-in
plugins in a scratch runtime to confirm its types register and its
dependencies resolve. A directory is loaded as one CUE package.

Exit codes:
  0 - All manifests valid
  1 - A manifest is invalid or its plugin failed to activate
  2 - Command error (missing files, bad config)`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	for _, p := range paths {
		formatter.Verbosef("Loading %s", p)
	}
	defs, err := manifest.Load(paths...)
	if err != nil {
		var merr *manifest.Error
		if !errors.As(err, &merr) {
			return WrapExitError(ExitCommandError, "failed to load manifests", err)
		}
		if merr.Code == manifest.ErrCodeNotFound {
			return WrapExitError(ExitCommandError, "manifest not found", err)
		}
		result := ValidationResult{
			Plugins: []ManifestSummary{},
			Errors:  []ValidationError{toValidationError(merr)},
		}
		if err := outputValidation(formatter, result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "validation failed")
	}

	cfg.Manifests = nil
	result, err := activate(cmd.Context(), cfg, defs)
	if err != nil {
		return WrapExitError(ExitFailure, "trial activation failed", err)
	}
	if err := outputValidation(formatter, result); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

// activate installs defs next to the enabled built-ins in a scratch
// runtime and reports the state each reached.
func activate(ctx context.Context, cfg config.Config, defs []*plugin.Definition) (ValidationResult, error) {
	rt, err := assemble(cfg)
	if err != nil {
		return ValidationResult{}, err
	}
	for _, d := range defs {
		if err := rt.Install(d); err != nil {
			return ValidationResult{}, err
		}
	}
	report, err := rt.Init(ctx)
	if err != nil {
		return ValidationResult{}, err
	}
	defer func() { _ = rt.Shutdown(context.Background()) }()

	result := ValidationResult{Valid: true, Plugins: make([]ManifestSummary, 0, len(defs))}
	for _, d := range defs {
		s := ManifestSummary{
			Name:          d.Meta.Name,
			Version:       d.Meta.Version,
			Components:    len(d.ComponentList),
			EntityTypes:   len(d.EntityList),
			RelationTypes: len(d.RelationList),
			Flows:         len(d.FlowList),
		}
		state, _ := rt.Resolver().State(d.Meta.Name)
		s.State = state.String()
		if ferr, ok := report.Failed[d.Meta.Name]; ok {
			s.Error = ferr.Error()
		} else if missing, ok := report.Unsatisfied[d.Meta.Name]; ok {
			s.Error = fmt.Sprintf("unsatisfied dependencies %v", missing)
		}
		if state != plugin.StateActive {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Code:    ErrCodePlugin,
				Source:  d.Meta.Name,
				Message: s.Error,
			})
		}
		result.Plugins = append(result.Plugins, s)
	}
	return result, nil
}

func toValidationError(err *manifest.Error) ValidationError {
	ve := ValidationError{
		Code:    string(err.Code),
		Source:  err.Source,
		Field:   err.Field,
		Message: err.Message,
	}
	if err.Pos.IsValid() {
		ve.Line = err.Pos.Line()
	}
	return ve
}

func outputValidation(f *OutputFormatter, result ValidationResult) error {
	if f.JSON() {
		var failure *CLIError
		if !result.Valid {
			failure = &CLIError{
				Code:    ErrCodeManifest,
				Message: fmt.Sprintf("%d validation error(s)", len(result.Errors)),
			}
		}
		return f.Result(result, failure)
	}

	w := f.Writer
	for _, p := range result.Plugins {
		if p.State == plugin.StateActive.String() {
			fmt.Fprintf(w, "✓ %s %s (%d components, %d entity types, %d relation types, %d flows)\n",
				p.Name, p.Version, p.Components, p.EntityTypes, p.RelationTypes, p.Flows)
			continue
		}
		fmt.Fprintf(w, "✗ %s %s: %s (%s)\n", p.Name, p.Version, p.State, p.Error)
	}
	for _, e := range result.Errors {
		if e.Code == ErrCodePlugin {
			continue
		}
		loc := e.Source
		if e.Line > 0 {
			loc = fmt.Sprintf("%s:%d", loc, e.Line)
		}
		if e.Field != "" {
			loc = fmt.Sprintf("%s (%s)", loc, e.Field)
		}
		fmt.Fprintf(w, "✗ %s: [%s] %s\n", loc, e.Code, e.Message)
	}
	if result.Valid {
		fmt.Fprintln(w, "✓ All manifests valid")
	}
	return nil
}
