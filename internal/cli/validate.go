package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/horizon/internal/compiler"
)

// ResourceInfo describes one validated resource.
type ResourceInfo struct {
	Name    string  `json:"name"`
	Kind    string  `json:"kind"`
	Default float64 `json:"default"`
	Doc     string  `json:"doc,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool                       `json:"valid"`
	Errors    []compiler.ValidationError `json:"errors,omitempty"`
	Resources []ResourceInfo             `json:"resources,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <model-file-or-dir>",
		Short: "Validate a CUE resource model",
		Long: `Validate a CUE resource model without running anything.

Checks CUE syntax, the resource schema (kind, default, doc) and model
rules: resource names, duplicates, integral defaults for int resources.

Example:
  horizon validate ./models/battery.cue
  horizon validate ./models --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("model not found: %s", path), nil)
	}

	spec, errs := ValidateModel(path)
	if spec == nil && len(errs) > 0 && errs[0].Code == ErrCodeLoadFailed {
		return formatter.Fail(ExitCommandError, errs[0].Code, errs[0].Message, nil)
	}
	if len(errs) > 0 {
		return reportValidationErrors(formatter, errs)
	}

	resources := make([]ResourceInfo, len(spec.Resources))
	for i, r := range spec.Resources {
		resources[i] = ResourceInfo{Name: r.Name, Kind: string(r.Kind), Default: r.Default, Doc: r.Doc}
		formatter.VerboseLog("resource %s: %s (default %g)", r.Name, r.Kind, r.Default)
	}
	return outputValidateSuccess(formatter, resources)
}

// ValidateModel compiles and validates the model at path. A CUE failure is
// reported as a single validation error with its position.
func ValidateModel(path string) (*compiler.ModelSpec, []compiler.ValidationError) {
	spec, err := compiler.LoadModel(path)
	if err != nil {
		var cErr *compiler.CompileError
		if errors.As(err, &cErr) {
			return nil, []compiler.ValidationError{{
				Field:   cErr.Field,
				Message: cErr.Message,
				Code:    ErrCodeGeneric,
				Line:    getLine(cErr.Pos),
			}}
		}
		return nil, []compiler.ValidationError{{
			Field:   "model",
			Message: err.Error(),
			Code:    ErrCodeLoadFailed,
		}}
	}
	return spec, compiler.Validate(spec)
}

// getLine extracts the line number from a position, if it has one.
func getLine(pos interface {
	IsValid() bool
	Line() int
}) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// outputValidateSuccess reports a valid model.
func outputValidateSuccess(formatter *OutputFormatter, resources []ResourceInfo) error {
	return formatter.Report(ValidationResult{Valid: true, Resources: resources}, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Model valid (%d resource(s))\n", len(resources))
	})
}

// reportValidationErrors reports every validation error and exits with
// ExitFailure.
func reportValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	result := ValidationResult{Valid: false, Errors: errs}
	err := formatter.Partial(result, errs[0].Code, errs[0].Message, func(w io.Writer) {
		fmt.Fprintln(w, "✗ Validation failed")
		fmt.Fprintln(w)
		for _, e := range errs {
			if e.Line > 0 {
				fmt.Fprintf(w, "line %d\n", e.Line)
			}
			fmt.Fprintf(w, "  %s: %s: %s\n\n", e.Code, e.Field, e.Message)
		}
	})
	if err != nil {
		return err
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
