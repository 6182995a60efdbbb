package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/linkage/internal/compiler"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	FailFast bool
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool                       `json:"valid"`
	Resources []string                   `json:"resources,omitempty"`
	Errors    []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [schema-dir]",
		Short: "Validate resource schemas",
		Long: `Compile and check every CUE resource in a schema directory.

Checks attribute kinds, keys, relationship storage and cross-type
references without touching a database. The directory defaults to
schema.dir from the config file.

Exit codes:
  0 - All resources valid
  1 - Validation errors
  2 - Command error (directory not found, no CUE files, etc.)`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := rootOpts.Config.SchemaDir()
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(opts, dir, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.FailFast, "fail-fast", false, "stop at the first error")

	return cmd
}

func runValidate(opts *ValidateOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	mode := compiler.LoadModeCollectAll
	if opts.FailFast {
		mode = compiler.LoadModeFailFast
	}
	result, errs := compiler.LoadDir(dir, mode)

	// Nothing loaded: the directory itself is unusable.
	if result == nil {
		code, message := compiler.ErrCodeGeneric, errs[0].Error()
		var loadErr *compiler.LoadError
		if errors.As(errs[0], &loadErr) {
			code, message = loadErr.Code, loadErr.Message
		}
		_ = formatter.Error(code, message, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, dir)
	opts.Logger.Debug("schema loaded", "dir", dir, "files", result.FileCount, "resources", len(result.Types))

	if len(errs) > 0 {
		return outputValidationErrors(formatter, toValidationErrors(errs))
	}

	names := make([]string, len(result.Types))
	for i, t := range result.Types {
		names[i] = t.Name
		formatter.VerboseLog("  %s (table %s)", t.Name, t.Table)
	}
	return outputValidateSuccess(formatter, names)
}

func toValidationErrors(errs []error) []compiler.ValidationError {
	out := make([]compiler.ValidationError, 0, len(errs))
	for _, err := range errs {
		var loadErr *compiler.LoadError
		if !errors.As(err, &loadErr) {
			out = append(out, compiler.ValidationError{Field: "load", Message: err.Error(), Code: compiler.ErrCodeGeneric})
			continue
		}
		verr := compiler.ValidationError{Field: "load", Message: loadErr.Message, Code: loadErr.Code}
		if loadErr.Pos.IsValid() {
			verr.Line = loadErr.Pos.Line()
		}
		out = append(out, verr)
	}
	return out
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, resources []string) error {
	if formatter.IsJSON() {
		return formatter.Success(ValidationResult{Valid: true, Resources: resources})
	}

	fmt.Fprintf(formatter.Writer, "✓ All resources valid (%d)\n", len(resources))
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	failed := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.IsJSON() {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		}); err != nil {
			return err
		}
		return failed
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}
	return failed
}
