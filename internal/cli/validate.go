package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cortex/internal/compiler"
	"github.com/roach88/cortex/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Graph    string                     `json:"graph,omitempty"`
	Inputs   int                        `json:"inputs"`
	Sections int                        `json:"sections"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <graph>",
		Short: "Check a graph description without running it",
		Long: `Compile a CUE graph description and check its wiring.

Reports every problem found: bad sizes, duplicate ids, unfed or doubly
fed slots, dimension mismatches, an order that runs a section before its
sources, wiring cycles, and fan-in tables that disagree with the wiring.

The argument is a .cue file or a directory holding one CUE package.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loaded, err := LoadGraph(path)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Read %d CUE file(s) from %s", loaded.FileCount, path)

	g := loaded.Graph
	errs := compiler.Validate(g)
	if len(errs) > 0 {
		return outputValidationErrors(formatter, g, errs)
	}

	if formatter.JSON() {
		return formatter.Success(summarize(g, nil))
	}
	fmt.Fprintf(formatter.Writer, "✓ Graph %s valid (%d input(s), %d section(s))\n",
		g.Name, len(g.Inputs), len(g.Sections))
	return nil
}

func summarize(g *ir.GraphSpec, errs []compiler.ValidationError) ValidationResult {
	return ValidationResult{
		Valid:    len(errs) == 0,
		Graph:    g.Name,
		Inputs:   len(g.Inputs),
		Sections: len(g.Sections),
		Errors:   errs,
	}
}

// outputLoadError reports a graph that could not be read or compiled.
// These are command errors (exit code 2).
func outputLoadError(formatter *OutputFormatter, err error) error {
	code := loadErrorCode(err)
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(ExitCommandError, code, err)
}

// outputValidationErrors reports a graph that compiled but is miswired.
// These are validation failures (exit code 1).
func outputValidationErrors(formatter *OutputFormatter, g *ir.GraphSpec, errs []compiler.ValidationError) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.JSON() {
		if err := formatter.Respond(CLIResponse{
			Status: "error",
			Data:   summarize(g, errs),
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		}); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n", e.Code, e.Field, e.Message)
	}
	return failure
}
