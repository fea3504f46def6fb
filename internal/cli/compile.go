package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cortex/internal/compiler"
	"github.com/roach88/cortex/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult is a compiled graph in canonical IR form.
type CompilationResult struct {
	Graph     string          `json:"graph"`
	Hash      string          `json:"hash"`
	IRVersion string          `json:"ir_version"`
	IR        json.RawMessage `json:"ir"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <graph>",
		Short: "Compile a graph description to canonical IR",
		Long: `Compile a CUE graph description to canonical IR.

The graph is validated first; a miswired graph produces no IR. The
canonical encoding has sorted keys and no insignificant whitespace, so
its hash identifies the graph. Sessions record this hash.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loaded, err := LoadGraph(path)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	g := loaded.Graph
	if errs := compiler.Validate(g); len(errs) > 0 {
		return outputValidationErrors(formatter, g, errs)
	}

	result, err := compileIR(g)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "encode IR", err)
	}
	formatter.VerboseLog("Graph %s hashes to %s", g.Name, result.Hash)

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, result.IR, 0o644); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, ErrCodeWriteFailed, err)
		}
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled graph %s\n", g.Name)
	fmt.Fprintf(w, "  hash: %s\n\n", result.Hash)
	for _, s := range g.Sections {
		fmt.Fprintf(w, "  %s: %dx%d cells, dim %d, %s, %d train iters\n",
			s.Name, s.Rows, s.Cols, s.Dim, s.Mode, s.TrainIters)
	}
	if opts.Output != "" {
		fmt.Fprintf(w, "\nWrote canonical IR to %s\n", opts.Output)
	}
	return nil
}

func compileIR(g *ir.GraphSpec) (CompilationResult, error) {
	data, err := ir.MarshalCanonical(g.ToIR())
	if err != nil {
		return CompilationResult{}, err
	}
	hash, err := ir.GraphHash(g)
	if err != nil {
		return CompilationResult{}, err
	}
	return CompilationResult{
		Graph:     g.Name,
		Hash:      hash,
		IRVersion: ir.IRVersion,
		IR:        data,
	}, nil
}
