package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cortex/internal/engine"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	SessionOptions
	Row      int
	Col      int
	AtOutput string
}

// ResolveResult is one reverse resolution.
type ResolveResult struct {
	SessionID string          `json:"session_id"`
	Row       int             `json:"row"`
	Col       int             `json:"col"`
	Tick      int64           `json:"tick"`
	Resolved  bool            `json:"resolved"`
	Inputs    []ResolvedInput `json:"inputs"`
}

// ResolvedInput is the reconstruction for one input channel. Steps[0] is
// the most recent time step.
type ResolvedInput struct {
	Name   string      `json:"name"`
	Active bool        `json:"active"`
	Steps  [][]float64 `json:"steps"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <graph>",
		Short: "Reconstruct the inputs behind a grid point",
		Long: `Walk a grid point back down the graph to the input vectors it stands for.

The graph is built from --seed and trained on --input-file first, so the
same flags always give the same maps. Choose the point either by global
coordinates (--row and --col) or by the output channel a streamed tick
last published on (--at-output).

Examples:
  cortex resolve --input-file stream.yaml --row 1 --col 6 ./graph.cue
  cortex resolve --input-file stream.yaml --at-output top ./graph.cue
  cortex resolve --db ./cortex.db --input-file stream.yaml --at-output top --format json ./graph.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, args[0], cmd)
		},
	}

	opts.bindFlags(cmd)
	cmd.Flags().IntVar(&opts.Row, "row", 0, "global row of the grid point")
	cmd.Flags().IntVar(&opts.Col, "col", 0, "global column of the grid point")
	cmd.Flags().StringVar(&opts.AtOutput, "at-output", "", "resolve where this output pointed on the last streamed tick")
	cmd.MarkFlagsRequiredTogether("row", "col")
	cmd.MarkFlagsMutuallyExclusive("row", "at-output")
	cmd.MarkFlagsMutuallyExclusive("col", "at-output")
	cmd.MarkFlagsOneRequired("row", "at-output")

	return cmd
}

func runResolve(opts *ResolveOptions, path string, cmd *cobra.Command) error {
	setupLogging(opts.RootOptions, cmd)
	formatter := newFormatter(opts.RootOptions, cmd)

	spec, err := loadValidGraph(formatter, path)
	if err != nil {
		return err
	}
	plan, ticks, req, err := opts.trainingPlan()
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	var result ResolveResult
	sessionID, err := driveGraph(ctx, spec, &opts.SessionOptions, func(ctx context.Context, g *liveGraph) error {
		if err := g.stream(ctx, plan, ticks, req); err != nil {
			return err
		}
		row, col, err := opts.point(g.last)
		if err != nil {
			return err
		}
		reply := <-g.runner.SubmitResolve(row, col)
		if reply.Err != nil {
			return reply.Err
		}
		result = newResolveResult(row, col, reply)
		return nil
	})
	result.SessionID = sessionID
	if err != nil {
		return outputRunError(formatter, sessionID, err)
	}

	if formatter.JSON() {
		return formatter.Respond(CLIResponse{Status: "ok", Data: result, SessionID: sessionID})
	}
	printResolution(formatter, result)
	return nil
}

func (o *ResolveOptions) point(last engine.OutputTable) (int, int, error) {
	if o.AtOutput == "" {
		return o.Row, o.Col, nil
	}
	out, ok := last.Lookup(o.AtOutput)
	if !ok {
		return 0, 0, NewExitError(ExitCommandError, fmt.Sprintf("--at-output %q: no such output on the last streamed tick", o.AtOutput))
	}
	if !out.Active {
		return 0, 0, NewExitError(ExitFailure, fmt.Sprintf("--at-output %q: output was inactive on the last streamed tick", o.AtOutput))
	}
	return out.GlobalRow(), out.GlobalCol(), nil
}

func newResolveResult(row, col int, reply engine.Reply) ResolveResult {
	r := ResolveResult{
		Row:      row,
		Col:      col,
		Tick:     reply.Tick,
		Resolved: reply.Resolved,
		Inputs:   make([]ResolvedInput, 0, len(reply.Resolution)),
	}
	for _, in := range reply.Resolution {
		steps := make([][]float64, len(in.TimeSteps))
		for i, v := range in.TimeSteps {
			steps[i] = append([]float64(nil), v...)
		}
		r.Inputs = append(r.Inputs, ResolvedInput{Name: in.Name, Active: in.Active, Steps: steps})
	}
	return r
}

func printResolution(formatter *OutputFormatter, r ResolveResult) {
	w := formatter.Writer
	if !r.Resolved {
		fmt.Fprintf(w, "✗ (%d,%d) lies outside every section\n", r.Row, r.Col)
		return
	}
	fmt.Fprintf(w, "✓ Resolved (%d,%d) after tick %d\n", r.Row, r.Col, r.Tick)
	for _, in := range r.Inputs {
		if !in.Active {
			fmt.Fprintf(w, "  %s: inactive\n", in.Name)
			continue
		}
		steps := make([]string, len(in.Steps))
		for i, s := range in.Steps {
			steps[i] = formatVector(s)
		}
		fmt.Fprintf(w, "  %s: %s\n", in.Name, strings.Join(steps, " "))
	}
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.4f", x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
