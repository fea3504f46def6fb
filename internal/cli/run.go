package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cortex/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	SessionOptions
}

// RunResult summarizes a run.
type RunResult struct {
	SessionID   string   `json:"session_id"`
	Graph       string   `json:"graph"`
	Ticks       int      `json:"ticks"`
	Trained     bool     `json:"trained"`
	Active      []string `json:"active"`
	Interrupted bool     `json:"interrupted,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <graph>",
		Short: "Stream inputs through a graph and record every tick",
		Long: `Build a graph and stream input vectors through it, recording each tick.

The input file maps every input channel to the vectors it cycles
through:

  ticks: 500
  stream:
    sensor: [[0.1], [0.9]]

The database is created if it doesn't exist. Each run is a new session;
use "cortex trace" to read it back. Ctrl-C stops after the current tick.

Example:
  cortex run --db ./cortex.db --input-file ./stream.yaml ./graph.cue
  cortex run --db ./cortex.db --input-file ./stream.yaml --ticks 50 --seed 7 ./graph.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(opts, args[0], cmd)
		},
	}

	opts.bindFlags(cmd)
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("input-file")

	return cmd
}

func runGraph(opts *RunOptions, path string, cmd *cobra.Command) error {
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

	result := RunResult{Graph: spec.Name}
	slog.Info("run starting", "graph", spec.Name, "db", opts.Database, "ticks", ticks)
	sessionID, err := driveGraph(ctx, spec, &opts.SessionOptions, func(ctx context.Context, g *liveGraph) error {
		err := g.stream(ctx, plan, ticks, req)
		result.Ticks = g.ticks
		result.Trained = g.cortex.Trained()
		for _, o := range g.last {
			if o.Active {
				result.Active = append(result.Active, o.Name)
			}
		}
		return err
	})
	result.SessionID = sessionID

	switch {
	case err == nil:
	case interrupted(err) && sessionID != "":
		result.Interrupted = true
		slog.Info("run interrupted", "session", sessionID, "ticks", result.Ticks)
	default:
		return outputRunError(formatter, sessionID, err)
	}

	if formatter.JSON() {
		return formatter.Respond(CLIResponse{Status: "ok", Data: result, SessionID: sessionID})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Session %s\n", sessionID)
	fmt.Fprintf(w, "  graph:   %s\n", result.Graph)
	fmt.Fprintf(w, "  ticks:   %d\n", result.Ticks)
	fmt.Fprintf(w, "  trained: %t\n", result.Trained)
	fmt.Fprintf(w, "  active:  %s\n", strings.Join(result.Active, ", "))
	if result.Interrupted {
		fmt.Fprintln(w, "Interrupted.")
	}
	return nil
}

// outputRunError reports a failed run. Errors that already carry an exit
// code (bad database, bad stream) pass through; engine failures are
// run failures.
func outputRunError(formatter *OutputFormatter, sessionID string, err error) error {
	code := harness.ErrorCode(err)
	if formatter.JSON() {
		_ = formatter.Respond(CLIResponse{
			Status:    "error",
			Error:     &CLIError{Code: code, Message: err.Error()},
			SessionID: sessionID,
		})
	} else {
		fmt.Fprintf(formatter.Writer, "Error [%s]: %v\n", code, err)
	}
	if GetExitCode(err) == ExitCommandError {
		return err
	}
	return WrapExitError(ExitFailure, "run failed", err)
}
