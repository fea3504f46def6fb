package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cortex/internal/som"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	SessionOptions
	Radius int
}

// InspectResult describes every section map after streaming.
type InspectResult struct {
	SessionID string          `json:"session_id"`
	Graph     string          `json:"graph"`
	Ticks     int             `json:"ticks"`
	Sections  []SectionReport `json:"sections"`
}

// SectionReport is the state of one section map. Quality holds one value
// in [0,1] per cell, row-major; high values mark cluster boundaries.
type SectionReport struct {
	ID         int       `json:"id"`
	Name       string    `json:"name"`
	Rows       int       `json:"rows"`
	Cols       int       `json:"cols"`
	Mode       string    `json:"mode"`
	Iteration  int       `json:"iteration"`
	TrainIters int       `json:"train_iters"`
	Quality    []float64 `json:"quality"`
}

// qualityRamp shades quality values from smooth to boundary.
const qualityRamp = " .:-=+*#%@"

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <graph>",
		Short: "Show the training state and quality map of every section",
		Long: `Build a graph, stream --input-file through it, and report each section:
its mode, training iteration, and a quality map. The quality of a cell is
its mean distance to the cells within --radius grid steps, scaled so the
largest is 1; ridges of high values separate learned clusters.

Example:
  cortex inspect --input-file stream.yaml --seed 7 ./graph.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], cmd)
		},
	}

	opts.bindFlags(cmd)
	cmd.Flags().IntVar(&opts.Radius, "radius", som.DefaultQualityRadius, "quality map neighborhood radius")

	return cmd
}

func runInspect(opts *InspectOptions, path string, cmd *cobra.Command) error {
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

	result := InspectResult{Graph: spec.Name}
	sessionID, err := driveGraph(ctx, spec, &opts.SessionOptions, func(ctx context.Context, g *liveGraph) error {
		if err := g.stream(ctx, plan, ticks, req); err != nil {
			return err
		}
		result.Ticks = g.ticks
		// The runner is idle between replies.
		for _, s := range spec.Sections {
			m, ok := g.cortex.Map(s.ID)
			if !ok {
				return fmt.Errorf("section %s has no map", s.Name)
			}
			result.Sections = append(result.Sections, SectionReport{
				ID:         s.ID,
				Name:       s.Name,
				Rows:       m.Rows(),
				Cols:       m.Cols(),
				Mode:       m.Mode().String(),
				Iteration:  m.Iteration(),
				TrainIters: m.TrainIters(),
				Quality:    m.QualityMap(opts.Radius),
			})
		}
		return nil
	})
	result.SessionID = sessionID
	if err != nil {
		return outputRunError(formatter, sessionID, err)
	}

	if formatter.JSON() {
		return formatter.Respond(CLIResponse{Status: "ok", Data: result, SessionID: sessionID})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Graph %s after %d tick(s)\n", result.Graph, result.Ticks)
	for _, s := range result.Sections {
		fmt.Fprintf(w, "\n%s (#%d): %s, iteration %d/%d\n", s.Name, s.ID, s.Mode, s.Iteration, s.TrainIters)
		for _, line := range heatMap(s.Quality, s.Rows, s.Cols) {
			fmt.Fprintf(w, "  |%s|\n", line)
		}
	}
	return nil
}

// heatMap renders row-major values in [0,1] as one string per row.
func heatMap(q []float64, rows, cols int) []string {
	lines := make([]string, rows)
	last := len(qualityRamp) - 1
	for r := range rows {
		var b strings.Builder
		for c := range cols {
			i := int(q[r*cols+c]*float64(last) + 0.5)
			b.WriteByte(qualityRamp[min(max(i, 0), last)])
		}
		lines[r] = b.String()
	}
	return lines
}
