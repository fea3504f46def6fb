package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cortex/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string
	Kind     string // optional - "tick" or "resolution"
}

// TraceEvent is one entry of a session timeline.
type TraceEvent struct {
	Seq      int64    `json:"seq"`
	Kind     string   `json:"kind"`
	Tick     int64    `json:"tick"`
	Request  string   `json:"request,omitempty"`
	Active   []string `json:"active,omitempty"`
	Row      int      `json:"row,omitempty"`
	Col      int      `json:"col,omitempty"`
	Resolved bool     `json:"resolved,omitempty"`
}

// TraceResult holds the complete trace output for one session.
type TraceResult struct {
	Session  store.Session `json:"session"`
	Timeline []TraceEvent  `json:"timeline"`
	Stats    TraceStats    `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int `json:"total_events"`
	Ticks       int `json:"ticks"`
	Resolutions int `json:"resolutions"`
	Resolved    int `json:"resolved"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the recorded history of a session",
		Long: `Read back what a session recorded: every tick with the outputs it
activated, and every resolution with the point it started from, merged
in the order the runner executed them.

Without --session, lists the sessions in the database.

Examples:
  cortex trace --db ./cortex.db
  cortex trace --db ./cortex.db --session 0192f1e4-...
  cortex trace --db ./cortex.db --session 0192f1e4-... --kind resolution --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id to trace")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only show events of this kind (tick|resolution)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	switch store.EventKind(opts.Kind) {
	case "", store.EventTick, store.EventResolution:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --kind %q: must be tick or resolution", opts.Kind))
	}

	// Opening would create the file.
	if _, err := os.Stat(opts.Database); err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.Session == "" {
		return listSessions(ctx, formatter, st)
	}

	sess, err := st.ReadSession(ctx, opts.Session)
	if errors.Is(err, sql.ErrNoRows) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("session not found: %s", opts.Session), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", opts.Session))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	events, err := st.ReplaySession(ctx, opts.Session)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to replay session", err)
	}

	result := TraceResult{
		Session:  sess,
		Timeline: buildTimeline(events, store.EventKind(opts.Kind)),
	}
	for _, ev := range events {
		switch ev.Kind {
		case store.EventTick:
			result.Stats.Ticks++
		case store.EventResolution:
			result.Stats.Resolutions++
			if ev.Resolution.Resolved {
				result.Stats.Resolved++
			}
		}
	}
	result.Stats.TotalEvents = len(result.Timeline)

	if formatter.JSON() {
		return formatter.Respond(CLIResponse{Status: "ok", Data: result, SessionID: sess.ID})
	}
	outputTraceText(formatter, result)
	return nil
}

// buildTimeline converts store events to trace timeline events, keeping
// only events of kind when kind is set.
func buildTimeline(events []store.Event, kind store.EventKind) []TraceEvent {
	timeline := []TraceEvent{}
	for _, ev := range events {
		if kind != "" && ev.Kind != kind {
			continue
		}
		te := TraceEvent{Seq: ev.Seq, Kind: string(ev.Kind)}
		switch {
		case ev.Tick != nil:
			te.Tick = ev.Tick.Tick
			te.Request = ev.Tick.Request
			for _, o := range ev.Tick.Outputs {
				if o.Active {
					te.Active = append(te.Active, o.Name)
				}
			}
		case ev.Resolution != nil:
			te.Tick = ev.Resolution.Tick
			te.Row = ev.Resolution.Row
			te.Col = ev.Resolution.Col
			te.Resolved = ev.Resolution.Resolved
		}
		timeline = append(timeline, te)
	}
	return timeline
}

func listSessions(ctx context.Context, formatter *OutputFormatter, st *store.Store) error {
	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}
	if formatter.JSON() {
		return formatter.Success(sessions)
	}

	w := formatter.Writer
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "%s  %s  seed=%d\n", s.ID, s.GraphName, s.Seed)
	}
	return nil
}

func outputTraceText(formatter *OutputFormatter, result TraceResult) {
	w := formatter.Writer
	s := result.Session
	fmt.Fprintf(w, "Session %s\n", s.ID)
	fmt.Fprintf(w, "  graph %s (%s), seed %d, engine %s\n\n", s.GraphName, shortHash(s.GraphHash), s.Seed, s.EngineVersion)

	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "No events recorded.")
		return
	}
	for _, ev := range result.Timeline {
		switch store.EventKind(ev.Kind) {
		case store.EventTick:
			fmt.Fprintf(w, "%6d  tick %-5d %-8s active: %s\n", ev.Seq, ev.Tick, ev.Request, strings.Join(ev.Active, ", "))
		case store.EventResolution:
			outcome := "resolved"
			if !ev.Resolved {
				outcome = "outside every section"
			}
			fmt.Fprintf(w, "%6d  resolve (%d,%d) after tick %d: %s\n", ev.Seq, ev.Row, ev.Col, ev.Tick, outcome)
		}
	}

	st := result.Stats
	fmt.Fprintf(w, "\n%d tick(s), %d resolution(s), %d resolved\n", st.Ticks, st.Resolutions, st.Resolved)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
