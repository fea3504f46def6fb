package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/cortex/internal/compiler"
	"github.com/roach88/cortex/internal/engine"
	"github.com/roach88/cortex/internal/harness"
	"github.com/roach88/cortex/internal/ir"
	"github.com/roach88/cortex/internal/som"
	"github.com/roach88/cortex/internal/store"
)

// SessionOptions holds the flags shared by commands that build and drive
// a graph.
type SessionOptions struct {
	Database  string // SQLite path; in-memory when empty
	Seed      uint64
	Ticks     int    // overrides the stream file's tick count when > 0
	InputFile string // YAML training stream
	Request   string // "learn" or "classify"

	// Sessions allows overriding the session id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	Sessions engine.SessionIDGenerator
}

func (o *SessionOptions) bindFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Database, "db", "", "path to SQLite database")
	cmd.Flags().Uint64Var(&o.Seed, "seed", 1, "seed for map initialization")
	cmd.Flags().IntVar(&o.Ticks, "ticks", 0, "number of ticks to run (default: the stream file's ticks)")
	cmd.Flags().StringVar(&o.InputFile, "input-file", "", "YAML stream of input vectors per channel")
	cmd.Flags().StringVar(&o.Request, "request", "learn", "request for streamed ticks (learn|classify)")
}

// liveGraph is a built graph whose Runner is serving requests.
type liveGraph struct {
	spec      *ir.GraphSpec
	cortex    *engine.Cortex
	runner    *engine.Runner
	sessionID string

	// ticks counts streamed ticks; last is the output table of the most
	// recent one.
	ticks int
	last  engine.OutputTable
}

// loadValidGraph loads and validates a graph, reporting problems through
// the formatter.
func loadValidGraph(formatter *OutputFormatter, path string) (*ir.GraphSpec, error) {
	loaded, err := LoadGraph(path)
	if err != nil {
		return nil, outputLoadError(formatter, err)
	}
	if errs := compiler.Validate(loaded.Graph); len(errs) > 0 {
		return nil, outputValidationErrors(formatter, loaded.Graph, errs)
	}
	return loaded.Graph, nil
}

// driveGraph builds spec, records a new session and calls fn while a
// Runner serves the graph. The Runner stops when fn returns.
func driveGraph(ctx context.Context, spec *ir.GraphSpec, opts *SessionOptions, fn func(ctx context.Context, g *liveGraph) error) (string, error) {
	seed, err := store.SeedValue(opts.Seed)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "invalid --seed", err)
	}
	path := opts.Database
	if path == "" {
		path = store.MemoryPath
	}
	slog.Debug("opening database", "path", path)
	st, err := store.Open(path)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	c, err := engine.Build(spec, som.NewRand(opts.Seed))
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to build graph", err)
	}
	defer c.Destroy()

	gen := opts.Sessions
	if gen == nil {
		gen = engine.UUIDv7Generator{}
	}
	hash, err := ir.GraphHash(spec)
	if err != nil {
		return "", err
	}
	sess := store.Session{
		ID:            gen.Generate(),
		GraphName:     spec.Name,
		GraphHash:     hash,
		Seed:          seed,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
	if err := st.WriteSession(ctx, sess); err != nil {
		return "", WrapExitError(ExitCommandError, "failed to record session", err)
	}

	g := &liveGraph{
		spec:      spec,
		cortex:    c,
		runner:    engine.NewRunner(c, st, sess.ID),
		sessionID: sess.ID,
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return g.runner.Run(gctx)
	})
	grp.Go(func() error {
		defer g.runner.Stop()
		return fn(gctx, g)
	})
	return sess.ID, grp.Wait()
}

// stream runs ticks from the training plan. It stops early, returning
// ctx.Err(), when ctx is cancelled.
func (g *liveGraph) stream(ctx context.Context, plan *harness.TrainPlan, ticks int, req som.Request) error {
	for tick := range ticks {
		if err := ctx.Err(); err != nil {
			return err
		}
		vecs, err := harness.OrderInputs(g.spec, plan.Frame(tick))
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid input stream", err)
		}
		reply := <-g.runner.SubmitProcess(vecs, req)
		if errors.Is(reply.Err, engine.ErrStopped) && ctx.Err() != nil {
			return ctx.Err()
		}
		if reply.Err != nil {
			return fmt.Errorf("tick %d: %w", tick+1, reply.Err)
		}
		g.ticks++
		g.last = reply.Outputs
		slog.Debug("tick", "tick", reply.Tick, "session", g.sessionID)
	}
	return nil
}

// trainingPlan reads the stream file and works out how many ticks to run.
// Without a stream file nothing is streamed.
func (o *SessionOptions) trainingPlan() (*harness.TrainPlan, int, som.Request, error) {
	req, err := som.ParseRequest(o.Request)
	if err != nil {
		return nil, 0, 0, WrapExitError(ExitCommandError, "invalid --request", err)
	}
	if o.InputFile == "" {
		if o.Ticks > 0 {
			return nil, 0, 0, NewExitError(ExitCommandError, "--ticks needs --input-file")
		}
		return nil, 0, req, nil
	}
	plan, err := harness.LoadTrainPlan(o.InputFile)
	if err != nil {
		return nil, 0, 0, WrapExitError(ExitCommandError, "failed to load input stream", err)
	}
	ticks := plan.Ticks
	if o.Ticks > 0 {
		ticks = o.Ticks
	}
	return plan, ticks, req, nil
}

// setupLogging installs the process-wide slog handler: text to stderr,
// Debug level in verbose mode.
func setupLogging(opts *RootOptions, cmd *cobra.Command) {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// interrupted reports whether err only records a cancelled run.
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
