package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/cortex/internal/compiler"
	"github.com/roach88/cortex/internal/engine"
	"github.com/roach88/cortex/internal/ir"
	"github.com/roach88/cortex/internal/som"
	"github.com/roach88/cortex/internal/store"
	"github.com/roach88/cortex/internal/vector"
)

// Harness drives one scenario through a Runner.
type Harness struct {
	scenario *Scenario
	spec     *ir.GraphSpec
	cortex   *engine.Cortex
	runner   *engine.Runner
	store    *store.Store

	// last is the output table of the most recent successful process step.
	last engine.OutputTable
}

// Run executes a scenario and returns its result.
//
// Each scenario runs in a fresh in-memory store. The returned error covers
// problems with the scenario itself (unreadable graph, malformed inputs);
// failed expectations are reported in the Result.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	spec, err := compiler.LoadGraphFile(s.Graph)
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	if errs := compiler.Validate(spec); len(errs) > 0 {
		return nil, fmt.Errorf("invalid graph %s: %w", s.Graph, errs[0])
	}
	return RunGraph(ctx, s, spec)
}

// RunGraph executes a scenario against an already compiled graph. The
// scenario's Graph field is ignored.
func RunGraph(ctx context.Context, s *Scenario, spec *ir.GraphSpec) (*Result, error) {
	seed, err := store.SeedValue(s.Seed)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(store.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}
	defer st.Close()

	c, err := engine.Build(spec, som.NewRand(s.Seed))
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	defer c.Destroy()

	sessionID := engine.NewFixedGenerator(s.Name).Generate()
	hash, err := ir.GraphHash(spec)
	if err != nil {
		return nil, err
	}
	if err := st.WriteSession(ctx, store.Session{
		ID:            sessionID,
		GraphName:     spec.Name,
		GraphHash:     hash,
		Seed:          seed,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}); err != nil {
		return nil, err
	}

	h := &Harness{
		scenario: s,
		spec:     spec,
		cortex:   c,
		runner:   engine.NewRunner(c, st, sessionID),
		store:    st,
	}
	result := NewResult(s.Name)

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return h.runner.Run(gctx)
	})
	grp.Go(func() error {
		defer h.runner.Stop()
		if err := h.train(result); err != nil {
			return err
		}
		return h.steps(result)
	})
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	if err := h.checkRecorded(ctx, result); err != nil {
		return nil, err
	}

	slog.Debug("scenario finished",
		"scenario", s.Name,
		"pass", result.Pass,
		"steps", len(result.Trace),
	)
	return result, nil
}

// RunAll runs scenarios concurrently, at most limit at a time (no limit
// if limit <= 0). Results are returned in input order. The first scenario
// error cancels the rest.
func RunAll(ctx context.Context, scenarios []*Scenario, limit int) ([]*Result, error) {
	results := make([]*Result, len(scenarios))

	grp, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		grp.SetLimit(limit)
	}
	for i, s := range scenarios {
		grp.Go(func() error {
			r, err := Run(gctx, s)
			if err != nil {
				return fmt.Errorf("scenario %s: %w", s.Name, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// train runs the learn ticks of the training plan. A failing tick aborts
// the scenario.
func (h *Harness) train(result *Result) error {
	t := h.scenario.Train
	if t == nil {
		result.Trained = h.cortex.Trained()
		return nil
	}

	for tick := range t.Ticks {
		vecs, err := h.inputs(t.Frame(tick))
		if err != nil {
			return fmt.Errorf("train tick %d: %w", tick+1, err)
		}
		reply := <-h.runner.SubmitProcess(vecs, som.RequestLearn)
		if reply.Err != nil {
			return fmt.Errorf("train tick %d: %w", tick+1, reply.Err)
		}
		result.TrainTicks++
	}
	// The runner is idle between replies.
	result.Trained = h.cortex.Trained()
	return nil
}

func (h *Harness) steps(result *Result) error {
	for i, step := range h.scenario.Steps {
		var (
			event TraceEvent
			err   error
		)
		switch {
		case step.Process != nil:
			event, err = h.process(i, step, result)
		case step.Resolve != nil:
			event, err = h.resolve(i, step, result)
		}
		if err != nil {
			return err
		}
		result.Trace = append(result.Trace, event)
	}
	return nil
}

func (h *Harness) process(i int, step Step, result *Result) (TraceEvent, error) {
	req := som.RequestLearn
	if step.Process.Request != "" {
		var err error
		if req, err = som.ParseRequest(step.Process.Request); err != nil {
			return TraceEvent{}, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	vecs, err := h.inputs(step.Process.Inputs)
	if err != nil {
		return TraceEvent{}, fmt.Errorf("steps[%d]: %w", i, err)
	}

	reply := <-h.runner.SubmitProcess(vecs, req)
	event := TraceEvent{Seq: reply.Seq, Kind: KindProcess, Tick: reply.Tick, Request: req.String()}
	if reply.Err != nil {
		event.Error = ErrorCode(reply.Err)
	} else {
		h.last = reply.Outputs
		for _, o := range reply.Outputs {
			if o.Active {
				event.Active = append(event.Active, o.Name)
			}
		}
	}

	for _, msg := range checkProcess(step.Expect, reply) {
		result.AddError(fmt.Sprintf("steps[%d]: %s", i, msg))
	}
	return event, nil
}

func (h *Harness) resolve(i int, step Step, result *Result) (TraceEvent, error) {
	row, col, err := h.point(step.Resolve)
	if err != nil {
		return TraceEvent{}, fmt.Errorf("steps[%d]: %w", i, err)
	}

	reply := <-h.runner.SubmitResolve(row, col)
	event := TraceEvent{Seq: reply.Seq, Kind: KindResolve, Tick: reply.Tick}
	if reply.Err != nil {
		event.Error = ErrorCode(reply.Err)
	} else {
		event.Resolved = reply.Resolved
		for _, in := range reply.Resolution {
			event.Inputs = append(event.Inputs, TraceInput{
				Name:   in.Name,
				Active: in.Active,
				Steps:  len(in.TimeSteps),
			})
		}
	}

	for _, msg := range checkResolve(step.Expect, reply) {
		result.AddError(fmt.Sprintf("steps[%d]: %s", i, msg))
	}
	return event, nil
}

func (h *Harness) inputs(named map[string][]float64) ([]vector.Vector, error) {
	return OrderInputs(h.spec, named)
}

// OrderInputs arranges named channel vectors in the order Process expects
// them. Every declared input channel needs a vector; unknown names are
// rejected.
func OrderInputs(spec *ir.GraphSpec, named map[string][]float64) ([]vector.Vector, error) {
	out := make([]vector.Vector, len(spec.Inputs))
	known := make(map[string]bool, len(spec.Inputs))
	for i, in := range spec.Inputs {
		known[in.Name] = true
		vals, ok := named[in.Name]
		if !ok {
			return nil, fmt.Errorf("no vector for input channel %q", in.Name)
		}
		out[i] = vector.Of(vals...)
	}
	for name := range named {
		if !known[name] {
			return nil, fmt.Errorf("unknown input channel %q", name)
		}
	}
	return out, nil
}

func (h *Harness) point(r *ResolveStep) (int, int, error) {
	if r.AtOutput == "" {
		return *r.Row, *r.Col, nil
	}
	o, ok := h.last.Lookup(r.AtOutput)
	if !ok {
		return 0, 0, fmt.Errorf("at_output %q: no such output on the last process step", r.AtOutput)
	}
	if !o.Active {
		return 0, 0, fmt.Errorf("at_output %q: output was inactive on the last process step", r.AtOutput)
	}
	return o.GlobalRow(), o.GlobalCol(), nil
}

// checkRecorded compares the session log with the trace: every
// successful request must have been recorded under its seq.
func (h *Harness) checkRecorded(ctx context.Context, result *Result) error {
	events, err := h.store.ReplaySession(ctx, h.runner.SessionID())
	if err != nil {
		return fmt.Errorf("replay session: %w", err)
	}

	recorded := make(map[int64]store.EventKind, len(events))
	for _, e := range events {
		recorded[e.Seq] = e.Kind
	}
	if want := result.TrainTicks + countOK(result.Trace); len(events) != want {
		result.AddError(fmt.Sprintf("session log holds %d events, want %d", len(events), want))
	}
	for _, ev := range result.Trace {
		kind, ok := recorded[ev.Seq]
		switch {
		case ev.Error != "" && ok:
			result.AddError(fmt.Sprintf("seq %d failed but was recorded", ev.Seq))
		case ev.Error == "" && !ok:
			result.AddError(fmt.Sprintf("seq %d missing from session log", ev.Seq))
		case ok && string(kind) != recordedKind(ev.Kind):
			result.AddError(fmt.Sprintf("seq %d recorded as %s", ev.Seq, kind))
		}
	}
	return nil
}

func countOK(trace []TraceEvent) int {
	n := 0
	for _, ev := range trace {
		if ev.Error == "" {
			n++
		}
	}
	return n
}

func recordedKind(kind string) string {
	if kind == KindProcess {
		return string(store.EventTick)
	}
	return string(store.EventResolution)
}

// ErrorCode maps an engine error to its code, or "ERROR" for anything
// without one.
func ErrorCode(err error) string {
	var re *engine.RuntimeError
	switch {
	case errors.As(err, &re):
		return string(re.Code)
	case engine.IsDimensionError(err):
		return string(engine.ErrCodeDimensionMismatch)
	case errors.Is(err, engine.ErrStopped):
		return "STOPPED"
	case errors.Is(err, engine.ErrDestroyed):
		return "DESTROYED"
	default:
		return "ERROR"
	}
}
