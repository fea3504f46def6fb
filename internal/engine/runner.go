package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/cortex/internal/ir"
	"github.com/roach88/cortex/internal/som"
	"github.com/roach88/cortex/internal/store"
	"github.com/roach88/cortex/internal/vector"
)

// Recorder persists the history of a session. *store.Store implements it.
type Recorder interface {
	WriteTick(ctx context.Context, rec store.TickRecord) error
	WriteResolution(ctx context.Context, rec store.ResolutionRecord) error
}

// Reply is the result of one submitted request.
type Reply struct {
	// Seq is the Runner sequence number assigned to the request.
	Seq int64

	// Tick is the Cortex tick after the request ran.
	Tick int64

	// Outputs is set for process requests.
	Outputs OutputTable

	// Resolution and Resolved are set for resolve requests.
	Resolution ResolutionTable
	Resolved   bool

	Err error
}

// Runner serializes access to one Cortex.
//
// Any goroutine may submit work; exactly one goroutine calls Run, which
// executes requests in FIFO order and records each result.
//
// Thread-safety model:
//   - SubmitProcess, SubmitResolve, Stop: safe from any goroutine
//   - Run: must be called from exactly one goroutine
type Runner struct {
	cortex    *Cortex
	queue     *requestQueue
	rec       Recorder
	sessionID string
	seq       *Clock
}

// NewRunner creates a Runner for c. rec may be nil, in which case nothing
// is recorded.
func NewRunner(c *Cortex, rec Recorder, sessionID string) *Runner {
	return &Runner{
		cortex:    c,
		queue:     newRequestQueue(),
		rec:       rec,
		sessionID: sessionID,
		seq:       NewClock(),
	}
}

// SessionID returns the id results are recorded under.
func (r *Runner) SessionID() string {
	return r.sessionID
}

// SubmitProcess queues one forward tick. The returned channel receives
// exactly one Reply.
func (r *Runner) SubmitProcess(inputs []vector.Vector, req som.Request) <-chan Reply {
	return r.submit(request{typ: RequestTypeProcess, inputs: inputs, mode: req})
}

// SubmitResolve queues one resolve of the global grid point (row, col).
// The returned channel receives exactly one Reply.
func (r *Runner) SubmitResolve(row, col int) <-chan Reply {
	return r.submit(request{typ: RequestTypeResolve, row: row, col: col})
}

func (r *Runner) submit(req request) <-chan Reply {
	req.reply = make(chan Reply, 1)
	if !r.queue.Enqueue(req) {
		req.reply <- Reply{Err: ErrStopped}
	}
	return req.reply
}

// Run executes queued requests until ctx is cancelled or Stop is called.
// Requests still pending at that point are answered with ErrStopped.
//
// A failing request is reported through its Reply and logged; the loop
// keeps going.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("runner starting", "session", r.sessionID)
	defer r.failPending()

	for {
		req, ok := r.queue.TryDequeue()
		if ok {
			reply := r.handle(ctx, req)
			if reply.Err != nil {
				slog.Error("request failed",
					"session", r.sessionID,
					"seq", reply.Seq,
					"type", int(req.typ),
					"error", reply.Err,
				)
			}
			req.reply <- reply
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("runner stopping: context cancelled", "session", r.sessionID)
			r.queue.Close()
			return ctx.Err()

		case <-r.queue.Wait():
			if r.queue.Closed() && r.queue.Len() == 0 {
				slog.Info("runner stopping: queue closed", "session", r.sessionID)
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once the queue is empty.
func (r *Runner) Stop() {
	r.queue.Close()
}

func (r *Runner) failPending() {
	for _, req := range r.queue.Drain() {
		req.reply <- Reply{Err: ErrStopped}
	}
}

func (r *Runner) handle(ctx context.Context, req request) Reply {
	seq := r.seq.Next()
	switch req.typ {
	case RequestTypeProcess:
		out, err := r.cortex.Process(req.inputs, req.mode)
		reply := Reply{Seq: seq, Tick: r.cortex.Tick(), Outputs: out, Err: err}
		if err == nil && r.rec != nil {
			rec, err := NewTickRecord(r.sessionID, seq, reply.Tick, req.mode, out)
			if err == nil {
				err = r.rec.WriteTick(ctx, rec)
			}
			if err != nil {
				reply.Err = fmt.Errorf("record tick %d: %w", reply.Tick, err)
			}
		}
		return reply

	case RequestTypeResolve:
		table, resolved, err := r.cortex.Resolve(req.row, req.col)
		reply := Reply{Seq: seq, Tick: r.cortex.Tick(), Resolution: table, Resolved: resolved, Err: err}
		if err == nil && r.rec != nil {
			rec := NewResolutionRecord(r.sessionID, seq, reply.Tick, req.row, req.col, resolved, table)
			if err := r.rec.WriteResolution(ctx, rec); err != nil {
				reply.Err = fmt.Errorf("record resolution at (%d,%d): %w", req.row, req.col, err)
			}
		}
		return reply

	default:
		return Reply{Seq: seq, Err: fmt.Errorf("unknown request type %d", req.typ)}
	}
}

// NewTickRecord converts a Process result into its stored form.
func NewTickRecord(sessionID string, seq, tick int64, req som.Request, out OutputTable) (store.TickRecord, error) {
	id, err := ir.TickID(sessionID, tick)
	if err != nil {
		return store.TickRecord{}, err
	}
	rec := store.TickRecord{
		ID:        id,
		SessionID: sessionID,
		Seq:       seq,
		Tick:      tick,
		Request:   req.String(),
		Outputs:   make([]store.OutputRecord, len(out)),
	}
	for i, o := range out {
		rec.Outputs[i] = store.OutputRecord{
			ID:     o.ID,
			Name:   o.Name,
			Active: o.Active,
			Vector: floats(o.Vector),
		}
	}
	return rec, nil
}

// NewResolutionRecord converts a Resolve result into its stored form.
func NewResolutionRecord(sessionID string, seq, tick int64, row, col int, resolved bool, table ResolutionTable) store.ResolutionRecord {
	rec := store.ResolutionRecord{
		SessionID: sessionID,
		Seq:       seq,
		Tick:      tick,
		Row:       row,
		Col:       col,
		Resolved:  resolved,
		Inputs:    make([]store.InputRecord, len(table)),
	}
	for i, in := range table {
		steps := make([][]float64, len(in.TimeSteps))
		for k, v := range in.TimeSteps {
			steps[k] = floats(v)
		}
		rec.Inputs[i] = store.InputRecord{
			ID:        in.ID,
			Name:      in.Name,
			Active:    in.Active,
			TimeSteps: steps,
		}
	}
	return rec
}

func floats(v vector.Vector) []float64 {
	if v == nil {
		return nil
	}
	return append([]float64(nil), v...)
}
