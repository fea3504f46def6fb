// Package intqueue implements the integration queue: a fixed-depth,
// multi-slice temporal buffer that turns a stream of vectors into periodic
// composite vectors while preserving arrival order.
//
// Each enqueue lands in the current slice, then the current slice advances
// round-robin. A slice is a window over the last numSyms vectors it was
// given, filling from the end (index numSyms-1 holds the newest). The queue
// becomes ready the moment an enqueue fills a slice, and Dequeue returns the
// concatenation of that slice's window, oldest first.
//
// With numSlices > 1 a single integration point de-multiplexes several
// time-phased input bursts without buffering full composite vectors.
package intqueue

import (
	"errors"
	"fmt"

	"github.com/roach88/cortex/internal/vector"
)

// ErrNotReady is returned by Dequeue when no slice is ready.
var ErrNotReady = errors.New("integration queue not ready")

// ReadyRegressionError is returned when an enqueue would take the queue
// from ready back to not-ready. Once a slice has gone ready, every later
// slice must also go ready on its next enqueue.
type ReadyRegressionError struct {
	Slice int // slice that received the non-filling enqueue
	Top   int // window occupancy marker before the enqueue
}

// Error implements the error interface.
func (e *ReadyRegressionError) Error() string {
	return fmt.Sprintf("integration queue cannot go from ready to not ready (slice %d, top %d)", e.Slice, e.Top)
}

// Queue is an integration queue.
type Queue struct {
	numSyms   int
	numSlices int

	// slices[i][top[i]:] holds the occupied part of slice i's window.
	slices [][]vector.Vector
	top    []int

	current    int
	ready      bool
	readySlice int
}

// New creates an integration queue of numSyms temporal depth and numSlices
// phases. Both must be positive.
func New(numSyms, numSlices int) (*Queue, error) {
	if numSyms <= 0 {
		return nil, fmt.Errorf("intqueue: depth must be positive, got %d", numSyms)
	}
	if numSlices <= 0 {
		return nil, fmt.Errorf("intqueue: slice count must be positive, got %d", numSlices)
	}

	q := &Queue{
		numSyms:    numSyms,
		numSlices:  numSlices,
		slices:     make([][]vector.Vector, numSlices),
		top:        make([]int, numSlices),
		readySlice: -1,
	}
	for i := range q.slices {
		q.slices[i] = make([]vector.Vector, numSyms)
		q.top[i] = numSyms
	}
	return q, nil
}

// Enqueue inserts v as the newest element of the current slice and
// advances to the next slice. The queue takes ownership of v.
//
// If the slice was already full, its oldest element is dropped. If this
// enqueue filled (or kept full) the slice, the queue becomes ready with
// that slice. A non-filling enqueue while the queue is ready violates the
// ready invariant and returns *ReadyRegressionError; the vector is still
// stored and the slice still advances.
func (q *Queue) Enqueue(v vector.Vector) error {
	cur := q.current
	window := q.slices[cur]
	top := q.top[cur]

	var err error
	switch top {
	case 0:
		copy(window, window[1:])
		window[q.numSyms-1] = v
		q.ready = true
		q.readySlice = cur

	case 1:
		copy(window[top-1:], window[top:])
		window[q.numSyms-1] = v
		q.top[cur]--
		q.ready = true
		q.readySlice = cur

	default:
		copy(window[top-1:], window[top:])
		window[q.numSyms-1] = v
		q.top[cur]--
		if q.ready {
			err = &ReadyRegressionError{Slice: cur, Top: top}
		}
		q.ready = false
	}

	q.current = (q.current + 1) % q.numSlices
	return err
}

// Ready reports whether Dequeue can produce an abstraction.
func (q *Queue) Ready() bool {
	return q.ready
}

// ReadySlice returns the slice Dequeue reads from, or -1 before any slice
// has filled.
func (q *Queue) ReadySlice() int {
	return q.readySlice
}

// Current returns the slice the next enqueue lands in.
func (q *Queue) Current() int {
	return q.current
}

// Dequeue returns a freshly allocated concatenation of the ready slice's
// window in slot order. It is a read: the window is unaffected.
func (q *Queue) Dequeue() (vector.Vector, error) {
	if !q.ready {
		return nil, ErrNotReady
	}
	return vector.Abstract(q.slices[q.readySlice]...), nil
}

// Integrations returns how many vectors each abstraction integrates.
func (q *Queue) Integrations() int {
	return q.numSyms
}

// Slices returns the number of phases.
func (q *Queue) Slices() int {
	return q.numSlices
}

// Fill returns how many vectors slice i currently holds.
func (q *Queue) Fill(i int) int {
	return q.numSyms - q.top[i]
}
