// Package vector provides the fixed-dimension real vectors that flow
// through the cortex graph.
//
// A Vector is owned by exactly one container at a time (a queue slot, a
// map cell, a pending view). Operations that combine two vectors require
// equal dimension and report a *DimensionError otherwise.
package vector

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
)

// Vector is a fixed-dimension tuple of reals.
type Vector []float64

// DimensionError reports an operation on vectors of unequal dimension.
type DimensionError struct {
	Op   string
	Want int
	Got  int
}

// Error implements the error interface.
func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: dimension mismatch (want %d, got %d)", e.Op, e.Want, e.Got)
}

// IsDimensionError returns true if err is or wraps a *DimensionError.
func IsDimensionError(err error) bool {
	var de *DimensionError
	return errors.As(err, &de)
}

// New returns a zero vector of the given dimension.
func New(dim int) Vector {
	return make(Vector, dim)
}

// Of returns a vector holding vals.
func Of(vals ...float64) Vector {
	v := make(Vector, len(vals))
	copy(v, vals)
	return v
}

// Dim returns the dimension of v.
func (v Vector) Dim() int {
	return len(v)
}

// Copy returns a copy of v in new memory.
func (v Vector) Copy() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// CopyFrom overwrites v with src.
func (v Vector) CopyFrom(src Vector) error {
	if len(v) != len(src) {
		return &DimensionError{Op: "copy", Want: len(v), Got: len(src)}
	}
	copy(v, src)
	return nil
}

// Equal reports whether a and b have the same dimension and elements.
func Equal(a, b Vector) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SquaredDist returns Σ(aᵢ-bᵢ)². It is the fast form used when only
// ordering matters. Panics if the dimensions differ.
func SquaredDist(a, b Vector) float64 {
	if len(a) != len(b) {
		panic(&DimensionError{Op: "squared dist", Want: len(a), Got: len(b)})
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Dist returns the Euclidean distance between a and b.
func Dist(a, b Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, &DimensionError{Op: "dist", Want: len(a), Got: len(b)}
	}
	return math.Sqrt(SquaredDist(a, b)), nil
}

// Interpolate moves dst toward target: dst = dst*(1-t) + target*t.
func Interpolate(dst, target Vector, t float64) error {
	if len(dst) != len(target) {
		return &DimensionError{Op: "interpolate", Want: len(dst), Got: len(target)}
	}
	for i := range dst {
		dst[i] = dst[i]*(1-t) + target[i]*t
	}
	return nil
}

// Add stores a+b into out. out may alias a or b.
func Add(out, a, b Vector) error {
	if len(a) != len(b) {
		return &DimensionError{Op: "add", Want: len(a), Got: len(b)}
	}
	if len(out) != len(a) {
		return &DimensionError{Op: "add", Want: len(a), Got: len(out)}
	}
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return nil
}

// Scale multiplies every element of v by s.
func Scale(v Vector, s float64) {
	for i := range v {
		v[i] *= s
	}
}

// Div divides every element of v by s.
func Div(v Vector, s float64) {
	for i := range v {
		v[i] /= s
	}
}

// Fill sets every element of v to x.
func Fill(v Vector, x float64) {
	for i := range v {
		v[i] = x
	}
}

// Zero clears v.
func Zero(v Vector) { Fill(v, 0) }

// Randomize fills v with uniform samples from [0, 1).
func Randomize(v Vector, rng *rand.Rand) {
	for i := range v {
		v[i] = rng.Float64()
	}
}

// Abstract concatenates vs into one vector. Order is significant: the same
// members in a different order produce a different vector.
func Abstract(vs ...Vector) Vector {
	n := 0
	for _, v := range vs {
		n += len(v)
	}
	out := make(Vector, 0, n)
	for _, v := range vs {
		out = append(out, v...)
	}
	return out
}

// Unabstract splits v into consecutive parts of the given dimensions.
// Every dimension must be positive and they must sum to Dim(v).
func Unabstract(v Vector, dims []int) ([]Vector, error) {
	total := 0
	for i, d := range dims {
		if d <= 0 {
			return nil, fmt.Errorf("unabstract: part %d has dimension %d", i, d)
		}
		total += d
	}
	if total != len(v) {
		return nil, &DimensionError{Op: "unabstract", Want: len(v), Got: total}
	}

	parts := make([]Vector, len(dims))
	off := 0
	for i, d := range dims {
		parts[i] = v[off : off+d : off+d].Copy()
		off += d
	}
	return parts, nil
}

// Mean returns the elementwise mean of vs. All vectors must share a
// dimension.
func Mean(vs ...Vector) (Vector, error) {
	if len(vs) == 0 {
		return nil, errors.New("mean: no vectors")
	}
	out := New(len(vs[0]))
	for _, v := range vs {
		if err := Add(out, out, v); err != nil {
			return nil, fmt.Errorf("mean: %w", err)
		}
	}
	Div(out, float64(len(vs)))
	return out, nil
}

// String formats v as "[a b c]" with four decimals.
func (v Vector) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%.4f", x)
	}
	b.WriteByte(']')
	return b.String()
}
