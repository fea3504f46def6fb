// Package som implements the vector map: a 2-D grid of fixed-dimension
// vectors trained by competitive learning (a self-organizing map).
//
// A Map starts in Learning mode. Each learn request pulls a neighborhood of
// cells around the best match toward the input; the neighborhood shrinks
// exponentially so that it is about half a cell wide at the final training
// iteration. Once the iteration counter reaches the training budget the
// map switches to Classifying mode, permanently.
package som

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/roach88/cortex/internal/vector"
)

// Mode is the training state of a map.
type Mode int

const (
	// Learning maps adapt their cells on learn requests.
	Learning Mode = iota
	// Classifying maps only report best matches.
	Classifying
)

func (m Mode) String() string {
	switch m {
	case Learning:
		return "learning"
	case Classifying:
		return "classifying"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Request selects what Learn does with its input.
type Request int

const (
	// RequestLearn trains the map (while in Learning mode).
	RequestLearn Request = iota
	// RequestClassify only computes the best match.
	RequestClassify
)

func (r Request) String() string {
	switch r {
	case RequestLearn:
		return "learn"
	case RequestClassify:
		return "classify"
	default:
		return fmt.Sprintf("Request(%d)", int(r))
	}
}

// ParseRequest maps "learn" and "classify" to a Request.
func ParseRequest(s string) (Request, error) {
	switch s {
	case "learn", "":
		return RequestLearn, nil
	case "classify":
		return RequestClassify, nil
	default:
		return 0, fmt.Errorf("unknown request %q (want learn or classify)", s)
	}
}

// Method selects the best-match policy.
type Method int

const (
	// MethodCentroid returns the mean coordinate of all tied winners.
	// Incorrect when the winners form disjoint or concave clusters.
	MethodCentroid Method = iota
	// MethodFixed returns a single winner; ties are broken uniformly at
	// random while learning and by first encounter while classifying.
	MethodFixed
)

// tieTolerance is the squared-distance window within which two cells are
// considered equally good matches.
const tieTolerance = 1e-15

// minRadius bounds the neighborhood radius away from zero.
const minRadius = 1e-15

// RadiusFunc computes the initial neighborhood radius of a rows x cols map.
type RadiusFunc func(rows, cols int) float64

// DefaultRadius is half the longer side of the grid.
func DefaultRadius(rows, cols int) float64 {
	return float64(max(rows, cols)) / 2
}

// Desc describes a map.
type Desc struct {
	Dim        int
	TrainIters int
	Rows       int
	Cols       int

	// Radius computes the initial neighborhood radius. Nil means
	// DefaultRadius.
	Radius RadiusFunc

	// Method is the best-match policy used by Learn.
	Method Method
}

// Match is a grid coordinate.
type Match struct {
	Row int
	Col int
}

// Map is a self-organizing vector map.
type Map struct {
	desc  Desc
	cells []vector.Vector
	rng   *rand.Rand

	mode          Mode
	iter          int
	initialRadius float64
	halfLife      float64
	last          Match
}

// New creates a map with every cell randomized from rng.
func New(d Desc, rng *rand.Rand) (*Map, error) {
	if d.Dim <= 0 {
		return nil, fmt.Errorf("som: dimension must be positive, got %d", d.Dim)
	}
	if d.Rows <= 0 || d.Cols <= 0 {
		return nil, fmt.Errorf("som: grid must be non-empty, got %dx%d", d.Rows, d.Cols)
	}
	if d.TrainIters < 2 {
		return nil, fmt.Errorf("som: training iterations must be 2 or more, got %d", d.TrainIters)
	}
	if rng == nil {
		return nil, fmt.Errorf("som: nil random source")
	}

	m := &Map{
		desc:  d,
		cells: make([]vector.Vector, d.Rows*d.Cols),
		rng:   rng,
		mode:  Learning,
	}
	for i := range m.cells {
		m.cells[i] = vector.New(d.Dim)
		vector.Randomize(m.cells[i], rng)
	}

	radius := d.Radius
	if radius == nil {
		radius = DefaultRadius
	}
	m.initialRadius = radius(d.Rows, d.Cols)
	if !(m.initialRadius > 0) {
		return nil, fmt.Errorf("som: initial radius must be positive, got %g", m.initialRadius)
	}
	m.halfLife = -(math.Ln2 * float64(d.TrainIters)) / math.Log(0.5/m.initialRadius)

	return m, nil
}

// Dim returns the cell dimension.
func (m *Map) Dim() int { return m.desc.Dim }

// Rows returns the grid height.
func (m *Map) Rows() int { return m.desc.Rows }

// Cols returns the grid width.
func (m *Map) Cols() int { return m.desc.Cols }

// Mode returns the current mode.
func (m *Map) Mode() Mode { return m.mode }

// Iteration returns how many learn steps have been applied.
func (m *Map) Iteration() int { return m.iter }

// TrainIters returns the training budget.
func (m *Map) TrainIters() int { return m.desc.TrainIters }

// InitialRadius returns the starting neighborhood radius.
func (m *Map) InitialRadius() float64 { return m.initialRadius }

// HalfLife returns the neighborhood decay half-life in iterations.
func (m *Map) HalfLife() float64 { return m.halfLife }

// LastMatch returns the best match computed by the most recent Learn.
func (m *Map) LastMatch() Match { return m.last }

// Cell returns the vector stored at (row, col). The returned vector is
// owned by the map.
func (m *Map) Cell(row, col int) vector.Vector {
	return m.cells[row*m.desc.Cols+col]
}

// Radius returns the neighborhood radius used at the current iteration.
func (m *Map) Radius() float64 {
	r := m.initialRadius * math.Pow(2, -float64(m.iter)/m.halfLife)
	if math.Abs(r) < minRadius {
		r = minRadius
	}
	return r
}

// BestMatch returns the cell nearest input under the given policy.
func (m *Map) BestMatch(input vector.Vector, method Method) (Match, error) {
	if input.Dim() != m.desc.Dim {
		return Match{}, &vector.DimensionError{Op: "best match", Want: m.desc.Dim, Got: input.Dim()}
	}
	switch method {
	case MethodFixed:
		return m.bestMatchFixed(input), nil
	case MethodCentroid:
		return m.bestMatchCentroid(input), nil
	default:
		return Match{}, fmt.Errorf("som: unknown best-match method %d", method)
	}
}

func (m *Map) bestMatchFixed(input vector.Vector) Match {
	best := math.MaxFloat64
	var out Match
	matches := 0

	for r := 0; r < m.desc.Rows; r++ {
		for c := 0; c < m.desc.Cols; c++ {
			d := vector.SquaredDist(m.Cell(r, c), input)
			switch {
			case math.Abs(d-best) < tieTolerance:
				if m.mode == Classifying {
					// First-encountered winner keeps classification repeatable.
					matches++
					continue
				}
				// Reservoir sampling: the k-th tied cell wins with probability 1/k.
				if m.rng.IntN(matches) == 0 {
					out = Match{Row: r, Col: c}
				}
				matches++
			case d < best:
				best = d
				out = Match{Row: r, Col: c}
				matches = 2
			}
		}
	}
	return out
}

func (m *Map) bestMatchCentroid(input vector.Vector) Match {
	best := math.MaxFloat64
	var sumRow, sumCol float64
	matches := 0

	for r := 0; r < m.desc.Rows; r++ {
		for c := 0; c < m.desc.Cols; c++ {
			d := vector.SquaredDist(m.Cell(r, c), input)
			switch {
			case math.Abs(d-best) < tieTolerance:
				sumRow += float64(r)
				sumCol += float64(c)
				matches++
			case d < best:
				best = d
				sumRow, sumCol = float64(r), float64(c)
				matches = 1
			}
		}
	}
	return Match{
		Row: int(sumRow / float64(matches)),
		Col: int(sumCol / float64(matches)),
	}
}

// Learn computes the best match for input and, for a learn request while
// the training budget remains, trains the neighborhood around it.
//
// Once the iteration counter reaches the budget the map is Classifying and
// no further training happens regardless of request. A classify request
// never changes cells or the iteration counter.
func (m *Map) Learn(input vector.Vector, req Request) (Match, error) {
	match, err := m.BestMatch(input, m.desc.Method)
	if err != nil {
		return Match{}, err
	}
	m.last = match

	if m.iter >= m.desc.TrainIters {
		m.mode = Classifying
		return match, nil
	}
	if req == RequestClassify {
		return match, nil
	}

	delta := 1.0 / float64(m.desc.TrainIters-1)
	t := float64(m.iter) * delta
	rad := m.Radius()

	srow := max(int(float64(match.Row)-rad), 0)
	scol := max(int(float64(match.Col)-rad), 0)
	erow := min(int(float64(match.Row)+rad), m.desc.Rows-1)
	ecol := min(int(float64(match.Col)+rad), m.desc.Cols-1)

	for i := srow; i <= erow; i++ {
		for j := scol; j <= ecol; j++ {
			di := float64(i - match.Row)
			dj := float64(j - match.Col)
			dist := math.Sqrt(di*di+dj*dj) / rad

			g := math.Exp(-(dist * dist) / 0.15)
			l := g / (t*4 + 1)

			// Dimensions were checked by BestMatch.
			_ = vector.Interpolate(m.Cell(i, j), input, l)
		}
	}

	m.iter++
	if m.iter >= m.desc.TrainIters {
		m.mode = Classifying
	}
	return match, nil
}

// QualityMap returns, for every cell in row-major order, the mean distance
// to the other cells within radius grid steps, normalized so the largest
// value is 1. Well-organized regions have low values; cluster boundaries
// show up as ridges.
func (m *Map) QualityMap(radius int) []float64 {
	if radius <= 0 {
		radius = DefaultQualityRadius
	}
	q := make([]float64, len(m.cells))
	var maxDist float64

	for row := 0; row < m.desc.Rows; row++ {
		for col := 0; col < m.desc.Cols; col++ {
			srow := max(row-radius, 0)
			scol := max(col-radius, 0)
			erow := min(row+radius, m.desc.Rows-1)
			ecol := min(col+radius, m.desc.Cols-1)

			center := m.Cell(row, col)
			var sum float64
			count := 0
			for r := srow; r <= erow; r++ {
				for c := scol; c <= ecol; c++ {
					if r == row && c == col {
						continue
					}
					sum += math.Sqrt(vector.SquaredDist(m.Cell(r, c), center))
					count++
				}
			}
			if count > 0 {
				sum /= float64(count)
			}
			maxDist = max(maxDist, sum)
			q[row*m.desc.Cols+col] = sum
		}
	}

	if maxDist > 0 {
		for i := range q {
			q[i] /= maxDist
		}
	}
	return q
}

// DefaultQualityRadius is the neighborhood used by QualityMap when the
// caller passes a non-positive radius.
const DefaultQualityRadius = 4
