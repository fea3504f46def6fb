package engine

import (
	"fmt"

	"github.com/roach88/cortex/internal/vector"
)

// ViewPoint is one observer's reconstruction of a node's history: index 0
// is the most recent time step.
type ViewPoint []vector.Vector

// waveFront is the per-node resolution state.
type waveFront struct {
	active   bool
	needed   int
	observed int
	views    []ViewPoint
}

// waveTable holds one waveFront per node, indexed like Cortex.nodes. It is
// scratch space owned by the Cortex and reset after every resolve.
type waveTable struct {
	fronts []waveFront
	guard  *ExpansionGuard
}

func newWaveTable(n int) *waveTable {
	return &waveTable{
		fronts: make([]waveFront, n),
		guard:  NewExpansionGuard(),
	}
}

// reset discards every view and count.
func (w *waveTable) reset() {
	for i := range w.fronts {
		w.fronts[i] = waveFront{}
	}
	w.guard.Clear()
}

// push appends a view to a node's front, activating it.
func (w *waveTable) push(node int, view ViewPoint) {
	f := &w.fronts[node]
	f.views = append(f.views, view)
	f.active = true
	f.observed++
}

// CentroidJoin merges views by per-time-step averaging. For each time
// index t up to the longest view, the result holds the elementwise mean of
// the vectors at t across the views that reach t. Every vector in every
// view must share one dimension.
func CentroidJoin(views []ViewPoint) (ViewPoint, error) {
	if len(views) == 0 {
		return nil, fmt.Errorf("centroid join: no views")
	}

	dim := -1
	longest := 0
	for i, v := range views {
		longest = max(longest, len(v))
		for t, vec := range v {
			if dim < 0 {
				dim = vec.Dim()
			} else if vec.Dim() != dim {
				return nil, &vector.DimensionError{
					Op:   fmt.Sprintf("centroid join (view %d, step %d)", i, t),
					Want: dim,
					Got:  vec.Dim(),
				}
			}
		}
	}

	merged := make(ViewPoint, longest)
	for t := 0; t < longest; t++ {
		sum := vector.New(dim)
		count := 0
		for _, v := range views {
			if t >= len(v) {
				continue
			}
			_ = vector.Add(sum, sum, v[t])
			count++
		}
		vector.Div(sum, float64(count))
		merged[t] = sum
	}
	return merged, nil
}
