package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cortex/internal/ir"
)

// GoldenDir is where golden traces live, relative to the test package.
const GoldenDir = "testdata/golden"

// Snapshot encodes a result as canonical JSON. Only float-free fields
// are included, so the bytes are stable across platforms.
func Snapshot(r *Result) ([]byte, error) {
	trace := make([]any, len(r.Trace))
	for i, ev := range r.Trace {
		m := map[string]any{
			"seq":  ev.Seq,
			"kind": ev.Kind,
			"tick": ev.Tick,
		}
		if ev.Request != "" {
			m["request"] = ev.Request
		}
		if ev.Error != "" {
			m["error"] = ev.Error
		}
		if ev.Kind == KindProcess && ev.Error == "" {
			active := make([]any, len(ev.Active))
			for j, name := range ev.Active {
				active[j] = name
			}
			m["active"] = active
		}
		if ev.Kind == KindResolve && ev.Error == "" {
			m["resolved"] = ev.Resolved
			inputs := make([]any, len(ev.Inputs))
			for j, in := range ev.Inputs {
				inputs[j] = map[string]any{
					"name":   in.Name,
					"active": in.Active,
					"steps":  in.Steps,
				}
			}
			m["inputs"] = inputs
		}
		trace[i] = m
	}

	return ir.MarshalCanonical(map[string]any{
		"scenario":    r.Scenario,
		"train_ticks": r.TrainTicks,
		"trained":     r.Trained,
		"trace":       trace,
	})
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(t.Context(), s)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, s.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, r *Result) error {
	t.Helper()

	data, err := Snapshot(r)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
