package harness

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cortex/internal/engine"
	"github.com/roach88/cortex/internal/testutil"
	"github.com/roach88/cortex/internal/vector"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

// chainScenario targets testutil.ChainGraph, whose input channel is "in".
func chainScenario(steps ...Step) *Scenario {
	return &Scenario{Name: "chain", Description: "d", Graph: "unused", Seed: testutil.DefaultSeed, Steps: steps}
}

func process(req string, val ...float64) *ProcessStep {
	return &ProcessStep{Inputs: map[string][]float64{"in": val}, Request: req}
}

// =============================================================================
// Scenario files
// =============================================================================

func TestRun_ScenarioFiles(t *testing.T) {
	for _, name := range []string{"chain_recall", "diamond_merge"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_IsDeterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/diamond_merge.yaml")
	require.NoError(t, err)

	first, err := Run(context.Background(), s)
	require.NoError(t, err)
	second, err := Run(context.Background(), s)
	require.NoError(t, err)

	a, err := Snapshot(first)
	require.NoError(t, err)
	b, err := Snapshot(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRunAll(t *testing.T) {
	var scenarios []*Scenario
	for _, name := range []string{"chain_recall", "diamond_merge", "chain_recall"} {
		s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
		require.NoError(t, err)
		scenarios = append(scenarios, s)
	}

	results, err := RunAll(context.Background(), scenarios, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "chain_recall", results[0].Scenario)
	assert.Equal(t, "diamond_merge", results[1].Scenario)
	for _, r := range results {
		assert.True(t, r.Pass, "%s: %v", r.Scenario, r.Errors)
	}
}

func TestRunAll_ScenarioError(t *testing.T) {
	bad := &Scenario{Name: "bad", Graph: "testdata/graphs/missing.cue"}
	_, err := RunAll(context.Background(), []*Scenario{bad}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario bad")
}

// =============================================================================
// Steps against fixture graphs
// =============================================================================

func TestRunGraph_ExpectationsFail(t *testing.T) {
	s := chainScenario(
		Step{
			Process: process("learn", 0.5),
			Expect:  &Expect{OutputsActive: []string{"top"}, OutputsInactive: []string{"bottom"}},
		},
		Step{
			Resolve: &ResolveStep{Row: intPtr(100), Col: intPtr(100)},
			Expect:  &Expect{Resolved: boolPtr(true)},
		},
		Step{
			Process: process("learn", 0.5),
			Expect:  &Expect{Error: "DIMENSION_MISMATCH"},
		},
	)

	result, err := RunGraph(context.Background(), s, testutil.ChainGraph(1, 10))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "steps[0]: output top: expected active, got inactive")
	assert.Contains(t, result.Errors[1], "steps[0]: output bottom: expected inactive, got active")
	assert.Contains(t, result.Errors[2], "steps[1]: resolved: expected true, got false")
	assert.Contains(t, result.Errors[3], "steps[2]: error: expected DIMENSION_MISMATCH, got success")
}

func TestRunGraph_ResolveValues(t *testing.T) {
	s := chainScenario(
		Step{Process: process("classify", 0.5)},
		Step{
			Resolve: &ResolveStep{AtOutput: "bottom"},
			Expect: &Expect{Resolution: map[string]ChannelExpect{
				"in": {Active: boolPtr(true), Steps: intPtr(1), Values: [][]float64{{5}}, Tolerance: 0.5},
			}},
		},
	)

	result, err := RunGraph(context.Background(), s, testutil.ChainGraph(1, 10))
	require.NoError(t, err)
	require.Len(t, result.Errors, 1, "weights lie in [0,1], never near 5")
	assert.Contains(t, result.Errors[0], "resolution in step 0")
}

func TestRunGraph_Train(t *testing.T) {
	s := chainScenario(Step{Process: process("classify", 0.5)})
	s.Train = &TrainPlan{Ticks: 5, Stream: map[string][][]float64{"in": {{0.2}, {0.8}}}}

	result, err := RunGraph(context.Background(), s, testutil.ChainGraph(1, 2))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 5, result.TrainTicks)
	assert.True(t, result.Trained)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, int64(6), result.Trace[0].Seq)
	assert.Equal(t, int64(6), result.Trace[0].Tick)
}

func TestRunGraph_ScenarioErrors(t *testing.T) {
	tests := []struct {
		name    string
		step    Step
		wantMsg string
	}{
		{
			name:    "missing input channel",
			step:    Step{Process: &ProcessStep{Inputs: map[string][]float64{}}},
			wantMsg: `no vector for input channel "in"`,
		},
		{
			name:    "unknown input channel",
			step:    Step{Process: &ProcessStep{Inputs: map[string][]float64{"in": {1}, "extra": {1}}}},
			wantMsg: `unknown input channel "extra"`,
		},
		{
			name:    "at_output before any process",
			step:    Step{Resolve: &ResolveStep{AtOutput: "bottom"}},
			wantMsg: "no such output",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RunGraph(context.Background(), chainScenario(tt.step), testutil.ChainGraph(1, 10))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestRunGraph_AtInactiveOutput(t *testing.T) {
	// upper has not run yet, so "top" is inactive.
	s := chainScenario(
		Step{Process: process("learn", 0.5)},
		Step{Resolve: &ResolveStep{AtOutput: "top"}},
	)
	_, err := RunGraph(context.Background(), s, testutil.ChainGraph(1, 10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output was inactive")
}

func TestRunGraph_TrainFailure(t *testing.T) {
	s := chainScenario(Step{Process: process("learn", 0.5)})
	s.Train = &TrainPlan{Ticks: 1, Stream: map[string][][]float64{"in": {{0.1, 0.2}}}}

	_, err := RunGraph(context.Background(), s, testutil.ChainGraph(1, 10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "train tick 1")
	assert.True(t, engine.IsDimensionError(err))
}

func TestRunGraph_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := chainScenario(Step{Process: process("learn", 0.5)})
	_, err := RunGraph(ctx, s, testutil.ChainGraph(1, 10))
	assert.Error(t, err)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&engine.RuntimeError{Code: engine.ErrCodeResolveStalled}, "RESOLVE_STALLED"},
		{fmt.Errorf("wrapped: %w", &engine.RuntimeError{Code: engine.ErrCodeMissingFanIn}), "MISSING_FAN_IN"},
		{&vector.DimensionError{Want: 1, Got: 2}, "DIMENSION_MISMATCH"},
		{engine.ErrStopped, "STOPPED"},
		{engine.ErrDestroyed, "DESTROYED"},
		{errors.New("other"), "ERROR"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorCode(tt.err))
	}
}

func TestOrderInputs(t *testing.T) {
	spec := testutil.DiamondGraph(10)
	names := make([]string, len(spec.Inputs))
	named := make(map[string][]float64, len(spec.Inputs))
	for i, in := range spec.Inputs {
		names[i] = in.Name
		named[in.Name] = []float64{float64(i)}
	}

	vecs, err := OrderInputs(spec, named)
	require.NoError(t, err)
	require.Len(t, vecs, len(names))
	for i := range names {
		assert.Equal(t, vector.Of(float64(i)), vecs[i])
	}
}
