package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cortex/internal/som"
	"github.com/roach88/cortex/internal/store"
)

// Scenario is a scripted run of one graph.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Graph is the path of the CUE graph file, relative to the scenario.
	Graph string `yaml:"graph"`

	// Seed initializes the map weights.
	Seed uint64 `yaml:"seed"`

	// Train runs learn ticks before the steps. Optional.
	Train *TrainPlan `yaml:"train,omitempty"`

	// Steps run in order after training.
	Steps []Step `yaml:"steps"`
}

// TrainPlan feeds a repeating input stream to the graph.
type TrainPlan struct {
	// Ticks is the number of learn ticks to run.
	Ticks int `yaml:"ticks"`

	// Stream maps each input channel to the vectors it cycles through.
	// Tick i uses element i modulo the stream length.
	Stream map[string][][]float64 `yaml:"stream"`
}

// Validate checks that the plan runs at least one tick and that every
// channel has something to cycle through.
func (t *TrainPlan) Validate() error {
	if t.Ticks < 1 {
		return errors.New("ticks must be positive")
	}
	if len(t.Stream) == 0 {
		return errors.New("stream is required")
	}
	for ch, vecs := range t.Stream {
		if len(vecs) == 0 {
			return fmt.Errorf("stream.%s is empty", ch)
		}
	}
	return nil
}

// Frame returns the channel vectors for a zero-based tick.
func (t *TrainPlan) Frame(tick int) map[string][]float64 {
	frame := make(map[string][]float64, len(t.Stream))
	for ch, vecs := range t.Stream {
		frame[ch] = vecs[tick%len(vecs)]
	}
	return frame
}

// LoadTrainPlan reads a standalone training stream file:
//
//	ticks: 200
//	stream:
//	  sensor: [[0.1], [0.9]]
func LoadTrainPlan(path string) (*TrainPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stream file: %w", err)
	}
	var t TrainPlan
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&t); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stream file: %w", err)
	}
	return &t, nil
}

// Step is exactly one of a process or a resolve request.
type Step struct {
	Process *ProcessStep `yaml:"process,omitempty"`
	Resolve *ResolveStep `yaml:"resolve,omitempty"`
	Expect  *Expect      `yaml:"expect,omitempty"`
}

// ProcessStep runs one tick.
type ProcessStep struct {
	// Inputs maps every input channel to its vector.
	Inputs map[string][]float64 `yaml:"inputs"`

	// Request is "learn" (default) or "classify".
	Request string `yaml:"request,omitempty"`
}

// ResolveStep resolves a point of the global plane.
type ResolveStep struct {
	Row *int `yaml:"row,omitempty"`
	Col *int `yaml:"col,omitempty"`

	// AtOutput resolves at the coordinates the named output published on
	// the most recent successful process step.
	AtOutput string `yaml:"at_output,omitempty"`
}

// Expect checks a step's reply. Every field is optional.
type Expect struct {
	// Error is the expected error code; the step must fail with it.
	Error string `yaml:"error,omitempty"`

	// OutputsActive and OutputsInactive name output channels.
	OutputsActive   []string `yaml:"outputs_active,omitempty"`
	OutputsInactive []string `yaml:"outputs_inactive,omitempty"`

	// Resolved is the expected resolve success flag.
	Resolved *bool `yaml:"resolved,omitempty"`

	// Resolution checks individual input channels of a resolution.
	Resolution map[string]ChannelExpect `yaml:"resolution,omitempty"`
}

// ChannelExpect checks one input channel of a resolution.
type ChannelExpect struct {
	Active *bool `yaml:"active,omitempty"`

	// Steps is the expected number of time steps.
	Steps *int `yaml:"steps,omitempty"`

	// Values are compared element-wise against the time steps, most
	// recent first, within Tolerance.
	Values    [][]float64 `yaml:"values,omitempty"`
	Tolerance float64     `yaml:"tolerance,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file, resolving the graph
// path relative to the scenario's directory.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if s.Graph != "" && !filepath.IsAbs(s.Graph) {
		s.Graph = filepath.Join(filepath.Dir(path), s.Graph)
	}
	if _, err := os.Stat(s.Graph); err != nil {
		return nil, fmt.Errorf("invalid scenario: graph file: %w", err)
	}
	return s, nil
}

// ParseScenario decodes scenario YAML without touching the filesystem.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches typos like "step:" vs "steps:"
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Graph == "" {
		return fmt.Errorf("graph is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if _, err := store.SeedValue(s.Seed); err != nil {
		return err
	}

	if s.Train != nil {
		if err := s.Train.Validate(); err != nil {
			return fmt.Errorf("train.%w", err)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step *Step) error {
	switch {
	case step.Process != nil && step.Resolve != nil:
		return fmt.Errorf("steps[%d]: process and resolve are mutually exclusive", i)
	case step.Process != nil:
		if len(step.Process.Inputs) == 0 {
			return fmt.Errorf("steps[%d].process: inputs are required", i)
		}
		if step.Process.Request != "" {
			if _, err := som.ParseRequest(step.Process.Request); err != nil {
				return fmt.Errorf("steps[%d].process: %w", i, err)
			}
		}
	case step.Resolve != nil:
		r := step.Resolve
		byCoord := r.Row != nil || r.Col != nil
		if byCoord == (r.AtOutput != "") {
			return fmt.Errorf("steps[%d].resolve: give either row and col or at_output", i)
		}
		if byCoord && (r.Row == nil || r.Col == nil) {
			return fmt.Errorf("steps[%d].resolve: row and col go together", i)
		}
	default:
		return fmt.Errorf("steps[%d]: process or resolve is required", i)
	}

	if e := step.Expect; e != nil {
		if step.Process != nil && (e.Resolved != nil || len(e.Resolution) > 0) {
			return fmt.Errorf("steps[%d].expect: resolution checks on a process step", i)
		}
		if step.Resolve != nil && (len(e.OutputsActive) > 0 || len(e.OutputsInactive) > 0) {
			return fmt.Errorf("steps[%d].expect: output checks on a resolve step", i)
		}
		for ch, ce := range e.Resolution {
			if ce.Tolerance < 0 {
				return fmt.Errorf("steps[%d].expect.resolution.%s: tolerance must be non-negative", i, ch)
			}
		}
	}
	return nil
}
