package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// MaxSeed is the largest map seed a session row can hold; seeds are
// stored as signed SQLite integers.
const MaxSeed = math.MaxInt64

// ErrSeedRange reports a seed above MaxSeed.
var ErrSeedRange = errors.New("seed must be at most 9223372036854775807")

// SeedValue returns the stored form of a map seed.
func SeedValue(seed uint64) (int64, error) {
	if seed > MaxSeed {
		return 0, fmt.Errorf("seed %d: %w", seed, ErrSeedRange)
	}
	return int64(seed), nil
}

// Session identifies one run of a built graph.
type Session struct {
	ID            string `json:"id"`
	GraphName     string `json:"graph_name"`
	GraphHash     string `json:"graph_hash"`
	Seed          int64  `json:"seed"`
	EngineVersion string `json:"engine_version"`
	IRVersion     string `json:"ir_version"`
}

// TickRecord is the stored form of one Process call.
type TickRecord struct {
	ID        string         `json:"id"` // ir.TickID(SessionID, Tick)
	SessionID string         `json:"session_id"`
	Seq       int64          `json:"seq"`
	Tick      int64          `json:"tick"`
	Request   string         `json:"request"`
	Outputs   []OutputRecord `json:"outputs"`
}

// OutputRecord is one output channel of a tick.
type OutputRecord struct {
	ID     int       `json:"id"`
	Name   string    `json:"name"`
	Active bool      `json:"active"`
	Vector []float64 `json:"vector,omitempty"`
}

// ResolutionRecord is the stored form of one Resolve call.
type ResolutionRecord struct {
	SessionID string        `json:"session_id"`
	Seq       int64         `json:"seq"`
	Tick      int64         `json:"tick"` // ticks completed when the resolve ran
	Row       int           `json:"row"`
	Col       int           `json:"col"`
	Resolved  bool          `json:"resolved"`
	Inputs    []InputRecord `json:"inputs"`
}

// InputRecord is one input channel of a resolution. TimeSteps[0] is the
// most recent step.
type InputRecord struct {
	ID        int         `json:"id"`
	Name      string      `json:"name"`
	Active    bool        `json:"active"`
	TimeSteps [][]float64 `json:"time_steps,omitempty"`
}

// Output and input tables hold floats, which the canonical IR encoding
// rejects, so they are stored as plain JSON text.

func marshalOutputs(outs []OutputRecord) (string, error) {
	if outs == nil {
		outs = []OutputRecord{}
	}
	data, err := json.Marshal(outs)
	if err != nil {
		return "", fmt.Errorf("marshal outputs: %w", err)
	}
	return string(data), nil
}

func unmarshalOutputs(data string) ([]OutputRecord, error) {
	outs := []OutputRecord{}
	if data == "" {
		return outs, nil
	}
	if err := json.Unmarshal([]byte(data), &outs); err != nil {
		return nil, fmt.Errorf("unmarshal outputs: %w", err)
	}
	return outs, nil
}

func marshalInputs(ins []InputRecord) (string, error) {
	if ins == nil {
		ins = []InputRecord{}
	}
	data, err := json.Marshal(ins)
	if err != nil {
		return "", fmt.Errorf("marshal inputs: %w", err)
	}
	return string(data), nil
}

func unmarshalInputs(data string) ([]InputRecord, error) {
	ins := []InputRecord{}
	if data == "" {
		return ins, nil
	}
	if err := json.Unmarshal([]byte(data), &ins); err != nil {
		return nil, fmt.Errorf("unmarshal inputs: %w", err)
	}
	return ins, nil
}
