package harness

// Trace event kinds.
const (
	KindProcess = "process"
	KindResolve = "resolve"
)

// TraceEvent records one scenario step. It is float-free so traces can be
// canonically encoded for golden comparison.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Kind string `json:"kind"`
	Tick int64  `json:"tick"`

	// Request is "learn" or "classify" for process steps.
	Request string `json:"request,omitempty"`

	// Active lists the active output channels after a process step.
	Active []string `json:"active,omitempty"`

	// Resolved and Inputs describe a resolve step.
	Resolved bool         `json:"resolved,omitempty"`
	Inputs   []TraceInput `json:"inputs,omitempty"`

	// Error is the error code of a failed step.
	Error string `json:"error,omitempty"`
}

// TraceInput summarizes one input channel of a resolution.
type TraceInput struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
	Steps  int    `json:"steps"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Scenario is the scenario name.
	Scenario string `json:"scenario"`

	// Pass is true if every expect clause matched.
	Pass bool `json:"pass"`

	// TrainTicks is the number of training ticks that ran.
	TrainTicks int `json:"train_ticks"`

	// Trained reports whether every section had finished learning when the
	// steps started.
	Trained bool `json:"trained"`

	// Trace holds one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result for the named scenario.
func NewResult(name string) *Result {
	return &Result{
		Scenario: name,
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
	}
}

// AddError records an expectation failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
