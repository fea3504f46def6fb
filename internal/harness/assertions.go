package harness

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/roach88/cortex/internal/engine"
)

// AssertionError describes one failed expectation.
type AssertionError struct {
	Check    string // what was checked, e.g. "output top"
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Check, e.Expected, e.Actual)
}

// checkError handles the error half of an expectation. It reports
// whether the remaining checks should run.
func checkError(e *Expect, err error) ([]string, bool) {
	want := ""
	if e != nil {
		want = e.Error
	}
	switch {
	case err == nil && want == "":
		return nil, true
	case err == nil:
		return []string{(&AssertionError{Check: "error", Expected: want, Actual: "success"}).Error()}, false
	case want == "":
		return []string{(&AssertionError{Check: "error", Expected: "success", Actual: err.Error()}).Error()}, false
	}
	if got := ErrorCode(err); got != want {
		return []string{(&AssertionError{Check: "error", Expected: want, Actual: got}).Error()}, false
	}
	return nil, false
}

func checkProcess(e *Expect, reply engine.Reply) []string {
	errs, more := checkError(e, reply.Err)
	if !more || e == nil {
		return errs
	}

	for _, name := range e.OutputsActive {
		errs = append(errs, checkOutput(reply.Outputs, name, true)...)
	}
	for _, name := range e.OutputsInactive {
		errs = append(errs, checkOutput(reply.Outputs, name, false)...)
	}
	return errs
}

func checkOutput(table engine.OutputTable, name string, active bool) []string {
	o, ok := table.Lookup(name)
	if !ok {
		return []string{(&AssertionError{Check: "output " + name, Expected: "declared", Actual: "not found"}).Error()}
	}
	if o.Active != active {
		return []string{(&AssertionError{
			Check:    "output " + name,
			Expected: activeWord(active),
			Actual:   activeWord(o.Active),
		}).Error()}
	}
	return nil
}

func checkResolve(e *Expect, reply engine.Reply) []string {
	errs, more := checkError(e, reply.Err)
	if !more || e == nil {
		return errs
	}

	if e.Resolved != nil && *e.Resolved != reply.Resolved {
		errs = append(errs, (&AssertionError{
			Check:    "resolved",
			Expected: fmt.Sprint(*e.Resolved),
			Actual:   fmt.Sprint(reply.Resolved),
		}).Error())
	}

	for _, name := range sortedKeys(e.Resolution) {
		errs = append(errs, checkChannel(reply.Resolution, name, e.Resolution[name])...)
	}
	return errs
}

func checkChannel(table engine.ResolutionTable, name string, ce ChannelExpect) []string {
	check := "resolution " + name
	in, ok := table.Lookup(name)
	if !ok {
		return []string{(&AssertionError{Check: check, Expected: "an input channel", Actual: "not found"}).Error()}
	}

	var errs []string
	if ce.Active != nil && *ce.Active != in.Active {
		errs = append(errs, (&AssertionError{
			Check:    check,
			Expected: activeWord(*ce.Active),
			Actual:   activeWord(in.Active),
		}).Error())
	}
	if ce.Steps != nil && *ce.Steps != len(in.TimeSteps) {
		errs = append(errs, (&AssertionError{
			Check:    check + " steps",
			Expected: fmt.Sprint(*ce.Steps),
			Actual:   fmt.Sprint(len(in.TimeSteps)),
		}).Error())
	}
	if ce.Values == nil {
		return errs
	}

	if len(ce.Values) != len(in.TimeSteps) {
		return append(errs, (&AssertionError{
			Check:    check + " values",
			Expected: fmt.Sprintf("%d steps", len(ce.Values)),
			Actual:   fmt.Sprintf("%d steps", len(in.TimeSteps)),
		}).Error())
	}
	for i, want := range ce.Values {
		got := in.TimeSteps[i]
		if len(want) != len(got) {
			errs = append(errs, (&AssertionError{
				Check:    fmt.Sprintf("%s step %d", check, i),
				Expected: fmt.Sprintf("dim %d", len(want)),
				Actual:   fmt.Sprintf("dim %d", len(got)),
			}).Error())
			continue
		}
		for j := range want {
			if math.Abs(want[j]-got[j]) > ce.Tolerance {
				errs = append(errs, (&AssertionError{
					Check:    fmt.Sprintf("%s step %d", check, i),
					Expected: fmt.Sprintf("%v within %v", want, ce.Tolerance),
					Actual:   formatFloats(got),
				}).Error())
				break
			}
		}
	}
	return errs
}

func activeWord(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

func formatFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.4g", x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func sortedKeys(m map[string]ChannelExpect) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
