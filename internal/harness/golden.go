package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/linkage/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to an IRObject for canonical
// JSON serialization.
func (s *TraceSnapshot) toCanonicalMap() ir.IRObject {
	trace := make(ir.IRArray, len(s.Trace))
	for i, ev := range s.Trace {
		m := ir.IRObject{
			"seq":     ir.IRInt(ev.Seq),
			"op":      ir.IRString(ev.Op),
			"type":    ir.IRString(ev.Type),
			"outcome": ir.IRString(ev.Outcome),
		}
		if ev.ID != "" {
			m["id"] = ir.IRString(ev.ID)
		}
		if ev.Relation != "" {
			m["relation"] = ir.IRString(ev.Relation)
		}
		if len(ev.Result) > 0 {
			m["result"] = ev.Result
		}
		trace[i] = m
	}
	return ir.IRObject{
		"scenario_name": ir.IRString(s.ScenarioName),
		"trace":         trace,
	}
}

// Canonical renders the snapshot of a result as canonical JSON, one
// trace event per line, so golden diffs stay readable.
func Canonical(name string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: name, Trace: result.Trace}
	obj := snapshot.toCanonicalMap()

	head, err := ir.MarshalCanonical(ir.IRObject{"scenario_name": obj["scenario_name"]})
	if err != nil {
		return nil, err
	}
	out := append([]byte{}, head...)
	out = append(out, '\n')
	for _, ev := range obj["trace"].(ir.IRArray) {
		line, err := ir.MarshalCanonical(ev)
		if err != nil {
			return nil, err
		}
		out = append(out, line...)
		out = append(out, '\n')
	}
	return out, nil
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Canonical(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
