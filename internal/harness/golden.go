package harness

import (
	"context"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/codeaudit/corda/internal/ledger"
)

// Snapshot is the deterministic part of a Result. State references appear
// as output labels; transaction ids, linking ids and query plans are left
// out since they are content hashes.
func (r *Result) Snapshot(name string) map[string]any {
	steps := make([]any, len(r.Steps))
	for i, s := range r.Steps {
		m := map[string]any{
			"action": s.Action,
			"label":  s.Label,
			"seq":    s.Seq,
		}
		if len(s.Consumed) > 0 {
			m["consumed"] = s.Consumed
		}
		if len(s.Produced) > 0 {
			m["produced"] = s.Produced
		}
		if s.Error != "" {
			m["error"] = s.Error
		}
		steps[i] = m
	}

	queries := make([]any, len(r.Queries))
	for i, q := range r.Queries {
		m := map[string]any{
			"name":   q.Name,
			"count":  q.Count,
			"states": q.States,
		}
		if q.Error != "" {
			m["error"] = q.Error
		}
		queries[i] = m
	}

	return map[string]any{
		"scenario": name,
		"steps":    steps,
		"queries":  queries,
	}
}

// Golden returns the canonical JSON encoding of the snapshot.
func (r *Result) Golden(name string) ([]byte, error) {
	data, err := ledger.MarshalCanonical(r.Snapshot(name))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Failed scenario expectations are reported through t before the golden
// comparison.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return err
	}
	for _, e := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, e)
	}

	data, err := result.Golden(scenario.Name)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}
