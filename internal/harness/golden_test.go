package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScenarioGoldens(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

func TestSnapshotOmitsEmptyFields(t *testing.T) {
	r := NewResult()
	r.Steps = append(r.Steps, StepResult{Action: ActionReserve, Label: "r1", Seq: 2})
	r.Queries = append(r.Queries, QueryResult{Name: "q", Plan: "status[UNCONSUMED] kinds[] softLocked=INCLUDE", States: []string{}})

	snap := r.Snapshot("s")
	step := snap["steps"].([]any)[0].(map[string]any)
	require.NotContains(t, step, "consumed")
	require.NotContains(t, step, "produced")
	require.NotContains(t, step, "error")

	q := snap["queries"].([]any)[0].(map[string]any)
	require.NotContains(t, q, "plan")
	require.Equal(t, []string{}, q["states"])
}
