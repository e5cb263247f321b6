package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeaudit/corda/internal/criteria"
	"github.com/codeaudit/corda/internal/ledger"
)

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: basic
steps:
  - action: fill_cash
    total: 10
    currency: USD
    issuer: Bank
    owner: Alice
  - action: consume
    as: spend
    inputs: ["step1:0"]
queries:
  - name: cash
    criteria:
      vault: {kinds: [Cash], soft_locked: EXCLUDE}
    expect_count: 0
`))
	require.NoError(t, err)

	assert.Equal(t, "basic", s.Seed, "seed defaults to name")
	require.Len(t, s.Steps, 2)
	assert.Equal(t, "step1", s.Steps[0].As)
	assert.Equal(t, "spend", s.Steps[1].As)
	assert.Equal(t, ledger.Party("Alice"), s.Steps[0].Owner)

	require.Len(t, s.Queries, 1)
	q := s.Queries[0]
	require.NotNil(t, q.Criteria)
	require.NotNil(t, q.Criteria.Vault)
	assert.Equal(t, criteria.SoftLockExclude, q.Criteria.Vault.SoftLocked)
	require.NotNil(t, q.ExpectCount)
	assert.Equal(t, 0, *q.ExpectCount)
}

func TestParseScenarioErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", `steps: []`, "name is required"},
		{"unknown field", "name: x\nquery: []", "field query not found"},
		{"unknown action", "name: x\nsteps:\n  - action: mint", `unknown action "mint"`},
		{"duplicate label", "name: x\nsteps:\n  - {action: track, as: a}\n  - {action: track, as: a}", `duplicate label "a"`},
		{"reserve without lock", "name: x\nsteps:\n  - {action: reserve, inputs: ['a:0']}", "requires lock"},
		{"evolve two inputs", "name: x\nsteps:\n  - {action: evolve, inputs: ['a:0', 'b:0']}", "exactly one input"},
		{"issue without kinds", "name: x\nsteps:\n  - {action: issue, kind: Bond}", "kinds directory"},
		{"query without criteria", "name: x\nqueries:\n  - {name: q}", "exactly one of"},
		{"duplicate query", "name: x\nqueries:\n  - {name: q, criteria: {vault: {}}}\n  - {name: q, criteria: {vault: {}}}", `duplicate name "q"`},
		{"same_as forward", "name: x\nqueries:\n  - {name: q, criteria: {vault: {}}, same_as: r}\n  - {name: r, criteria: {vault: {}}}", "same_as"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenarioResolvesKindsDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: s\nkinds: catalogue\n"), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "catalogue"), s.Kinds)
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}
