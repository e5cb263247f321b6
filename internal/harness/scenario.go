package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/codeaudit/corda/internal/criteria"
	"github.com/codeaudit/corda/internal/ledger"
)

// Step actions.
const (
	ActionFillCash   = "fill_cash"
	ActionFillDeals  = "fill_deals"
	ActionFillLinear = "fill_linear"
	ActionTrack      = "track"
	ActionIssue      = "issue"
	ActionConsume    = "consume"
	ActionEvolve     = "evolve"
	ActionReserve    = "reserve"
	ActionRelease    = "release"
)

// Scenario defines a vault test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Seed fixes transaction ids and linking ids. Defaults to Name.
	Seed string `yaml:"seed,omitempty"`

	// Kinds is a directory of CUE kind catalogues, relative to the
	// scenario file.
	Kinds string `yaml:"kinds,omitempty"`

	// Steps mutate the vault in order.
	Steps []Step `yaml:"steps"`

	// Queries run after all steps.
	Queries []Query `yaml:"queries"`
}

// Step is one vault mutation. Which fields apply depends on Action.
type Step struct {
	Action string `yaml:"action"`

	// As labels the step's outputs; defaults to "step<N>" (1-based).
	As string `yaml:"as,omitempty"`

	// fill_cash
	Total    int64        `yaml:"total,omitempty"`
	Currency string       `yaml:"currency,omitempty"`
	Issuer   ledger.Party `yaml:"issuer,omitempty"`
	Owner    ledger.Party `yaml:"owner,omitempty"`

	// fill_cash, fill_linear
	Count int `yaml:"count,omitempty"`

	// fill_deals
	Refs []string `yaml:"refs,omitempty"`

	// fill_linear
	ExternalID string `yaml:"external_id,omitempty"`

	// fill_deals, fill_linear, track
	Parties []ledger.Party `yaml:"parties,omitempty"`

	// issue: one object per output state
	Kind   ledger.Kind      `yaml:"kind,omitempty"`
	States []map[string]any `yaml:"states,omitempty"`

	// evolve: the next version's data
	Data string `yaml:"data,omitempty"`

	// consume, evolve, reserve, release: output labels such as "cash:0"
	Inputs []string `yaml:"inputs,omitempty"`

	// reserve, release
	Lock string `yaml:"lock,omitempty"`

	// ExpectError is the error code the step must fail with.
	ExpectError ledger.ErrorCode `yaml:"expect_error,omitempty"`
}

// Query is one query and its expectations.
type Query struct {
	Name string `yaml:"name"`

	// Exactly one of Criteria and StatesByKindAndStatus is set.
	Criteria              *criteria.Spec   `yaml:"criteria,omitempty"`
	StatesByKindAndStatus *KindStatusQuery `yaml:"states_by_kind_and_status,omitempty"`

	// ExpectCount is the exact number of results.
	ExpectCount *int `yaml:"expect_count,omitempty"`

	// ExpectStates lists the expected output labels in result order.
	ExpectStates []string `yaml:"expect_states,omitempty"`

	// SameAs names an earlier query that must return the same set.
	SameAs string `yaml:"same_as,omitempty"`

	// ExpectError is the error code the query must fail with.
	ExpectError ledger.ErrorCode `yaml:"expect_error,omitempty"`
}

// KindStatusQuery is the deprecated kind-and-status query.
type KindStatusQuery struct {
	Kinds             []ledger.Kind   `yaml:"kinds,omitempty"`
	Statuses          []ledger.Status `yaml:"statuses,omitempty"`
	IncludeSoftLocked bool            `yaml:"include_soft_locked"`
}

// LoadScenario reads and parses a scenario YAML file.
//
// Returns an error if the file cannot be read, contains invalid YAML,
// contains unknown fields (typos), or is missing required fields.
// A relative Kinds directory is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.Kinds != "" && !filepath.IsAbs(s.Kinds) {
		s.Kinds = filepath.Join(filepath.Dir(path), s.Kinds)
	}
	return s, nil
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "query:" vs "queries:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if scenario.Seed == "" {
		scenario.Seed = scenario.Name
	}
	for i := range scenario.Steps {
		if scenario.Steps[i].As == "" {
			scenario.Steps[i].As = fmt.Sprintf("step%d", i+1)
		}
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	labels := make(map[string]bool)
	for i, step := range s.Steps {
		switch step.Action {
		case ActionFillCash, ActionFillDeals, ActionFillLinear, ActionTrack, ActionIssue:
		case ActionConsume, ActionEvolve, ActionReserve, ActionRelease:
		default:
			return fmt.Errorf("steps[%d]: unknown action %q", i, step.Action)
		}
		if step.As != "" {
			if labels[step.As] {
				return fmt.Errorf("steps[%d]: duplicate label %q", i, step.As)
			}
			labels[step.As] = true
		}
		if (step.Action == ActionReserve || step.Action == ActionRelease) && step.Lock == "" {
			return fmt.Errorf("steps[%d]: %s requires lock", i, step.Action)
		}
		if step.Action == ActionEvolve && len(step.Inputs) != 1 {
			return fmt.Errorf("steps[%d]: evolve takes exactly one input", i)
		}
		if step.Action == ActionIssue && (step.Kind == "" || s.Kinds == "") {
			return fmt.Errorf("steps[%d]: issue requires kind and a scenario kinds directory", i)
		}
	}

	names := make(map[string]bool)
	for i, q := range s.Queries {
		if q.Name == "" {
			return fmt.Errorf("queries[%d]: name is required", i)
		}
		if names[q.Name] {
			return fmt.Errorf("queries[%d]: duplicate name %q", i, q.Name)
		}
		if (q.Criteria == nil) == (q.StatesByKindAndStatus == nil) {
			return fmt.Errorf("queries[%d]: exactly one of criteria, states_by_kind_and_status is required", i)
		}
		if q.SameAs != "" && !names[q.SameAs] {
			return fmt.Errorf("queries[%d]: same_as %q does not name an earlier query", i, q.SameAs)
		}
		names[q.Name] = true
	}
	return nil
}
