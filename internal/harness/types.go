package harness

// StepResult is the observable effect of one step.
type StepResult struct {
	Action   string   `json:"action"`
	Label    string   `json:"label"`
	Seq      int64    `json:"seq"`
	Consumed []string `json:"consumed,omitempty"`
	Produced []string `json:"produced,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// QueryResult is the outcome of one query.
type QueryResult struct {
	Name   string   `json:"name"`
	Plan   string   `json:"plan,omitempty"`
	Count  int      `json:"count"`
	States []string `json:"states"`
	Error  string   `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	Steps   []StepResult  `json:"steps"`
	Queries []QueryResult `json:"queries"`

	// Errors contains failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Steps:   []StepResult{},
		Queries: []QueryResult{},
		Errors:  []string{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
