package harness

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step met its expectation.
	Pass bool `json:"pass"`

	// Trace has one line per step, in order, plus a final history line.
	// It is what golden files compare.
	Trace []string `json:"trace"`

	// Errors contains expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Entries is the history size after the last step.
	Entries int `json:"entries"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []string{},
		Errors: []string{},
	}
}

// AddError adds an expectation failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a trace line.
func (r *Result) AddTrace(line string) {
	r.Trace = append(r.Trace, line)
}
