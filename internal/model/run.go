package model

import "time"

// Run is the aggregate that pipeline steps fill in for one collection.
// It plays the role of a scan report: each step reads what earlier steps
// produced and records its own outcome.
type Run struct {
	// ID is the database identifier once the run has been saved.
	ID int64 `json:"id,omitempty"`

	// Collection is a human-readable key for the collection, usually the stub.
	Collection string `json:"collection"`

	// Contract is the contract identifier used for marketplace links.
	Contract string `json:"contract,omitempty"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// Elapsed is the wall time of the whole run.
	Elapsed time.Duration `json:"elapsed"`

	// Tasks is the input of the fetch stage.
	Tasks []FetchTask `json:"-"`

	// Results is the output of the fetch stage.
	Results *ResultSet `json:"-"`

	// Records is the output of the normalize stage.
	Records []TraitRecord `json:"-"`

	// Table is the output of the rank stage.
	Table *RarityTable `json:"table,omitempty"`

	// Stats summarises each stage.
	Stats RunStats `json:"stats"`

	// TimedOut is set when the batch deadline cut the fetch stage short.
	TimedOut bool `json:"timed_out"`

	// Interrupted is set when the run was cancelled from outside.
	Interrupted bool `json:"interrupted,omitempty"`

	// PerformedSteps lists the steps that ran, in order.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// Error holds the last step error, if any.
	Error error `json:"-"`

	// ErrorMessage is the serializable form of Error.
	ErrorMessage string `json:"error,omitempty"`
}

// RunStats counts items through the stages of a run.
type RunStats struct {
	// Requested is the number of fetch tasks.
	Requested int `json:"requested"`

	// Fetched is the number of tasks that produced a payload.
	Fetched int `json:"fetched"`

	// Failures counts failed tasks by kind name.
	Failures map[string]int `json:"failures,omitempty"`

	// Normalized is the number of trait records produced.
	Normalized int `json:"normalized"`

	// Skipped is the number of payloads dropped as malformed.
	Skipped int `json:"skipped"`

	// Ranked is the number of rows in the table.
	Ranked int `json:"ranked"`
}

// NewRun creates a run for the given collection key.
func NewRun(collection string) *Run {
	return &Run{
		Collection: collection,
		StartedAt:  time.Now(),
		Stats: RunStats{
			Failures: make(map[string]int),
		},
	}
}

// NoAttributeData reports whether the run finished ranking with nothing to rank.
func (r *Run) NoAttributeData() bool {
	return r.Table != nil && r.Table.Empty()
}
