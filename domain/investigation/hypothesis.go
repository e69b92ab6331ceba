package investigation

import (
	"sleuth/domain/core"
)

// HypothesisStatus tracks the per-hypothesis verdict
type HypothesisStatus string

const (
	StatusPending      HypothesisStatus = "PENDING"
	StatusActive       HypothesisStatus = "ACTIVE"
	StatusSupported    HypothesisStatus = "SUPPORTED"
	StatusRefuted      HypothesisStatus = "REFUTED"
	StatusInconclusive HypothesisStatus = "INCONCLUSIVE"
)

// IsTerminal reports whether the hypothesis can no longer be probed
func (s HypothesisStatus) IsTerminal() bool {
	return s == StatusSupported || s == StatusRefuted || s == StatusInconclusive
}

// Hypothesis is one candidate root cause. Created in batch at seed time,
// never deleted, only marked terminal.
type Hypothesis struct {
	ID          core.HypothesisID `json:"id"`
	Description string            `json:"description"`
	Prior       float64           `json:"prior"`
	Support     float64           `json:"support"`
	Status      HypothesisStatus  `json:"status"`
	Steps       []core.StepID     `json:"steps"`
	Retries     int               `json:"retries"`
	// Corroboration is the historical-memory similarity boost folded into
	// the prior, kept separately as a tie-break signal.
	Corroboration float64 `json:"corroboration"`
	// EstimatedCost is the relative cost of probing this hypothesis,
	// derived from its suggested query scope.
	EstimatedCost float64 `json:"estimated_cost"`
	// Service scopes the hypothesis to a catalog service when known.
	Service core.ServiceID `json:"service,omitempty"`
	// QueryHint is an optional query template from the generator.
	QueryHint string `json:"query_hint,omitempty"`
}

// NewHypothesis creates a pending hypothesis with the given prior
func NewHypothesis(description string, prior float64) *Hypothesis {
	return &Hypothesis{
		ID:          core.HypothesisID(core.NewID()),
		Description: description,
		Prior:       prior,
		Status:      StatusPending,
	}
}

// StepOutcome records how a single probe attempt ended
type StepOutcome string

const (
	OutcomeSuccess  StepOutcome = "SUCCESS"
	OutcomeFailed   StepOutcome = "FAILED"
	OutcomeTimedOut StepOutcome = "TIMED_OUT"
)

// QueryPlan is an opaque query plus the window it must run against
type QueryPlan struct {
	QueryText string          `json:"query_text"`
	Window    core.TimeWindow `json:"window"`
	MaxRows   int             `json:"max_rows"`
}

// Step is one query-execute-analyze cycle for a hypothesis. Immutable once
// its outcome is recorded.
type Step struct {
	ID           core.StepID       `json:"id"`
	HypothesisID core.HypothesisID `json:"hypothesis_id"`
	Plan         QueryPlan         `json:"plan"`
	Attempt      int               `json:"attempt"`
	Outcome      StepOutcome       `json:"outcome"`
	ResultRef    string            `json:"result_ref,omitempty"`
	FindingIDs   []core.FindingID  `json:"finding_ids,omitempty"`
	Error        string            `json:"error,omitempty"`
	StartedAt    core.Timestamp    `json:"started_at"`
	FinishedAt   core.Timestamp    `json:"finished_at"`
}
