package investigation

import (
	"time"

	"sleuth/domain/core"
	"sleuth/domain/evidence"
)

// State tracks the lifecycle of one investigation
type State string

const (
	StateIntentExtracted   State = "INTENT_EXTRACTED"
	StateHypothesesSeeded  State = "HYPOTHESES_SEEDED"
	StateInvestigating     State = "INVESTIGATING"
	StateEvidenceFinalized State = "EVIDENCE_FINALIZED"
	StateAnswerComposed    State = "ANSWER_COMPOSED"
	StateCompleted         State = "COMPLETED"
	StateFailed            State = "FAILED"
	StateTimedOut          State = "TIMED_OUT"
)

// IsTerminal reports whether no further transitions are allowed
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

// validTransitions encodes the state machine edges
var validTransitions = map[State][]State{
	StateIntentExtracted:   {StateHypothesesSeeded, StateFailed},
	StateHypothesesSeeded:  {StateInvestigating, StateFailed},
	StateInvestigating:     {StateEvidenceFinalized, StateFailed},
	StateEvidenceFinalized: {StateAnswerComposed},
	StateAnswerComposed:    {StateCompleted, StateTimedOut},
}

// CanTransition reports whether s -> next is a legal edge
func (s State) CanTransition(next State) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Budget bounds one investigation by step count and wall clock
type Budget struct {
	MaxSteps int           `json:"max_steps"`
	MaxWall  time.Duration `json:"max_wall"`
}

// Intent is the structured reading of the user's question
type Intent struct {
	Question        string           `json:"question"`
	Services        []core.ServiceID `json:"services"`
	Indexes         []string         `json:"indexes"`
	Entities        []string         `json:"entities"`
	SymptomKeywords []string         `json:"symptom_keywords"`
	QueryPatterns   []string         `json:"query_patterns"`
	Window          core.TimeWindow  `json:"window"`
}

// FinalAnswer is the composed conclusion of an investigation
type FinalAnswer struct {
	RootCause       string                    `json:"root_cause"`
	Explanation     string                    `json:"explanation"`
	ExplanationHTML string                    `json:"explanation_html,omitempty"`
	Citations       []string                  `json:"citations,omitempty"`
	Confidence      float64                   `json:"confidence"`
	ConfidenceLevel evidence.ConfidenceLevel  `json:"confidence_level"`
	LowConfidence   bool                      `json:"low_confidence"`
	Insufficient    bool                      `json:"insufficient_evidence"`
	Breakdown       evidence.ConfidenceResult `json:"breakdown"`
}

// Investigation owns one end-to-end lifecycle. Owned exclusively by the
// orchestrator; never shared between requests.
type Investigation struct {
	ID        core.InvestigationID `json:"id"`
	Question  string               `json:"question"`
	Intent    Intent               `json:"intent"`
	State     State                `json:"state"`
	Budget    Budget               `json:"budget"`
	StepsUsed int                  `json:"steps_used"`
	Deadline  core.Timestamp       `json:"deadline"`
	CreatedAt core.Timestamp       `json:"created_at"`
	UpdatedAt core.Timestamp       `json:"updated_at"`
	Answer    *FinalAnswer         `json:"answer,omitempty"`
	FailCode  string               `json:"fail_code,omitempty"`
	FailMsg   string               `json:"fail_msg,omitempty"`
}

// New creates an investigation in its initial state
func New(question string, intent Intent, budget Budget) *Investigation {
	now := core.Now()
	return &Investigation{
		ID:        core.InvestigationID(core.NewID()),
		Question:  question,
		Intent:    intent,
		State:     StateIntentExtracted,
		Budget:    budget,
		Deadline:  core.NewTimestamp(now.Time().Add(budget.MaxWall)),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the investigation to the next state
func (inv *Investigation) Transition(next State) error {
	if inv.State.IsTerminal() {
		return core.ErrAlreadyTerminal
	}
	if !inv.State.CanTransition(next) {
		return core.ErrInvalidTransition
	}
	inv.State = next
	inv.UpdatedAt = core.Now()
	return nil
}

// BudgetExhausted reports whether either budget dimension is spent
func (inv *Investigation) BudgetExhausted(now core.Timestamp) bool {
	return inv.StepsUsed >= inv.Budget.MaxSteps || now.After(inv.Deadline)
}

// StepsRemaining returns how many steps may still be dispatched
func (inv *Investigation) StepsRemaining() int {
	remaining := inv.Budget.MaxSteps - inv.StepsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
