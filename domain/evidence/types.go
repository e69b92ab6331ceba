package evidence

import (
	"sleuth/domain/core"
)

// FindingKind classifies a structured observation
type FindingKind string

const (
	FindingErrorSpike      FindingKind = "error_spike"
	FindingPattern         FindingKind = "pattern"
	FindingErrorSample     FindingKind = "error_sample"
	FindingCorrelation     FindingKind = "correlation"
	FindingAbsence         FindingKind = "absence"
	FindingHistoricalMatch FindingKind = "historical_match"
)

// Significance grades how strongly a finding bears on its hypothesis
type Significance string

const (
	SignificanceHigh   Significance = "high"
	SignificanceMedium Significance = "medium"
	SignificanceLow    Significance = "low"
)

// Finding is a structured observation extracted from a step's results.
// Immutable; referenced by one or more evidence items.
type Finding struct {
	ID            core.FindingID `json:"id"`
	StepID        core.StepID    `json:"step_id"`
	Kind          FindingKind    `json:"kind"`
	Field         string         `json:"field,omitempty"`
	Pattern       string         `json:"pattern,omitempty"`
	Count         int            `json:"count,omitempty"`
	Magnitude     float64        `json:"magnitude,omitempty"`
	Significance  Significance   `json:"significance"`
	MatchesIntent bool           `json:"matches_intent"`
	Service       core.ServiceID `json:"service,omitempty"`
	Summary       string         `json:"summary"`
	ObservedAt    core.Timestamp `json:"observed_at"`
}

// Polarity tags evidence as for, against, or irrelevant to a hypothesis
type Polarity string

const (
	Supporting Polarity = "SUPPORTING"
	Refuting   Polarity = "REFUTING"
	Neutral    Polarity = "NEUTRAL"
)

// Provenance records where evidence came from
type Provenance string

const (
	FromLiveQuery        Provenance = "live_query"
	FromHistoricalMemory Provenance = "historical_memory"
)

// Evidence is the atomic scoring unit derived from a finding.
// Append-only per hypothesis; never mutated after creation.
type Evidence struct {
	ID           core.EvidenceID   `json:"id"`
	HypothesisID core.HypothesisID `json:"hypothesis_id"`
	FindingID    core.FindingID    `json:"finding_id"`
	Polarity     Polarity          `json:"polarity"`
	Weight       float64           `json:"weight"`
	Provenance   Provenance        `json:"provenance"`
	ObservedAt   core.Timestamp    `json:"observed_at"`
	CreatedAt    core.Timestamp    `json:"created_at"`
}

// ConfidenceLevel is the coarse label reported alongside the score
type ConfidenceLevel string

const (
	LevelVeryHigh ConfidenceLevel = "very_high"
	LevelHigh     ConfidenceLevel = "high"
	LevelMedium   ConfidenceLevel = "medium"
	LevelLow      ConfidenceLevel = "low"
	LevelVeryLow  ConfidenceLevel = "very_low"
)

// LevelForScore maps a normalized score to its label
func LevelForScore(score float64) ConfidenceLevel {
	switch {
	case score >= 0.85:
		return LevelVeryHigh
	case score >= 0.7:
		return LevelHigh
	case score >= 0.5:
		return LevelMedium
	case score >= 0.3:
		return LevelLow
	default:
		return LevelVeryLow
	}
}

// ConfidenceResult is the scored verdict for one hypothesis. Recomputed each
// iteration from the full evidence set; only the latest value is retained.
type ConfidenceResult struct {
	HypothesisID    core.HypothesisID `json:"hypothesis_id"`
	Score           float64           `json:"score"`
	Level           ConfidenceLevel   `json:"level"`
	SupportingCount int               `json:"supporting_count"`
	RefutingCount   int               `json:"refuting_count"`
	NeutralCount    int               `json:"neutral_count"`
	SupportWeight   float64           `json:"support_weight"`
	RefuteWeight    float64           `json:"refute_weight"`
	// FirstSupportAt is the earliest supporting-evidence timestamp,
	// used as the final ranking tie-break.
	FirstSupportAt core.Timestamp `json:"first_support_at,omitempty"`
}
