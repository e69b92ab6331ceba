package evidence

import (
	"math"
	"sort"

	"sleuth/domain/core"
)

// ScorerConfig exposes the saturation curve and stop threshold as tunable
// policy rather than a hard-coded formula.
type ScorerConfig struct {
	// Gain controls how quickly net support saturates toward 1.0.
	Gain float64
	// StopThreshold is the confidence at which the investigation stops.
	StopThreshold float64
}

// DefaultScorerConfig yields tanh saturation where three solid supporting
// items (net weight ~1.5) clear the 0.85 stop threshold.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		Gain:          1.0,
		StopThreshold: 0.85,
	}
}

// Scorer maps a hypothesis's accumulated evidence into a normalized
// confidence value and produces ranked explanations.
type Scorer struct {
	cfg ScorerConfig
}

// NewScorer creates a scorer with the given policy
func NewScorer(cfg ScorerConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// StopThreshold returns the configured stop threshold
func (s *Scorer) StopThreshold() float64 { return s.cfg.StopThreshold }

// Score aggregates a hypothesis's evidence: weighted SUPPORTING minus
// weighted REFUTING through a saturating tanh bounded to [0,1). NEUTRAL
// evidence is counted for audit but never scored. A hypothesis with zero
// evidence scores exactly 0.
func (s *Scorer) Score(hypID core.HypothesisID, evidence []Evidence) ConfidenceResult {
	result := ConfidenceResult{HypothesisID: hypID}

	for _, ev := range evidence {
		switch ev.Polarity {
		case Supporting:
			result.SupportingCount++
			result.SupportWeight += ev.Weight
			if result.FirstSupportAt.IsZero() || ev.ObservedAt.Before(result.FirstSupportAt) {
				result.FirstSupportAt = ev.ObservedAt
			}
		case Refuting:
			result.RefutingCount++
			result.RefuteWeight += ev.Weight
		case Neutral:
			result.NeutralCount++
		}
	}

	net := result.SupportWeight - result.RefuteWeight
	if net > 0 {
		result.Score = math.Tanh(s.cfg.Gain * net)
	}
	result.Level = LevelForScore(result.Score)
	return result
}

// Rank scores every hypothesis and orders the results descending by score.
// Ties break deterministically: more scored evidence first, then earliest
// supporting-evidence timestamp (favor faster-confirmed causes), then id.
func (s *Scorer) Rank(ids []core.HypothesisID, agg *Aggregator) []ConfidenceResult {
	results := make([]ConfidenceResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, s.Score(id, agg.Evidence(id)))
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ca := a.SupportingCount + a.RefutingCount
		cb := b.SupportingCount + b.RefutingCount
		if ca != cb {
			return ca > cb
		}
		switch {
		case a.FirstSupportAt.IsZero() && !b.FirstSupportAt.IsZero():
			return false
		case !a.FirstSupportAt.IsZero() && b.FirstSupportAt.IsZero():
			return true
		case !a.FirstSupportAt.IsZero() && !b.FirstSupportAt.IsZero() &&
			!a.FirstSupportAt.Time().Equal(b.FirstSupportAt.Time()):
			return a.FirstSupportAt.Before(b.FirstSupportAt)
		}
		return a.HypothesisID.String() < b.HypothesisID.String()
	})
	return results
}
