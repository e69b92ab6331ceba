package evidence

import (
	"math"
	"testing"
	"time"

	"sleuth/domain/core"
)

func supporting(weight float64, observedAt core.Timestamp) Evidence {
	return Evidence{
		ID:         core.EvidenceID(core.NewID()),
		FindingID:  core.FindingID(core.NewID()),
		Polarity:   Supporting,
		Weight:     weight,
		Provenance: FromLiveQuery,
		ObservedAt: observedAt,
	}
}

func refuting(weight float64) Evidence {
	return Evidence{
		ID:         core.EvidenceID(core.NewID()),
		FindingID:  core.FindingID(core.NewID()),
		Polarity:   Refuting,
		Weight:     weight,
		Provenance: FromLiveQuery,
		ObservedAt: core.Now(),
	}
}

// TestScoreZeroEvidence tests a hypothesis with no evidence scores exactly 0
func TestScoreZeroEvidence(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig())
	result := scorer.Score(core.HypothesisID(core.NewID()), nil)
	if result.Score != 0 {
		t.Errorf("expected exactly 0, got %f", result.Score)
	}
	if result.Level != LevelVeryLow {
		t.Errorf("expected very_low, got %s", result.Level)
	}
}

// TestScoreThreeSupportingClearsThreshold tests supporting weights
// 0.6+0.5+0.4 saturate past the 0.85 stop threshold
func TestScoreThreeSupportingClearsThreshold(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig())
	now := core.Now()
	ev := []Evidence{
		supporting(0.6, now),
		supporting(0.5, now),
		supporting(0.4, now),
	}

	result := scorer.Score(core.HypothesisID(core.NewID()), ev)
	want := math.Tanh(1.5)
	if math.Abs(result.Score-want) > 1e-9 {
		t.Errorf("expected tanh(1.5)=%f, got %f", want, result.Score)
	}
	if result.Score < scorer.StopThreshold() {
		t.Errorf("score %f should clear threshold %f", result.Score, scorer.StopThreshold())
	}
	if result.Level != LevelVeryHigh {
		t.Errorf("expected very_high, got %s", result.Level)
	}
}

// TestScoreMonotonicInSupport tests adding supporting evidence never lowers
// the score
func TestScoreMonotonicInSupport(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig())
	now := core.Now()
	id := core.HypothesisID(core.NewID())

	var ev []Evidence
	prev := 0.0
	for i := 0; i < 10; i++ {
		ev = append(ev, supporting(0.3, now))
		score := scorer.Score(id, ev).Score
		if score < prev {
			t.Fatalf("score decreased from %f to %f at item %d", prev, score, i+1)
		}
		prev = score
	}
	if prev >= 1.0 {
		t.Errorf("score must stay below 1.0, got %f", prev)
	}
}

// TestScoreRefutationDominates tests net-negative weight floors at 0
func TestScoreRefutationDominates(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig())
	ev := []Evidence{
		supporting(0.3, core.Now()),
		refuting(0.5),
		refuting(0.5),
	}
	result := scorer.Score(core.HypothesisID(core.NewID()), ev)
	if result.Score != 0 {
		t.Errorf("net-negative evidence should score 0, got %f", result.Score)
	}
	if result.RefutingCount != 2 || result.SupportingCount != 1 {
		t.Errorf("unexpected counts: %d supporting, %d refuting", result.SupportingCount, result.RefutingCount)
	}
}

// TestScoreNeutralIgnored tests neutral evidence is counted but unscored
func TestScoreNeutralIgnored(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig())
	ev := []Evidence{
		{Polarity: Neutral, Weight: 0},
		supporting(0.5, core.Now()),
	}
	result := scorer.Score(core.HypothesisID(core.NewID()), ev)
	want := math.Tanh(0.5)
	if math.Abs(result.Score-want) > 1e-9 {
		t.Errorf("expected %f, got %f", want, result.Score)
	}
	if result.NeutralCount != 1 {
		t.Errorf("expected 1 neutral item, got %d", result.NeutralCount)
	}
}

// TestRankOrdersByScore tests ranking is score-descending
func TestRankOrdersByScore(t *testing.T) {
	agg := NewAggregator(DefaultAggregatorConfig())
	scorer := NewScorer(DefaultScorerConfig())
	now := core.Now()

	weak := core.HypothesisID(core.NewID())
	strong := core.HypothesisID(core.NewID())

	low := testFinding(FindingPattern, SignificanceMedium)
	agg.Ingest(weak, []Finding{low}, FromLiveQuery, now)

	h1 := testFinding(FindingPattern, SignificanceHigh)
	h2 := testFinding(FindingPattern, SignificanceHigh)
	agg.Ingest(strong, []Finding{h1, h2}, FromLiveQuery, now)

	ranked := scorer.Rank([]core.HypothesisID{weak, strong}, agg)
	if len(ranked) != 2 {
		t.Fatalf("expected 2 results, got %d", len(ranked))
	}
	if ranked[0].HypothesisID != strong {
		t.Error("expected the stronger hypothesis first")
	}
}

// TestRankTieBreaksByFirstSupport tests equal scores favor the hypothesis
// supported earlier
func TestRankTieBreaksByFirstSupport(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig())
	agg := NewAggregator(DefaultAggregatorConfig())
	now := core.Now()
	earlier := core.NewTimestamp(now.Time().Add(-time.Hour))

	late := core.HypothesisID("b-late")
	early := core.HypothesisID("a-early")

	fLate := testFinding(FindingPattern, SignificanceHigh)
	fLate.ObservedAt = now
	fEarly := testFinding(FindingPattern, SignificanceHigh)
	fEarly.ObservedAt = earlier

	agg.Ingest(late, []Finding{fLate}, FromLiveQuery, now)
	agg.Ingest(early, []Finding{fEarly}, FromLiveQuery, now)

	ranked := scorer.Rank([]core.HypothesisID{late, early}, agg)
	if ranked[0].HypothesisID != early {
		t.Error("expected the earlier-supported hypothesis to rank first")
	}
}

// TestLevelForScore tests the score-to-label boundaries
func TestLevelForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  ConfidenceLevel
	}{
		{0.9, LevelVeryHigh},
		{0.85, LevelVeryHigh},
		{0.7, LevelHigh},
		{0.5, LevelMedium},
		{0.3, LevelLow},
		{0.1, LevelVeryLow},
	}
	for _, tt := range tests {
		if got := LevelForScore(tt.score); got != tt.want {
			t.Errorf("LevelForScore(%f) = %s, want %s", tt.score, got, tt.want)
		}
	}
}
