package evidence

import (
	"math"
	"sync"
	"time"

	"sleuth/domain/core"
)

// AggregatorConfig holds the fixed mapping rules from findings to evidence
type AggregatorConfig struct {
	// HighWeight / MediumWeight apply to pattern findings by significance.
	HighWeight   float64
	MediumWeight float64
	// RefuteWeight is the fixed smaller weight for absence findings.
	RefuteWeight float64
	// HistoricalHalfLife controls recency decay of historical-memory
	// evidence so live findings dominate stale precedent.
	HistoricalHalfLife time.Duration
}

// DefaultAggregatorConfig mirrors the relevance weights used by the
// extraction rules: high-significance patterns 0.9, medium 0.7, absence 0.3.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		HighWeight:         0.9,
		MediumWeight:       0.7,
		RefuteWeight:       0.3,
		HistoricalHalfLife: 7 * 24 * time.Hour,
	}
}

// Aggregator converts structured findings into weighted, polarity-tagged
// evidence and folds them into per-hypothesis append-only sets. Re-ingesting
// a finding id already seen for a hypothesis is a no-op.
type Aggregator struct {
	mu     sync.RWMutex
	cfg    AggregatorConfig
	byHyp  map[core.HypothesisID][]Evidence
	seen   map[core.HypothesisID]map[core.FindingID]bool
	byFind map[core.FindingID]Finding
}

// NewAggregator creates an aggregator with the given rules
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	return &Aggregator{
		cfg:    cfg,
		byHyp:  make(map[core.HypothesisID][]Evidence),
		seen:   make(map[core.HypothesisID]map[core.FindingID]bool),
		byFind: make(map[core.FindingID]Finding),
	}
}

// Ingest maps findings for a hypothesis into evidence. Returns only the
// evidence created by this call; duplicates by finding id are skipped.
func (a *Aggregator) Ingest(hypID core.HypothesisID, findings []Finding, provenance Provenance, now core.Timestamp) []Evidence {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.seen[hypID] == nil {
		a.seen[hypID] = make(map[core.FindingID]bool)
	}

	var created []Evidence
	for _, f := range findings {
		if f.ID.String() == "" || a.seen[hypID][f.ID] {
			continue
		}
		a.seen[hypID][f.ID] = true
		a.byFind[f.ID] = f

		polarity, weight := a.classify(f)
		if provenance == FromHistoricalMemory {
			weight *= a.recencyFactor(f.ObservedAt, now)
		}

		ev := Evidence{
			ID:           core.EvidenceID(core.NewID()),
			HypothesisID: hypID,
			FindingID:    f.ID,
			Polarity:     polarity,
			Weight:       weight,
			Provenance:   provenance,
			ObservedAt:   f.ObservedAt,
			CreatedAt:    now,
		}
		a.byHyp[hypID] = append(a.byHyp[hypID], ev)
		created = append(created, ev)
	}
	return created
}

// Evidence returns the append-only evidence set for a hypothesis
func (a *Aggregator) Evidence(hypID core.HypothesisID) []Evidence {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Evidence, len(a.byHyp[hypID]))
	copy(out, a.byHyp[hypID])
	return out
}

// Finding resolves a finding referenced by evidence
func (a *Aggregator) Finding(id core.FindingID) (Finding, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	f, ok := a.byFind[id]
	return f, ok
}

// classify applies the fixed polarity/weight rules. Ambiguous findings are
// NEUTRAL with weight 0, recorded for audit but excluded from scoring.
func (a *Aggregator) classify(f Finding) (Polarity, float64) {
	switch f.Kind {
	case FindingErrorSpike:
		// Weight proportional to spike magnitude, already normalized.
		return Supporting, clamp01(f.Magnitude)
	case FindingAbsence:
		return Refuting, a.cfg.RefuteWeight
	case FindingPattern, FindingErrorSample, FindingCorrelation, FindingHistoricalMatch:
		switch f.Significance {
		case SignificanceHigh:
			return Supporting, a.cfg.HighWeight
		case SignificanceMedium:
			return Supporting, a.cfg.MediumWeight
		}
		return Neutral, 0
	}
	return Neutral, 0
}

// recencyFactor halves the weight of historical evidence per configured
// half-life elapsed since the observation.
func (a *Aggregator) recencyFactor(observed, now core.Timestamp) float64 {
	if observed.IsZero() || a.cfg.HistoricalHalfLife <= 0 {
		return 1
	}
	age := now.Sub(observed)
	if age <= 0 {
		return 1
	}
	return math.Pow(0.5, age.Hours()/a.cfg.HistoricalHalfLife.Hours())
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
