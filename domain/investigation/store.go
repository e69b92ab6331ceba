package investigation

import (
	"sort"
	"strings"
	"sync"

	"sleuth/domain/core"
)

// DuplicateThreshold is the token-overlap ratio above which two hypothesis
// descriptions are collapsed into one at seed time.
const DuplicateThreshold = 0.8

// Store is the in-memory ranked collection of candidate root causes for one
// investigation. All mutation goes through the scheduler's single writer;
// the lock exists so Rank-style readers can run between applied updates.
type Store struct {
	mu     sync.RWMutex
	order  []core.HypothesisID
	byID   map[core.HypothesisID]*Hypothesis
	active map[core.HypothesisID]bool
}

// NewStore creates an empty hypothesis store
func NewStore() *Store {
	return &Store{
		byID:   make(map[core.HypothesisID]*Hypothesis),
		active: make(map[core.HypothesisID]bool),
	}
}

// Seed inserts the initial ranked set, collapsing near-duplicate descriptions
// into the candidate with the higher prior. Returns the number of hypotheses
// actually inserted.
func (s *Store) Seed(candidates []*Hypothesis) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, cand := range candidates {
		if cand == nil || strings.TrimSpace(cand.Description) == "" {
			continue
		}
		if cand.Status == "" {
			cand.Status = StatusPending
		}
		if cand.Support == 0 {
			cand.Support = cand.Prior
		}

		if dup := s.findDuplicateLocked(cand.Description); dup != nil {
			// Keep the stronger prior; fold in the better corroboration.
			if cand.Prior > dup.Prior {
				dup.Prior = cand.Prior
				dup.Support = cand.Prior
				dup.Description = cand.Description
			}
			if cand.Corroboration > dup.Corroboration {
				dup.Corroboration = cand.Corroboration
			}
			continue
		}

		s.byID[cand.ID] = cand
		s.order = append(s.order, cand.ID)
		inserted++
	}
	return inserted
}

// NextCandidate returns the highest-priority hypothesis eligible for probing
// and marks it ACTIVE, or nil when none remain. Ties break by higher
// historical corroboration, then lower estimated query cost.
func (s *Store) NextCandidate() *Hypothesis {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *Hypothesis
	for _, id := range s.order {
		h := s.byID[id]
		if h.Status.IsTerminal() || s.active[id] {
			continue
		}
		if best == nil || s.higherPriority(h, best) {
			best = h
		}
	}
	if best == nil {
		return nil
	}

	best.Status = StatusActive
	s.active[best.ID] = true
	return best
}

// Release returns an ACTIVE hypothesis to the eligible pool without changing
// its status beyond PENDING (used when a step is superseded or discarded).
func (s *Store) Release(id core.HypothesisID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
	if h, ok := s.byID[id]; ok && h.Status == StatusActive {
		h.Status = StatusPending
	}
}

// Update applies a status and support score to a hypothesis and releases its
// concurrency slot.
func (s *Store) Update(id core.HypothesisID, status HypothesisStatus, support float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.byID[id]
	if !ok {
		return core.ErrHypothesisNotFound
	}
	h.Status = status
	h.Support = support
	delete(s.active, id)
	return nil
}

// Get returns a hypothesis by id
func (s *Store) Get(id core.HypothesisID) (*Hypothesis, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.byID[id]
	return h, ok
}

// RecordStep appends a step id and bumps the retry count on failure
func (s *Store) RecordStep(id core.HypothesisID, stepID core.StepID, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.byID[id]
	if !ok {
		return
	}
	h.Steps = append(h.Steps, stepID)
	if failed {
		h.Retries++
	}
}

// All returns every hypothesis ordered by current support score descending
func (s *Store) All() []*Hypothesis {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Hypothesis, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Support != out[j].Support {
			return out[i].Support > out[j].Support
		}
		if out[i].Corroboration != out[j].Corroboration {
			return out[i].Corroboration > out[j].Corroboration
		}
		return out[i].EstimatedCost < out[j].EstimatedCost
	})
	return out
}

// HasCandidate reports whether any hypothesis is still eligible for probing
func (s *Store) HasCandidate() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		h := s.byID[id]
		if !h.Status.IsTerminal() && !s.active[id] {
			return true
		}
	}
	return false
}

// Len returns the number of stored hypotheses
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Store) higherPriority(a, b *Hypothesis) bool {
	if a.Support != b.Support {
		return a.Support > b.Support
	}
	if a.Corroboration != b.Corroboration {
		return a.Corroboration > b.Corroboration
	}
	return a.EstimatedCost < b.EstimatedCost
}

func (s *Store) findDuplicateLocked(description string) *Hypothesis {
	for _, id := range s.order {
		h := s.byID[id]
		if descriptionSimilarity(h.Description, description) >= DuplicateThreshold {
			return h
		}
	}
	return nil
}

// descriptionSimilarity computes token Jaccard overlap between two
// hypothesis descriptions, case-insensitive.
func descriptionSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if tok != "" {
			set[tok] = true
		}
	}
	return set
}
