package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sleuth/domain/catalog"
	"sleuth/domain/core"
	"sleuth/domain/evidence"
	"sleuth/domain/investigation"
	"sleuth/internal/config"
	"sleuth/internal/errors"
	"sleuth/internal/logging"
	"sleuth/internal/scheduler"
	"sleuth/ports"
)

// InvestigationService owns the end-to-end lifecycle of one question: intent
// extraction, hypothesis seeding, budgeted probing, evidence finalization,
// and answer composition. Each call to Investigate builds its own store,
// aggregator, and scheduler; nothing is shared between requests.
type InvestigationService struct {
	intent    ports.IntentExtractorPort
	generator ports.HypothesisGeneratorPort
	planner   ports.QueryPlannerPort
	executor  ports.QueryExecutorPort
	analyzer  ports.AnalyzerPort
	composer  ports.AnswerComposerPort
	memory    ports.MemoryPort
	catalog   *catalog.Catalog
	cfg       config.InvestigationConfig
	log       *logging.Logger
}

// NewInvestigationService wires the orchestrator from its ports
func NewInvestigationService(
	intent ports.IntentExtractorPort,
	generator ports.HypothesisGeneratorPort,
	planner ports.QueryPlannerPort,
	executor ports.QueryExecutorPort,
	analyzer ports.AnalyzerPort,
	composer ports.AnswerComposerPort,
	memory ports.MemoryPort,
	cat *catalog.Catalog,
	cfg config.InvestigationConfig,
	log *logging.Logger,
) *InvestigationService {
	return &InvestigationService{
		intent:    intent,
		generator: generator,
		planner:   planner,
		executor:  executor,
		analyzer:  analyzer,
		composer:  composer,
		memory:    memory,
		catalog:   cat,
		cfg:       cfg,
		log:       log,
	}
}

// Result carries the finished investigation plus the material the API and
// report layers render from.
type Result struct {
	Investigation *investigation.Investigation
	Hypotheses    []*investigation.Hypothesis
	Ranked        []evidence.ConfidenceResult
	Steps         []investigation.Step
	Findings      []evidence.Finding
}

// Investigate runs one question through the full state machine. It always
// returns a Result with a terminal investigation; the error mirrors
// inv.FailCode for callers that branch on failure.
func (s *InvestigationService) Investigate(ctx context.Context, question, window string) (*Result, error) {
	intent, err := s.intent.Extract(ctx, question, window)
	if err != nil {
		inv := investigation.New(question, investigation.Intent{Question: question}, s.budget())
		return s.fail(inv, nil, nil, err)
	}

	inv := investigation.New(question, intent, s.budget())
	s.log.Info("investigation %s started: %q (window %s)", inv.ID, question, intent.Window)

	agg := evidence.NewAggregator(s.aggregatorConfig())
	scorer := evidence.NewScorer(evidence.ScorerConfig{
		Gain:          s.cfg.SaturationGain,
		StopThreshold: s.cfg.StopThreshold,
	})
	store := investigation.NewStore()

	if err := s.checkServiceMatch(intent); err != nil {
		return s.fail(inv, store, agg, err)
	}

	historical := s.searchMemory(ctx, question)

	seeds, err := s.generator.Generate(ctx, ports.GenerationContext{Intent: intent, Historical: historical})
	if err != nil {
		return s.fail(inv, store, agg, errors.Wrap(err, "hypothesis generation failed"))
	}

	hyps := s.seedHypotheses(seeds, historical)
	if store.Seed(hyps) == 0 {
		return s.fail(inv, store, agg, core.ErrNoHypotheses)
	}
	if err := inv.Transition(investigation.StateHypothesesSeeded); err != nil {
		return s.fail(inv, store, agg, err)
	}
	s.ingestHistoricalEvidence(store, agg, historical)

	if err := inv.Transition(investigation.StateInvestigating); err != nil {
		return s.fail(inv, store, agg, err)
	}

	sched := scheduler.New(s.planner, s.executor, s.analyzer, agg, scorer, scheduler.Config{
		RetryMax:     s.cfg.RetryMax,
		Concurrency:  int64(s.cfg.Concurrency),
		QueryTimeout: s.cfg.QueryTimeout,
		BackoffBase:  s.cfg.BackoffBase,
		GraceWindow:  s.cfg.GraceWindow,
	}, s.log)

	steps, reason := sched.Run(ctx, inv, store)
	s.log.Info("investigation %s probing done: %d step(s), exit=%s", inv.ID, len(steps), reason)

	if reason != scheduler.ExitThreshold {
		steps = append(steps, s.probeUpstream(ctx, inv, store, agg, scorer, sched)...)
	}

	if err := inv.Transition(investigation.StateEvidenceFinalized); err != nil {
		return s.fail(inv, store, agg, err)
	}

	ranked := scorer.Rank(hypothesisIDs(store), agg)
	answer := s.composeAnswer(ctx, inv, store, agg, ranked)
	inv.Answer = answer
	if err := inv.Transition(investigation.StateAnswerComposed); err != nil {
		return s.fail(inv, store, agg, err)
	}

	// Budget exhaustion without a confident answer is the timeout path,
	// whichever budget dimension ran out first.
	final := investigation.StateCompleted
	confident := answer != nil && !answer.LowConfidence
	if !confident && (reason == scheduler.ExitBudget || inv.BudgetExhausted(core.Now())) {
		final = investigation.StateTimedOut
	}
	if err := inv.Transition(final); err != nil {
		return s.fail(inv, store, agg, err)
	}

	s.storeMemory(ctx, inv, agg, ranked)

	return &Result{
		Investigation: inv,
		Hypotheses:    store.All(),
		Ranked:        ranked,
		Steps:         steps,
		Findings:      collectFindings(store, agg),
	}, nil
}

func (s *InvestigationService) budget() investigation.Budget {
	return investigation.Budget{MaxSteps: s.cfg.MaxSteps, MaxWall: s.cfg.MaxWall}
}

func (s *InvestigationService) aggregatorConfig() evidence.AggregatorConfig {
	cfg := evidence.DefaultAggregatorConfig()
	if s.cfg.HistoricalHalfLife > 0 {
		cfg.HistoricalHalfLife = s.cfg.HistoricalHalfLife
	}
	return cfg
}

// checkServiceMatch fails fast when the question names nothing the catalog
// can ground a query in. The error message lists what is available so the
// user can rephrase.
func (s *InvestigationService) checkServiceMatch(intent investigation.Intent) error {
	if len(intent.Services) > 0 || len(intent.Indexes) > 0 || len(intent.Entities) > 0 {
		return nil
	}
	if s.catalog.Len() == 0 {
		return nil
	}

	ids := s.catalog.ServiceIDs()
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, id.String())
	}
	return errors.FatalPrecondition(fmt.Sprintf(
		"no known service matched the question; available services: %s",
		strings.Join(names, ", ")))
}

func (s *InvestigationService) searchMemory(ctx context.Context, question string) []ports.IncidentMatch {
	matches, err := s.memory.SearchSimilar(ctx, question, s.cfg.MemoryTopK)
	if err != nil {
		s.log.Warn("incident memory unavailable, continuing without history: %v", err)
		return nil
	}
	return matches
}

// seedHypotheses converts generator seeds into stored hypotheses, mapping
// priority 1..5 onto priors and folding in historical corroboration.
func (s *InvestigationService) seedHypotheses(seeds []ports.HypothesisSeed, historical []ports.IncidentMatch) []*investigation.Hypothesis {
	hyps := make([]*investigation.Hypothesis, 0, len(seeds))
	for _, seed := range seeds {
		h := investigation.NewHypothesis(seed.Description, priorForPriority(seed.Priority))
		h.Service = seed.Service
		h.QueryHint = seed.QueryTemplate
		h.EstimatedCost = seed.EstimatedCost
		h.Corroboration = corroborationFor(seed.Description, historical)
		hyps = append(hyps, h)
	}
	return hyps
}

// priorForPriority maps generator priority 1 (highest) through 5 to a prior
func priorForPriority(priority int) float64 {
	if priority < 1 {
		priority = 1
	}
	if priority > 5 {
		priority = 5
	}
	return 1.0 - float64(priority)*0.15
}

// corroborationFor returns the best similarity of any past incident whose
// summary overlaps the hypothesis description.
func corroborationFor(description string, historical []ports.IncidentMatch) float64 {
	best := 0.0
	descTokens := tokenSet(description)
	for _, match := range historical {
		overlap := tokenOverlap(descTokens, tokenSet(match.Summary))
		if overlap >= 0.2 && match.Similarity > best {
			best = match.Similarity
		}
	}
	return best
}

// ingestHistoricalEvidence converts corroborated past incidents into
// historical-match findings so they contribute decayed supporting weight.
func (s *InvestigationService) ingestHistoricalEvidence(store *investigation.Store, agg *evidence.Aggregator, historical []ports.IncidentMatch) {
	if len(historical) == 0 {
		return
	}
	now := core.Now()
	for _, h := range store.All() {
		if h.Corroboration <= 0 {
			continue
		}
		significance := evidence.SignificanceMedium
		if h.Corroboration >= 0.8 {
			significance = evidence.SignificanceHigh
		}
		finding := evidence.Finding{
			ID:           core.FindingID(core.NewID()),
			Kind:         evidence.FindingHistoricalMatch,
			Significance: significance,
			Service:      h.Service,
			Summary:      fmt.Sprintf("Similar past incident (similarity %.2f)", h.Corroboration),
			ObservedAt:   observedAtFor(historical, now),
		}
		agg.Ingest(h.ID, []evidence.Finding{finding}, evidence.FromHistoricalMemory, now)
	}
}

// observedAtFor uses the most recent incident timestamp so recency decay
// reflects how stale the precedent is.
func observedAtFor(historical []ports.IncidentMatch, now core.Timestamp) core.Timestamp {
	for _, match := range historical {
		if match.OccurredAt == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
			if ts, err := time.Parse(layout, match.OccurredAt); err == nil {
				return core.NewTimestamp(ts)
			}
		}
	}
	return now
}

// probeUpstream chases high-significance findings into the implicated
// services' upstream dependencies, one extra step per dependency while
// budget remains. New findings can implicate further services, so the
// frontier is re-derived each pass.
func (s *InvestigationService) probeUpstream(ctx context.Context, inv *investigation.Investigation,
	store *investigation.Store, agg *evidence.Aggregator, scorer *evidence.Scorer, sched *scheduler.Scheduler) []investigation.Step {

	var steps []investigation.Step
	probed := make(map[core.ServiceID]bool)

	for {
		if inv.BudgetExhausted(core.Now()) {
			break
		}

		frontier := s.upstreamFrontier(store, agg, probed)
		if len(frontier) == 0 {
			break
		}

		advanced := false
		for _, dep := range frontier {
			if inv.BudgetExhausted(core.Now()) {
				break
			}
			probed[dep.Service] = true

			hyp := s.upstreamHypothesis(dep)
			if store.Seed([]*investigation.Hypothesis{hyp}) == 0 {
				continue
			}
			fresh, ok := store.Get(hyp.ID)
			if !ok {
				continue
			}
			step := sched.RunStep(ctx, inv, store, fresh)
			steps = append(steps, step)
			advanced = true
			s.log.Info("investigation %s probed upstream service %s (step %s)", inv.ID, dep.Service, step.ID)
		}
		if !advanced {
			break
		}
	}
	return steps
}

// upstreamFrontier lists upstream dependencies of services implicated by
// high-significance evidence that have not yet been probed or hypothesized.
func (s *InvestigationService) upstreamFrontier(store *investigation.Store, agg *evidence.Aggregator, probed map[core.ServiceID]bool) []catalog.Dependency {
	implicated := make(map[core.ServiceID]bool)
	hypothesized := make(map[core.ServiceID]bool)

	for _, h := range store.All() {
		if h.Service != "" {
			hypothesized[h.Service] = true
		}
		for _, ev := range agg.Evidence(h.ID) {
			if ev.Polarity != evidence.Supporting {
				continue
			}
			finding, ok := agg.Finding(ev.FindingID)
			if !ok || finding.Significance != evidence.SignificanceHigh {
				continue
			}
			if finding.Service != "" {
				implicated[finding.Service] = true
			}
		}
	}

	var frontier []catalog.Dependency
	for svc := range implicated {
		for _, dep := range s.catalog.UpstreamDependencies(svc) {
			if probed[dep.Service] || hypothesized[dep.Service] {
				continue
			}
			frontier = append(frontier, dep)
		}
	}
	return frontier
}

func (s *InvestigationService) upstreamHypothesis(dep catalog.Dependency) *investigation.Hypothesis {
	desc := fmt.Sprintf("Upstream dependency %s is degraded and cascading downstream", dep.Service)
	if len(dep.FailureModes) > 0 {
		desc = fmt.Sprintf("Upstream dependency %s is hitting %s and cascading downstream",
			dep.Service, strings.Join(dep.FailureModes, "/"))
	}
	h := investigation.NewHypothesis(desc, 0.5)
	h.Service = dep.Service
	h.EstimatedCost = 0.6
	if indexes := s.catalog.Indexes(dep.Service); len(indexes) > 0 {
		h.QueryHint = "index=" + indexes[0] + " error OR timeout OR failed | stats count by source"
	}
	return h
}

// composeAnswer builds the final answer for the top-ranked hypothesis. A
// composer failure degrades to the hypothesis description alone.
func (s *InvestigationService) composeAnswer(ctx context.Context, inv *investigation.Investigation,
	store *investigation.Store, agg *evidence.Aggregator, ranked []evidence.ConfidenceResult) *investigation.FinalAnswer {

	if len(ranked) == 0 {
		return &investigation.FinalAnswer{
			RootCause:       "No hypothesis could be evaluated",
			Explanation:     "No hypotheses survived probing; the investigation produced no conclusion.",
			ConfidenceLevel: evidence.LevelVeryLow,
			LowConfidence:   true,
			Insufficient:    true,
		}
	}

	top := ranked[0]
	winner, _ := store.Get(top.HypothesisID)

	ev := agg.Evidence(top.HypothesisID)
	findings := make([]evidence.Finding, 0, len(ev))
	for _, item := range ev {
		if item.Polarity == evidence.Neutral {
			continue
		}
		if f, ok := agg.Finding(item.FindingID); ok {
			findings = append(findings, f)
		}
	}

	answer := &investigation.FinalAnswer{
		RootCause:       winner.Description,
		Confidence:      top.Score,
		ConfidenceLevel: top.Level,
		LowConfidence:   top.Score < s.cfg.StopThreshold,
		Insufficient:    top.SupportingCount == 0,
		Breakdown:       top,
	}

	comp, err := s.composer.Compose(ctx, winner, ev, findings, top)
	if err != nil {
		s.log.Warn("answer composition failed for investigation %s: %v", inv.ID, err)
		answer.Explanation = winner.Description
		return answer
	}
	answer.Explanation = comp.Explanation
	answer.ExplanationHTML = comp.ExplanationHTML
	answer.Citations = comp.Citations
	return answer
}

func (s *InvestigationService) storeMemory(ctx context.Context, inv *investigation.Investigation, agg *evidence.Aggregator, ranked []evidence.ConfidenceResult) {
	if inv.State != investigation.StateCompleted || len(ranked) == 0 {
		return
	}
	if err := s.memory.StoreInvestigation(ctx, inv, agg.Evidence(ranked[0].HypothesisID)); err != nil {
		s.log.Warn("failed to store investigation %s in memory: %v", inv.ID, err)
	}
}

// fail drives the investigation to FAILED, recording the failure category
func (s *InvestigationService) fail(inv *investigation.Investigation, store *investigation.Store, agg *evidence.Aggregator, cause error) (*Result, error) {
	code := errors.GetCode(cause)
	if code == "" || code == "UNKNOWN" {
		switch {
		case core.IsFatalPrecondition(cause):
			code = errors.CodeFatalPrecondition
		case core.IsTransientStepError(cause):
			code = errors.CodeTransientStep
		default:
			code = "INVESTIGATION_FAILED"
		}
	}

	inv.FailCode = code
	inv.FailMsg = cause.Error()
	if !inv.State.IsTerminal() {
		inv.State = investigation.StateFailed
		inv.UpdatedAt = core.Now()
	}
	s.log.Error("investigation %s failed [%s]: %v", inv.ID, code, cause)

	res := &Result{Investigation: inv}
	if store != nil {
		res.Hypotheses = store.All()
		if agg != nil {
			res.Findings = collectFindings(store, agg)
		}
	}
	return res, cause
}

func hypothesisIDs(store *investigation.Store) []core.HypothesisID {
	hyps := store.All()
	ids := make([]core.HypothesisID, 0, len(hyps))
	for _, h := range hyps {
		ids = append(ids, h.ID)
	}
	return ids
}

// collectFindings gathers every distinct finding referenced by any evidence
func collectFindings(store *investigation.Store, agg *evidence.Aggregator) []evidence.Finding {
	seen := make(map[core.FindingID]bool)
	var out []evidence.Finding
	for _, h := range store.All() {
		for _, ev := range agg.Evidence(h.ID) {
			if seen[ev.FindingID] {
				continue
			}
			seen[ev.FindingID] = true
			if f, ok := agg.Finding(ev.FindingID); ok {
				out = append(out, f)
			}
		}
	}
	return out
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

func tokenOverlap(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
