package scheduler

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"

	"sleuth/domain/core"
	"sleuth/domain/evidence"
	"sleuth/domain/investigation"
	"sleuth/internal/logging"
	"sleuth/ports"
)

// Config holds the retry/timeout/concurrency policy for step execution
type Config struct {
	// RetryMax caps in-step execution retries, and the number of
	// consecutive failed steps before a hypothesis turns INCONCLUSIVE.
	RetryMax int
	// Concurrency is the number of worker slots for concurrent probing.
	Concurrency int64
	// QueryTimeout bounds plan generation and query execution.
	QueryTimeout time.Duration
	BackoffBase  time.Duration
	// GraceWindow is how long past the deadline results are still applied.
	GraceWindow time.Duration
}

// ExitReason tells the orchestrator why the probing loop stopped
type ExitReason string

const (
	ExitThreshold ExitReason = "threshold"
	ExitBudget    ExitReason = "budget"
	ExitExhausted ExitReason = "exhausted"
)

// Scheduler drives probing cycles: it picks candidates, obtains and
// validates query plans, executes them with retry/timeout policy, analyzes
// results, and feeds evidence to the aggregator. Store and aggregator
// mutations are serialized through the single writer in Run; workers only
// submit completed results.
type Scheduler struct {
	planner  ports.QueryPlannerPort
	executor ports.QueryExecutorPort
	analyzer ports.AnalyzerPort
	agg      *evidence.Aggregator
	scorer   *evidence.Scorer
	cfg      Config
	log      *logging.Logger
}

// New creates a step scheduler
func New(planner ports.QueryPlannerPort, executor ports.QueryExecutorPort, analyzer ports.AnalyzerPort,
	agg *evidence.Aggregator, scorer *evidence.Scorer, cfg Config, log *logging.Logger) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 100 * time.Millisecond
	}
	return &Scheduler{
		planner:  planner,
		executor: executor,
		analyzer: analyzer,
		agg:      agg,
		scorer:   scorer,
		cfg:      cfg,
		log:      log,
	}
}

// stepResult is what a worker hands back to the writer for ordered application
type stepResult struct {
	hyp      *investigation.Hypothesis
	step     *investigation.Step
	analysis *ports.Analysis
}

// Run executes the INVESTIGATING phase for one investigation. It dispatches
// at most inv.Budget.MaxSteps steps in total, never exceeds the concurrency
// limit, and returns the steps taken together with the exit reason.
func (s *Scheduler) Run(ctx context.Context, inv *investigation.Investigation, store *investigation.Store) ([]investigation.Step, ExitReason) {
	sem := semaphore.NewWeighted(s.cfg.Concurrency)
	results := make(chan stepResult, s.cfg.Concurrency)

	var (
		steps      []investigation.Step
		dispatched int
		inFlight   int
		reason     ExitReason
	)

	deadline := inv.Deadline
	threshold := s.scorer.StopThreshold()

	for {
		now := core.Now()
		budgetLeft := dispatched < inv.Budget.MaxSteps && now.Before(deadline)
		top := s.topConfidence(store)

		if top >= threshold {
			reason = ExitThreshold
		} else if !budgetLeft && inFlight == 0 {
			reason = ExitBudget
		} else if budgetLeft && !store.HasCandidate() && inFlight == 0 {
			reason = ExitExhausted
		}
		if reason != "" && inFlight == 0 {
			break
		}

		// Dispatch while budget remains, the threshold is unmet, and a
		// worker slot plus a candidate are available.
		if reason == "" && budgetLeft && sem.TryAcquire(1) {
			hyp := store.NextCandidate()
			if hyp == nil {
				sem.Release(1)
			} else {
				dispatched++
				inFlight++
				go func(h *investigation.Hypothesis) {
					defer sem.Release(1)
					results <- s.runStep(ctx, h, inv)
				}(hyp)
				continue
			}
		}

		if inFlight == 0 {
			if reason == "" {
				// No slot, no candidate, nothing in flight: exhausted.
				reason = ExitExhausted
			}
			break
		}

		res := <-results
		inFlight--
		s.apply(inv, store, res, deadline, &steps)
	}

	if reason == "" {
		reason = ExitBudget
	}
	return steps, reason
}

// RunStep drives one probing cycle for a hypothesis outside the pooled loop.
// Exposed for single-step probing (upstream dependency checks).
func (s *Scheduler) RunStep(ctx context.Context, inv *investigation.Investigation, store *investigation.Store, hyp *investigation.Hypothesis) investigation.Step {
	res := s.runStep(ctx, hyp, inv)
	var steps []investigation.Step
	s.apply(inv, store, res, inv.Deadline, &steps)
	return *res.step
}

// runStep performs plan → validate → execute → analyze for one attempt
// sequence. Transport errors and timeouts are retried with exponential
// backoff up to RetryMax attempts; validation errors fail the step without
// dispatch.
func (s *Scheduler) runStep(ctx context.Context, hyp *investigation.Hypothesis, inv *investigation.Investigation) stepResult {
	step := &investigation.Step{
		ID:           core.StepID(core.NewID()),
		HypothesisID: hyp.ID,
		StartedAt:    core.Now(),
	}
	res := stepResult{hyp: hyp, step: step}

	plan, err := s.obtainPlan(ctx, hyp, inv)
	if err != nil {
		step.Outcome = investigation.OutcomeFailed
		step.Error = err.Error()
		step.FinishedAt = core.Now()
		s.log.Warn("step %s: plan rejected for hypothesis %s: %v", step.ID, hyp.ID, err)
		return res
	}
	step.Plan = plan

	queryResult, outcome, err := s.executeWithRetry(ctx, plan, step)
	step.Outcome = outcome
	step.FinishedAt = core.Now()
	if err != nil {
		step.Error = err.Error()
		s.log.Warn("step %s: execution failed after %d attempt(s): %v", step.ID, step.Attempt, err)
		return res
	}
	step.ResultRef = queryResult.ResultRef

	analysis, err := s.analyzer.Analyze(ctx, step.ID, queryResult, hyp, inv.Intent)
	if err != nil {
		step.Outcome = investigation.OutcomeFailed
		step.Error = err.Error()
		s.log.Warn("step %s: analysis failed: %v", step.ID, err)
		return res
	}

	for _, f := range analysis.Findings {
		step.FindingIDs = append(step.FindingIDs, f.ID)
	}
	res.analysis = analysis
	return res
}

// obtainPlan requests and validates a query plan within the query timeout
func (s *Scheduler) obtainPlan(ctx context.Context, hyp *investigation.Hypothesis, inv *investigation.Investigation) (investigation.QueryPlan, error) {
	planCtx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	plan, err := s.planner.Plan(planCtx, hyp, inv.Intent, inv.Intent.Window)
	if err != nil {
		if errors.Is(planCtx.Err(), context.DeadlineExceeded) {
			return investigation.QueryPlan{}, core.ErrQueryTimeout
		}
		return investigation.QueryPlan{}, err
	}
	return plan, nil
}

// executeWithRetry dispatches the plan with the query timeout, retrying
// transient failures with exponential backoff. RetryMax is the total
// attempt budget per step, not the count of retries after the first.
func (s *Scheduler) executeWithRetry(ctx context.Context, plan investigation.QueryPlan, step *investigation.Step) (*ports.QueryResult, investigation.StepOutcome, error) {
	attempts := s.cfg.RetryMax
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	timedOut := false
	for attempt := 1; attempt <= attempts; attempt++ {
		step.Attempt = attempt

		execCtx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
		result, err := s.executor.Execute(execCtx, plan)
		cancel()

		if err == nil {
			return result, investigation.OutcomeSuccess, nil
		}
		lastErr = err
		timedOut = errors.Is(err, core.ErrQueryTimeout) || errors.Is(err, context.DeadlineExceeded)

		if !timedOut && !core.IsTransientStepError(err) {
			// Non-transient failure: no retry.
			return nil, investigation.OutcomeFailed, err
		}
		if attempt < attempts {
			backoff := s.cfg.BackoffBase * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, investigation.OutcomeFailed, ctx.Err()
			}
		}
	}

	if timedOut {
		return nil, investigation.OutcomeTimedOut, lastErr
	}
	return nil, investigation.OutcomeFailed, lastErr
}

// apply is the single-writer application of a completed step: it records the
// step, ingests evidence, rescores, and updates hypothesis status. Results
// arriving after the deadline plus grace window are recorded but their
// evidence is discarded.
func (s *Scheduler) apply(inv *investigation.Investigation, store *investigation.Store, res stepResult, deadline core.Timestamp, steps *[]investigation.Step) {
	now := core.Now()
	step := res.step
	hyp := res.hyp

	failed := step.Outcome != investigation.OutcomeSuccess
	store.RecordStep(hyp.ID, step.ID, failed)
	inv.StepsUsed++
	*steps = append(*steps, *step)

	lateBy := now.Sub(deadline)
	if lateBy > s.cfg.GraceWindow {
		s.log.Warn("step %s completed %.1fs past deadline, discarding result", step.ID, lateBy.Seconds())
		store.Release(hyp.ID)
		return
	}

	if failed {
		fresh, _ := store.Get(hyp.ID)
		if fresh != nil && fresh.Retries >= s.cfg.RetryMax {
			store.Update(hyp.ID, investigation.StatusInconclusive, fresh.Support)
			s.log.Info("hypothesis %s demoted to INCONCLUSIVE after %d failed steps", hyp.ID, fresh.Retries)
		} else {
			store.Release(hyp.ID)
		}
		return
	}

	if res.analysis != nil {
		s.agg.Ingest(hyp.ID, res.analysis.Findings, evidence.FromLiveQuery, now)
	}

	conf := s.scorer.Score(hyp.ID, s.agg.Evidence(hyp.ID))
	status := s.verdict(conf, res.analysis)
	store.Update(hyp.ID, status, conf.Score)
}

// verdict maps a fresh confidence result to the hypothesis status applied
// after a successful step.
func (s *Scheduler) verdict(conf evidence.ConfidenceResult, analysis *ports.Analysis) investigation.HypothesisStatus {
	if conf.Score >= s.scorer.StopThreshold() {
		return investigation.StatusSupported
	}
	sufficient := analysis != nil && analysis.Sufficient
	if conf.RefuteWeight > conf.SupportWeight && (conf.RefutingCount >= 2 || sufficient) {
		return investigation.StatusRefuted
	}
	return investigation.StatusPending
}

func (s *Scheduler) topConfidence(store *investigation.Store) float64 {
	top := 0.0
	for _, h := range store.All() {
		conf := s.scorer.Score(h.ID, s.agg.Evidence(h.ID))
		if conf.Score > top {
			top = conf.Score
		}
	}
	return top
}
