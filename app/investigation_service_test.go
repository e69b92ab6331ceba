package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"sleuth/domain/catalog"
	"sleuth/domain/core"
	"sleuth/domain/evidence"
	"sleuth/domain/investigation"
	"sleuth/internal/config"
	"sleuth/internal/errors"
	"sleuth/internal/logging"
	"sleuth/ports"
)

const testCatalogJSON = `{
	"services": {
		"checkout-api": {
			"log_indexes": ["app_checkout"],
			"upstream_dependencies": [
				{"service": "payment-gateway", "failure_modes": ["timeout"]}
			]
		},
		"payment-gateway": {
			"log_indexes": ["app_payments"]
		}
	}
}`

type stubIntent struct {
	intent investigation.Intent
	err    error
}

func (s *stubIntent) Extract(ctx context.Context, question, window string) (investigation.Intent, error) {
	if s.err != nil {
		return investigation.Intent{}, s.err
	}
	intent := s.intent
	intent.Question = question
	return intent, nil
}

type stubGenerator struct {
	seeds []ports.HypothesisSeed
	err   error
}

func (s *stubGenerator) Generate(ctx context.Context, gen ports.GenerationContext) ([]ports.HypothesisSeed, error) {
	return s.seeds, s.err
}

type stubPlanner struct{}

func (stubPlanner) Plan(ctx context.Context, hyp *investigation.Hypothesis, intent investigation.Intent, window core.TimeWindow) (investigation.QueryPlan, error) {
	return investigation.QueryPlan{QueryText: "index=app_checkout error", Window: window, MaxRows: 100}, nil
}

type stubExecutor struct{}

func (stubExecutor) Execute(ctx context.Context, plan investigation.QueryPlan) (*ports.QueryResult, error) {
	return &ports.QueryResult{Events: []map[string]any{{"status": "503"}}, TotalCount: 1}, nil
}

// scriptedAnalyzer returns one prepared analysis per call, repeating the
// last entry once the script runs out.
type scriptedAnalyzer struct {
	mu     sync.Mutex
	script []func(stepID core.StepID) *ports.Analysis
	calls  int
}

func (a *scriptedAnalyzer) Analyze(ctx context.Context, stepID core.StepID, results *ports.QueryResult, hyp *investigation.Hypothesis, intent investigation.Intent) (*ports.Analysis, error) {
	a.mu.Lock()
	idx := a.calls
	a.calls++
	a.mu.Unlock()
	if idx >= len(a.script) {
		idx = len(a.script) - 1
	}
	return a.script[idx](stepID), nil
}

func findingsOf(stepID core.StepID, kind evidence.FindingKind, significance evidence.Significance, service core.ServiceID, n int) *ports.Analysis {
	analysis := &ports.Analysis{Summary: "scripted"}
	for i := 0; i < n; i++ {
		analysis.Findings = append(analysis.Findings, evidence.Finding{
			ID:           core.FindingID(core.NewID()),
			StepID:       stepID,
			Kind:         kind,
			Significance: significance,
			Service:      service,
			Summary:      "scripted finding",
			ObservedAt:   core.Now(),
		})
	}
	return analysis
}

type stubComposer struct{}

func (stubComposer) Compose(ctx context.Context, hyp *investigation.Hypothesis, ev []evidence.Evidence, findings []evidence.Finding, conf evidence.ConfidenceResult) (*ports.Composition, error) {
	return &ports.Composition{Explanation: "because " + hyp.Description}, nil
}

type stubMemory struct {
	mu      sync.Mutex
	matches []ports.IncidentMatch
	err     error
	stored  bool
}

func (m *stubMemory) SearchSimilar(ctx context.Context, question string, k int) ([]ports.IncidentMatch, error) {
	return m.matches, m.err
}

func (m *stubMemory) StoreInvestigation(ctx context.Context, inv *investigation.Investigation, ev []evidence.Evidence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored = true
	return nil
}

func (m *stubMemory) wasStored() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stored
}

func testConfig(maxSteps int) config.InvestigationConfig {
	return config.InvestigationConfig{
		StopThreshold:      0.85,
		SaturationGain:     1.0,
		MaxSteps:           maxSteps,
		MaxWall:            time.Minute,
		RetryMax:           3,
		Concurrency:        1,
		QueryTimeout:       time.Second,
		BackoffBase:        time.Millisecond,
		GraceWindow:        5 * time.Second,
		MemoryTopK:         5,
		HistoricalHalfLife: 7 * 24 * time.Hour,
	}
}

func testService(t *testing.T, gen *stubGenerator, analyzer ports.AnalyzerPort, mem *stubMemory, maxSteps int) *InvestigationService {
	t.Helper()
	cat, err := catalog.Parse([]byte(testCatalogJSON))
	if err != nil {
		t.Fatalf("failed to parse test catalog: %v", err)
	}
	intent := &stubIntent{intent: investigation.Intent{
		Services: []core.ServiceID{"checkout-api"},
		Window:   core.NewTimeWindow(time.Now().Add(-time.Hour), time.Now()),
	}}
	return NewInvestigationService(intent, gen, stubPlanner{}, stubExecutor{}, analyzer,
		stubComposer{}, mem, cat, testConfig(maxSteps), logging.NewDefaultLogger())
}

func checkoutSeeds() []ports.HypothesisSeed {
	return []ports.HypothesisSeed{
		{Description: "checkout api overwhelmed by payment retries", Priority: 1, Service: "checkout-api", EstimatedCost: 0.5},
		{Description: "inventory lookups timing out under load", Priority: 3, EstimatedCost: 0.8},
	}
}

// TestInvestigateCompletesAtThreshold tests the full happy path: strong
// evidence on the first step ends with a confident COMPLETED answer stored
// back to memory
func TestInvestigateCompletesAtThreshold(t *testing.T) {
	analyzer := &scriptedAnalyzer{script: []func(core.StepID) *ports.Analysis{
		func(id core.StepID) *ports.Analysis {
			return findingsOf(id, evidence.FindingPattern, evidence.SignificanceHigh, "checkout-api", 3)
		},
	}}
	mem := &stubMemory{}
	svc := testService(t, &stubGenerator{seeds: checkoutSeeds()}, analyzer, mem, 8)

	result, err := svc.Investigate(context.Background(), "why are checkout errors spiking?", "1h")
	if err != nil {
		t.Fatalf("investigate failed: %v", err)
	}

	inv := result.Investigation
	if inv.State != investigation.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s", inv.State)
	}
	if inv.Answer == nil {
		t.Fatal("expected an answer")
	}
	if inv.Answer.Confidence < 0.85 {
		t.Errorf("expected confidence >= 0.85, got %f", inv.Answer.Confidence)
	}
	if inv.Answer.LowConfidence || inv.Answer.Insufficient {
		t.Error("confident answer must not be flagged low confidence or insufficient")
	}
	if inv.StepsUsed != 1 {
		t.Errorf("expected 1 step, got %d", inv.StepsUsed)
	}
	if !mem.wasStored() {
		t.Error("completed investigation should be stored in memory")
	}
}

// TestInvestigateFailsWithoutServiceMatch tests an unmatchable question
// fails fast with the available services listed
func TestInvestigateFailsWithoutServiceMatch(t *testing.T) {
	cat, _ := catalog.Parse([]byte(testCatalogJSON))
	intent := &stubIntent{intent: investigation.Intent{
		Window: core.NewTimeWindow(time.Now().Add(-time.Hour), time.Now()),
	}}
	svc := NewInvestigationService(intent, &stubGenerator{}, stubPlanner{}, stubExecutor{},
		&scriptedAnalyzer{script: []func(core.StepID) *ports.Analysis{func(id core.StepID) *ports.Analysis { return &ports.Analysis{} }}},
		stubComposer{}, &stubMemory{}, cat, testConfig(8), logging.NewDefaultLogger())

	result, err := svc.Investigate(context.Background(), "what is the meaning of life?", "1h")
	if err == nil {
		t.Fatal("expected failure")
	}

	inv := result.Investigation
	if inv.State != investigation.StateFailed {
		t.Errorf("expected FAILED, got %s", inv.State)
	}
	if inv.FailCode != errors.CodeFatalPrecondition {
		t.Errorf("expected FATAL_PRECONDITION, got %s", inv.FailCode)
	}
	if !strings.Contains(inv.FailMsg, "checkout-api") {
		t.Errorf("expected available services in message, got %q", inv.FailMsg)
	}
}

// TestInvestigateFailsWithNoHypotheses tests an empty seed set is fatal
func TestInvestigateFailsWithNoHypotheses(t *testing.T) {
	analyzer := &scriptedAnalyzer{script: []func(core.StepID) *ports.Analysis{
		func(id core.StepID) *ports.Analysis { return &ports.Analysis{} },
	}}
	svc := testService(t, &stubGenerator{seeds: nil}, analyzer, &stubMemory{}, 8)

	result, err := svc.Investigate(context.Background(), "why are checkout errors spiking?", "1h")
	if err == nil {
		t.Fatal("expected failure")
	}
	if result.Investigation.FailCode != errors.CodeFatalPrecondition {
		t.Errorf("expected FATAL_PRECONDITION, got %s", result.Investigation.FailCode)
	}
}

// TestInvestigateMemoryOutageDegrades tests a memory failure does not sink
// the investigation
func TestInvestigateMemoryOutageDegrades(t *testing.T) {
	analyzer := &scriptedAnalyzer{script: []func(core.StepID) *ports.Analysis{
		func(id core.StepID) *ports.Analysis {
			return findingsOf(id, evidence.FindingPattern, evidence.SignificanceHigh, "checkout-api", 3)
		},
	}}
	mem := &stubMemory{err: context.DeadlineExceeded}
	svc := testService(t, &stubGenerator{seeds: checkoutSeeds()}, analyzer, mem, 8)

	result, err := svc.Investigate(context.Background(), "why are checkout errors spiking?", "1h")
	if err != nil {
		t.Fatalf("expected graceful degradation, got %v", err)
	}
	if result.Investigation.State != investigation.StateCompleted {
		t.Errorf("expected COMPLETED, got %s", result.Investigation.State)
	}
}

// TestInvestigateInsufficientEvidence tests repeated absence ends with an
// insufficient, low-confidence answer
func TestInvestigateInsufficientEvidence(t *testing.T) {
	analyzer := &scriptedAnalyzer{script: []func(core.StepID) *ports.Analysis{
		func(id core.StepID) *ports.Analysis {
			return findingsOf(id, evidence.FindingAbsence, evidence.SignificanceMedium, "", 1)
		},
	}}
	mem := &stubMemory{}
	seeds := []ports.HypothesisSeed{
		{Description: "checkout api overwhelmed by payment retries", Priority: 1, Service: "checkout-api"},
	}
	svc := testService(t, &stubGenerator{seeds: seeds}, analyzer, mem, 8)

	result, err := svc.Investigate(context.Background(), "why are checkout errors spiking?", "1h")
	if err != nil {
		t.Fatalf("investigate failed: %v", err)
	}

	answer := result.Investigation.Answer
	if answer == nil {
		t.Fatal("expected an answer")
	}
	if !answer.Insufficient {
		t.Error("expected insufficient-evidence flag")
	}
	if !answer.LowConfidence {
		t.Error("expected low-confidence flag")
	}
	if answer.Confidence != 0 {
		t.Errorf("expected confidence 0, got %f", answer.Confidence)
	}
}

// TestInvestigateStepBudgetEnforced tests the investigation never takes
// more probing steps than the budget allows, and that running out of steps
// without a confident answer terminates TIMED_OUT with a best-effort answer
func TestInvestigateStepBudgetEnforced(t *testing.T) {
	analyzer := &scriptedAnalyzer{script: []func(core.StepID) *ports.Analysis{
		func(id core.StepID) *ports.Analysis {
			return findingsOf(id, evidence.FindingPattern, evidence.SignificanceLow, "", 1)
		},
	}}
	seeds := []ports.HypothesisSeed{
		{Description: "database replica lag is growing", Priority: 2},
		{Description: "bad deploy broke the checkout flow", Priority: 1},
		{Description: "payment provider rate limiting requests", Priority: 3},
	}
	svc := testService(t, &stubGenerator{seeds: seeds}, analyzer, &stubMemory{}, 2)

	result, err := svc.Investigate(context.Background(), "why are checkout errors spiking?", "1h")
	if err != nil {
		t.Fatalf("investigate failed: %v", err)
	}
	inv := result.Investigation
	if inv.StepsUsed != 2 {
		t.Errorf("expected exactly 2 steps, got %d", inv.StepsUsed)
	}
	if inv.State != investigation.StateTimedOut {
		t.Errorf("expected TIMED_OUT on step-budget exhaustion, got %s", inv.State)
	}
	if inv.Answer == nil {
		t.Fatal("expected a best-effort answer on timeout")
	}
	if !inv.Answer.LowConfidence {
		t.Error("expected the timed-out answer flagged low confidence")
	}
}

// TestInvestigateProbesUpstream tests a high-significance finding against a
// cataloged service pulls its upstream dependency into the investigation
func TestInvestigateProbesUpstream(t *testing.T) {
	analyzer := &scriptedAnalyzer{script: []func(core.StepID) *ports.Analysis{
		// Supporting but sub-threshold signal against checkout-api.
		func(id core.StepID) *ports.Analysis {
			return findingsOf(id, evidence.FindingPattern, evidence.SignificanceHigh, "checkout-api", 1)
		},
		// Then refutation drives the hypothesis terminal.
		func(id core.StepID) *ports.Analysis {
			return findingsOf(id, evidence.FindingAbsence, evidence.SignificanceMedium, "checkout-api", 2)
		},
		func(id core.StepID) *ports.Analysis {
			return findingsOf(id, evidence.FindingAbsence, evidence.SignificanceMedium, "checkout-api", 2)
		},
		func(id core.StepID) *ports.Analysis {
			return findingsOf(id, evidence.FindingPattern, evidence.SignificanceMedium, "payment-gateway", 1)
		},
	}}
	seeds := []ports.HypothesisSeed{
		{Description: "checkout api overwhelmed by payment retries", Priority: 1, Service: "checkout-api"},
	}
	svc := testService(t, &stubGenerator{seeds: seeds}, analyzer, &stubMemory{}, 8)

	result, err := svc.Investigate(context.Background(), "why are checkout errors spiking?", "1h")
	if err != nil {
		t.Fatalf("investigate failed: %v", err)
	}

	var upstream *investigation.Hypothesis
	for _, h := range result.Hypotheses {
		if h.Service == "payment-gateway" {
			upstream = h
			break
		}
	}
	if upstream == nil {
		t.Fatal("expected an upstream hypothesis for payment-gateway")
	}
	if len(upstream.Steps) == 0 {
		t.Error("expected the upstream hypothesis to be probed")
	}
}

// TestInvestigateHistoricalCorroboration tests similar past incidents boost
// matching hypotheses with decayed supporting evidence
func TestInvestigateHistoricalCorroboration(t *testing.T) {
	analyzer := &scriptedAnalyzer{script: []func(core.StepID) *ports.Analysis{
		func(id core.StepID) *ports.Analysis {
			return findingsOf(id, evidence.FindingPattern, evidence.SignificanceHigh, "checkout-api", 3)
		},
	}}
	mem := &stubMemory{matches: []ports.IncidentMatch{{
		Summary:    "checkout api overwhelmed by payment retries last month",
		Resolution: "scaled the payment worker pool",
		Similarity: 0.9,
		OccurredAt: time.Now().Add(-24 * time.Hour).Format(time.RFC3339),
	}}}
	svc := testService(t, &stubGenerator{seeds: checkoutSeeds()}, analyzer, mem, 8)

	result, err := svc.Investigate(context.Background(), "why are checkout errors spiking?", "1h")
	if err != nil {
		t.Fatalf("investigate failed: %v", err)
	}

	var corroborated bool
	for _, h := range result.Hypotheses {
		if h.Corroboration > 0 {
			corroborated = true
		}
	}
	if !corroborated {
		t.Error("expected at least one hypothesis corroborated by history")
	}
}
