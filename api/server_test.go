package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sleuth/app"
	"sleuth/domain/catalog"
	"sleuth/domain/core"
	"sleuth/domain/evidence"
	"sleuth/domain/investigation"
	"sleuth/internal/config"
	"sleuth/internal/logging"
	"sleuth/ports"
)

type fakeIntent struct {
	services []core.ServiceID
}

func (f fakeIntent) Extract(ctx context.Context, question, window string) (investigation.Intent, error) {
	return investigation.Intent{
		Question: question,
		Services: f.services,
		Window:   core.NewTimeWindow(time.Now().Add(-time.Hour), time.Now()),
	}, nil
}

type fakeGenerator struct{}

func (fakeGenerator) Generate(ctx context.Context, gen ports.GenerationContext) ([]ports.HypothesisSeed, error) {
	return []ports.HypothesisSeed{
		{Description: "checkout api saturated by retries", Priority: 1, Service: "checkout-api"},
	}, nil
}

type fakePlanner struct{}

func (fakePlanner) Plan(ctx context.Context, hyp *investigation.Hypothesis, intent investigation.Intent, window core.TimeWindow) (investigation.QueryPlan, error) {
	return investigation.QueryPlan{QueryText: "index=app_checkout error", Window: window, MaxRows: 100}, nil
}

type fakeExecutor struct{}

func (fakeExecutor) Execute(ctx context.Context, plan investigation.QueryPlan) (*ports.QueryResult, error) {
	return &ports.QueryResult{Events: []map[string]any{{"status": "503"}}, TotalCount: 1}, nil
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(ctx context.Context, stepID core.StepID, results *ports.QueryResult, hyp *investigation.Hypothesis, intent investigation.Intent) (*ports.Analysis, error) {
	analysis := &ports.Analysis{Summary: "strong signal"}
	for i := 0; i < 3; i++ {
		analysis.Findings = append(analysis.Findings, evidence.Finding{
			ID:           core.FindingID(core.NewID()),
			StepID:       stepID,
			Kind:         evidence.FindingPattern,
			Significance: evidence.SignificanceHigh,
			Service:      "checkout-api",
			Summary:      "status=503 dominates",
			ObservedAt:   core.Now(),
		})
	}
	return analysis, nil
}

type fakeComposer struct{}

func (fakeComposer) Compose(ctx context.Context, hyp *investigation.Hypothesis, ev []evidence.Evidence, findings []evidence.Finding, conf evidence.ConfidenceResult) (*ports.Composition, error) {
	return &ports.Composition{Explanation: "because " + hyp.Description}, nil
}

type fakeMemory struct{}

func (fakeMemory) SearchSimilar(ctx context.Context, question string, k int) ([]ports.IncidentMatch, error) {
	return nil, nil
}

func (fakeMemory) StoreInvestigation(ctx context.Context, inv *investigation.Investigation, ev []evidence.Evidence) error {
	return nil
}

func testServer(t *testing.T, services []core.ServiceID) *Server {
	t.Helper()
	cat, err := catalog.Parse([]byte(`{"services": {"checkout-api": {"log_indexes": ["app_checkout"]}}}`))
	if err != nil {
		t.Fatalf("failed to parse catalog: %v", err)
	}
	cfg := config.InvestigationConfig{
		StopThreshold:  0.85,
		SaturationGain: 1.0,
		MaxSteps:       4,
		MaxWall:        time.Minute,
		RetryMax:       2,
		Concurrency:    1,
		QueryTimeout:   time.Second,
		BackoffBase:    time.Millisecond,
		GraceWindow:    time.Second,
		MemoryTopK:     5,
	}
	service := app.NewInvestigationService(fakeIntent{services: services}, fakeGenerator{},
		fakePlanner{}, fakeExecutor{}, fakeAnalyzer{}, fakeComposer{}, fakeMemory{},
		cat, cfg, logging.NewDefaultLogger())
	return NewServer(service, logging.NewDefaultLogger())
}

func postQuery(t *testing.T, server *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

// TestHealthEndpoint tests the liveness probe
func TestHealthEndpoint(t *testing.T) {
	server := testServer(t, []core.ServiceID{"checkout-api"})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

// TestQueryRejectsInvalidJSON tests malformed bodies get a 400
func TestQueryRejectsInvalidJSON(t *testing.T) {
	server := testServer(t, []core.ServiceID{"checkout-api"})
	rec := postQuery(t, server, "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

// TestQueryRejectsMissingQuestion tests an empty question gets a 400
func TestQueryRejectsMissingQuestion(t *testing.T) {
	server := testServer(t, []core.ServiceID{"checkout-api"})
	rec := postQuery(t, server, `{"question": "  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

// TestQueryCompletedInvestigation tests a confident run returns the root
// cause with evidence
func TestQueryCompletedInvestigation(t *testing.T) {
	server := testServer(t, []core.ServiceID{"checkout-api"})
	rec := postQuery(t, server, `{"question": "why are checkout errors spiking?", "time_window": "1h"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp QueryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "completed" {
		t.Errorf("expected completed, got %s", resp.Status)
	}
	if resp.RootCause == "" {
		t.Error("expected a root cause")
	}
	if resp.Confidence < 0.85 {
		t.Errorf("expected confidence >= 0.85, got %f", resp.Confidence)
	}
	if resp.StepsTaken != 1 {
		t.Errorf("expected 1 step, got %d", resp.StepsTaken)
	}
	if len(resp.Evidence) == 0 {
		t.Error("expected evidence items")
	}
}

// TestQueryFatalPrecondition tests an unmatchable question maps to 422 with
// the failure category
func TestQueryFatalPrecondition(t *testing.T) {
	server := testServer(t, nil)
	rec := postQuery(t, server, `{"question": "what is the meaning of life?"}`)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp QueryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "failed" {
		t.Errorf("expected failed, got %s", resp.Status)
	}
	if resp.Error == nil || resp.Error.Category != "FATAL_PRECONDITION" {
		t.Error("expected FATAL_PRECONDITION error category")
	}
}
