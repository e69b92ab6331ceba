package analysis

import (
	"testing"
	"time"

	"sleuth/domain/core"
	"sleuth/domain/evidence"
)

// TestCorrelateByTransaction tests events sharing a transaction id across
// services become a high-significance correlation finding
func TestCorrelateByTransaction(t *testing.T) {
	c := NewCorrelator()
	events := []map[string]any{
		{"transactionId": "tx-42", "index": "app_checkout", "_raw": "error calling payments"},
		{"transactionId": "tx-42", "index": "app_payments", "_raw": "timeout from fraud scorer"},
		{"transactionId": "tx-99", "index": "app_checkout", "_raw": "ok"},
	}

	findings := c.Correlate(core.StepID(core.NewID()), events, testHypothesis(), core.Now())

	var tx *evidence.Finding
	for i := range findings {
		if findings[i].Field == "transaction" {
			tx = &findings[i]
			break
		}
	}
	if tx == nil {
		t.Fatal("expected a transaction correlation finding")
	}
	if tx.Pattern != "tx-42" || tx.Count != 2 {
		t.Errorf("expected tx-42 with 2 events, got %s with %d", tx.Pattern, tx.Count)
	}
	if tx.Significance != evidence.SignificanceHigh {
		t.Errorf("cross-service transaction should be high significance, got %s", tx.Significance)
	}
}

// TestCorrelateExtractsIDFromRaw tests transaction ids embedded in the raw
// message are still grouped
func TestCorrelateExtractsIDFromRaw(t *testing.T) {
	c := NewCorrelator()
	events := []map[string]any{
		{"index": "app_checkout", "_raw": `failed request traceId="abc-123"`},
		{"index": "app_payments", "_raw": `upstream error traceId=abc-123`},
	}

	findings := c.Correlate(core.StepID(core.NewID()), events, testHypothesis(), core.Now())
	if len(findings) == 0 {
		t.Fatal("expected a correlation finding from raw message ids")
	}
	if findings[0].Pattern != "abc-123" {
		t.Errorf("expected abc-123, got %s", findings[0].Pattern)
	}
}

// TestCorrelateSingleEventNoFinding tests a lone transaction produces nothing
func TestCorrelateSingleEventNoFinding(t *testing.T) {
	c := NewCorrelator()
	events := []map[string]any{
		{"transactionId": "tx-1", "index": "app_checkout"},
	}
	findings := c.Correlate(core.StepID(core.NewID()), events, testHypothesis(), core.Now())
	if len(findings) != 0 {
		t.Errorf("expected no findings, got %d", len(findings))
	}
}

// TestTemporalErrorCluster tests error events within the window cluster
func TestTemporalErrorCluster(t *testing.T) {
	c := NewCorrelator()
	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	events := []map[string]any{
		{"_time": base.Format(time.RFC3339), "_raw": "error: connection refused"},
		{"_time": base.Add(10 * time.Second).Format(time.RFC3339), "_raw": "error: connection refused"},
		{"_time": base.Add(30 * time.Second).Format(time.RFC3339), "_raw": "exception in handler"},
		{"_time": base.Add(30 * time.Minute).Format(time.RFC3339), "_raw": "error: unrelated"},
	}

	findings := c.Correlate(core.StepID(core.NewID()), events, testHypothesis(), core.Now())

	var temporal *evidence.Finding
	for i := range findings {
		if findings[i].Field == "temporal" {
			temporal = &findings[i]
			break
		}
	}
	if temporal == nil {
		t.Fatal("expected a temporal correlation finding")
	}
	if temporal.Count != 3 {
		t.Errorf("expected cluster of 3, got %d", temporal.Count)
	}
}

// TestTemporalNoClusterWhenSpread tests widely spaced errors do not cluster
func TestTemporalNoClusterWhenSpread(t *testing.T) {
	c := NewCorrelator()
	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	events := []map[string]any{
		{"_time": base.Format(time.RFC3339), "_raw": "error one"},
		{"_time": base.Add(10 * time.Minute).Format(time.RFC3339), "_raw": "error two"},
	}
	findings := c.Correlate(core.StepID(core.NewID()), events, testHypothesis(), core.Now())
	for _, f := range findings {
		if f.Field == "temporal" {
			t.Error("expected no temporal cluster for spread events")
		}
	}
}
