package splunk

import (
	"errors"
	"strings"
	"testing"
	"time"

	"sleuth/domain/core"
)

func testWindow(span time.Duration) core.TimeWindow {
	end := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	return core.NewTimeWindow(end.Add(-span), end)
}

// TestValidateRejectsEmptyQuery tests blank queries fail validation
func TestValidateRejectsEmptyQuery(t *testing.T) {
	g := NewGuardrails()
	if err := g.Validate("   ", testWindow(time.Hour)); !errors.Is(err, core.ErrEmptyPlan) {
		t.Errorf("expected ErrEmptyPlan, got %v", err)
	}
}

// TestValidateRejectsDangerousCommands tests destructive SPL is refused
func TestValidateRejectsDangerousCommands(t *testing.T) {
	g := NewGuardrails()
	queries := []string{
		"index=app error | delete",
		"index=app | eval x=1 | delete",
		"index=app | outputlookup append=true results.csv",
	}
	for _, q := range queries {
		if err := g.Validate(q, testWindow(time.Hour)); !errors.Is(err, core.ErrDangerousPlan) {
			t.Errorf("query %q: expected ErrDangerousPlan, got %v", q, err)
		}
	}
}

// TestValidateAcceptsNormalQuery tests ordinary searches pass
func TestValidateAcceptsNormalQuery(t *testing.T) {
	g := NewGuardrails()
	if err := g.Validate("index=app_checkout error | stats count by status", testWindow(time.Hour)); err != nil {
		t.Errorf("expected valid query, got %v", err)
	}
}

// TestValidateRejectsOverlongQuery tests the length ceiling
func TestValidateRejectsOverlongQuery(t *testing.T) {
	g := NewGuardrails()
	long := "index=app " + strings.Repeat("x", g.MaxQueryLength)
	if err := g.Validate(long, testWindow(time.Hour)); !errors.Is(err, core.ErrPlanTooLong) {
		t.Errorf("expected ErrPlanTooLong, got %v", err)
	}
}

// TestConstrainInjectsTimeBounds tests queries without time bounds get them
// inserted before the index clause
func TestConstrainInjectsTimeBounds(t *testing.T) {
	g := NewGuardrails()
	query, _ := g.Constrain("index=app_checkout error", testWindow(time.Hour))

	if !strings.Contains(query, "earliest=") || !strings.Contains(query, "latest=") {
		t.Fatalf("expected injected time bounds, got %q", query)
	}
	if !strings.HasPrefix(query, "earliest=") {
		t.Errorf("expected bounds before the index clause, got %q", query)
	}
}

// TestConstrainKeepsExistingBounds tests explicit bounds are left alone
func TestConstrainKeepsExistingBounds(t *testing.T) {
	g := NewGuardrails()
	original := `earliest="-1h" index=app error`
	query, _ := g.Constrain(original, testWindow(time.Hour))
	if query != original {
		t.Errorf("expected query unchanged, got %q", query)
	}
}

// TestConstrainCapsWindow tests windows wider than policy are capped rather
// than rejected
func TestConstrainCapsWindow(t *testing.T) {
	g := NewGuardrails()
	_, bounded := g.Constrain("index=app error", testWindow(90*24*time.Hour))

	maxSpan := time.Duration(g.MaxRangeDays) * 24 * time.Hour
	if bounded.Duration() != maxSpan {
		t.Errorf("expected window capped to %s, got %s", maxSpan, bounded.Duration())
	}
}

// TestPlanProducesExecutablePlan tests the combined constrain-validate path
func TestPlanProducesExecutablePlan(t *testing.T) {
	g := NewGuardrails()
	plan, err := g.Plan("index=app_payments timeout", testWindow(90*24*time.Hour))
	if err != nil {
		t.Fatalf("expected wide window to be capped, got %v", err)
	}
	if plan.MaxRows != g.MaxRows {
		t.Errorf("expected MaxRows %d, got %d", g.MaxRows, plan.MaxRows)
	}
	if plan.Window.Duration() > time.Duration(g.MaxRangeDays)*24*time.Hour {
		t.Error("plan window exceeds policy maximum")
	}
}

// TestPlanRejectsDangerous tests the combined path still refuses destructive SPL
func TestPlanRejectsDangerous(t *testing.T) {
	g := NewGuardrails()
	_, err := g.Plan("index=app | delete", testWindow(time.Hour))
	if !core.IsPlanValidationError(err) {
		t.Errorf("expected plan validation error, got %v", err)
	}
}
