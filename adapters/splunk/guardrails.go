package splunk

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"sleuth/domain/core"
	"sleuth/domain/investigation"
)

// Guardrails validates and constrains generated SPL before dispatch
type Guardrails struct {
	MaxQueryLength int
	MaxRangeDays   int
	MaxRows        int
}

// NewGuardrails returns the default query policy
func NewGuardrails() *Guardrails {
	return &Guardrails{
		MaxQueryLength: 10000,
		MaxRangeDays:   30,
		MaxRows:        1000,
	}
}

var dangerousCommands = []*regexp.Regexp{
	regexp.MustCompile(`\bdelete\b`),
	regexp.MustCompile(`eval.*delete`),
	regexp.MustCompile(`outputlookup.*append`),
}

// Validate rejects unsafe or out-of-policy queries. Violations surface as
// plan validation errors and fail the step without dispatch.
func (g *Guardrails) Validate(query string, window core.TimeWindow) error {
	if strings.TrimSpace(query) == "" {
		return core.ErrEmptyPlan
	}
	if len(query) > g.MaxQueryLength {
		return core.ErrPlanTooLong
	}

	lower := strings.ToLower(query)
	for _, dangerous := range dangerousCommands {
		if dangerous.MatchString(lower) {
			return fmt.Errorf("%w: %s", core.ErrDangerousPlan, dangerous.String())
		}
	}

	if window.Duration() > time.Duration(g.MaxRangeDays)*24*time.Hour {
		return core.ErrWindowTooWide
	}
	return nil
}

// Constrain injects time bounds into a query that has none and caps the
// window to the policy maximum.
func (g *Guardrails) Constrain(query string, window core.TimeWindow) (string, core.TimeWindow) {
	maxSpan := time.Duration(g.MaxRangeDays) * 24 * time.Hour
	if window.Duration() > maxSpan {
		window = core.NewTimeWindow(window.Start.Time(), window.Start.Time().Add(maxSpan))
	}

	lower := strings.ToLower(query)
	if !strings.Contains(lower, "earliest=") && !strings.Contains(lower, "latest=") {
		constraint := fmt.Sprintf(`earliest="%s" latest="%s"`,
			window.Start.Time().Format("2006-01-02T15:04:05"),
			window.End.Time().Format("2006-01-02T15:04:05"))
		if strings.Contains(query, "index=") {
			query = strings.Replace(query, "index=", constraint+" index=", 1)
		} else {
			query = constraint + " " + query
		}
	}
	return query, window
}

// Plan caps the window, injects time bounds, and validates the result into
// an executable plan.
func (g *Guardrails) Plan(query string, window core.TimeWindow) (investigation.QueryPlan, error) {
	constrained, bounded := g.Constrain(query, window)
	if err := g.Validate(constrained, bounded); err != nil {
		return investigation.QueryPlan{}, err
	}
	return investigation.QueryPlan{
		QueryText: constrained,
		Window:    bounded,
		MaxRows:   g.MaxRows,
	}, nil
}
