package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"sleuth/domain/core"
	"sleuth/domain/evidence"
	"sleuth/domain/investigation"
	"sleuth/ports"
)

// Analyzer implements AnalyzerPort with deterministic rules: low-cardinality
// field patterns, error-rate spikes over time buckets, and an absence finding
// when a query returns nothing.
type Analyzer struct {
	correlator *Correlator
	now        func() core.Timestamp
}

// NewAnalyzer creates a rule-based result analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		correlator: NewCorrelator(),
		now:        core.Now,
	}
}

// lowCardinalityMax is the distinct-value ceiling for pattern extraction
const lowCardinalityMax = 5

// Analyze extracts findings from one step's query results
func (a *Analyzer) Analyze(ctx context.Context, stepID core.StepID, results *ports.QueryResult, hyp *investigation.Hypothesis, intent investigation.Intent) (*ports.Analysis, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	observedAt := a.now()

	if results == nil || results.TotalCount == 0 {
		finding := evidence.Finding{
			ID:           core.FindingID(core.NewID()),
			StepID:       stepID,
			Kind:         evidence.FindingAbsence,
			Significance: evidence.SignificanceMedium,
			Service:      hyp.Service,
			Summary:      "No results found for hypothesis: " + hyp.Description,
			ObservedAt:   observedAt,
		}
		return &ports.Analysis{
			Summary:  finding.Summary,
			Findings: []evidence.Finding{finding},
		}, nil
	}

	var findings []evidence.Finding
	findings = append(findings, a.extractPatterns(stepID, results.Events, hyp, intent, observedAt)...)

	if spike, ok := a.detectErrorSpike(stepID, results.Events, hyp, observedAt); ok {
		findings = append(findings, spike)
	}
	findings = append(findings, a.correlator.Correlate(stepID, results.Events, hyp, observedAt)...)

	summary := summarize(results.TotalCount, findings)
	return &ports.Analysis{
		Summary:    summary,
		Findings:   findings,
		Sufficient: results.TotalCount > 0 && len(findings) >= 2,
	}, nil
}

// extractPatterns groups events by field and reports the dominant value of
// each low-cardinality field, flagging values that match the intent.
func (a *Analyzer) extractPatterns(stepID core.StepID, events []map[string]any, hyp *investigation.Hypothesis, intent investigation.Intent, observedAt core.Timestamp) []evidence.Finding {
	entities := lowerAll(intent.Entities)
	keywords := lowerAll(intent.SymptomKeywords)

	fieldCounts := make(map[string]map[string]int)
	fieldOrder := []string{}
	for _, event := range events {
		for field, value := range event {
			if field == "_time" || field == "_raw" {
				continue
			}
			if _, ok := fieldCounts[field]; !ok {
				fieldCounts[field] = make(map[string]int)
				fieldOrder = append(fieldOrder, field)
			}
			fieldCounts[field][fmt.Sprintf("%v", value)]++
		}
	}
	sort.Strings(fieldOrder)

	var findings []evidence.Finding
	for _, field := range fieldOrder {
		counts := fieldCounts[field]
		if len(counts) > lowCardinalityMax {
			continue
		}

		topValue, topCount := dominantValue(counts)
		valueLower := strings.ToLower(topValue)
		matches := matchesAny(valueLower, entities) || matchesAny(valueLower, keywords)

		significance := evidence.SignificanceMedium
		if matches || topCount > len(events)/2 {
			significance = evidence.SignificanceHigh
		}

		summary := fmt.Sprintf("%s=%s (count: %d)", field, topValue, topCount)
		if matches {
			summary += " (matches extracted entities/keywords)"
		}

		findings = append(findings, evidence.Finding{
			ID:            core.FindingID(core.NewID()),
			StepID:        stepID,
			Kind:          evidence.FindingPattern,
			Field:         field,
			Pattern:       topValue,
			Count:         topCount,
			Significance:  significance,
			MatchesIntent: matches,
			Service:       hyp.Service,
			Summary:       summary,
			ObservedAt:    observedAt,
		})
	}

	// Intent matches first, then high significance.
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].MatchesIntent != findings[j].MatchesIntent {
			return findings[i].MatchesIntent
		}
		return findings[i].Significance == evidence.SignificanceHigh &&
			findings[j].Significance != evidence.SignificanceHigh
	})
	return findings
}

// detectErrorSpike buckets error events by minute and reports a spike when
// the peak bucket stands out from the mean.
func (a *Analyzer) detectErrorSpike(stepID core.StepID, events []map[string]any, hyp *investigation.Hypothesis, observedAt core.Timestamp) (evidence.Finding, bool) {
	buckets := make(map[int64]float64)
	errorTotal := 0
	for _, event := range events {
		if !isErrorEvent(event) {
			continue
		}
		errorTotal++
		ts, ok := eventTime(event)
		if !ok {
			continue
		}
		buckets[ts.Unix()/60]++
	}
	if errorTotal == 0 || len(buckets) < 2 {
		return evidence.Finding{}, false
	}

	counts := make([]float64, 0, len(buckets))
	peak := 0.0
	for _, c := range buckets {
		counts = append(counts, c)
		if c > peak {
			peak = c
		}
	}

	mean, err := stats.Mean(counts)
	if err != nil || mean == 0 {
		return evidence.Finding{}, false
	}
	stddev, err := stats.StandardDeviation(counts)
	if err != nil {
		return evidence.Finding{}, false
	}

	// Peak less than two deviations above the mean is ordinary noise.
	if stddev > 0 && (peak-mean)/stddev < 2.0 {
		return evidence.Finding{}, false
	}

	magnitude := (peak - mean) / (mean + 1)
	if magnitude > 1 {
		magnitude = 1
	}
	if magnitude <= 0 {
		return evidence.Finding{}, false
	}

	return evidence.Finding{
		ID:           core.FindingID(core.NewID()),
		StepID:       stepID,
		Kind:         evidence.FindingErrorSpike,
		Count:        errorTotal,
		Magnitude:    magnitude,
		Significance: evidence.SignificanceHigh,
		Service:      hyp.Service,
		Summary:      fmt.Sprintf("Error rate spike: %d error events, peak minute %.0fx the average", errorTotal, peak/mean),
		ObservedAt:   observedAt,
	}, true
}

func summarize(count int, findings []evidence.Finding) string {
	summary := fmt.Sprintf("Found %d results. ", count)
	for _, f := range findings {
		if f.Kind == evidence.FindingPattern {
			note := ""
			if f.MatchesIntent {
				note = " (matches extracted entities/keywords)"
			}
			return summary + fmt.Sprintf("Key pattern: %s=%s (count: %d)%s", f.Field, f.Pattern, f.Count, note)
		}
	}
	if len(findings) > 0 {
		return summary + findings[0].Summary
	}
	return summary + "No clear patterns identified."
}

func dominantValue(counts map[string]int) (string, int) {
	topValue, topCount := "", -1
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, value := range keys {
		if counts[value] > topCount {
			topValue, topCount = value, counts[value]
		}
	}
	return topValue, topCount
}

func matchesAny(value string, terms []string) bool {
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(value, term) || strings.Contains(term, value) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}

var errorIndicators = []string{"error", "exception", "failed", "failure", "timeout"}

func isErrorEvent(event map[string]any) bool {
	level := strings.ToLower(stringField(event, "level", "log_level"))
	if level == "error" || level == "fatal" || level == "critical" {
		return true
	}
	raw := strings.ToLower(stringField(event, "_raw"))
	for _, term := range errorIndicators {
		if strings.Contains(raw, term) {
			return true
		}
	}
	return false
}

func stringField(event map[string]any, fields ...string) string {
	for _, f := range fields {
		if v, ok := event[f]; ok && v != nil {
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

// eventTime extracts an event timestamp across the field names Splunk emits
func eventTime(event map[string]any) (time.Time, bool) {
	raw := stringField(event, "time", "_time", "timestamp")
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	if len(raw) >= 19 {
		if ts, err := time.Parse("2006-01-02T15:04:05", raw[:19]); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
