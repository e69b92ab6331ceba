package analysis

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"sleuth/domain/core"
	"sleuth/domain/evidence"
	"sleuth/domain/investigation"
)

// Correlator links events within a step's results by shared transaction
// identifiers and by temporal proximity, surfacing cross-service chains as
// correlation findings.
type Correlator struct {
	// TemporalWindow bounds how far apart two events may be and still be
	// treated as part of the same incident.
	TemporalWindow time.Duration
}

// NewCorrelator creates a correlator with the default 60s temporal window
func NewCorrelator() *Correlator {
	return &Correlator{TemporalWindow: 60 * time.Second}
}

var correlationFields = []string{
	"transactionId", "transaction_id",
	"traceId", "trace_id",
	"correlationId", "correlation_id",
}

var rawCorrelationPatterns = func() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(correlationFields))
	for _, field := range correlationFields {
		patterns = append(patterns, regexp.MustCompile(`(?i)`+field+`[=:]\s*["']?([a-zA-Z0-9\-_]+)["']?`))
	}
	return patterns
}()

// Correlate produces correlation findings from one step's events
func (c *Correlator) Correlate(stepID core.StepID, events []map[string]any, hyp *investigation.Hypothesis, observedAt core.Timestamp) []evidence.Finding {
	var findings []evidence.Finding

	for _, group := range c.groupByTransaction(events) {
		if len(group.events) < 2 {
			continue
		}
		significance := evidence.SignificanceMedium
		if len(group.services) > 1 {
			significance = evidence.SignificanceHigh
		}
		findings = append(findings, evidence.Finding{
			ID:           core.FindingID(core.NewID()),
			StepID:       stepID,
			Kind:         evidence.FindingCorrelation,
			Field:        "transaction",
			Pattern:      group.id,
			Count:        len(group.events),
			Significance: significance,
			Service:      hyp.Service,
			Summary: fmt.Sprintf("Transaction %s spans %d events across %s",
				group.id, len(group.events), strings.Join(group.serviceList(), ", ")),
			ObservedAt: observedAt,
		})
	}

	if cluster, ok := c.temporalErrorCluster(events); ok {
		findings = append(findings, evidence.Finding{
			ID:           core.FindingID(core.NewID()),
			StepID:       stepID,
			Kind:         evidence.FindingCorrelation,
			Field:        "temporal",
			Count:        cluster.size,
			Significance: evidence.SignificanceMedium,
			Service:      hyp.Service,
			Summary: fmt.Sprintf("%d error events clustered within %s of each other",
				cluster.size, c.TemporalWindow),
			ObservedAt: observedAt,
		})
	}

	return findings
}

type transactionGroup struct {
	id       string
	events   []map[string]any
	services map[string]bool
}

func (g *transactionGroup) serviceList() []string {
	out := make([]string, 0, len(g.services))
	for s := range g.services {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (c *Correlator) groupByTransaction(events []map[string]any) []*transactionGroup {
	byID := make(map[string]*transactionGroup)
	order := []string{}
	for _, event := range events {
		id := extractCorrelationID(event)
		if id == "" {
			continue
		}
		group, ok := byID[id]
		if !ok {
			group = &transactionGroup{id: id, services: make(map[string]bool)}
			byID[id] = group
			order = append(order, id)
		}
		group.events = append(group.events, event)
		group.services[eventService(event)] = true
	}

	groups := make([]*transactionGroup, 0, len(order))
	for _, id := range order {
		groups = append(groups, byID[id])
	}
	return groups
}

type errorCluster struct {
	size int
}

// temporalErrorCluster finds the largest run of error events whose pairwise
// gaps stay within the temporal window.
func (c *Correlator) temporalErrorCluster(events []map[string]any) (errorCluster, bool) {
	var times []time.Time
	for _, event := range events {
		if !isErrorEvent(event) {
			continue
		}
		if ts, ok := eventTime(event); ok {
			times = append(times, ts)
		}
	}
	if len(times) < 2 {
		return errorCluster{}, false
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	best, runStart := 1, 0
	for i := 1; i < len(times); i++ {
		if times[i].Sub(times[i-1]) > c.TemporalWindow {
			runStart = i
			continue
		}
		if size := i - runStart + 1; size > best {
			best = size
		}
	}
	if best < 2 {
		return errorCluster{}, false
	}
	return errorCluster{size: best}, true
}

func extractCorrelationID(event map[string]any) string {
	for _, field := range correlationFields {
		if v, ok := event[field]; ok && v != nil {
			if s := fmt.Sprintf("%v", v); s != "" {
				return s
			}
		}
	}
	raw := stringField(event, "_raw")
	if raw == "" {
		return ""
	}
	for _, pattern := range rawCorrelationPatterns {
		if m := pattern.FindStringSubmatch(raw); m != nil {
			return m[1]
		}
	}
	return ""
}

func eventService(event map[string]any) string {
	if s := stringField(event, "index", "source"); s != "" {
		return s
	}
	return "unknown"
}
