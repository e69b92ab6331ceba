package splunk

import (
	"context"
	"fmt"
	"log"
	"strings"

	"sleuth/adapters/llm"
	"sleuth/domain/catalog"
	"sleuth/domain/core"
	"sleuth/domain/investigation"
)

// Planner implements QueryPlannerPort: it asks the LLM for SPL targeting
// the hypothesis and passes the result through the guardrails. When the
// hypothesis carries a query template, that template is used directly.
type Planner struct {
	client     *llm.Client
	catalog    *catalog.Catalog
	guardrails *Guardrails
}

// NewPlanner creates a query planner
func NewPlanner(client *llm.Client, cat *catalog.Catalog, guardrails *Guardrails) *Planner {
	if guardrails == nil {
		guardrails = NewGuardrails()
	}
	return &Planner{client: client, catalog: cat, guardrails: guardrails}
}

const plannerSystemPrompt = `You are an expert at writing SPL (Splunk Processing Language) queries.
Generate one SPL query that tests the given hypothesis. Use only the indexes listed.
Never use destructive commands. Respond in JSON format: {"query": "..."}.`

type plannedQuery struct {
	Query string `json:"query"`
}

// Plan produces a validated, time-constrained query plan for a hypothesis
func (p *Planner) Plan(ctx context.Context, hyp *investigation.Hypothesis, intent investigation.Intent, window core.TimeWindow) (investigation.QueryPlan, error) {
	queryText := hyp.QueryHint
	if queryText == "" {
		payload, err := llm.GetJSONResponse[plannedQuery](ctx, p.client, plannerSystemPrompt, p.buildPrompt(hyp, intent))
		if err != nil {
			return investigation.QueryPlan{}, fmt.Errorf("query plan generation failed: %w", err)
		}
		queryText = payload.Query
	}

	plan, err := p.guardrails.Plan(queryText, window)
	if err != nil {
		log.Printf("[Planner] Plan for hypothesis %s rejected: %v", hyp.ID, err)
		return investigation.QueryPlan{}, err
	}
	return plan, nil
}

func (p *Planner) buildPrompt(hyp *investigation.Hypothesis, intent investigation.Intent) string {
	var sb strings.Builder
	sb.WriteString("Hypothesis to test: " + hyp.Description + "\n")
	sb.WriteString("Original question: " + intent.Question + "\n")

	indexes := p.candidateIndexes(hyp, intent)
	if len(indexes) > 0 {
		sb.WriteString("Available indexes: " + strings.Join(indexes, ", ") + "\n")
	}
	if len(intent.SymptomKeywords) > 0 {
		sb.WriteString("Symptom keywords: " + strings.Join(intent.SymptomKeywords, ", ") + "\n")
	}
	if containsPattern(intent.QueryPatterns, "first_occurrence") {
		sb.WriteString("The question asks for the FIRST occurrence: sort ascending by _time and return the earliest event.\n")
	}
	return sb.String()
}

func (p *Planner) candidateIndexes(hyp *investigation.Hypothesis, intent investigation.Intent) []string {
	if hyp.Service != "" {
		if indexes := p.catalog.Indexes(hyp.Service); len(indexes) > 0 {
			return indexes
		}
	}
	var indexes []string
	for _, svc := range intent.Services {
		indexes = append(indexes, p.catalog.Indexes(svc)...)
	}
	indexes = append(indexes, intent.Indexes...)
	return indexes
}

func containsPattern(patterns []string, want string) bool {
	for _, p := range patterns {
		if p == want {
			return true
		}
	}
	return false
}
