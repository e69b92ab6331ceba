package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"sleuth/domain/catalog"
	"sleuth/ports"
)

// GeneratorAdapter implements HypothesisGeneratorPort using the LLM with a
// heuristic fallback when generation fails or parses empty.
type GeneratorAdapter struct {
	client   *Client
	catalog  *catalog.Catalog
	fallback ports.HypothesisGeneratorPort
}

// NewGeneratorAdapter creates an LLM hypothesis generator
func NewGeneratorAdapter(client *Client, cat *catalog.Catalog, fallback ports.HypothesisGeneratorPort) *GeneratorAdapter {
	return &GeneratorAdapter{client: client, catalog: cat, fallback: fallback}
}

const generatorSystemPrompt = `You are an expert at root cause analysis and system troubleshooting.
Generate investigation hypotheses that will help identify the root cause of issues.
Respond in JSON format: {"hypotheses": [{"hypothesis": "...", "priority": 1, "query_template": "...", "service": "..."}]}.
Priority is 1 (highest) to 5 (lowest).`

type generatedHypothesis struct {
	Hypothesis    string `json:"hypothesis"`
	Priority      int    `json:"priority"`
	QueryTemplate string `json:"query_template"`
	Service       string `json:"service"`
}

type generationPayload struct {
	Hypotheses []generatedHypothesis `json:"hypotheses"`
}

// Generate produces the ranked initial hypothesis set for an investigation
func (g *GeneratorAdapter) Generate(ctx context.Context, gen ports.GenerationContext) ([]ports.HypothesisSeed, error) {
	payload, err := GetJSONResponse[generationPayload](ctx, g.client, generatorSystemPrompt, g.buildPrompt(gen))
	if err != nil || len(payload.Hypotheses) == 0 {
		if g.fallback == nil {
			if err != nil {
				return nil, fmt.Errorf("hypothesis generation failed: %w", err)
			}
			return nil, nil
		}
		log.Printf("[GeneratorAdapter] LLM generation unusable (%v), using heuristic fallback", err)
		return g.fallback.Generate(ctx, gen)
	}

	seeds := make([]ports.HypothesisSeed, 0, len(payload.Hypotheses))
	for _, h := range payload.Hypotheses {
		if strings.TrimSpace(h.Hypothesis) == "" {
			continue
		}
		priority := h.Priority
		if priority < 1 || priority > 5 {
			priority = 5
		}

		seed := ports.HypothesisSeed{
			Description:   h.Hypothesis,
			Priority:      priority,
			QueryTemplate: h.QueryTemplate,
			EstimatedCost: estimateCost(h.QueryTemplate),
		}
		if svc, ok := g.catalog.Find(h.Service); ok {
			seed.Service = svc.ID
			seed.EstimatedCost *= 0.5
		}
		seeds = append(seeds, seed)
	}

	log.Printf("[GeneratorAdapter] Generated %d hypothesis seed(s)", len(seeds))
	return seeds, nil
}

func (g *GeneratorAdapter) buildPrompt(gen ports.GenerationContext) string {
	var sb strings.Builder
	sb.WriteString("Based on the following question, generate 3-5 investigation hypotheses that should be tested to find the root cause.\n\n")
	sb.WriteString("Question: " + gen.Intent.Question + "\n")

	if len(gen.Intent.Entities) > 0 || len(gen.Intent.SymptomKeywords) > 0 {
		sb.WriteString("\nExtracted Information:\n")
		if len(gen.Intent.Entities) > 0 {
			sb.WriteString("Key Entities: " + strings.Join(gen.Intent.Entities, ", ") + "\n")
		}
		if len(gen.Intent.SymptomKeywords) > 0 {
			sb.WriteString("Symptom Keywords: " + strings.Join(gen.Intent.SymptomKeywords, ", ") + "\n")
		}
	}

	if len(gen.Intent.Services) > 0 {
		sb.WriteString("\nService Architecture Context:\n")
		for _, id := range gen.Intent.Services {
			svc, ok := g.catalog.Get(id)
			if !ok {
				continue
			}
			sb.WriteString(fmt.Sprintf("- Service: %s (Domain: %s, Tier: %s, Criticality: %s)\n",
				svc.ID, svc.Domain, svc.Tier, svc.Criticality))
			if len(svc.LogIndexes) > 0 {
				sb.WriteString("  Log Indexes: " + strings.Join(svc.LogIndexes, ", ") + "\n")
			}
			for _, dep := range svc.Upstream {
				sb.WriteString("  Upstream Dependency: " + dep.Service.String())
				if len(dep.FailureModes) > 0 {
					sb.WriteString(" (failure modes: " + strings.Join(dep.FailureModes, ", ") + ")")
				}
				sb.WriteString("\n")
			}
		}
		sb.WriteString("\nWhen generating hypotheses, consider:\n")
		sb.WriteString("1. Check the service itself for errors\n")
		sb.WriteString("2. Check upstream dependencies and their known failure modes\n")
		sb.WriteString("3. Use the correct log indexes for each service\n")
	}

	if len(gen.Historical) > 0 {
		sb.WriteString("\nHistorical Similar Incidents:\n")
		for i, incident := range gen.Historical {
			if i >= 3 {
				break
			}
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, truncate(incident.Summary, 200)))
		}
	}
	return sb.String()
}

// estimateCost grades the relative expense of a suggested query: unscoped
// wildcard searches cost more than index-scoped ones.
func estimateCost(queryTemplate string) float64 {
	lower := strings.ToLower(queryTemplate)
	switch {
	case queryTemplate == "":
		return 1.0
	case strings.Contains(lower, "index=*"):
		return 1.0
	case strings.Contains(lower, "index="):
		return 0.6
	default:
		return 0.8
	}
}
