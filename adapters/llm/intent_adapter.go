package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"sleuth/domain/catalog"
	"sleuth/domain/core"
	"sleuth/domain/investigation"
)

// IntentAdapter implements IntentExtractorPort using the LLM with
// catalog-validated entity extraction.
type IntentAdapter struct {
	client  *Client
	catalog *catalog.Catalog
	now     func() time.Time
}

// NewIntentAdapter creates an intent extractor bound to a service catalog
func NewIntentAdapter(client *Client, cat *catalog.Catalog) *IntentAdapter {
	return &IntentAdapter{client: client, catalog: cat, now: time.Now}
}

type intentPayload struct {
	Entities        []string `json:"entities"`
	TimeReferences  []string `json:"time_references"`
	SymptomKeywords []string `json:"symptom_keywords"`
	QueryPatterns   []string `json:"query_patterns"`
}

const intentSystemPrompt = `You are an expert at analyzing technical questions and extracting key information.
Extract entities, time references, and symptom keywords from the question.
IMPORTANT: Only extract service names that exist in the provided service catalog. Do not hallucinate or invent service names.
Respond with a JSON object with keys: entities, time_references, symptom_keywords, query_patterns.`

// Extract turns a question into catalog-validated structured intent
func (a *IntentAdapter) Extract(ctx context.Context, question string, window string) (investigation.Intent, error) {
	if strings.TrimSpace(question) == "" {
		return investigation.Intent{}, core.ErrNoIntent
	}

	tw, err := core.ParseTimeWindow(window, a.now())
	if err != nil {
		return investigation.Intent{}, fmt.Errorf("%w: %v", core.ErrInvalidTimeWindow, err)
	}

	intent := investigation.Intent{
		Question: question,
		Window:   tw,
	}

	payload, err := GetJSONResponse[intentPayload](ctx, a.client, intentSystemPrompt, a.buildPrompt(question))
	if err != nil {
		// Degrade to keyword-only intent; the orchestrator decides
		// whether enough signal remains to proceed.
		log.Printf("[IntentAdapter] LLM extraction failed, falling back to keywords: %v", err)
		payload = &intentPayload{}
	}

	intent.SymptomKeywords = payload.SymptomKeywords
	intent.QueryPatterns = payload.QueryPatterns
	a.addKeywordPatterns(question, &intent)

	// Validate extracted entities: exact service match first, then a log
	// index owned by a cataloged service.
	for _, entity := range payload.Entities {
		if svc, ok := a.catalog.Find(entity); ok {
			intent.Services = appendUniqueService(intent.Services, svc.ID)
			intent.Entities = append(intent.Entities, entity)
			continue
		}
		if svc, ok := a.catalog.FindByIndex(entity); ok {
			intent.Indexes = append(intent.Indexes, entity)
			intent.Services = appendUniqueService(intent.Services, svc.ID)
			intent.Entities = append(intent.Entities, entity)
			continue
		}
		log.Printf("[IntentAdapter] Entity %q not in service catalog, ignoring", entity)
	}

	log.Printf("[IntentAdapter] Extracted intent: %d service(s), %d keyword(s)",
		len(intent.Services), len(intent.SymptomKeywords))
	return intent, nil
}

func (a *IntentAdapter) buildPrompt(question string) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following question and extract:\n")
	sb.WriteString("1. Key entities (services, systems, components, or log indexes) - ONLY use names from the catalog below\n")
	sb.WriteString("2. Time references (if any)\n")
	sb.WriteString("3. Symptom keywords (errors, issues, problems)\n")
	sb.WriteString("4. Special query patterns: \"origin\"/\"first occurrence\" means find the earliest occurrence; \"trace\" means follow a transaction; \"count\" means aggregate\n\n")

	sb.WriteString("Available Services in Catalog:\n")
	for _, id := range a.catalog.ServiceIDs() {
		svc, _ := a.catalog.Get(id)
		sb.WriteString("- " + id.String())
		if svc.Domain != "" {
			sb.WriteString(fmt.Sprintf(" (domain: %s, tier: %s)", svc.Domain, svc.Tier))
		}
		if len(svc.LogIndexes) > 0 {
			sb.WriteString(" - log indexes: " + strings.Join(svc.LogIndexes, ", "))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\nQuestion: " + question + "\n\n")
	sb.WriteString("CRITICAL INSTRUCTIONS:\n")
	sb.WriteString("- Extract service names that EXACTLY match one of the services listed above\n")
	sb.WriteString("- Do NOT invent, guess, or hallucinate service names or indexes\n")
	sb.WriteString("- If the question mentions a service not in the catalog, do NOT include it in entities\n")
	return sb.String()
}

// addKeywordPatterns supplements LLM patterns with direct keyword checks
func (a *IntentAdapter) addKeywordPatterns(question string, intent *investigation.Intent) {
	lower := strings.ToLower(question)
	originKeywords := []string{"origin", "first occurrence", "earliest", "where did it start", "where did it come from"}
	for _, kw := range originKeywords {
		if strings.Contains(lower, kw) {
			intent.QueryPatterns = appendUnique(intent.QueryPatterns, "origin")
			intent.QueryPatterns = appendUnique(intent.QueryPatterns, "first_occurrence")
			break
		}
	}
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}

func appendUniqueService(list []core.ServiceID, item core.ServiceID) []core.ServiceID {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
