package ports

import (
	"context"

	"sleuth/domain/core"
	"sleuth/domain/investigation"
)

// HypothesisSeed is one generated candidate before it enters the store
type HypothesisSeed struct {
	Description   string         `json:"description"`
	Priority      int            `json:"priority"` // 1 = highest, 5 = lowest
	QueryTemplate string         `json:"query_template,omitempty"`
	Service       core.ServiceID `json:"service,omitempty"`
	EstimatedCost float64        `json:"estimated_cost,omitempty"`
}

// GenerationContext carries everything the generator may condition on
type GenerationContext struct {
	Intent     investigation.Intent
	Historical []IncidentMatch
}

// HypothesisGeneratorPort creates the ranked initial hypothesis set.
// An empty result fails the investigation.
type HypothesisGeneratorPort interface {
	Generate(ctx context.Context, gen GenerationContext) ([]HypothesisSeed, error)
}
