package ports

import (
	"context"

	"sleuth/domain/evidence"
	"sleuth/domain/investigation"
)

// IncidentMatch is one similar past incident retrieved from memory
type IncidentMatch struct {
	Summary    string  `json:"summary"`
	Resolution string  `json:"resolution,omitempty"`
	Similarity float64 `json:"similarity"`
	OccurredAt string  `json:"occurred_at,omitempty"`
}

// MemoryPort is the historical-incident memory. Unavailability degrades
// gracefully: the orchestrator proceeds with generator-only hypotheses.
type MemoryPort interface {
	SearchSimilar(ctx context.Context, question string, k int) ([]IncidentMatch, error)
	StoreInvestigation(ctx context.Context, inv *investigation.Investigation, ev []evidence.Evidence) error
}

// EmbeddingPort computes a vector for similarity search
type EmbeddingPort interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
