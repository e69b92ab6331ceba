package ports

import (
	"context"

	"sleuth/domain/core"
	"sleuth/domain/evidence"
	"sleuth/domain/investigation"
)

// Analysis is the structured outcome of inspecting one step's results
type Analysis struct {
	Summary  string             `json:"summary"`
	Findings []evidence.Finding `json:"findings"`
	// Sufficient indicates the analyzer believes this step alone carries
	// enough signal that further probing of the hypothesis adds little.
	Sufficient bool `json:"sufficient"`
}

// AnalyzerPort converts raw query results into typed findings for a step
type AnalyzerPort interface {
	Analyze(ctx context.Context, stepID core.StepID, results *QueryResult, hyp *investigation.Hypothesis, intent investigation.Intent) (*Analysis, error)
}
