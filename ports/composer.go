package ports

import (
	"context"

	"sleuth/domain/evidence"
	"sleuth/domain/investigation"
)

// Composition is a grounded explanation for the best-supported hypothesis
type Composition struct {
	Explanation     string   `json:"explanation"`
	ExplanationHTML string   `json:"explanation_html,omitempty"`
	Citations       []string `json:"citations,omitempty"`
}

// AnswerComposerPort turns the winning hypothesis, its evidence set, and the
// confidence breakdown into the final answer text.
type AnswerComposerPort interface {
	Compose(ctx context.Context, hyp *investigation.Hypothesis, ev []evidence.Evidence, findings []evidence.Finding, conf evidence.ConfidenceResult) (*Composition, error)
}
