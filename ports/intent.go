package ports

import (
	"context"

	"sleuth/domain/investigation"
)

// IntentExtractorPort turns a natural-language problem report into
// structured intent. Failing to parse the question is fatal to the
// investigation.
type IntentExtractorPort interface {
	Extract(ctx context.Context, question string, window string) (investigation.Intent, error)
}
