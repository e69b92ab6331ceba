package ports

import (
	"context"

	"sleuth/domain/core"
	"sleuth/domain/investigation"
)

// QueryPlannerPort produces an executable query plan for a hypothesis.
// Plans that violate policy surface as validation errors and fail the step
// without dispatch.
type QueryPlannerPort interface {
	Plan(ctx context.Context, hyp *investigation.Hypothesis, intent investigation.Intent, window core.TimeWindow) (investigation.QueryPlan, error)
}

// QueryResult is the raw, loosely-typed payload from the log platform,
// validated at the boundary before entering the scoring pipeline.
type QueryResult struct {
	Events     []map[string]any `json:"events"`
	TotalCount int              `json:"total_count"`
	Fields     []string         `json:"fields,omitempty"`
	ResultRef  string           `json:"result_ref,omitempty"`
}

// QueryExecutorPort runs a plan against the log/metric platform, bounded by
// the scheduler's query timeout.
type QueryExecutorPort interface {
	Execute(ctx context.Context, plan investigation.QueryPlan) (*QueryResult, error)
}
