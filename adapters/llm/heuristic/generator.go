package heuristic

import (
	"context"
	"fmt"
	"strings"

	"sleuth/domain/catalog"
	"sleuth/ports"
)

// Generator creates fallback hypotheses from the catalog and intent alone,
// used when LLM generation is unavailable or returns nothing usable.
type Generator struct {
	catalog *catalog.Catalog
}

// NewGenerator creates a heuristic hypothesis generator
func NewGenerator(cat *catalog.Catalog) *Generator {
	return &Generator{catalog: cat}
}

// Generate builds rule-based hypotheses: errors in the named services, their
// upstream dependencies' failure modes, then generic error scans.
func (g *Generator) Generate(ctx context.Context, gen ports.GenerationContext) ([]ports.HypothesisSeed, error) {
	var seeds []ports.HypothesisSeed

	for _, id := range gen.Intent.Services {
		svc, ok := g.catalog.Get(id)
		if !ok {
			continue
		}

		indexClause := "index=*"
		if len(svc.LogIndexes) > 0 {
			indexClause = "index=" + svc.LogIndexes[0]
		}
		seeds = append(seeds, ports.HypothesisSeed{
			Description:   fmt.Sprintf("Service %s is logging errors matching the reported symptom", id),
			Priority:      1,
			QueryTemplate: indexClause + " error OR failed OR exception | stats count by source",
			Service:       id,
			EstimatedCost: 0.5,
		})

		for _, dep := range svc.Upstream {
			desc := fmt.Sprintf("Upstream service %s is failing and cascading into %s", dep.Service, id)
			if len(dep.FailureModes) > 0 {
				desc = fmt.Sprintf("Upstream service %s is hitting %s and cascading into %s",
					dep.Service, strings.Join(dep.FailureModes, "/"), id)
			}
			depIndex := "index=*"
			if indexes := g.catalog.Indexes(dep.Service); len(indexes) > 0 {
				depIndex = "index=" + indexes[0]
			}
			seeds = append(seeds, ports.HypothesisSeed{
				Description:   desc,
				Priority:      2,
				QueryTemplate: depIndex + " error OR timeout OR 5* | stats count by status",
				Service:       dep.Service,
				EstimatedCost: 0.6,
			})
		}
	}

	if len(seeds) == 0 {
		seeds = append(seeds,
			ports.HypothesisSeed{
				Description:   "Error logs matching the reported symptom exist in the window",
				Priority:      1,
				QueryTemplate: "index=* error OR failed OR exception | timechart count",
				EstimatedCost: 1.0,
			},
			ports.HypothesisSeed{
				Description:   "A service outage or degradation occurred in the window",
				Priority:      2,
				QueryTemplate: "index=* status=* | stats count by status",
				EstimatedCost: 1.0,
			},
		)
	}
	return seeds, nil
}
