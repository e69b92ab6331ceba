package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"sleuth/domain/core"
)

// Dependency is an upstream service with its known failure modes
type Dependency struct {
	Service      core.ServiceID `json:"service"`
	FailureModes []string       `json:"failure_modes,omitempty"`
}

// Service describes one entry in the service catalog
type Service struct {
	ID          core.ServiceID   `json:"service_id"`
	Domain      string           `json:"domain,omitempty"`
	Tier        string           `json:"tier,omitempty"`
	Criticality string           `json:"criticality,omitempty"`
	LogIndexes  []string         `json:"log_indexes,omitempty"`
	Upstream    []Dependency     `json:"upstream_dependencies,omitempty"`
	Downstream  []core.ServiceID `json:"downstream_dependencies,omitempty"`
}

// Catalog holds service relationships and observability metadata used to
// validate extracted intent and to follow dependency chains during probing.
type Catalog struct {
	services map[core.ServiceID]Service
}

type catalogFile struct {
	Services map[string]Service `json:"services"`
}

// Load reads a catalog from a JSON file
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read service catalog: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from raw JSON
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse service catalog JSON: %w", err)
	}

	c := &Catalog{services: make(map[core.ServiceID]Service, len(file.Services))}
	for id, svc := range file.Services {
		svc.ID = core.ServiceID(id)
		c.services[svc.ID] = svc
	}
	return c, nil
}

// Empty returns a catalog with no services
func Empty() *Catalog {
	return &Catalog{services: make(map[core.ServiceID]Service)}
}

// Len returns the number of cataloged services
func (c *Catalog) Len() int { return len(c.services) }

// ServiceIDs lists every cataloged service id
func (c *Catalog) ServiceIDs() []core.ServiceID {
	ids := make([]core.ServiceID, 0, len(c.services))
	for id := range c.services {
		ids = append(ids, id)
	}
	return ids
}

// Get returns a service by exact id
func (c *Catalog) Get(id core.ServiceID) (Service, bool) {
	svc, ok := c.services[id]
	return svc, ok
}

// Find locates a service by name: exact, case-insensitive, then partial match
func (c *Catalog) Find(name string) (Service, bool) {
	if svc, ok := c.services[core.ServiceID(name)]; ok {
		return svc, true
	}

	lower := strings.ToLower(name)
	for id, svc := range c.services {
		if strings.ToLower(id.String()) == lower {
			return svc, true
		}
	}
	for id, svc := range c.services {
		idLower := strings.ToLower(id.String())
		if strings.Contains(idLower, lower) || strings.Contains(lower, idLower) {
			return svc, true
		}
	}
	return Service{}, false
}

// FindByEntities resolves a list of entity names to cataloged services
func (c *Catalog) FindByEntities(entities []string) []Service {
	var matched []Service
	seen := make(map[core.ServiceID]bool)
	for _, entity := range entities {
		if svc, ok := c.Find(entity); ok && !seen[svc.ID] {
			seen[svc.ID] = true
			matched = append(matched, svc)
		}
	}
	return matched
}

// FindByIndex returns the service owning a log index
func (c *Catalog) FindByIndex(index string) (Service, bool) {
	lower := strings.ToLower(index)
	for _, svc := range c.services {
		for _, idx := range svc.LogIndexes {
			if strings.ToLower(idx) == lower {
				return svc, true
			}
		}
	}
	return Service{}, false
}

// Indexes returns the log indexes owned by a service
func (c *Catalog) Indexes(id core.ServiceID) []string {
	return c.services[id].LogIndexes
}

// UpstreamDependencies returns the upstream services a service depends on
func (c *Catalog) UpstreamDependencies(id core.ServiceID) []Dependency {
	return c.services[id].Upstream
}
