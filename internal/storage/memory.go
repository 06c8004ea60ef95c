package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/rulecontext-mcp/pkg/types"
)

// MemoryCatalogue is a Catalogue held entirely in memory. It backs tests and
// embedded use where no database file is wanted.
type MemoryCatalogue struct {
	mu           sync.RWMutex
	rules        []*types.BusinessRule
	incidents    map[string][]types.Incident
	ownerships   map[string][]types.Ownership
	projects     map[uuid.UUID]*types.Project
	projectRules map[uuid.UUID][]string
	dependencies map[string][]string
}

var _ Catalogue = (*MemoryCatalogue)(nil)

// NewMemoryCatalogue creates a catalogue holding rules in the given order
func NewMemoryCatalogue(rules ...*types.BusinessRule) *MemoryCatalogue {
	c := &MemoryCatalogue{
		incidents:    make(map[string][]types.Incident),
		ownerships:   make(map[string][]types.Ownership),
		projects:     make(map[uuid.UUID]*types.Project),
		projectRules: make(map[uuid.UUID][]string),
		dependencies: make(map[string][]string),
	}
	c.rules = append(c.rules, rules...)
	return c
}

// AddIncident attributes an incident to its rule
func (c *MemoryCatalogue) AddIncident(inc types.Incident) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := inc.BusinessRuleID.String()
	c.incidents[id] = append(c.incidents[id], inc)
}

// AddOwnership records an owner for its rule
func (c *MemoryCatalogue) AddOwnership(own types.Ownership) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := own.BusinessRuleID.String()
	c.ownerships[id] = append(c.ownerships[id], own)
}

// AddProject registers a project and its allow-list
func (c *MemoryCatalogue) AddProject(project types.Project, ruleIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := project
	c.projects[project.ID] = &p
	c.projectRules[project.ID] = append([]string(nil), ruleIDs...)
}

// AddDependency records that ruleID depends on dependsOn
func (c *MemoryCatalogue) AddDependency(ruleID, dependsOn string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dependencies[ruleID] = append(c.dependencies[ruleID], dependsOn)
}

func (c *MemoryCatalogue) FindAll(_ context.Context) ([]*types.BusinessRule, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*types.BusinessRule, len(c.rules))
	for i, r := range c.rules {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

func (c *MemoryCatalogue) FindByID(_ context.Context, id string) (*types.BusinessRule, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.rules {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (c *MemoryCatalogue) FindIncidentsByBusinessRuleID(_ context.Context, ruleID uuid.UUID) ([]types.Incident, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]types.Incident{}, c.incidents[ruleID.String()]...), nil
}

func (c *MemoryCatalogue) CountIncidents(_ context.Context, ruleIDs []string) (map[string]int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make(map[string]int, len(ruleIDs))
	for _, id := range ruleIDs {
		if n := len(c.incidents[id]); n > 0 {
			counts[id] = n
		}
	}
	return counts, nil
}

func (c *MemoryCatalogue) FindOwnershipsByBusinessRuleID(_ context.Context, ruleID uuid.UUID) ([]types.Ownership, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]types.Ownership{}, c.ownerships[ruleID.String()]...), nil
}

func (c *MemoryCatalogue) GetProject(_ context.Context, id uuid.UUID) (*types.Project, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// AllowedRuleIDs returns the project's rules in catalogue order, ignoring IDs
// that are not catalogued
func (c *MemoryCatalogue) AllowedRuleIDs(_ context.Context, projectID uuid.UUID) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	allowed := make(map[string]bool, len(c.projectRules[projectID]))
	for _, id := range c.projectRules[projectID] {
		allowed[id] = true
	}
	ids := make([]string, 0, len(allowed))
	for _, r := range c.rules {
		if allowed[r.ID] {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

func (c *MemoryCatalogue) CountDependencies(_ context.Context, ruleIDs []string) (map[string]types.DependencyCount, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	wanted := make(map[string]bool, len(ruleIDs))
	for _, id := range ruleIDs {
		wanted[id] = true
	}
	counts := make(map[string]types.DependencyCount)
	for from, targets := range c.dependencies {
		for _, to := range targets {
			if wanted[from] {
				dc := counts[from]
				dc.Upstream++
				counts[from] = dc
			}
			if wanted[to] {
				dc := counts[to]
				dc.Downstream++
				counts[to] = dc
			}
		}
	}
	return counts, nil
}
