package indexer

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/dshills/rulecontext-mcp/pkg/types"
)

// ErrInvalidCatalogue is returned when a catalogue file fails validation
var ErrInvalidCatalogue = errors.New("invalid rule catalogue")

// CatalogueFile is the YAML document the indexer ingests. Rule order in the
// file becomes catalogue order, which is the ranking tie-break.
type CatalogueFile struct {
	Rules    []RuleEntry    `yaml:"rules"`
	Projects []ProjectEntry `yaml:"projects"`
}

// RuleEntry is one rule with its related records
type RuleEntry struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Domain      string           `yaml:"domain"`
	Criticality string           `yaml:"criticality"`
	Description string           `yaml:"description"`
	Content     string           `yaml:"content"`
	SourceFile  string           `yaml:"source_file"`
	DependsOn   []string         `yaml:"depends_on"`
	Incidents   []IncidentEntry  `yaml:"incidents"`
	Ownerships  []OwnershipEntry `yaml:"ownerships"`
}

type IncidentEntry struct {
	ID         string    `yaml:"id"`
	Title      string    `yaml:"title"`
	Severity   string    `yaml:"severity"`
	OccurredAt time.Time `yaml:"occurred_at"`
}

type OwnershipEntry struct {
	Team  string `yaml:"team"`
	Owner string `yaml:"owner"`
	Role  string `yaml:"role"`
}

// ProjectEntry is a project and its rule allow-list
type ProjectEntry struct {
	ID    string   `yaml:"id"`
	Name  string   `yaml:"name"`
	Rules []string `yaml:"rules"`
}

// LoadCatalogue reads and validates a catalogue file
func LoadCatalogue(path string) (*CatalogueFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalogue: %w", err)
	}
	return ParseCatalogue(data)
}

// ParseCatalogue decodes and validates a catalogue document
func ParseCatalogue(data []byte) (*CatalogueFile, error) {
	var cat CatalogueFile
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalogue, err)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Validate checks IDs, enums and references. Every rule ID must be a UUID
// because incidents and ownerships reference rules by UUID. Valid UUIDs are
// rewritten in place to their canonical lowercase form first, so every
// reference and every stored row uses the same spelling.
func (c *CatalogueFile) Validate() error {
	c.canonicalizeIDs()

	seen := make(map[string]bool, len(c.Rules))
	for i, entry := range c.Rules {
		if _, err := uuid.Parse(entry.ID); err != nil {
			return fmt.Errorf("%w: rule %d: id %q is not a UUID", ErrInvalidCatalogue, i, entry.ID)
		}
		if seen[entry.ID] {
			return fmt.Errorf("%w: duplicate rule id %s", ErrInvalidCatalogue, entry.ID)
		}
		seen[entry.ID] = true

		rule := entry.Rule()
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("%w: rule %s: %v", ErrInvalidCatalogue, entry.ID, err)
		}
		for _, inc := range entry.Incidents {
			if inc.ID == "" {
				continue
			}
			if _, err := uuid.Parse(inc.ID); err != nil {
				return fmt.Errorf("%w: rule %s: incident id %q is not a UUID", ErrInvalidCatalogue, entry.ID, inc.ID)
			}
		}
	}

	for _, entry := range c.Rules {
		for _, dep := range entry.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("%w: rule %s depends on unknown rule %s", ErrInvalidCatalogue, entry.ID, dep)
			}
			if dep == entry.ID {
				return fmt.Errorf("%w: rule %s depends on itself", ErrInvalidCatalogue, entry.ID)
			}
		}
	}

	projects := make(map[string]bool, len(c.Projects))
	for _, p := range c.Projects {
		if _, err := uuid.Parse(p.ID); err != nil {
			return fmt.Errorf("%w: project id %q is not a UUID", ErrInvalidCatalogue, p.ID)
		}
		if projects[p.ID] {
			return fmt.Errorf("%w: duplicate project id %s", ErrInvalidCatalogue, p.ID)
		}
		projects[p.ID] = true
		for _, id := range p.Rules {
			if !seen[id] {
				return fmt.Errorf("%w: project %s allows unknown rule %s", ErrInvalidCatalogue, p.ID, id)
			}
		}
	}
	return nil
}

// canonicalizeIDs rewrites every parseable UUID as uuid.UUID.String().
// Unparseable IDs are left alone for Validate to report.
func (c *CatalogueFile) canonicalizeIDs() {
	for i := range c.Rules {
		entry := &c.Rules[i]
		entry.ID = canonicalID(entry.ID)
		for j := range entry.DependsOn {
			entry.DependsOn[j] = canonicalID(entry.DependsOn[j])
		}
		for j := range entry.Incidents {
			if entry.Incidents[j].ID != "" {
				entry.Incidents[j].ID = canonicalID(entry.Incidents[j].ID)
			}
		}
	}
	for i := range c.Projects {
		p := &c.Projects[i]
		p.ID = canonicalID(p.ID)
		for j := range p.Rules {
			p.Rules[j] = canonicalID(p.Rules[j])
		}
	}
}

func canonicalID(id string) string {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return id
	}
	return parsed.String()
}

// Rule converts the entry into a BusinessRule. Enum fields are normalized;
// an empty domain becomes GERAL.
func (e RuleEntry) Rule() *types.BusinessRule {
	criticality, err := types.ParseCriticality(e.Criticality)
	if err != nil {
		criticality = types.Criticality(e.Criticality)
	}
	domain := types.Domain(strings.ToUpper(strings.TrimSpace(e.Domain)))
	if domain == "" {
		domain = types.DomainGeral
	}
	return &types.BusinessRule{
		ID:          e.ID,
		Name:        e.Name,
		Domain:      domain,
		Description: e.Description,
		Criticality: criticality,
		Content:     e.Content,
		SourceFile:  e.SourceFile,
	}
}

// incidents converts entries, leaving IDs unset when the file omits them
func (e RuleEntry) incidents(ruleID uuid.UUID) []types.Incident {
	out := make([]types.Incident, 0, len(e.Incidents))
	for _, inc := range e.Incidents {
		var id uuid.UUID
		if inc.ID != "" {
			id = uuid.MustParse(inc.ID)
		}
		out = append(out, types.Incident{
			ID:             id,
			BusinessRuleID: ruleID,
			Title:          inc.Title,
			Severity:       inc.Severity,
			OccurredAt:     inc.OccurredAt,
		})
	}
	return out
}

func (e RuleEntry) ownerships(ruleID uuid.UUID) []types.Ownership {
	out := make([]types.Ownership, 0, len(e.Ownerships))
	for _, own := range e.Ownerships {
		out = append(out, types.Ownership{
			BusinessRuleID: ruleID,
			Team:           own.Team,
			Owner:          own.Owner,
			Role:           own.Role,
		})
	}
	return out
}
