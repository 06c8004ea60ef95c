package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Criticality is the ordinal business-importance tier of a rule
type Criticality string

const (
	CriticalityBaixa   Criticality = "BAIXA"
	CriticalityMedia   Criticality = "MEDIA"
	CriticalityAlta    Criticality = "ALTA"
	CriticalityCritica Criticality = "CRITICA"
)

// Ordinal maps the tier onto 1..4 (BAIXA=1, CRITICA=4).
// Unknown values map to 0 so they always sort last.
func (c Criticality) Ordinal() int {
	switch c {
	case CriticalityBaixa:
		return 1
	case CriticalityMedia:
		return 2
	case CriticalityAlta:
		return 3
	case CriticalityCritica:
		return 4
	default:
		return 0
	}
}

// Valid reports whether c is one of the four known tiers
func (c Criticality) Valid() bool {
	return c.Ordinal() > 0
}

// ParseCriticality parses a case-insensitive tier name
func ParseCriticality(s string) (Criticality, error) {
	c := Criticality(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", ErrInvalidCriticality
	}
	return c, nil
}

// Domain groups rules by business area
type Domain string

const (
	DomainPagamento   Domain = "PAGAMENTO"
	DomainCadastro    Domain = "CADASTRO"
	DomainFinanceiro  Domain = "FINANCEIRO"
	DomainTrabalhista Domain = "TRABALHISTA"
	DomainFiscal      Domain = "FISCAL"
	DomainGeral       Domain = "GERAL"
)

// BusinessRule is a catalogued rule. It is read-only for retrieval.
type BusinessRule struct {
	ID          string // UUID text
	Name        string
	Domain      Domain
	Description string
	Criticality Criticality
	Content     string
	SourceFile  string // Optional
}

// Validate checks the fields required to index a rule
func (r *BusinessRule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrInvalidRuleID
	}
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyRuleName
	}
	if !r.Criticality.Valid() {
		return ErrInvalidCriticality
	}
	return nil
}

// EmbeddingText is the text sent to the embedding provider when indexing
func (r *BusinessRule) EmbeddingText() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if r.Description != "" {
		b.WriteString("\n")
		b.WriteString(r.Description)
	}
	if r.Content != "" {
		b.WriteString("\n")
		b.WriteString(r.Content)
	}
	return b.String()
}

// Incident is a production incident attributed to a rule
type Incident struct {
	ID             uuid.UUID
	BusinessRuleID uuid.UUID
	Title          string
	Severity       string
	OccurredAt     time.Time
}

// Ownership names the team accountable for a rule
type Ownership struct {
	ID             uuid.UUID
	BusinessRuleID uuid.UUID
	Team           string
	Owner          string
	Role           string
}

// DependencyCount summarizes a rule's position in the dependency graph
type DependencyCount struct {
	Upstream   int // Rules this rule depends on
	Downstream int // Rules that depend on this rule
}

// Project scopes retrieval to an allow-list of rule IDs
type Project struct {
	ID   uuid.UUID
	Name string
}
