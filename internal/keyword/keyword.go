package keyword

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/dshills/rulecontext-mcp/internal/normalizer"
	"github.com/dshills/rulecontext-mcp/pkg/types"
)

var (
	// ErrNoCategories is returned when a table defines no categories
	ErrNoCategories = errors.New("keyword table has no categories")
	// ErrInvalidCategory is returned for a category missing a name or terms
	ErrInvalidCategory = errors.New("invalid keyword category")
)

// Category is one lexical concept. A question activates it through Triggers,
// and a rule satisfies it through Targets.
type Category struct {
	Name     string   `yaml:"name"`
	Triggers []string `yaml:"triggers"`
	Targets  []string `yaml:"targets"`
}

// Table is the on-disk form of a category list
type Table struct {
	Categories []Category `yaml:"categories"`
}

// DefaultCategories is the built-in table
func DefaultCategories() []Category {
	return []Category{
		{
			Name:     "pagamento",
			Triggers: []string{"pagamento", "pagar", "pix", "boleto", "transferencia", "cobranca"},
			Targets:  []string{"pagamento", "pix", "boleto", "transferencia", "cobranca"},
		},
		{
			Name:     "pj",
			Triggers: []string{"pj", "pessoa juridica", "cnpj", "empresa"},
			Targets:  []string{"pj", "cnpj", "pessoa juridica", "juridica"},
		},
		{
			Name:     "pf",
			Triggers: []string{"pf", "pessoa fisica", "cpf"},
			Targets:  []string{"pf", "cpf", "pessoa fisica", "fisica"},
		},
		{
			Name:     "validacao",
			Triggers: []string{"validacao", "validar", "valida", "cadastro", "cadastrar", "registro"},
			Targets:  []string{"validacao", "valida", "cadastro", "registro"},
		},
		{
			Name:     "calculo",
			Triggers: []string{"calculo", "calcular", "hora", "jornada"},
			Targets:  []string{"calculo", "hora", "jornada"},
		},
	}
}

// Result is a rule's keyword match
type Result struct {
	Score      int      // Number of matched categories
	Categories []string // Matched category names, in table order
}

// compiled holds a category with normalized, space-prefixed terms
type compiled struct {
	name     string
	triggers []string
	targets  []string
}

// Matcher scores rules against a question. It is immutable after construction
// and safe for concurrent use.
type Matcher struct {
	categories []compiled
}

// New builds a matcher from a category table. Terms are normalized the same
// way questions are.
func New(categories []Category) (*Matcher, error) {
	if len(categories) == 0 {
		return nil, ErrNoCategories
	}

	m := &Matcher{categories: make([]compiled, 0, len(categories))}
	seen := make(map[string]bool, len(categories))
	for _, c := range categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: missing name", ErrInvalidCategory)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidCategory, name)
		}
		seen[name] = true

		triggers := compileTerms(c.Triggers)
		targets := compileTerms(c.Targets)
		if len(triggers) == 0 || len(targets) == 0 {
			return nil, fmt.Errorf("%w: %q needs triggers and targets", ErrInvalidCategory, name)
		}
		m.categories = append(m.categories, compiled{name: name, triggers: triggers, targets: targets})
	}
	return m, nil
}

// Default returns a matcher over DefaultCategories
func Default() *Matcher {
	m, err := New(DefaultCategories())
	if err != nil {
		panic(err)
	}
	return m
}

// LoadFile reads a YAML table and builds a matcher from it
func LoadFile(path string) (*Matcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyword table: %w", err)
	}

	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse keyword table %s: %w", path, err)
	}
	return New(table.Categories)
}

// CategoryNames returns the category names in table order
func (m *Matcher) CategoryNames() []string {
	names := make([]string, len(m.categories))
	for i, c := range m.categories {
		names[i] = c.name
	}
	return names
}

// Match scores one rule. The question may be raw or already normalized.
func (m *Matcher) Match(rule *types.BusinessRule, question string) Result {
	return m.matchActive(rule, m.activeCategories(prepare(question)))
}

// MatchScore returns only the category count
func (m *Matcher) MatchScore(rule *types.BusinessRule, question string) int {
	return m.Match(rule, question).Score
}

// MatchAll scores every rule and returns the hits keyed by rule ID. The
// question is prepared once.
func (m *Matcher) MatchAll(rules []*types.BusinessRule, question string) map[string]Result {
	hits := make(map[string]Result)
	active := m.activeCategories(prepare(question))
	if len(active) == 0 {
		return hits
	}

	for _, rule := range rules {
		if res := m.matchActive(rule, active); res.Score > 0 {
			hits[rule.ID] = res
		}
	}
	return hits
}

// activeCategories returns the indexes of categories the question triggers
func (m *Matcher) activeCategories(question string) []int {
	var active []int
	for i, c := range m.categories {
		if normalizer.ContainsAny(question, c.triggers) {
			active = append(active, i)
		}
	}
	return active
}

func (m *Matcher) matchActive(rule *types.BusinessRule, active []int) Result {
	var res Result
	if len(active) == 0 {
		return res
	}

	text := prepare(rule.Name + " " + rule.Description)
	for _, i := range active {
		c := m.categories[i]
		if normalizer.ContainsAny(text, c.targets) {
			res.Score++
			res.Categories = append(res.Categories, c.name)
		}
	}
	return res
}

// prepare normalizes text and turns every non-alphanumeric rune into a word
// separator, so REGRA_CALCULO_HORAS_PJ reads as four words. The result starts
// with a space so terms can be matched at word starts.
func prepare(text string) string {
	n := normalizer.Normalize(text)
	n = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, n)
	return " " + strings.Join(strings.Fields(n), " ")
}

// compileTerms prepares terms for word-start matching and drops blanks
func compileTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		p := prepare(t)
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
