package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/dshills/rulecontext-mcp/pkg/types"
)

// Generator phrases the final answer. It never influences ranking.
type Generator interface {
	Generate(ctx context.Context, question string, c Context, focus types.Focus) (Generated, error)
}

// Generator kinds
const (
	KindNone   = "none" // Always use the template
	KindDummy  = "dummy"
	KindOllama = "ollama"
)

// Default generator settings
const (
	DefaultOllamaModel = "llama3.2"
	DefaultOllamaURL   = "http://localhost:11434"
)

// ErrUnknownGenerator is returned by NewGenerator for an unsupported kind
var ErrUnknownGenerator = errors.New("unknown generator kind")

// GeneratorConfig selects and configures a Generator
type GeneratorConfig struct {
	Kind      string
	Model     string
	ServerURL string
}

// NewGenerator builds the configured generator. KindNone returns a nil
// Generator, which the Assembler treats as template-only.
func NewGenerator(cfg GeneratorConfig) (Generator, error) {
	switch strings.ToLower(cfg.Kind) {
	case KindNone:
		return nil, nil
	case "", KindDummy:
		return DummyGenerator{}, nil
	case KindOllama:
		model := cfg.Model
		if model == "" {
			model = DefaultOllamaModel
		}
		url := cfg.ServerURL
		if url == "" {
			url = DefaultOllamaURL
		}
		llm, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(url))
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return NewLLMGenerator(llm), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownGenerator, cfg.Kind)
	}
}

// DummyGenerator produces a deterministic, focus-specific summary without any
// external call
type DummyGenerator struct{}

var _ Generator = DummyGenerator{}

func (DummyGenerator) Generate(_ context.Context, question string, c Context, focus types.Focus) (Generated, error) {
	if len(c.Rules) == 0 {
		return Generated{}, nil
	}

	top := c.Rules[0]
	var b strings.Builder
	switch focus {
	case types.FocusTechnical:
		fmt.Fprintf(&b, "Start with %s", top.Name)
		if top.SourceFile != "" {
			fmt.Fprintf(&b, " in %s", top.SourceFile)
		}
		b.WriteString(".")
		if files := c.Files(); len(files) > 1 {
			fmt.Fprintf(&b, " The change may also touch %s.", strings.Join(files[1:], ", "))
		}
		if top.Dependencies.Downstream > 0 {
			fmt.Fprintf(&b, " %d rule(s) depend on it.", top.Dependencies.Downstream)
		}
	case types.FocusExecutive:
		critical := 0
		for _, r := range c.Rules {
			if r.Criticality == types.CriticalityCritica || r.Criticality == types.CriticalityAlta {
				critical++
			}
		}
		fmt.Fprintf(&b, "%d rule(s) are relevant, %d of them high or critical.", len(c.Rules), critical)
		if n := len(top.Incidents); n > 0 {
			fmt.Fprintf(&b, " The top rule has %d recorded incident(s).", n)
		}
	default:
		fmt.Fprintf(&b, "The rule most related to %q is %s (%s, %s).", question, top.Name, domainOrDefault(top.Domain), top.Criticality)
		if top.Description != "" {
			fmt.Fprintf(&b, " %s", top.Description)
		}
		if len(top.Ownerships) > 0 {
			fmt.Fprintf(&b, " Owned by %s.", top.Ownerships[0].Team)
		}
	}

	return Generated{
		Text:       b.String(),
		Confidence: dummyConfidence(c),
		Success:    true,
	}, nil
}

// dummyConfidence is HIGH when the top rule matched on both signals
func dummyConfidence(c Context) types.Confidence {
	switch {
	case c.UsedFallback || len(c.Rules) == 0:
		return types.ConfidenceLow
	case c.Rules[0].MatchType == types.MatchHybrid:
		return types.ConfidenceHigh
	default:
		return types.ConfidenceMedium
	}
}

// LLMGenerator phrases answers with a langchaingo model. The model is asked
// to finish with a CONFIDENCE line, which is parsed and removed.
type LLMGenerator struct {
	client llms.Model
}

var _ Generator = (*LLMGenerator)(nil)

// NewLLMGenerator wraps a langchaingo model
func NewLLMGenerator(client llms.Model) *LLMGenerator {
	return &LLMGenerator{client: client}
}

func (g *LLMGenerator) Generate(ctx context.Context, question string, c Context, focus types.Focus) (Generated, error) {
	response, err := g.client.GenerateContent(ctx, []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextContent{Text: systemPrompt(focus)},
			},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextContent{Text: buildPrompt(question, c)},
			},
		},
	}, llms.WithTemperature(0))
	if err != nil {
		return Generated{}, fmt.Errorf("failed to generate answer: %w", err)
	}

	var text strings.Builder
	for _, choice := range response.Choices {
		text.WriteString(choice.Content)
		text.WriteString("\n")
	}

	body, confidence := parseConfidence(text.String())
	if body == "" {
		return Generated{}, nil
	}
	return Generated{Text: body, Confidence: confidence, Success: true}, nil
}

func systemPrompt(focus types.Focus) string {
	var audience string
	switch focus {
	case types.FocusTechnical:
		audience = "an engineer changing the code. Name the files and rules the change touches."
	case types.FocusExecutive:
		audience = "an executive. Summarize business risk in two or three sentences."
	default:
		audience = "a business analyst. Explain what each rule enforces in plain language."
	}
	return "You answer questions about business rules for " + audience +
		" Use only the rules provided. End with a line 'CONFIDENCE: HIGH', 'CONFIDENCE: MEDIUM' or 'CONFIDENCE: LOW'."
}

func buildPrompt(question string, c Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nRules:\n", question)
	for _, r := range c.Rules {
		fmt.Fprintf(&b, "%d. %s [%s, %s, %s]\n", r.Rank, r.Name, domainOrDefault(r.Domain), r.Criticality, r.MatchType)
		if r.Description != "" {
			fmt.Fprintf(&b, "   Description: %s\n", r.Description)
		}
		if r.Content != "" {
			fmt.Fprintf(&b, "   Content: %s\n", r.Content)
		}
		if r.SourceFile != "" {
			fmt.Fprintf(&b, "   File: %s\n", r.SourceFile)
		}
		if len(r.Incidents) > 0 {
			fmt.Fprintf(&b, "   Incidents: %d\n", len(r.Incidents))
		}
		for _, o := range r.Ownerships {
			fmt.Fprintf(&b, "   Owner: %s %s\n", o.Team, o.Owner)
		}
		if r.Dependencies.Upstream+r.Dependencies.Downstream > 0 {
			fmt.Fprintf(&b, "   Dependencies: %d upstream, %d downstream\n", r.Dependencies.Upstream, r.Dependencies.Downstream)
		}
	}
	if c.UsedFallback {
		b.WriteString("\nNo rule matched the question directly; these are the most critical rules in scope.\n")
	}
	return b.String()
}

// parseConfidence strips a trailing CONFIDENCE line. Missing or unreadable
// levels default to MEDIUM.
func parseConfidence(text string) (string, types.Confidence) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	confidence := types.ConfidenceMedium

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		upper := strings.ToUpper(strings.Trim(line, "*_ "))
		if rest, ok := strings.CutPrefix(upper, "CONFIDENCE:"); ok {
			if c, valid := types.ParseConfidence(rest); valid {
				confidence = c
			}
			lines = lines[:i]
		}
		break
	}

	return strings.TrimSpace(strings.Join(lines, "\n")), confidence
}
