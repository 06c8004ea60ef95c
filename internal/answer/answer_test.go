package answer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/rulecontext-mcp/internal/ranking"
	"github.com/dshills/rulecontext-mcp/internal/storage"
	"github.com/dshills/rulecontext-mcp/pkg/types"
)

// mockGenerator lets tests control Generate
type mockGenerator struct {
	generateFunc func(ctx context.Context, question string, c Context, focus types.Focus) (Generated, error)
	calls        int
}

func (m *mockGenerator) Generate(ctx context.Context, question string, c Context, focus types.Focus) (Generated, error) {
	m.calls++
	return m.generateFunc(ctx, question, c, focus)
}

// mockModel implements llms.Model
type mockModel struct {
	reply    string
	err      error
	messages []llms.MessageContent
}

func (m *mockModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *mockModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func newRule(name string, crit types.Criticality, file string) *types.BusinessRule {
	return &types.BusinessRule{
		ID:          uuid.NewString(),
		Name:        name,
		Domain:      types.DomainTrabalhista,
		Description: name + " description",
		Criticality: crit,
		SourceFile:  file,
	}
}

func rankedOf(rules []*types.BusinessRule, matchType types.MatchType, fallback bool) []ranking.Candidate {
	out := make([]ranking.Candidate, len(rules))
	for i, r := range rules {
		out[i] = ranking.Candidate{Rule: r, MatchType: matchType, IncludedByFallback: fallback, Rank: i + 1}
	}
	return out
}

func TestTemplate(t *testing.T) {
	t.Run("lists at most five rules", func(t *testing.T) {
		rules := make([]RuleContext, 7)
		for i := range rules {
			rules[i] = RuleContext{Rank: i + 1, Name: "rule", Criticality: types.CriticalityAlta, MatchType: types.MatchKeyword, SourceFile: "a.yaml"}
		}
		text, conf := Template(Context{Rules: rules})
		assert.Contains(t, text, "Found 7 business rule(s) across 1 file(s)")
		assert.Contains(t, text, "5. rule (GERAL, ALTA)")
		assert.NotContains(t, text, "6. rule")
		assert.True(t, strings.HasSuffix(text, Disclaimer))
		assert.Equal(t, types.ConfidenceMedium, conf)
	})

	t.Run("fallback is low confidence", func(t *testing.T) {
		rules := []RuleContext{
			{Rank: 1, Name: "a", Criticality: types.CriticalityCritica, MatchType: types.MatchFallback, IncludedByFallback: true},
			{Rank: 2, Name: "b", Criticality: types.CriticalityAlta, MatchType: types.MatchFallback, IncludedByFallback: true},
			{Rank: 3, Name: "c", Criticality: types.CriticalityAlta, MatchType: types.MatchFallback, IncludedByFallback: true},
		}
		text, conf := Template(Context{Rules: rules, UsedFallback: true})
		assert.Contains(t, text, "most critical rules in scope")
		assert.Equal(t, types.ConfidenceLow, conf)
	})

	t.Run("two matches is low", func(t *testing.T) {
		rules := []RuleContext{
			{Rank: 1, Name: "a", MatchType: types.MatchHybrid},
			{Rank: 2, Name: "b", MatchType: types.MatchSemantic},
		}
		_, conf := Template(Context{Rules: rules})
		assert.Equal(t, types.ConfidenceLow, conf)
	})

	t.Run("empty catalogue", func(t *testing.T) {
		text, conf := Template(Context{})
		assert.Contains(t, text, "No business rules are catalogued")
		assert.Equal(t, types.ConfidenceLow, conf)
	})

	t.Run("deterministic", func(t *testing.T) {
		c := Context{Rules: []RuleContext{{Rank: 1, Name: "a", MatchType: types.MatchKeyword}}}
		a, _ := Template(c)
		b, _ := Template(c)
		assert.Equal(t, a, b)
	})
}

func TestContextFiles(t *testing.T) {
	c := Context{Rules: []RuleContext{
		{SourceFile: "b.yaml"}, {SourceFile: ""}, {SourceFile: "a.yaml"}, {SourceFile: "b.yaml"},
	}}
	assert.Equal(t, []string{"b.yaml", "a.yaml"}, c.Files())
}

func TestDummyGenerator(t *testing.T) {
	ctx := context.Background()
	c := Context{Rules: []RuleContext{
		{Rank: 1, Name: "REGRA_CALCULO_HORAS_PJ", Criticality: types.CriticalityAlta, MatchType: types.MatchHybrid, SourceFile: "hours.yaml",
			Dependencies: types.DependencyCount{Downstream: 2}, Incidents: []types.Incident{{Title: "x"}}},
		{Rank: 2, Name: "other", Criticality: types.CriticalityBaixa, MatchType: types.MatchKeyword, SourceFile: "other.yaml"},
	}}

	gen, err := DummyGenerator{}.Generate(ctx, "q", c, types.FocusTechnical)
	require.NoError(t, err)
	assert.True(t, gen.Success)
	assert.Equal(t, types.ConfidenceHigh, gen.Confidence)
	assert.Contains(t, gen.Text, "hours.yaml")
	assert.Contains(t, gen.Text, "other.yaml")
	assert.Contains(t, gen.Text, "2 rule(s) depend on it")

	gen, err = DummyGenerator{}.Generate(ctx, "q", c, types.FocusExecutive)
	require.NoError(t, err)
	assert.Contains(t, gen.Text, "2 rule(s) are relevant, 1 of them high or critical")

	gen, err = DummyGenerator{}.Generate(ctx, "q", c, types.FocusBusiness)
	require.NoError(t, err)
	assert.Contains(t, gen.Text, "REGRA_CALCULO_HORAS_PJ (GERAL, ALTA)")

	c.UsedFallback = true
	gen, _ = DummyGenerator{}.Generate(ctx, "q", c, types.FocusBusiness)
	assert.Equal(t, types.ConfidenceLow, gen.Confidence)

	gen, err = DummyGenerator{}.Generate(ctx, "q", Context{}, types.FocusBusiness)
	require.NoError(t, err)
	assert.False(t, gen.Success)
}

func TestLLMGenerator(t *testing.T) {
	ctx := context.Background()
	c := Context{Rules: []RuleContext{{Rank: 1, Name: "Pix limit", Criticality: types.CriticalityCritica, MatchType: types.MatchSemantic, Content: "max 1000"}}}

	t.Run("parses confidence", func(t *testing.T) {
		model := &mockModel{reply: "The PIX limit rule applies.\n\nCONFIDENCE: high"}
		gen, err := NewLLMGenerator(model).Generate(ctx, "limite pix?", c, types.FocusTechnical)
		require.NoError(t, err)
		assert.True(t, gen.Success)
		assert.Equal(t, "The PIX limit rule applies.", gen.Text)
		assert.Equal(t, types.ConfidenceHigh, gen.Confidence)

		require.Len(t, model.messages, 2)
		assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
		prompt := model.messages[1].Parts[0].(llms.TextContent).Text
		assert.Contains(t, prompt, "Question: limite pix?")
		assert.Contains(t, prompt, "Content: max 1000")
	})

	t.Run("missing confidence defaults to medium", func(t *testing.T) {
		gen, err := NewLLMGenerator(&mockModel{reply: "Some answer"}).Generate(ctx, "q", c, types.FocusBusiness)
		require.NoError(t, err)
		assert.Equal(t, types.ConfidenceMedium, gen.Confidence)
		assert.Equal(t, "Some answer", gen.Text)
	})

	t.Run("blank reply is unsuccessful", func(t *testing.T) {
		gen, err := NewLLMGenerator(&mockModel{reply: "CONFIDENCE: LOW"}).Generate(ctx, "q", c, types.FocusBusiness)
		require.NoError(t, err)
		assert.False(t, gen.Success)
	})

	t.Run("model error", func(t *testing.T) {
		_, err := NewLLMGenerator(&mockModel{err: errors.New("connection refused")}).Generate(ctx, "q", c, types.FocusBusiness)
		assert.Error(t, err)
	})
}

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		in       string
		wantText string
		wantConf types.Confidence
	}{
		{"answer\nCONFIDENCE: LOW", "answer", types.ConfidenceLow},
		{"answer\n**Confidence: Medium**\n\n", "answer", types.ConfidenceMedium},
		{"answer\nCONFIDENCE: MAYBE", "answer", types.ConfidenceMedium},
		{"answer only", "answer only", types.ConfidenceMedium},
		{"", "", types.ConfidenceMedium},
	}
	for _, tt := range tests {
		text, conf := parseConfidence(tt.in)
		assert.Equal(t, tt.wantText, text, tt.in)
		assert.Equal(t, tt.wantConf, conf, tt.in)
	}
}

func TestNewGenerator(t *testing.T) {
	g, err := NewGenerator(GeneratorConfig{})
	require.NoError(t, err)
	assert.IsType(t, DummyGenerator{}, g)

	g, err = NewGenerator(GeneratorConfig{Kind: "ollama", Model: "llama3.2", ServerURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	assert.IsType(t, &LLMGenerator{}, g)

	g, err = NewGenerator(GeneratorConfig{Kind: "none"})
	require.NoError(t, err)
	assert.Nil(t, g)

	_, err = NewGenerator(GeneratorConfig{Kind: "gpt"})
	assert.ErrorIs(t, err, ErrUnknownGenerator)
}

func TestAssembler(t *testing.T) {
	ctx := context.Background()
	r1 := newRule("r1", types.CriticalityAlta, "hours.yaml")
	r2 := newRule("r2", types.CriticalityMedia, "")
	r3 := newRule("r3", types.CriticalityCritica, "pix.yaml")
	cat := storage.NewMemoryCatalogue(r1, r2, r3)
	cat.AddIncident(types.Incident{ID: uuid.New(), BusinessRuleID: uuid.MustParse(r1.ID), Title: "overtime"})
	cat.AddOwnership(types.Ownership{ID: uuid.New(), BusinessRuleID: uuid.MustParse(r1.ID), Team: "payroll"})
	cat.AddDependency(r3.ID, r1.ID)

	t.Run("context is populated", func(t *testing.T) {
		a := NewAssembler(cat, nil, 0, zap.NewNop())
		c := a.BuildContext(ctx, "q", types.FocusBusiness, rankedOf([]*types.BusinessRule{r1, r3}, types.MatchKeyword, false), false)
		require.Len(t, c.Rules, 2)
		assert.Len(t, c.Rules[0].Incidents, 1)
		assert.Len(t, c.Rules[0].Ownerships, 1)
		assert.Equal(t, 1, c.Rules[0].Dependencies.Downstream)
		assert.Equal(t, 1, c.Rules[1].Dependencies.Upstream)
	})

	t.Run("non-uuid rule id skips lookups", func(t *testing.T) {
		odd := &types.BusinessRule{ID: "legacy-42", Name: "legacy", Criticality: types.CriticalityBaixa}
		a := NewAssembler(cat, nil, 0, zap.NewNop())
		c := a.BuildContext(ctx, "q", types.FocusBusiness, rankedOf([]*types.BusinessRule{odd, r1}, types.MatchKeyword, false), false)
		require.Len(t, c.Rules, 2)
		assert.Empty(t, c.Rules[0].Incidents)
		assert.Len(t, c.Rules[1].Incidents, 1)
	})

	t.Run("generator output used as-is", func(t *testing.T) {
		gen := &mockGenerator{generateFunc: func(context.Context, string, Context, types.Focus) (Generated, error) {
			return Generated{Text: "generated", Confidence: types.ConfidenceHigh, Success: true}, nil
		}}
		res := NewAssembler(cat, gen, time.Second, nil).Assemble(ctx, "q", types.FocusBusiness, rankedOf([]*types.BusinessRule{r1}, types.MatchKeyword, false), false)
		assert.Equal(t, "generated", res.Answer)
		assert.Equal(t, types.ConfidenceHigh, res.Confidence)
		assert.True(t, res.Generated)
	})

	t.Run("generator error falls back to template", func(t *testing.T) {
		gen := &mockGenerator{generateFunc: func(context.Context, string, Context, types.Focus) (Generated, error) {
			return Generated{}, errors.New("backend down")
		}}
		res := NewAssembler(cat, gen, time.Second, nil).Assemble(ctx, "q", types.FocusBusiness, rankedOf([]*types.BusinessRule{r1, r2, r3}, types.MatchSemantic, false), false)
		assert.False(t, res.Generated)
		assert.Equal(t, types.ConfidenceMedium, res.Confidence)
		assert.Contains(t, res.Answer, "Found 3 business rule(s) across 2 file(s)")
	})

	t.Run("blank generator text falls back", func(t *testing.T) {
		gen := &mockGenerator{generateFunc: func(context.Context, string, Context, types.Focus) (Generated, error) {
			return Generated{Text: "   ", Confidence: types.ConfidenceHigh, Success: true}, nil
		}}
		res := NewAssembler(cat, gen, time.Second, nil).Assemble(ctx, "q", types.FocusBusiness, rankedOf([]*types.BusinessRule{r1}, types.MatchKeyword, false), false)
		assert.False(t, res.Generated)
		assert.Equal(t, types.ConfidenceLow, res.Confidence)
	})

	t.Run("timeout falls back", func(t *testing.T) {
		gen := &mockGenerator{generateFunc: func(ctx context.Context, _ string, _ Context, _ types.Focus) (Generated, error) {
			<-ctx.Done()
			return Generated{}, ctx.Err()
		}}
		start := time.Now()
		res := NewAssembler(cat, gen, 20*time.Millisecond, nil).Assemble(ctx, "q", types.FocusBusiness, rankedOf([]*types.BusinessRule{r1}, types.MatchKeyword, false), false)
		assert.False(t, res.Generated)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("invalid generator confidence becomes medium with a warning", func(t *testing.T) {
		gen := &mockGenerator{generateFunc: func(context.Context, string, Context, types.Focus) (Generated, error) {
			return Generated{Text: "ok", Confidence: "CERTAIN", Success: true}, nil
		}}
		core, logs := observer.New(zap.WarnLevel)
		res := NewAssembler(cat, gen, time.Second, zap.New(core)).Assemble(ctx, "q", types.FocusBusiness, rankedOf([]*types.BusinessRule{r1}, types.MatchKeyword, false), false)
		assert.Equal(t, types.ConfidenceMedium, res.Confidence)
		assert.True(t, res.Generated)

		warnings := logs.FilterMessageSnippet("unknown confidence").All()
		require.Len(t, warnings, 1)
		assert.Equal(t, "CERTAIN", warnings[0].ContextMap()["confidence"])
	})

	t.Run("lowercase generator confidence is canonicalized", func(t *testing.T) {
		gen := &mockGenerator{generateFunc: func(context.Context, string, Context, types.Focus) (Generated, error) {
			return Generated{Text: "ok", Confidence: " low ", Success: true}, nil
		}}
		core, logs := observer.New(zap.WarnLevel)
		res := NewAssembler(cat, gen, time.Second, zap.New(core)).Assemble(ctx, "q", types.FocusBusiness, rankedOf([]*types.BusinessRule{r1}, types.MatchKeyword, false), false)
		assert.Equal(t, types.ConfidenceLow, res.Confidence)
		assert.Zero(t, logs.Len())
	})
}
