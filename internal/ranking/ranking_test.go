package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/rulecontext-mcp/internal/keyword"
	"github.com/dshills/rulecontext-mcp/pkg/types"
)

func rule(id string, c types.Criticality) *types.BusinessRule {
	return &types.BusinessRule{ID: id, Name: "rule " + id, Criticality: c}
}

func ids(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Rule.ID
	}
	return out
}

func TestCompositeScore(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		crit      types.Criticality
		incidents int
		want      int
	}{
		{types.CriticalityBaixa, 0, 10},
		{types.CriticalityAlta, 2, 40},
		{types.CriticalityCritica, 1, 45},
		{types.CriticalityCritica, 4, 60},
		{types.CriticalityCritica, 50, 60},
		{types.CriticalityMedia, 3, 35},
		{types.Criticality("UNKNOWN"), 1, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.CompositeScore(tt.crit, tt.incidents), "%s/%d", tt.crit, tt.incidents)
	}
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())

	p := DefaultPolicy()
	p.FallbackSize = 0
	assert.ErrorIs(t, p.Validate(), ErrInvalidPolicy)

	p = DefaultPolicy()
	p.IncidentCap = -1
	assert.ErrorIs(t, p.Validate(), ErrInvalidPolicy)
}

func TestFallbackSelection(t *testing.T) {
	catalogue := []*types.BusinessRule{
		rule("a", types.CriticalityBaixa),
		rule("b", types.CriticalityAlta),
		rule("c", types.CriticalityMedia),
		rule("d", types.CriticalityCritica),
		rule("e", types.CriticalityAlta),
	}

	got := FallbackSelection(catalogue, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "d", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "e", got[2].ID)

	// Input order is untouched
	assert.Equal(t, "a", catalogue[0].ID)

	assert.Len(t, FallbackSelection(catalogue[:2], 3), 2)
	assert.Empty(t, FallbackSelection(nil, 3))
	assert.Empty(t, FallbackSelection(catalogue, 0))
}

func TestMerge(t *testing.T) {
	p := DefaultPolicy()
	catalogue := []*types.BusinessRule{
		rule("r1", types.CriticalityAlta),
		rule("r2", types.CriticalityMedia),
		rule("r3", types.CriticalityCritica),
	}

	t.Run("union in catalogue order", func(t *testing.T) {
		cands, fallback := p.Merge(catalogue,
			map[string]float64{"r3": 0.4, "r1": 0.82},
			map[string]keyword.Result{"r1": {Score: 2, Categories: []string{"pj", "calculo"}}, "r2": {Score: 1}},
		)
		assert.False(t, fallback)
		assert.Equal(t, []string{"r1", "r2", "r3"}, ids(cands))
		assert.Equal(t, 0.82, cands[0].SemanticScore)
		assert.Equal(t, 2, cands[0].KeywordScore)
		assert.Equal(t, []string{"pj", "calculo"}, cands[0].MatchedCategories)
	})

	t.Run("hits outside catalogue are dropped", func(t *testing.T) {
		cands, fallback := p.Merge(catalogue[:1], map[string]float64{"r3": 0.9}, nil)
		assert.True(t, fallback)
		assert.Equal(t, []string{"r1"}, ids(cands))
		assert.True(t, cands[0].IncludedByFallback)
	})

	t.Run("empty retrieval falls back", func(t *testing.T) {
		cands, fallback := p.Merge(catalogue, nil, nil)
		assert.True(t, fallback)
		assert.Equal(t, []string{"r3", "r1", "r2"}, ids(cands))
		for _, c := range cands {
			assert.True(t, c.IncludedByFallback)
		}
	})

	t.Run("empty catalogue", func(t *testing.T) {
		cands, fallback := p.Merge(nil, map[string]float64{"x": 1}, nil)
		assert.False(t, fallback)
		assert.Empty(t, cands)
	})
}

func TestRank(t *testing.T) {
	p := DefaultPolicy()
	r1 := rule("r1", types.CriticalityAlta)
	r2 := rule("r2", types.CriticalityMedia)
	r3 := rule("r3", types.CriticalityCritica)

	t.Run("hybrid example", func(t *testing.T) {
		cands := []Candidate{{Rule: r1, SemanticScore: 0.82, KeywordScore: 2}}
		ranked := p.Rank(cands, map[string]int{"r1": 2, "r3": 1}, 2, false)
		require.Len(t, ranked, 1)
		assert.Equal(t, types.MatchHybrid, ranked[0].MatchType)
		assert.Equal(t, 40, ranked[0].CompositeScore)
		assert.Equal(t, 1, ranked[0].Rank)
	})

	t.Run("sorted by composite with stable ties", func(t *testing.T) {
		a := rule("a", types.CriticalityMedia)
		b := rule("b", types.CriticalityMedia)
		cands := []Candidate{
			{Rule: a, KeywordScore: 1},
			{Rule: r2, SemanticScore: 0.5},
			{Rule: r3, SemanticScore: 0.1},
			{Rule: b, KeywordScore: 1},
		}
		ranked := p.Rank(cands, nil, 10, false)
		assert.Equal(t, []string{"r3", "a", "r2", "b"}, ids(ranked))
		for i, c := range ranked {
			assert.Equal(t, i+1, c.Rank)
		}
	})

	t.Run("incidents lift a rule", func(t *testing.T) {
		cands := []Candidate{{Rule: r3, KeywordScore: 1}, {Rule: r2, KeywordScore: 1}}
		ranked := p.Rank(cands, map[string]int{"r2": 10}, 10, false)
		// MEDIA 20+20 = 40 vs CRITICA 40+0 = 40, tie keeps input order
		assert.Equal(t, []string{"r3", "r2"}, ids(ranked))
		assert.Equal(t, 40, ranked[1].CompositeScore)
	})

	t.Run("truncates to max sources", func(t *testing.T) {
		cands := []Candidate{{Rule: r1, KeywordScore: 1}, {Rule: r2, KeywordScore: 1}, {Rule: r3, KeywordScore: 1}}
		ranked := p.Rank(cands, nil, 2, false)
		assert.Equal(t, []string{"r3", "r1"}, ids(ranked))
	})

	t.Run("fallback keeps criticality order", func(t *testing.T) {
		alta := rule("alta", types.CriticalityAlta)
		cands := []Candidate{
			{Rule: r3, IncludedByFallback: true},
			{Rule: alta, IncludedByFallback: true},
		}
		ranked := p.Rank(cands, map[string]int{"alta": 10}, 5, true)
		assert.Equal(t, []string{"r3", "alta"}, ids(ranked))
		assert.Equal(t, 50, ranked[1].CompositeScore)
		for _, c := range ranked {
			assert.Equal(t, types.MatchFallback, c.MatchType)
		}
	})

	t.Run("input is not modified", func(t *testing.T) {
		cands := []Candidate{{Rule: r2, KeywordScore: 1}, {Rule: r3, KeywordScore: 1}}
		_ = p.Rank(cands, nil, 10, false)
		assert.Equal(t, "r2", cands[0].Rule.ID)
		assert.Zero(t, cands[0].Rank)
	})
}

func TestClassify(t *testing.T) {
	r := rule("r", types.CriticalityMedia)
	tests := []struct {
		name string
		c    Candidate
		want types.MatchType
	}{
		{"fallback wins", Candidate{Rule: r, SemanticScore: 0.9, KeywordScore: 2, IncludedByFallback: true}, types.MatchFallback},
		{"hybrid", Candidate{Rule: r, SemanticScore: 0.9, KeywordScore: 2}, types.MatchHybrid},
		{"semantic", Candidate{Rule: r, SemanticScore: 0.1}, types.MatchSemantic},
		{"keyword", Candidate{Rule: r, KeywordScore: 1}, types.MatchKeyword},
		{"no signal", Candidate{Rule: r}, types.MatchFallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.c))
		})
	}
}

func TestScopeCatalogue(t *testing.T) {
	catalogue := []*types.BusinessRule{
		rule("a", types.CriticalityMedia),
		rule("b", types.CriticalityMedia),
		rule("c", types.CriticalityMedia),
	}
	scoped := ScopeCatalogue(catalogue, []string{"c", "a", "zzz"})
	require.Len(t, scoped, 2)
	assert.Equal(t, "a", scoped[0].ID)
	assert.Equal(t, "c", scoped[1].ID)

	assert.Empty(t, ScopeCatalogue(catalogue, nil))
}

func TestProjections(t *testing.T) {
	p := DefaultPolicy()
	r := &types.BusinessRule{ID: "r1", Name: "REGRA_CALCULO_HORAS_PJ", Domain: types.DomainTrabalhista, Criticality: types.CriticalityAlta, SourceFile: "rules/hours.yaml"}
	ranked := p.Rank([]Candidate{{Rule: r, SemanticScore: 0.82, KeywordScore: 2, MatchedCategories: []string{"pj", "calculo"}}}, map[string]int{"r1": 2}, 5, false)

	details := ScoreDetails(ranked)
	sources := Sources(ranked)
	require.Len(t, details, 1)
	require.Len(t, sources, 1)
	assert.Equal(t, types.RuleScoreDetail{
		RuleID:            "r1",
		RuleName:          "REGRA_CALCULO_HORAS_PJ",
		MatchType:         types.MatchHybrid,
		SemanticScore:     0.82,
		KeywordScore:      2,
		FinalRankPosition: 1,
		CompositeScore:    40,
		MatchedCategories: []string{"pj", "calculo"},
	}, details[0])
	assert.Equal(t, "rules/hours.yaml", sources[0].SourceFile)
	assert.Equal(t, types.DomainTrabalhista, sources[0].Domain)
}
