package ranking

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dshills/rulecontext-mcp/internal/keyword"
	"github.com/dshills/rulecontext-mcp/pkg/types"
)

// ErrInvalidPolicy is returned by Policy.Validate
var ErrInvalidPolicy = errors.New("invalid ranking policy")

// Policy holds the composite-score and fallback constants
type Policy struct {
	CriticalityWeight int `yaml:"criticality_weight"`
	IncidentWeight    int `yaml:"incident_weight"`
	IncidentCap       int `yaml:"incident_cap"`
	FallbackSize      int `yaml:"fallback_size"`
}

// DefaultPolicy scores in [10, 60] and falls back to three rules
func DefaultPolicy() Policy {
	return Policy{
		CriticalityWeight: 10,
		IncidentWeight:    5,
		IncidentCap:       20,
		FallbackSize:      3,
	}
}

// Validate rejects negative weights and a fallback that could return nothing
func (p Policy) Validate() error {
	if p.CriticalityWeight < 0 || p.IncidentWeight < 0 || p.IncidentCap < 0 {
		return fmt.Errorf("%w: weights must be non-negative", ErrInvalidPolicy)
	}
	if p.FallbackSize < 1 {
		return fmt.Errorf("%w: fallback size must be at least 1", ErrInvalidPolicy)
	}
	return nil
}

// CompositeScore is criticality*weight plus a capped incident bonus
func (p Policy) CompositeScore(c types.Criticality, incidents int) int {
	bonus := incidents * p.IncidentWeight
	if bonus > p.IncidentCap {
		bonus = p.IncidentCap
	}
	if bonus < 0 {
		bonus = 0
	}
	return c.Ordinal()*p.CriticalityWeight + bonus
}

// Candidate is a rule moving through merge and rank
type Candidate struct {
	Rule               *types.BusinessRule
	SemanticScore      float64
	KeywordScore       int
	MatchedCategories  []string
	IncludedByFallback bool
	Incidents          int
	CompositeScore     int
	MatchType          types.MatchType
	Rank               int
}

// Merge unions the semantic and keyword hit sets. The catalogue must already
// be restricted to the request's project, so hits outside it are dropped.
// Candidates come back in catalogue order. When nothing survives and the
// catalogue is non-empty, the fallback selection is returned instead and
// usedFallback is true.
func (p Policy) Merge(catalogue []*types.BusinessRule, semantic map[string]float64, keywordHits map[string]keyword.Result) (candidates []Candidate, usedFallback bool) {
	candidates = make([]Candidate, 0, len(semantic)+len(keywordHits))
	for _, rule := range catalogue {
		sem, inSemantic := semantic[rule.ID]
		kw, inKeyword := keywordHits[rule.ID]
		if !inSemantic && !inKeyword {
			continue
		}
		candidates = append(candidates, Candidate{
			Rule:              rule,
			SemanticScore:     sem,
			KeywordScore:      kw.Score,
			MatchedCategories: kw.Categories,
		})
	}

	if len(candidates) > 0 || len(catalogue) == 0 {
		return candidates, false
	}

	for _, rule := range FallbackSelection(catalogue, p.FallbackSize) {
		candidates = append(candidates, Candidate{Rule: rule, IncludedByFallback: true})
	}
	return candidates, true
}

// Rank scores candidates, orders them and keeps the first maxSources.
// Retrieved sets are ordered by composite score descending with ties kept in
// input order. A fallback set keeps its criticality order. Match types and
// 1-based rank positions are assigned to the survivors.
func (p Policy) Rank(candidates []Candidate, incidents map[string]int, maxSources int, usedFallback bool) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)

	for i := range ranked {
		ranked[i].Incidents = incidents[ranked[i].Rule.ID]
		ranked[i].CompositeScore = p.CompositeScore(ranked[i].Rule.Criticality, ranked[i].Incidents)
	}

	if !usedFallback {
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].CompositeScore > ranked[j].CompositeScore
		})
	}

	if maxSources >= 0 && len(ranked) > maxSources {
		ranked = ranked[:maxSources]
	}

	for i := range ranked {
		ranked[i].MatchType = Classify(ranked[i])
		ranked[i].Rank = i + 1
	}
	return ranked
}

// Classify derives a candidate's match type. A candidate with neither score
// that was not selected by fallback is still reported as FALLBACK.
func Classify(c Candidate) types.MatchType {
	switch {
	case c.IncludedByFallback:
		return types.MatchFallback
	case c.SemanticScore > 0 && c.KeywordScore > 0:
		return types.MatchHybrid
	case c.SemanticScore > 0:
		return types.MatchSemantic
	case c.KeywordScore > 0:
		return types.MatchKeyword
	default:
		return types.MatchFallback
	}
}

// FallbackSelection returns the n most critical rules. Rules of equal
// criticality keep catalogue order. The catalogue is not modified.
func FallbackSelection(catalogue []*types.BusinessRule, n int) []*types.BusinessRule {
	if n <= 0 || len(catalogue) == 0 {
		return []*types.BusinessRule{}
	}

	sorted := make([]*types.BusinessRule, len(catalogue))
	copy(sorted, catalogue)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Criticality.Ordinal() > sorted[j].Criticality.Ordinal()
	})

	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

// ScopeCatalogue keeps the rules whose IDs are in allowed, in catalogue order
func ScopeCatalogue(catalogue []*types.BusinessRule, allowed []string) []*types.BusinessRule {
	set := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		set[id] = struct{}{}
	}

	scoped := make([]*types.BusinessRule, 0, len(allowed))
	for _, rule := range catalogue {
		if _, ok := set[rule.ID]; ok {
			scoped = append(scoped, rule)
		}
	}
	return scoped
}

// ScoreDetails projects ranked candidates onto response score details
func ScoreDetails(ranked []Candidate) []types.RuleScoreDetail {
	details := make([]types.RuleScoreDetail, len(ranked))
	for i, c := range ranked {
		details[i] = types.RuleScoreDetail{
			RuleID:             c.Rule.ID,
			RuleName:           c.Rule.Name,
			MatchType:          c.MatchType,
			SemanticScore:      c.SemanticScore,
			KeywordScore:       c.KeywordScore,
			FinalRankPosition:  c.Rank,
			IncludedByFallback: c.IncludedByFallback,
			CompositeScore:     c.CompositeScore,
			MatchedCategories:  c.MatchedCategories,
		}
	}
	return details
}

// Sources projects ranked candidates onto response sources
func Sources(ranked []Candidate) []types.Source {
	sources := make([]types.Source, len(ranked))
	for i, c := range ranked {
		sources[i] = types.NewSource(c.Rule)
	}
	return sources
}
