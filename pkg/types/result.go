package types

import "strings"

// MatchType records why a rule was retrieved
type MatchType string

const (
	MatchSemantic MatchType = "SEMANTIC"
	MatchKeyword  MatchType = "KEYWORD"
	MatchHybrid   MatchType = "HYBRID"
	MatchFallback MatchType = "FALLBACK"
)

// Focus selects the audience of the generated answer
type Focus string

const (
	FocusBusiness  Focus = "BUSINESS"
	FocusTechnical Focus = "TECHNICAL"
	FocusExecutive Focus = "EXECUTIVE"
)

// ParseFocus parses a case-insensitive focus. Empty input yields FocusBusiness.
func ParseFocus(s string) (Focus, error) {
	f := Focus(strings.ToUpper(strings.TrimSpace(s)))
	switch f {
	case "":
		return FocusBusiness, nil
	case FocusBusiness, FocusTechnical, FocusExecutive:
		return f, nil
	default:
		return "", ErrInvalidFocus
	}
}

// Confidence is the advisory confidence level attached to an answer
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// ParseConfidence parses a case-insensitive confidence level
func ParseConfidence(s string) (Confidence, bool) {
	c := Confidence(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c, true
	}
	return "", false
}

// Request bounds
const (
	DefaultMaxSources = 5
	MinMaxSources     = 1
	MaxMaxSources     = 10
)

// RetrievalRequest is a natural-language question about business rules
type RetrievalRequest struct {
	Question   string
	Focus      Focus
	MaxSources int    // 0 selects DefaultMaxSources
	ProjectID  string // Optional UUID text
}

// Validate checks the request and fills in defaults
func (r *RetrievalRequest) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return ErrEmptyQuestion
	}

	focus, err := ParseFocus(string(r.Focus))
	if err != nil {
		return err
	}
	r.Focus = focus

	if r.MaxSources == 0 {
		r.MaxSources = DefaultMaxSources
	}
	if r.MaxSources < MinMaxSources || r.MaxSources > MaxMaxSources {
		return ErrInvalidMaxSources
	}
	return nil
}

// RuleScoreDetail explains one returned rule
type RuleScoreDetail struct {
	RuleID             string    `json:"ruleId"`
	RuleName           string    `json:"ruleName"`
	MatchType          MatchType `json:"matchType"`
	SemanticScore      float64   `json:"semanticScore"` // [0,1], 0 when not retrieved semantically
	KeywordScore       int       `json:"keywordScore"`  // Matched category count
	FinalRankPosition  int       `json:"finalRankPosition"`
	IncludedByFallback bool      `json:"includedByFallback"`
	CompositeScore     int       `json:"compositeScore"`
	MatchedCategories  []string  `json:"matchedCategories,omitempty"`
}

// Source is a returned rule as shown to the caller
type Source struct {
	RuleID      string      `json:"ruleId"`
	Name        string      `json:"name"`
	Domain      Domain      `json:"domain"`
	Criticality Criticality `json:"criticality"`
	Description string      `json:"description"`
	SourceFile  string      `json:"sourceFile,omitempty"`
}

// NewSource projects a rule onto its response shape
func NewSource(r *BusinessRule) Source {
	return Source{
		RuleID:      r.ID,
		Name:        r.Name,
		Domain:      r.Domain,
		Criticality: r.Criticality,
		Description: r.Description,
		SourceFile:  r.SourceFile,
	}
}

// ProjectScope marks a response restricted to a project's rules
type ProjectScope struct {
	ProjectID    string `json:"projectId"`
	ProjectName  string `json:"projectName"`
	AllowedRules int    `json:"allowedRules"`
}

// RetrievalResponse is the answer to a RetrievalRequest.
// Sources and RuleScores always have equal length and order.
type RetrievalResponse struct {
	Answer          string            `json:"answer"`
	Confidence      Confidence        `json:"confidence"`
	Sources         []Source          `json:"sources"`
	RuleScores      []RuleScoreDetail `json:"ruleScores"`
	UsedFallback    bool              `json:"usedFallback"`
	AnswerGenerated bool              `json:"answerGenerated"`
	Disclaimer      string            `json:"disclaimer"`
	ProjectScope    *ProjectScope     `json:"projectScope,omitempty"`
}

// Validate checks the structural invariants of a response
func (r *RetrievalResponse) Validate() error {
	if len(r.Sources) != len(r.RuleScores) {
		return ErrScoreSourceMismatch
	}
	for i, score := range r.RuleScores {
		if score.FinalRankPosition != i+1 {
			return ErrInvalidRank
		}
		if score.RuleID != r.Sources[i].RuleID {
			return ErrScoreSourceMismatch
		}
		if score.SemanticScore < 0 || score.SemanticScore > 1 {
			return ErrInvalidSemanticScore
		}
	}
	if r.Disclaimer == "" {
		return ErrMissingDisclaimer
	}
	return nil
}
