package answer

import (
	"github.com/dshills/rulecontext-mcp/pkg/types"
)

// Disclaimer is attached to every response
const Disclaimer = "This answer is advisory and non-binding. Confirm the listed rules with their owners before approving, restricting or blocking a change."

// RuleContext is everything known about one ranked rule
type RuleContext struct {
	Rank               int
	RuleID             string
	Name               string
	Domain             types.Domain
	Criticality        types.Criticality
	Description        string
	Content            string
	SourceFile         string
	MatchType          types.MatchType
	IncludedByFallback bool
	Incidents          []types.Incident
	Ownerships         []types.Ownership
	Dependencies       types.DependencyCount
}

// Context is the typed input to a Generator
type Context struct {
	Question     string
	Focus        types.Focus
	UsedFallback bool
	Rules        []RuleContext
}

// Files returns the distinct source files of the rules, in rank order
func (c Context) Files() []string {
	seen := make(map[string]bool)
	files := make([]string, 0, len(c.Rules))
	for _, r := range c.Rules {
		if r.SourceFile == "" || seen[r.SourceFile] {
			continue
		}
		seen[r.SourceFile] = true
		files = append(files, r.SourceFile)
	}
	return files
}

// MeaningfulMatches counts rules that were actually retrieved rather than
// selected by fallback
func (c Context) MeaningfulMatches() int {
	n := 0
	for _, r := range c.Rules {
		if !r.IncludedByFallback && r.MatchType != types.MatchFallback {
			n++
		}
	}
	return n
}

// Generated is a Generator's output. Success false means the text must not be
// used.
type Generated struct {
	Text       string
	Confidence types.Confidence
	Success    bool
}
