package answer

import (
	"fmt"
	"strings"

	"github.com/dshills/rulecontext-mcp/pkg/types"
)

const (
	// TemplateMaxRules caps the rules listed by the templated answer
	TemplateMaxRules = 5
	// templateMediumThreshold is the number of retrieved rules needed for MEDIUM
	templateMediumThreshold = 3
)

// Template builds the deterministic answer used when no generator output is
// usable. Confidence is MEDIUM with at least three retrieved rules, LOW
// otherwise.
func Template(c Context) (string, types.Confidence) {
	var b strings.Builder

	if len(c.Rules) == 0 {
		b.WriteString("No business rules are catalogued, so no rule could be related to the question.\n")
	} else {
		files := c.Files()
		fmt.Fprintf(&b, "Found %d business rule(s) across %d file(s) related to the question.\n", len(c.Rules), len(files))
		if c.UsedFallback {
			b.WriteString("No rule matched the question directly; these are the most critical rules in scope.\n")
		}

		b.WriteString("\nMost relevant rules:\n")
		for i, r := range c.Rules {
			if i == TemplateMaxRules {
				break
			}
			fmt.Fprintf(&b, "%d. %s (%s, %s)\n", r.Rank, r.Name, domainOrDefault(r.Domain), r.Criticality)
		}
	}

	b.WriteString("\n")
	b.WriteString(Disclaimer)

	confidence := types.ConfidenceLow
	if c.MeaningfulMatches() >= templateMediumThreshold {
		confidence = types.ConfidenceMedium
	}
	return b.String(), confidence
}

func domainOrDefault(d types.Domain) types.Domain {
	if d == "" {
		return types.DomainGeral
	}
	return d
}
