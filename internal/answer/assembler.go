package answer

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/rulecontext-mcp/internal/ranking"
	"github.com/dshills/rulecontext-mcp/internal/storage"
	"github.com/dshills/rulecontext-mcp/pkg/types"
)

// DefaultGeneratorTimeout bounds a single Generate call
const DefaultGeneratorTimeout = 30 * time.Second

// Result is the assembled answer
type Result struct {
	Answer     string
	Confidence types.Confidence
	Generated  bool // False when the deterministic template was used
}

// Assembler builds the answer context and calls the generator, falling back
// to Template when the generator cannot be used
type Assembler struct {
	catalogue storage.Catalogue
	generator Generator
	timeout   time.Duration
	logger    *zap.Logger
}

// NewAssembler creates an assembler. A nil generator always uses the template.
func NewAssembler(catalogue storage.Catalogue, generator Generator, timeout time.Duration, logger *zap.Logger) *Assembler {
	if timeout <= 0 {
		timeout = DefaultGeneratorTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		catalogue: catalogue,
		generator: generator,
		timeout:   timeout,
		logger:    logger,
	}
}

// Assemble answers the question from the ranked rules
func (a *Assembler) Assemble(ctx context.Context, question string, focus types.Focus, ranked []ranking.Candidate, usedFallback bool) Result {
	c := a.BuildContext(ctx, question, focus, ranked, usedFallback)

	if gen, ok := a.generate(ctx, question, c, focus); ok {
		return Result{Answer: gen.Text, Confidence: gen.Confidence, Generated: true}
	}

	text, confidence := Template(c)
	return Result{Answer: text, Confidence: confidence}
}

// generate runs the generator under the timeout and reports whether its
// output is usable
func (a *Assembler) generate(ctx context.Context, question string, c Context, focus types.Focus) (Generated, bool) {
	if a.generator == nil {
		return Generated{}, false
	}

	genCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	gen, err := a.generator.Generate(genCtx, question, c, focus)
	switch {
	case err != nil:
		a.logger.Warn("answer generator failed, using template", zap.Error(err))
		return Generated{}, false
	case !gen.Success || strings.TrimSpace(gen.Text) == "":
		a.logger.Debug("answer generator returned no usable text, using template")
		return Generated{}, false
	}

	confidence, valid := types.ParseConfidence(string(gen.Confidence))
	if !valid {
		a.logger.Warn("answer generator returned unknown confidence, using MEDIUM",
			zap.String("confidence", string(gen.Confidence)))
		confidence = types.ConfidenceMedium
	}
	gen.Confidence = confidence
	return gen, true
}

// BuildContext loads incidents, ownerships and dependency counts for the
// ranked rules. Lookup failures are logged and leave the affected fields empty.
func (a *Assembler) BuildContext(ctx context.Context, question string, focus types.Focus, ranked []ranking.Candidate, usedFallback bool) Context {
	c := Context{
		Question:     question,
		Focus:        focus,
		UsedFallback: usedFallback,
		Rules:        make([]RuleContext, len(ranked)),
	}

	ids := make([]string, len(ranked))
	for i, cand := range ranked {
		ids[i] = cand.Rule.ID
	}

	var deps map[string]types.DependencyCount
	if a.catalogue != nil && len(ids) > 0 {
		var err error
		deps, err = a.catalogue.CountDependencies(ctx, ids)
		if err != nil {
			a.logger.Warn("failed to count rule dependencies", zap.Error(err))
		}
	}

	for i, cand := range ranked {
		r := cand.Rule
		rc := RuleContext{
			Rank:               cand.Rank,
			RuleID:             r.ID,
			Name:               r.Name,
			Domain:             r.Domain,
			Criticality:        r.Criticality,
			Description:        r.Description,
			Content:            r.Content,
			SourceFile:         r.SourceFile,
			MatchType:          cand.MatchType,
			IncludedByFallback: cand.IncludedByFallback,
			Dependencies:       deps[r.ID],
		}
		a.loadRelated(ctx, &rc)
		c.Rules[i] = rc
	}

	return c
}

func (a *Assembler) loadRelated(ctx context.Context, rc *RuleContext) {
	if a.catalogue == nil {
		return
	}

	ruleID, err := uuid.Parse(rc.RuleID)
	if err != nil {
		a.logger.Warn("skipping incident and ownership lookup for rule with non-UUID ID",
			zap.String("rule_id", rc.RuleID), zap.Error(err))
		return
	}

	incidents, err := a.catalogue.FindIncidentsByBusinessRuleID(ctx, ruleID)
	if err != nil {
		a.logger.Warn("failed to load incidents", zap.String("rule_id", rc.RuleID), zap.Error(err))
	} else {
		rc.Incidents = incidents
	}

	ownerships, err := a.catalogue.FindOwnershipsByBusinessRuleID(ctx, ruleID)
	if err != nil {
		a.logger.Warn("failed to load ownerships", zap.String("rule_id", rc.RuleID), zap.Error(err))
	} else {
		rc.Ownerships = ownerships
	}
}
