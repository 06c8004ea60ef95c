package types

import "errors"

// Caller input errors. These are rejected, never degraded.
var (
	ErrEmptyQuestion     = errors.New("question cannot be empty")
	ErrInvalidFocus      = errors.New("focus must be BUSINESS, TECHNICAL or EXECUTIVE")
	ErrInvalidMaxSources = errors.New("maxSources must be between 1 and 10")
	ErrProjectNotFound   = errors.New("project not found")
)

// Domain errors for type validation
var (
	ErrInvalidRuleID        = errors.New("invalid rule ID")
	ErrEmptyRuleName        = errors.New("rule name cannot be empty")
	ErrInvalidCriticality   = errors.New("criticality must be BAIXA, MEDIA, ALTA or CRITICA")
	ErrInvalidRank          = errors.New("rank positions must be contiguous from 1")
	ErrInvalidSemanticScore = errors.New("semantic score must be between 0 and 1")
	ErrScoreSourceMismatch  = errors.New("rule scores and sources must align")
	ErrMissingDisclaimer    = errors.New("disclaimer is required")
)

// IsCallerError reports whether err was caused by invalid request input
func IsCallerError(err error) bool {
	return errors.Is(err, ErrEmptyQuestion) ||
		errors.Is(err, ErrInvalidFocus) ||
		errors.Is(err, ErrInvalidMaxSources) ||
		errors.Is(err, ErrProjectNotFound)
}
