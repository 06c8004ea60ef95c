// Package vectorstore defines nearest-neighbour lookup over rule embeddings and
// provides the ephemeral in-process implementation. The persistent
// implementation lives in the storage package.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Store kinds accepted by configuration
const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
)

var (
	ErrEmptyRuleID       = errors.New("rule ID cannot be empty")
	ErrEmptyVector       = errors.New("vector cannot be empty")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrUnknownKind       = errors.New("unknown vector store kind")
)

// VectorStore is the read contract used during retrieval
type VectorStore interface {
	// FindTopK returns up to k rule IDs ordered by decreasing cosine similarity
	FindTopK(ctx context.Context, vector []float32, k int) ([]string, error)

	// GetEmbedding returns the stored vector for a rule. A missing embedding
	// is reported with ok=false and a nil error.
	GetEmbedding(ctx context.Context, ruleID string) (vector []float32, ok bool, err error)
}

// Writer is implemented by stores the indexer can populate
type Writer interface {
	UpsertEmbedding(ctx context.Context, ruleID string, vector []float32) error
	DeleteEmbedding(ctx context.Context, ruleID string) error
}

// ValidateKind checks a configured store kind
func ValidateKind(kind string) (string, error) {
	k := strings.ToLower(strings.TrimSpace(kind))
	switch k {
	case "":
		return KindMemory, nil
	case KindMemory, KindSQLite:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

// CosineSimilarity computes dot(a,b)/(|a||b|). It returns 0 when either norm
// is zero or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) {
		return 0
	}
	return sim
}

// Relevance clamps a cosine similarity into [0,1]
func Relevance(sim float64) float64 {
	switch {
	case sim < 0 || math.IsNaN(sim):
		return 0
	case sim > 1:
		return 1
	default:
		return sim
	}
}
