package vectorstore

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero norm", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 1}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			assert.False(t, math.IsNaN(got))
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestRelevance(t *testing.T) {
	assert.Equal(t, 0.0, Relevance(-0.4))
	assert.Equal(t, 0.82, Relevance(0.82))
	assert.Equal(t, 1.0, Relevance(1.0000001))
	assert.Equal(t, 0.0, Relevance(math.NaN()))
}

func TestValidateKind(t *testing.T) {
	k, err := ValidateKind("")
	require.NoError(t, err)
	assert.Equal(t, KindMemory, k)

	k, err = ValidateKind("SQLite")
	require.NoError(t, err)
	assert.Equal(t, KindSQLite, k)

	_, err = ValidateKind("pinecone")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.UpsertEmbedding(ctx, "r1", []float32{1, 0, 0}))
	require.NoError(t, s.UpsertEmbedding(ctx, "r2", []float32{0.7, 0.7, 0}))
	require.NoError(t, s.UpsertEmbedding(ctx, "r3", []float32{0, 0, 1}))
	require.NoError(t, s.UpsertEmbedding(ctx, "short", []float32{1}))

	t.Run("top k by decreasing similarity", func(t *testing.T) {
		ids, err := s.FindTopK(ctx, []float32{1, 0.1, 0}, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"r1", "r2"}, ids)
	})

	t.Run("k larger than store skips mismatched dimensions", func(t *testing.T) {
		ids, err := s.FindTopK(ctx, []float32{1, 0, 0}, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"r1", "r2", "r3"}, ids)
	})

	t.Run("ties keep insertion order", func(t *testing.T) {
		ids, err := s.FindTopK(ctx, []float32{0, 1, 0}, 3)
		require.NoError(t, err)
		// r1 and r3 are both orthogonal to the query
		assert.Equal(t, []string{"r2", "r1", "r3"}, ids)
	})

	t.Run("zero k", func(t *testing.T) {
		ids, err := s.FindTopK(ctx, []float32{1, 0, 0}, 0)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("empty query", func(t *testing.T) {
		_, err := s.FindTopK(ctx, nil, 3)
		assert.ErrorIs(t, err, ErrEmptyVector)
	})

	t.Run("get embedding returns a copy", func(t *testing.T) {
		vec, ok, err := s.GetEmbedding(ctx, "r1")
		require.NoError(t, err)
		require.True(t, ok)
		vec[0] = 42

		again, _, _ := s.GetEmbedding(ctx, "r1")
		assert.Equal(t, float32(1), again[0])
	})

	t.Run("missing embedding is not an error", func(t *testing.T) {
		_, ok, err := s.GetEmbedding(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("upsert replaces and delete removes", func(t *testing.T) {
		require.NoError(t, s.UpsertEmbedding(ctx, "r3", []float32{1, 0, 0}))
		assert.Equal(t, 4, s.Len())

		require.NoError(t, s.DeleteEmbedding(ctx, "short"))
		require.NoError(t, s.DeleteEmbedding(ctx, "short"))
		assert.Equal(t, 3, s.Len())
	})

	t.Run("invalid upserts", func(t *testing.T) {
		assert.ErrorIs(t, s.UpsertEmbedding(ctx, "", []float32{1}), ErrEmptyRuleID)
		assert.ErrorIs(t, s.UpsertEmbedding(ctx, "x", nil), ErrEmptyVector)
	})
}
