package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHash(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "empty string",
			text: "",
			want: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name: "simple text",
			text: "hello world",
			want: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeHash(tt.text))
		})
	}
}

func TestCheckTexts(t *testing.T) {
	tests := []struct {
		name    string
		texts   []string
		wantErr bool
	}{
		{"valid", []string{"a", "b"}, false},
		{"single", []string{"regra pix"}, false},
		{"empty batch", nil, true},
		{"blank single", []string{""}, true},
		{"empty text in batch", []string{"a", ""}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkTexts(tt.texts...)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestCache(t *testing.T) {
	t.Run("get returns a copy", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("m", "regra", &Embedding{Vector: []float32{1, 2, 3}})

		got, ok := cache.Get("m", "regra")
		require.True(t, ok)
		got.Vector[0] = 99

		again, ok := cache.Get("m", "regra")
		require.True(t, ok)
		assert.Equal(t, []float32{1, 2, 3}, again.Vector)
	})

	t.Run("set stores a copy", func(t *testing.T) {
		cache := NewCache(10)
		emb := &Embedding{Vector: []float32{1, 2, 3}}
		cache.Set("m", "regra", emb)
		emb.Vector[0] = 99

		got, _ := cache.Get("m", "regra")
		assert.Equal(t, float32(1), got.Vector[0])
	})

	t.Run("scoped by model", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("m1", "regra", &Embedding{Vector: []float32{1}})

		_, ok := cache.Get("m2", "regra")
		assert.False(t, ok)
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		cache := NewCache(2)
		cache.Set("m", "a", &Embedding{})
		cache.Set("m", "b", &Embedding{})
		_, _ = cache.Get("m", "a")
		cache.Set("m", "c", &Embedding{})

		_, okA := cache.Get("m", "a")
		_, okB := cache.Get("m", "b")
		assert.True(t, okA)
		assert.False(t, okB)
		assert.Equal(t, 2, cache.entries.Len())
	})

	t.Run("non-positive size uses default", func(t *testing.T) {
		cache := NewCache(0)
		assert.Equal(t, 0, cache.entries.Len())
		cache.Set("m", "a", &Embedding{})
		assert.Equal(t, 1, cache.entries.Len())
	})
}
