package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name      string
		provider  string
		jinaKey   string
		openaiKey string
		want      string
	}{
		{"explicit jina provider", "jina", "", "", ProviderJina},
		{"explicit ollama provider", "OLLAMA", "", "", ProviderOllama},
		{"explicit local provider", "local", "key", "", ProviderLocal},
		{"jina key present", "", "test-key", "", ProviderJina},
		{"openai key present", "", "", "test-key", ProviderOpenAI},
		{"both keys, jina takes precedence", "", "jina-key", "openai-key", ProviderJina},
		{"no provider, no keys - fallback to local", "", "", "", ProviderLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvProvider, tt.provider)
			t.Setenv(EnvJinaAPIKey, tt.jinaKey)
			t.Setenv(EnvOpenAIAPIKey, tt.openaiKey)

			assert.Equal(t, tt.want, DetectProvider())
		})
	}
}

func TestNew_DetectsProviderFromEnv(t *testing.T) {
	t.Run("local provider (no keys)", func(t *testing.T) {
		t.Setenv(EnvProvider, "")
		t.Setenv(EnvJinaAPIKey, "")
		t.Setenv(EnvOpenAIAPIKey, "")

		emb, err := New(Config{CacheSize: DefaultCacheSize})
		require.NoError(t, err)
		defer emb.Close()
		assert.Equal(t, ProviderLocal, emb.Provider())
	})

	t.Run("ollama provider with model override", func(t *testing.T) {
		t.Setenv(EnvProvider, "ollama")

		emb, err := New(Config{Model: "mxbai-embed-large", Host: "http://127.0.0.1:11434"})
		require.NoError(t, err)
		assert.Equal(t, ProviderOllama, emb.Provider())
		assert.Equal(t, "mxbai-embed-large", emb.Model())
	})

	t.Run("unknown provider", func(t *testing.T) {
		t.Setenv(EnvProvider, "word2vec")

		_, err := New(Config{})
		assert.ErrorIs(t, err, ErrUnknownProvider)
	})

	t.Run("explicit openai without key", func(t *testing.T) {
		t.Setenv(EnvProvider, "openai")
		t.Setenv(EnvOpenAIAPIKey, "")

		_, err := New(Config{})
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})
}

func TestNew(t *testing.T) {
	emb, err := New(Config{Provider: "local", CacheSize: 10})
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, emb.Provider())

	emb, err = New(Config{Provider: "jina", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, ProviderJina, emb.Provider())

	_, err = New(Config{Provider: "nope"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
