package embedder

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingServer struct {
	server *httptest.Server
	calls  atomic.Int32
}

// newEmbeddingServer answers OpenAI-style requests with one vector per input,
// returned in reverse order to exercise index handling.
func newEmbeddingServer(t *testing.T, status int) *embeddingServer {
	t.Helper()
	es := &embeddingServer{}
	es.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		es.calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Index: i, Embedding: []float32{float32(i + 1), 0, 0}})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"model": req.Model,
			"data":  data,
		})
	}))
	t.Cleanup(es.server.Close)
	return es
}

func testHTTPProvider(endpoint string, cache *Cache) *HTTPProvider {
	return newHTTPProvider(ProviderOpenAI, endpoint, "test-key", DefaultOpenAIModel, 3, cache)
}

func TestHTTPProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("batch preserves input order", func(t *testing.T) {
		es := newEmbeddingServer(t, http.StatusOK)
		p := testHTTPProvider(es.server.URL, nil)

		resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a", "b", "c"}})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 3)
		for i, emb := range resp.Embeddings {
			assert.Equal(t, float32(i+1), emb.Vector[0])
			assert.Equal(t, DefaultOpenAIModel, emb.Model)
		}
	})

	t.Run("single embedding is cached", func(t *testing.T) {
		es := newEmbeddingServer(t, http.StatusOK)
		p := testHTTPProvider(es.server.URL, NewCache(10))

		_, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "regra pix"})
		require.NoError(t, err)
		_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "regra pix"})
		require.NoError(t, err)
		assert.Equal(t, int32(1), es.calls.Load())
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		es := newEmbeddingServer(t, http.StatusUnauthorized)
		p := testHTTPProvider(es.server.URL, nil)

		_, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(1), es.calls.Load())
	})

	t.Run("server errors are retried", func(t *testing.T) {
		es := newEmbeddingServer(t, http.StatusBadGateway)
		p := testHTTPProvider(es.server.URL, nil)

		_, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(MaxRetries), es.calls.Load())
	})

	t.Run("empty text rejected before any call", func(t *testing.T) {
		es := newEmbeddingServer(t, http.StatusOK)
		p := testHTTPProvider(es.server.URL, nil)

		_, err := p.GenerateEmbedding(ctx, EmbeddingRequest{})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Equal(t, int32(0), es.calls.Load())
	})

	t.Run("batch too large", func(t *testing.T) {
		p := testHTTPProvider("http://unused", nil)
		texts := make([]string, MaxBatchSize+1)
		for i := range texts {
			texts[i] = "t"
		}
		_, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: texts})
		assert.ErrorIs(t, err, ErrBatchTooLarge)
	})
}

func TestProviderConstructors(t *testing.T) {
	t.Setenv(EnvJinaAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")

	_, err := NewJinaProvider("", nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
	_, err = NewOpenAIProvider("", nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)

	jina, err := NewJinaProvider("k", nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderJina, jina.Provider())
	assert.Equal(t, JinaDimension, jina.Dimension())
	assert.Equal(t, DefaultJinaModel, jina.Model())
	assert.NoError(t, jina.Close())

	openai, err := NewOpenAIProvider("k", nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, openai.Provider())
	assert.Equal(t, OpenAIDimension, openai.Dimension())
}

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()
	p, err := NewLocalProvider(NewCache(10))
	require.NoError(t, err)

	t.Run("deterministic and unit length", func(t *testing.T) {
		a, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "Cálculo de horas PJ"})
		require.NoError(t, err)
		b, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "Cálculo de horas PJ"})
		require.NoError(t, err)
		assert.Equal(t, a.Vector, b.Vector)
		assert.Len(t, a.Vector, LocalDimension)

		var sum float64
		for _, v := range a.Vector {
			sum += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
	})

	t.Run("shared words give positive similarity", func(t *testing.T) {
		rule, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "REGRA_CALCULO_HORAS_PJ"})
		require.NoError(t, err)
		query, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "calculo de horas"})
		require.NoError(t, err)

		var dot float64
		for i := range rule.Vector {
			dot += float64(rule.Vector[i]) * float64(query.Vector[i])
		}
		assert.Greater(t, dot, 0.0)
	})

	t.Run("batch", func(t *testing.T) {
		resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a", "b"}})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 2)
		assert.Equal(t, ProviderLocal, resp.Embeddings[0].Provider)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := p.GenerateEmbedding(cctx, EmbeddingRequest{Text: "never cached"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNormalizeVector(t *testing.T) {
	assert.Equal(t, []float32{0.6, 0.8}, NormalizeVector([]float32{3, 4}))
	zero := []float32{0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}
