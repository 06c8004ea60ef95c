package embedder

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

// ollamaClient is the subset of *api.Client the provider uses
type ollamaClient interface {
	Embed(ctx context.Context, req *api.EmbedRequest) (*api.EmbedResponse, error)
}

// OllamaProvider implements Embedder using a local or remote Ollama server
type OllamaProvider struct {
	client    ollamaClient
	model     string
	dimension int
	cache     *Cache
}

// NewOllamaProvider creates an Ollama embedder. An empty host falls back to
// OLLAMA_HOST (or the Ollama default); an empty model uses DefaultOllamaModel.
func NewOllamaProvider(host, model string, cache *Cache) (*OllamaProvider, error) {
	hostURL := envconfig.Host()
	if host != "" {
		parsed, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid ollama host %q: %v", ErrInvalidInput, host, err)
		}
		hostURL = parsed
	}
	if model == "" {
		model = DefaultOllamaModel
	}

	return &OllamaProvider{
		client:    api.NewClient(hostURL, http.DefaultClient),
		model:     model,
		dimension: OllamaDimension,
		cache:     cache,
	}, nil
}

func (o *OllamaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := checkTexts(req.Text); err != nil {
		return nil, err
	}
	if o.cache != nil {
		if emb, ok := o.cache.Get(o.model, req.Text); ok {
			return emb, nil
		}
	}

	resp, err := o.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (o *OllamaProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := checkTexts(req.Texts...); err != nil {
		return nil, err
	}
	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	resp, err := retryWithBackoff(ctx, DefaultRetryConfig(), func() (*api.EmbedResponse, error) {
		return o.client.Embed(ctx, &api.EmbedRequest{
			Model: o.model,
			Input: req.Texts,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProviderFailed, ProviderOllama, err)
	}
	if len(resp.Embeddings) != len(req.Texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrProviderFailed, len(req.Texts), len(resp.Embeddings))
	}

	embeddings := make([]*Embedding, len(resp.Embeddings))
	for i, vector := range resp.Embeddings {
		emb := &Embedding{Vector: vector, Provider: ProviderOllama, Model: o.model}
		if o.cache != nil {
			o.cache.Set(o.model, req.Texts[i], emb)
		}
		embeddings[i] = emb
	}
	return &BatchEmbeddingResponse{Embeddings: embeddings}, nil
}

func (o *OllamaProvider) Dimension() int {
	return o.dimension
}

func (o *OllamaProvider) Provider() string {
	return ProviderOllama
}

func (o *OllamaProvider) Model() string {
	return o.model
}

func (o *OllamaProvider) Close() error {
	return nil
}
