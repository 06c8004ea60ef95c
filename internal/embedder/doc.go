// Package embedder generates vector embeddings for business rules and questions.
//
// Four providers are available: Jina AI and OpenAI (shared HTTP client), Ollama,
// and an offline hashing provider for development. Each provider keeps a
// content-hash LRU so re-indexing an unchanged catalogue is cheap.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{CacheSize: embedder.DefaultCacheSize})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "Onde alterar o cálculo de horas para Pessoa Jurídica?",
//	})
//
// # Provider Selection
//
// Config.Provider (or RULECONTEXT_EMBEDDING_PROVIDER) picks a provider
// explicitly (jina, openai, ollama, local). Without either, JINA_API_KEY then OPENAI_API_KEY are checked and
// the local provider is the final fallback. OLLAMA_HOST and
// RULECONTEXT_EMBEDDING_MODEL configure the Ollama provider.
//
// # Query Cache
//
// QueryCache sits in front of any provider on the question path. It is keyed by
// normalized question text, never expires, and deduplicates concurrent misses:
//
//	cache := embedder.NewQueryCache()
//	vec, hit, err := cache.GetOrCompute(ctx, normalizer.Normalize(q), func(ctx context.Context) ([]float32, error) {
//	    e, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: q})
//	    if err != nil {
//	        return nil, err
//	    }
//	    return e.Vector, nil
//	})
//
// The raw question, not the normalized key, is what the provider embeds.
//
// # Retries
//
// HTTP and Ollama calls retry with exponential backoff (100ms doubling, capped
// at 5s, 3 attempts). Client errors other than 429 fail immediately.
package embedder
