// Package app wires storage, embedding, indexing and retrieval from a Config.
// The MCP server and the CLI commands share this wiring so both run the same
// engine.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/dshills/rulecontext-mcp/internal/answer"
	"github.com/dshills/rulecontext-mcp/internal/config"
	"github.com/dshills/rulecontext-mcp/internal/embedder"
	"github.com/dshills/rulecontext-mcp/internal/indexer"
	"github.com/dshills/rulecontext-mcp/internal/keyword"
	"github.com/dshills/rulecontext-mcp/internal/searcher"
	"github.com/dshills/rulecontext-mcp/internal/storage"
	"github.com/dshills/rulecontext-mcp/internal/vectorstore"
)

// App holds the wired components
type App struct {
	Config   *config.Config
	Storage  storage.Storage
	Embedder embedder.Embedder
	Indexer  *indexer.Indexer
	Searcher *searcher.Searcher
	Logger   *zap.Logger
}

// Options lets callers replace collaborators, mainly in tests
type Options struct {
	Embedder  embedder.Embedder // Replaces the configured provider
	Generator answer.Generator  // Replaces the configured generator
}

// New builds every component. The embedder is shared by the indexer and the
// searcher so both use one provider cache.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dbPath, err := cfg.ResolvedDBPath()
	if err != nil {
		return nil, err
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a, err := build(ctx, cfg, store, logger, opts)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, logger *zap.Logger, opts Options) (*App, error) {
	emb := opts.Embedder
	if emb == nil {
		var err error
		emb, err = embedder.New(cfg.EmbedderConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
	}

	idxOpts := []indexer.Option{indexer.WithEmbedder(emb), indexer.WithLogger(logger)}

	var vectors vectorstore.VectorStore = store
	if cfg.VectorStore == vectorstore.KindMemory {
		mem := vectorstore.NewMemoryStore()
		vectors = mem
		idxOpts = append(idxOpts, indexer.WithVectorWriter(mem))
	}
	idx := indexer.New(store, idxOpts...)

	if cfg.VectorStore == vectorstore.KindMemory {
		n, err := idx.WarmVectors(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load memory vector store: %w", err)
		}
		logger.Debug("memory vector store loaded", zap.Int("embeddings", n))
	}

	keywords := keyword.Default()
	if cfg.KeywordsFile != "" {
		var err error
		keywords, err = keyword.LoadFile(cfg.KeywordsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load keyword table: %w", err)
		}
	}

	gen := opts.Generator
	if gen == nil {
		var err error
		gen, err = answer.NewGenerator(cfg.AnswerGeneratorConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize answer generator: %w", err)
		}
	}

	policy := cfg.Ranking
	srch, err := searcher.NewSearcher(searcher.Options{
		Catalogue:        store,
		Vectors:          vectors,
		Embedder:         emb,
		Keywords:         keywords,
		Generator:        gen,
		Policy:           &policy,
		EmbedTimeout:     cfg.EmbedTimeout,
		GeneratorTimeout: cfg.GeneratorTimeout,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize searcher: %w", err)
	}

	logger.Info("engine ready",
		zap.String("db", cfg.DBPath),
		zap.String("vector_store", cfg.VectorStore),
		zap.String("embedder", emb.Provider()),
		zap.String("embedding_model", emb.Model()),
		zap.String("generator", cfg.Generator.Kind),
		zap.String("sqlite_driver", storage.DriverName))

	return &App{
		Config:   cfg,
		Storage:  store,
		Embedder: emb,
		Indexer:  idx,
		Searcher: srch,
		Logger:   logger,
	}, nil
}

// Close releases the embedder and the database
func (a *App) Close() error {
	_ = a.Embedder.Close()
	return a.Storage.Close()
}
