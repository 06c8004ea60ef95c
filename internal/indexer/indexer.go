package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/rulecontext-mcp/internal/embedder"
	"github.com/dshills/rulecontext-mcp/internal/storage"
	"github.com/dshills/rulecontext-mcp/internal/vectorstore"
	"github.com/dshills/rulecontext-mcp/pkg/types"
)

// ErrIndexInProgress is returned when another indexing run holds the lock
var ErrIndexInProgress = errors.New("indexing already in progress")

// Indexer loads a rule catalogue into storage and embeds rule texts.
// It is the only writer; retrieval never calls it.
type Indexer struct {
	storage  storage.Storage
	embedder embedder.Embedder
	vectors  vectorstore.Writer // Optional mirror, used by the memory vector store
	logger   *zap.Logger
	lock     IndexLock

	// Worker pool configuration
	workers int
}

// Config contains configuration for an indexing run
type Config struct {
	Workers   int  // Number of concurrent embedding batches (default: runtime.NumCPU())
	BatchSize int  // Number of rule texts per embedding call (default: embedder.DefaultBatchSize)
	Force     bool // Re-embed rules whose text is unchanged
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	RulesIndexed        int
	RulesDeleted        int
	Incidents           int
	Ownerships          int
	Dependencies        int
	Projects            int
	EmbeddingsGenerated int
	EmbeddingsSkipped   int
	EmbeddingsFailed    int
	Duration            time.Duration
	ErrorMessages       []string
}

// Option configures an Indexer
type Option func(*Indexer)

// WithEmbedder enables embedding generation
func WithEmbedder(emb embedder.Embedder) Option {
	return func(idx *Indexer) { idx.embedder = emb }
}

// WithVectorWriter mirrors every stored embedding into w
func WithVectorWriter(w vectorstore.Writer) Option {
	return func(idx *Indexer) { idx.vectors = w }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(idx *Indexer) { idx.logger = logger }
}

// New creates a new Indexer instance
func New(store storage.Storage, opts ...Option) *Indexer {
	idx := &Indexer{
		storage: store,
		workers: runtime.NumCPU(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Indexing reports whether an indexing run is in progress
func (idx *Indexer) Indexing() bool {
	return idx.lock.Held()
}

// IndexFile loads the catalogue at path and indexes it
func (idx *Indexer) IndexFile(ctx context.Context, path string, config *Config) (*Statistics, error) {
	cat, err := LoadCatalogue(path)
	if err != nil {
		return nil, err
	}
	return idx.Index(ctx, cat, config)
}

// Index replaces the stored catalogue with cat. Rules, related records and
// projects are written in one transaction; rules absent from cat are deleted.
// Embeddings are generated afterwards and failures there are reported in the
// statistics without failing the run, since a rule without an embedding is
// still retrievable by keyword.
func (idx *Indexer) Index(ctx context.Context, cat *CatalogueFile, config *Config) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer idx.lock.Release()

	if config == nil {
		config = &Config{}
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = embedder.DefaultBatchSize
	}
	idx.workers = config.Workers

	if err := cat.Validate(); err != nil {
		return nil, err
	}

	startTime := time.Now()
	stats := &Statistics{
		ErrorMessages: make([]string, 0),
	}

	previous, err := idx.storage.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load current catalogue: %w", err)
	}

	if err := idx.writeCatalogue(ctx, cat, stats); err != nil {
		return nil, err
	}

	idx.dropRemovedVectors(ctx, previous, cat)

	if idx.embedder != nil {
		if err := idx.embedRules(ctx, cat, config, stats); err != nil {
			return nil, fmt.Errorf("failed to embed rules: %w", err)
		}
	}

	stats.Duration = time.Since(startTime)
	idx.logger.Info("catalogue indexed",
		zap.Int("rules", stats.RulesIndexed),
		zap.Int("deleted", stats.RulesDeleted),
		zap.Int("embedded", stats.EmbeddingsGenerated),
		zap.Int("embeddings_skipped", stats.EmbeddingsSkipped),
		zap.Int("embeddings_failed", stats.EmbeddingsFailed),
		zap.Duration("duration", stats.Duration))

	return stats, nil
}

// writeCatalogue upserts rules, related records and projects in one transaction
func (idx *Indexer) writeCatalogue(ctx context.Context, cat *CatalogueFile, stats *Statistics) error {
	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	keep := make([]string, len(cat.Rules))
	for i, entry := range cat.Rules {
		keep[i] = entry.ID
		ruleID := uuid.MustParse(entry.ID)

		if err := tx.UpsertRule(ctx, entry.Rule(), i); err != nil {
			return fmt.Errorf("failed to store rule %s: %w", entry.ID, err)
		}
		incidents := entry.incidents(ruleID)
		if err := tx.ReplaceIncidents(ctx, entry.ID, incidents); err != nil {
			return fmt.Errorf("failed to store incidents of %s: %w", entry.ID, err)
		}
		ownerships := entry.ownerships(ruleID)
		if err := tx.ReplaceOwnerships(ctx, entry.ID, ownerships); err != nil {
			return fmt.Errorf("failed to store ownerships of %s: %w", entry.ID, err)
		}
		stats.Incidents += len(incidents)
		stats.Ownerships += len(ownerships)
	}

	deleted, err := tx.DeleteRulesNotIn(ctx, keep)
	if err != nil {
		return fmt.Errorf("failed to delete removed rules: %w", err)
	}

	// Dependencies reference other rules, so every rule must exist first
	for _, entry := range cat.Rules {
		if err := tx.ReplaceDependencies(ctx, entry.ID, entry.DependsOn); err != nil {
			return fmt.Errorf("failed to store dependencies of %s: %w", entry.ID, err)
		}
		stats.Dependencies += len(entry.DependsOn)
	}

	projectIDs := make([]string, len(cat.Projects))
	for i, p := range cat.Projects {
		projectIDs[i] = p.ID
		project := &types.Project{ID: uuid.MustParse(p.ID), Name: p.Name}
		if err := tx.UpsertProject(ctx, project, p.Rules); err != nil {
			return fmt.Errorf("failed to store project %s: %w", p.ID, err)
		}
	}
	if _, err := tx.DeleteProjectsNotIn(ctx, projectIDs); err != nil {
		return fmt.Errorf("failed to delete removed projects: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	stats.RulesIndexed = len(cat.Rules)
	stats.RulesDeleted = deleted
	stats.Projects = len(cat.Projects)
	return nil
}

// dropRemovedVectors deletes mirrored vectors of rules no longer catalogued.
// Stored embeddings go with their rule row.
func (idx *Indexer) dropRemovedVectors(ctx context.Context, previous []*types.BusinessRule, cat *CatalogueFile) {
	if idx.vectors == nil {
		return
	}
	current := make(map[string]bool, len(cat.Rules))
	for _, entry := range cat.Rules {
		current[entry.ID] = true
	}
	for _, rule := range previous {
		if current[rule.ID] {
			continue
		}
		if err := idx.vectors.DeleteEmbedding(ctx, rule.ID); err != nil {
			idx.logger.Warn("failed to drop vector of removed rule", zap.String("rule_id", rule.ID), zap.Error(err))
		}
	}
}

// pendingRule is a rule whose text needs embedding
type pendingRule struct {
	id   string
	text string
	hash string
}

// embedRules embeds every rule whose text changed since its stored embedding
func (idx *Indexer) embedRules(ctx context.Context, cat *CatalogueFile, config *Config, stats *Statistics) error {
	pending := make([]pendingRule, 0, len(cat.Rules))
	for _, entry := range cat.Rules {
		text := entry.Rule().EmbeddingText()
		hash := embedder.ComputeHash(text)

		skip, err := idx.embeddingCurrent(ctx, entry.ID, hash, config.Force)
		if err != nil {
			return err
		}
		if skip {
			stats.EmbeddingsSkipped++
			continue
		}
		pending = append(pending, pendingRule{id: entry.ID, text: text, hash: hash})
	}

	var generated, failed int32
	var mu sync.Mutex // Protect stats.ErrorMessages

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)

	for i := 0; i < len(pending); i += config.BatchSize {
		end := i + config.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[i:end]

		g.Go(func() error {
			n, err := idx.embedBatch(gctx, batch)
			atomic.AddInt32(&generated, int32(n))
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				atomic.AddInt32(&failed, int32(len(batch)-n))
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages, err.Error())
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	stats.EmbeddingsGenerated = int(generated)
	stats.EmbeddingsFailed = int(failed)
	return nil
}

// embeddingCurrent reports whether the stored embedding was produced from the
// same text by the same model. Current embeddings are mirrored so a fresh
// memory store is complete after a run that embedded nothing.
func (idx *Indexer) embeddingCurrent(ctx context.Context, ruleID, hash string, force bool) (bool, error) {
	existing, err := idx.storage.GetRuleEmbedding(ctx, ruleID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read embedding of %s: %w", ruleID, err)
	}

	if force || existing.ContentHash != hash || existing.Model != idx.embedder.Model() {
		return false, nil
	}
	if idx.vectors != nil {
		if err := idx.vectors.UpsertEmbedding(ctx, ruleID, existing.Vector); err != nil {
			return false, fmt.Errorf("failed to mirror embedding of %s: %w", ruleID, err)
		}
	}
	return true, nil
}

// embedBatch embeds and stores one batch, returning how many were stored
func (idx *Indexer) embedBatch(ctx context.Context, batch []pendingRule) (int, error) {
	texts := make([]string, len(batch))
	for i, p := range batch {
		texts[i] = p.text
	}

	resp, err := idx.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
	if err != nil {
		return 0, fmt.Errorf("batch starting at rule %s: %w", batch[0].id, err)
	}
	if len(resp.Embeddings) != len(batch) {
		return 0, fmt.Errorf("batch starting at rule %s: got %d embeddings for %d texts",
			batch[0].id, len(resp.Embeddings), len(batch))
	}

	stored := 0
	for i, emb := range resp.Embeddings {
		ruleEmb := &storage.RuleEmbedding{
			RuleID:      batch[i].id,
			Vector:      emb.Vector,
			Dimension:   len(emb.Vector),
			Provider:    emb.Provider,
			Model:       emb.Model,
			ContentHash: batch[i].hash,
		}
		if err := idx.storage.SaveRuleEmbedding(ctx, ruleEmb); err != nil {
			return stored, fmt.Errorf("failed to store embedding of %s: %w", batch[i].id, err)
		}
		if idx.vectors != nil {
			if err := idx.vectors.UpsertEmbedding(ctx, batch[i].id, emb.Vector); err != nil {
				return stored, fmt.Errorf("failed to mirror embedding of %s: %w", batch[i].id, err)
			}
		}
		stored++
	}
	return stored, nil
}

// WarmVectors copies every stored embedding into the vector writer. It is
// called at startup when the memory vector store is selected.
func (idx *Indexer) WarmVectors(ctx context.Context) (int, error) {
	if idx.vectors == nil {
		return 0, nil
	}

	embeddings, err := idx.storage.ListRuleEmbeddings(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list embeddings: %w", err)
	}
	for _, emb := range embeddings {
		if err := idx.vectors.UpsertEmbedding(ctx, emb.RuleID, emb.Vector); err != nil {
			return 0, fmt.Errorf("failed to load embedding of %s: %w", emb.RuleID, err)
		}
	}
	return len(embeddings), nil
}
