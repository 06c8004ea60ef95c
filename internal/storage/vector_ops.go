package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/dshills/rulecontext-mcp/internal/vectorstore"
)

var _ vectorstore.VectorStore = (*SQLiteStorage)(nil)

// Embedding operations

func (s *SQLiteStorage) saveRuleEmbeddingWithQuerier(ctx context.Context, q querier, emb *RuleEmbedding) error {
	if emb.RuleID == "" {
		return vectorstore.ErrEmptyRuleID
	}
	if len(emb.Vector) == 0 {
		return vectorstore.ErrEmptyVector
	}
	if emb.Dimension == 0 {
		emb.Dimension = len(emb.Vector)
	}
	if emb.Dimension != len(emb.Vector) {
		return fmt.Errorf("%w: declared %d, got %d", vectorstore.ErrDimensionMismatch, emb.Dimension, len(emb.Vector))
	}
	if emb.CreatedAt.IsZero() {
		emb.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO rule_embeddings (rule_id, vector, dimension, provider, model, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(rule_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model,
			content_hash = excluded.content_hash,
			created_at = excluded.created_at
	`
	_, err := q.ExecContext(ctx, query,
		emb.RuleID, serializeVector(emb.Vector), emb.Dimension,
		emb.Provider, emb.Model, emb.ContentHash, emb.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save embedding for %s: %w", emb.RuleID, err)
	}
	return nil
}

// SaveRuleEmbedding creates or replaces the embedding for a rule
func (s *SQLiteStorage) SaveRuleEmbedding(ctx context.Context, emb *RuleEmbedding) error {
	return s.saveRuleEmbeddingWithQuerier(ctx, s.querier(), emb)
}

var embeddingColumns = []string{"rule_id", "vector", "dimension", "provider", "model", "content_hash", "created_at"}

func scanRuleEmbedding(scan func(dest ...interface{}) error) (*RuleEmbedding, error) {
	var emb RuleEmbedding
	var blob []byte
	if err := scan(&emb.RuleID, &blob, &emb.Dimension, &emb.Provider, &emb.Model, &emb.ContentHash, &emb.CreatedAt); err != nil {
		return nil, err
	}
	emb.Vector = deserializeVector(blob)
	return &emb, nil
}

func (s *SQLiteStorage) getRuleEmbeddingWithQuerier(ctx context.Context, q querier, ruleID string) (*RuleEmbedding, error) {
	query, args, err := sqlb.Select(embeddingColumns...).
		From("rule_embeddings").
		Where(sq.Eq{"rule_id": ruleID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	emb, err := scanRuleEmbedding(q.QueryRowContext(ctx, query, args...).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return emb, nil
}

func (s *SQLiteStorage) GetRuleEmbedding(ctx context.Context, ruleID string) (*RuleEmbedding, error) {
	return s.getRuleEmbeddingWithQuerier(ctx, s.querier(), ruleID)
}

func (s *SQLiteStorage) listRuleEmbeddingsWithQuerier(ctx context.Context, q querier) ([]*RuleEmbedding, error) {
	cols := make([]string, len(embeddingColumns))
	for i, c := range embeddingColumns {
		cols[i] = "e." + c
	}
	query, args, err := sqlb.Select(cols...).
		From("rule_embeddings e").
		Join("business_rules r ON r.id = e.rule_id").
		OrderBy("r.position", "r.id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	embeddings := make([]*RuleEmbedding, 0)
	for rows.Next() {
		emb, err := scanRuleEmbedding(rows.Scan)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, emb)
	}
	return embeddings, rows.Err()
}

// ListRuleEmbeddings returns every stored embedding in catalogue order
func (s *SQLiteStorage) ListRuleEmbeddings(ctx context.Context) ([]*RuleEmbedding, error) {
	return s.listRuleEmbeddingsWithQuerier(ctx, s.querier())
}

// GetEmbedding implements vectorstore.VectorStore
func (s *SQLiteStorage) GetEmbedding(ctx context.Context, ruleID string) ([]float32, bool, error) {
	emb, err := s.GetRuleEmbedding(ctx, ruleID)
	if err == ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return emb.Vector, true, nil
}

// FindTopK implements vectorstore.VectorStore. Results are ordered by
// decreasing cosine similarity with catalogue order breaking ties.
func (s *SQLiteStorage) FindTopK(ctx context.Context, vector []float32, k int) ([]string, error) {
	if len(vector) == 0 {
		return nil, vectorstore.ErrEmptyVector
	}
	if k <= 0 {
		return []string{}, nil
	}

	// Use optimized SQL-based search when sqlite-vec is available
	if VectorExtensionAvailable {
		return findTopKOptimized(ctx, s.db, vector, k)
	}
	// Fall back to Go-based computation for purego builds
	return findTopKFallback(ctx, s.db, vector, k)
}

// findTopKOptimized uses the sqlite-vec extension to rank in SQL
func findTopKOptimized(ctx context.Context, db *sql.DB, vector []float32, k int) ([]string, error) {
	// vec_distance_cosine returns distance (lower is better)
	query := `
		SELECT e.rule_id
		FROM rule_embeddings e
		INNER JOIN business_rules r ON r.id = e.rule_id
		WHERE e.dimension = ?
		ORDER BY 1.0 - vec_distance_cosine(e.vector, ?) DESC, r.position, r.id
		LIMIT ?
	`
	rows, err := db.QueryContext(ctx, query, len(vector), serializeVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]string, 0, k)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// candidate represents a scored rule during Go-side ranking
type candidate struct {
	ruleID string
	score  float64
}

// findTopKFallback loads candidate vectors and ranks them in Go
func findTopKFallback(ctx context.Context, db *sql.DB, vector []float32, k int) ([]string, error) {
	query := `
		SELECT e.rule_id, e.vector
		FROM rule_embeddings e
		INNER JOIN business_rules r ON r.id = e.rule_id
		WHERE e.dimension = ?
		ORDER BY r.position, r.id
	`
	rows, err := db.QueryContext(ctx, query, len(vector))
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeSimilarityScores(rows, vector)
	if err != nil {
		return nil, err
	}

	// Stable sort keeps catalogue order for equal scores
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	ids := make([]string, k)
	for i := 0; i < k; i++ {
		ids[i] = candidates[i].ruleID
	}
	return ids, nil
}

// computeSimilarityScores processes rows and computes cosine similarity
func computeSimilarityScores(rows *sql.Rows, queryVector []float32) ([]candidate, error) {
	candidates := make([]candidate, 0, 64)

	for rows.Next() {
		var ruleID string
		var vectorBlob []byte
		if err := rows.Scan(&ruleID, &vectorBlob); err != nil {
			return nil, err
		}

		vec := deserializeVector(vectorBlob)
		if len(vec) != len(queryVector) {
			continue
		}

		candidates = append(candidates, candidate{
			ruleID: ruleID,
			score:  vectorstore.CosineSimilarity(queryVector, vec),
		})
	}

	return candidates, rows.Err()
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}
