package vectorstore

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps rule embeddings in process memory. It is rebuilt from the
// catalogue at startup and does not survive restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	vectors map[string][]float32
	order   []string // insertion order, used to break score ties
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vectors: make(map[string][]float32),
	}
}

// UpsertEmbedding stores a copy of vector for ruleID
func (s *MemoryStore) UpsertEmbedding(_ context.Context, ruleID string, vector []float32) error {
	if ruleID == "" {
		return ErrEmptyRuleID
	}
	if len(vector) == 0 {
		return ErrEmptyVector
	}

	stored := make([]float32, len(vector))
	copy(stored, vector)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.vectors[ruleID]; !exists {
		s.order = append(s.order, ruleID)
	}
	s.vectors[ruleID] = stored
	return nil
}

// DeleteEmbedding removes ruleID. Deleting an absent rule is not an error.
func (s *MemoryStore) DeleteEmbedding(_ context.Context, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vectors[ruleID]; !ok {
		return nil
	}
	delete(s.vectors, ruleID)
	kept := s.order[:0]
	for _, id := range s.order {
		if id != ruleID {
			kept = append(kept, id)
		}
	}
	s.order = kept
	return nil
}

// GetEmbedding returns a copy of the stored vector
func (s *MemoryStore) GetEmbedding(_ context.Context, ruleID string) ([]float32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vec, ok := s.vectors[ruleID]
	if !ok {
		return nil, false, nil
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true, nil
}

// FindTopK scans every stored vector. Vectors whose dimension differs from the
// query are skipped.
func (s *MemoryStore) FindTopK(ctx context.Context, vector []float32, k int) ([]string, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	if k <= 0 {
		return []string{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type scored struct {
		id    string
		score float64
	}

	s.mu.RLock()
	candidates := make([]scored, 0, len(s.order))
	for _, id := range s.order {
		vec := s.vectors[id]
		if len(vec) != len(vector) {
			continue
		}
		candidates = append(candidates, scored{id: id, score: CosineSimilarity(vector, vec)})
	}
	s.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	ids := make([]string, k)
	for i := 0; i < k; i++ {
		ids[i] = candidates[i].id
	}
	return ids, nil
}

// Len returns the number of stored embeddings
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}
