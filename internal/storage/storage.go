package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/rulecontext-mcp/pkg/types"
)

// RuleRepository reads the rule catalogue. FindAll returns rules in
// catalogue order, which is the tie-break order for ranking.
type RuleRepository interface {
	FindAll(ctx context.Context) ([]*types.BusinessRule, error)
	FindByID(ctx context.Context, id string) (*types.BusinessRule, error)
}

// IncidentRepository reads incidents attributed to rules
type IncidentRepository interface {
	FindIncidentsByBusinessRuleID(ctx context.Context, ruleID uuid.UUID) ([]types.Incident, error)
	// CountIncidents returns incident counts keyed by rule ID. Rules with no
	// incidents are absent from the map.
	CountIncidents(ctx context.Context, ruleIDs []string) (map[string]int, error)
}

// OwnershipRepository reads rule ownership
type OwnershipRepository interface {
	FindOwnershipsByBusinessRuleID(ctx context.Context, ruleID uuid.UUID) ([]types.Ownership, error)
}

// ProjectRepository resolves project scopes
type ProjectRepository interface {
	GetProject(ctx context.Context, id uuid.UUID) (*types.Project, error)
	AllowedRuleIDs(ctx context.Context, projectID uuid.UUID) ([]string, error)
}

// DependencyRepository reads dependency-graph degree counts
type DependencyRepository interface {
	CountDependencies(ctx context.Context, ruleIDs []string) (map[string]types.DependencyCount, error)
}

// Catalogue bundles the read accessors retrieval needs
type Catalogue interface {
	RuleRepository
	IncidentRepository
	OwnershipRepository
	ProjectRepository
	DependencyRepository
}

// Storage is the full persistence contract, including the writes the indexer
// performs. Retrieval only ever uses the Catalogue subset.
type Storage interface {
	Catalogue

	// Rule writes
	UpsertRule(ctx context.Context, rule *types.BusinessRule, position int) error
	DeleteRulesNotIn(ctx context.Context, keep []string) (deleted int, err error)

	// Related entity writes. Each call replaces the rule's existing rows.
	ReplaceIncidents(ctx context.Context, ruleID string, incidents []types.Incident) error
	ReplaceOwnerships(ctx context.Context, ruleID string, ownerships []types.Ownership) error
	ReplaceDependencies(ctx context.Context, ruleID string, dependsOn []string) error
	UpsertProject(ctx context.Context, project *types.Project, ruleIDs []string) error
	DeleteProjectsNotIn(ctx context.Context, keep []string) (deleted int, err error)

	// Embedding operations
	SaveRuleEmbedding(ctx context.Context, emb *RuleEmbedding) error
	GetRuleEmbedding(ctx context.Context, ruleID string) (*RuleEmbedding, error)
	ListRuleEmbeddings(ctx context.Context) ([]*RuleEmbedding, error)

	// Vector search over stored embeddings
	FindTopK(ctx context.Context, vector []float32, k int) ([]string, error)
	GetEmbedding(ctx context.Context, ruleID string) ([]float32, bool, error)

	// Status operations
	GetStatus(ctx context.Context) (*CatalogueStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage
}

// RuleEmbedding is a persisted rule vector with provenance
type RuleEmbedding struct {
	RuleID      string
	Vector      []float32
	Dimension   int
	Provider    string
	Model       string
	ContentHash string // Hash of the embedded text, used to skip unchanged rules
	CreatedAt   time.Time
}

// CatalogueStatus contains statistics about the indexed catalogue
type CatalogueStatus struct {
	RulesCount        int
	EmbeddingsCount   int
	IncidentsCount    int
	OwnershipsCount   int
	ProjectsCount     int
	DependenciesCount int
	SchemaVersion     string
	IndexSizeMB       float64
	LastIndexedAt     time.Time
	Health            HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	FullyEmbedded       bool // Every rule has an embedding
}
