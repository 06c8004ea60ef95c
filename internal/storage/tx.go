package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/dshills/rulecontext-mcp/pkg/types"
)

// sqliteTx implements Tx. Every method runs against the open transaction.
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

var _ Tx = (*sqliteTx)(nil)

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) FindAll(ctx context.Context) ([]*types.BusinessRule, error) {
	return t.storage.findAllWithQuerier(ctx, t.tx)
}

func (t *sqliteTx) FindByID(ctx context.Context, id string) (*types.BusinessRule, error) {
	return t.storage.findByIDWithQuerier(ctx, t.tx, id)
}

func (t *sqliteTx) UpsertRule(ctx context.Context, rule *types.BusinessRule, position int) error {
	return t.storage.upsertRuleWithQuerier(ctx, t.tx, rule, position)
}

func (t *sqliteTx) DeleteRulesNotIn(ctx context.Context, keep []string) (int, error) {
	return t.storage.deleteRulesNotInWithQuerier(ctx, t.tx, keep)
}

func (t *sqliteTx) FindIncidentsByBusinessRuleID(ctx context.Context, ruleID uuid.UUID) ([]types.Incident, error) {
	return t.storage.findIncidentsWithQuerier(ctx, t.tx, ruleID)
}

func (t *sqliteTx) CountIncidents(ctx context.Context, ruleIDs []string) (map[string]int, error) {
	return t.storage.countIncidentsWithQuerier(ctx, t.tx, ruleIDs)
}

func (t *sqliteTx) ReplaceIncidents(ctx context.Context, ruleID string, incidents []types.Incident) error {
	return t.storage.replaceIncidentsWithQuerier(ctx, t.tx, ruleID, incidents)
}

func (t *sqliteTx) FindOwnershipsByBusinessRuleID(ctx context.Context, ruleID uuid.UUID) ([]types.Ownership, error) {
	return t.storage.findOwnershipsWithQuerier(ctx, t.tx, ruleID)
}

func (t *sqliteTx) ReplaceOwnerships(ctx context.Context, ruleID string, ownerships []types.Ownership) error {
	return t.storage.replaceOwnershipsWithQuerier(ctx, t.tx, ruleID, ownerships)
}

func (t *sqliteTx) GetProject(ctx context.Context, id uuid.UUID) (*types.Project, error) {
	return t.storage.getProjectWithQuerier(ctx, t.tx, id)
}

func (t *sqliteTx) AllowedRuleIDs(ctx context.Context, projectID uuid.UUID) ([]string, error) {
	return t.storage.allowedRuleIDsWithQuerier(ctx, t.tx, projectID)
}

func (t *sqliteTx) UpsertProject(ctx context.Context, project *types.Project, ruleIDs []string) error {
	return t.storage.upsertProjectWithQuerier(ctx, t.tx, project, ruleIDs)
}

func (t *sqliteTx) DeleteProjectsNotIn(ctx context.Context, keep []string) (int, error) {
	return t.storage.deleteProjectsNotInWithQuerier(ctx, t.tx, keep)
}

func (t *sqliteTx) ReplaceDependencies(ctx context.Context, ruleID string, dependsOn []string) error {
	return t.storage.replaceDependenciesWithQuerier(ctx, t.tx, ruleID, dependsOn)
}

func (t *sqliteTx) CountDependencies(ctx context.Context, ruleIDs []string) (map[string]types.DependencyCount, error) {
	return t.storage.countDependenciesWithQuerier(ctx, t.tx, ruleIDs)
}

func (t *sqliteTx) SaveRuleEmbedding(ctx context.Context, emb *RuleEmbedding) error {
	return t.storage.saveRuleEmbeddingWithQuerier(ctx, t.tx, emb)
}

func (t *sqliteTx) GetRuleEmbedding(ctx context.Context, ruleID string) (*RuleEmbedding, error) {
	return t.storage.getRuleEmbeddingWithQuerier(ctx, t.tx, ruleID)
}

func (t *sqliteTx) ListRuleEmbeddings(ctx context.Context) ([]*RuleEmbedding, error) {
	return t.storage.listRuleEmbeddingsWithQuerier(ctx, t.tx)
}

func (t *sqliteTx) GetEmbedding(ctx context.Context, ruleID string) ([]float32, bool, error) {
	emb, err := t.GetRuleEmbedding(ctx, ruleID)
	if err == ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return emb.Vector, true, nil
}

// Vector search and status read committed data, which would deadlock on the
// single pooled connection while the transaction holds it.

func (t *sqliteTx) FindTopK(ctx context.Context, vector []float32, k int) ([]string, error) {
	return nil, fmt.Errorf("vector search not supported in transaction")
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*CatalogueStatus, error) {
	return nil, fmt.Errorf("status not supported in transaction")
}

func (t *sqliteTx) Close() error {
	return fmt.Errorf("cannot close storage from transaction")
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, fmt.Errorf("nested transactions not supported")
}
