package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/dshills/rulecontext-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrUnknownRule is returned when a write references a rule that is not catalogued
	ErrUnknownRule = errors.New("unknown rule")
)

// sqlb builds SQLite statements with ? placeholders
var sqlb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

var ruleColumns = []string{"id", "name", "domain", "description", "criticality", "content", "source_file"}

// SQLiteStorage implements Storage using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single connection: SQLite has one writer, and :memory: databases are per-connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Rule operations

func scanRule(scan func(dest ...interface{}) error) (*types.BusinessRule, error) {
	var rule types.BusinessRule
	var domain, criticality string
	var sourceFile sql.NullString
	if err := scan(&rule.ID, &rule.Name, &domain, &rule.Description, &criticality, &rule.Content, &sourceFile); err != nil {
		return nil, err
	}
	rule.Domain = types.Domain(domain)
	rule.Criticality = types.Criticality(criticality)
	if sourceFile.Valid {
		rule.SourceFile = sourceFile.String
	}
	return &rule, nil
}

func (s *SQLiteStorage) findAllWithQuerier(ctx context.Context, q querier) ([]*types.BusinessRule, error) {
	query, args, err := sqlb.Select(ruleColumns...).
		From("business_rules").
		OrderBy("position", "id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rules := make([]*types.BusinessRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows.Scan)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// FindAll returns every rule in catalogue order
func (s *SQLiteStorage) FindAll(ctx context.Context) ([]*types.BusinessRule, error) {
	return s.findAllWithQuerier(ctx, s.querier())
}

func (s *SQLiteStorage) findByIDWithQuerier(ctx context.Context, q querier, id string) (*types.BusinessRule, error) {
	query, args, err := sqlb.Select(ruleColumns...).
		From("business_rules").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	rule, err := scanRule(q.QueryRowContext(ctx, query, args...).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *SQLiteStorage) FindByID(ctx context.Context, id string) (*types.BusinessRule, error) {
	return s.findByIDWithQuerier(ctx, s.querier(), id)
}

func (s *SQLiteStorage) upsertRuleWithQuerier(ctx context.Context, q querier, rule *types.BusinessRule, position int) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	domain := rule.Domain
	if domain == "" {
		domain = types.DomainGeral
	}

	query := `
		INSERT INTO business_rules (id, position, name, domain, description, criticality, content, source_file, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			position = excluded.position,
			name = excluded.name,
			domain = excluded.domain,
			description = excluded.description,
			criticality = excluded.criticality,
			content = excluded.content,
			source_file = excluded.source_file,
			updated_at = excluded.updated_at
	`
	var sourceFile interface{}
	if rule.SourceFile != "" {
		sourceFile = rule.SourceFile
	}
	now := time.Now()
	_, err := q.ExecContext(ctx, query,
		rule.ID, position, rule.Name, string(domain), rule.Description,
		string(rule.Criticality), rule.Content, sourceFile, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert rule %s: %w", rule.ID, err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertRule(ctx context.Context, rule *types.BusinessRule, position int) error {
	return s.upsertRuleWithQuerier(ctx, s.querier(), rule, position)
}

func (s *SQLiteStorage) deleteRulesNotInWithQuerier(ctx context.Context, q querier, keep []string) (int, error) {
	builder := sqlb.Delete("business_rules")
	if len(keep) > 0 {
		builder = builder.Where(sq.NotEq{"id": keep})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to prune rules: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// DeleteRulesNotIn removes rules missing from keep. Related rows cascade.
func (s *SQLiteStorage) DeleteRulesNotIn(ctx context.Context, keep []string) (int, error) {
	return s.deleteRulesNotInWithQuerier(ctx, s.querier(), keep)
}

// Incident operations

func (s *SQLiteStorage) findIncidentsWithQuerier(ctx context.Context, q querier, ruleID uuid.UUID) ([]types.Incident, error) {
	query, args, err := sqlb.Select("id", "rule_id", "title", "severity", "occurred_at").
		From("incidents").
		Where(sq.Eq{"rule_id": ruleID.String()}).
		OrderBy("occurred_at DESC", "id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	incidents := make([]types.Incident, 0)
	for rows.Next() {
		var inc types.Incident
		var id, rid string
		var occurredAt sql.NullTime
		if err := rows.Scan(&id, &rid, &inc.Title, &inc.Severity, &occurredAt); err != nil {
			return nil, err
		}
		if inc.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("incident %q has invalid ID: %w", id, err)
		}
		if inc.BusinessRuleID, err = uuid.Parse(rid); err != nil {
			return nil, fmt.Errorf("incident %q has invalid rule ID: %w", id, err)
		}
		if occurredAt.Valid {
			inc.OccurredAt = occurredAt.Time
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

func (s *SQLiteStorage) FindIncidentsByBusinessRuleID(ctx context.Context, ruleID uuid.UUID) ([]types.Incident, error) {
	return s.findIncidentsWithQuerier(ctx, s.querier(), ruleID)
}

func (s *SQLiteStorage) countIncidentsWithQuerier(ctx context.Context, q querier, ruleIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(ruleIDs))
	if len(ruleIDs) == 0 {
		return counts, nil
	}

	query, args, err := sqlb.Select("rule_id", "COUNT(*)").
		From("incidents").
		Where(sq.Eq{"rule_id": ruleIDs}).
		GroupBy("rule_id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count incidents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStorage) CountIncidents(ctx context.Context, ruleIDs []string) (map[string]int, error) {
	return s.countIncidentsWithQuerier(ctx, s.querier(), ruleIDs)
}

func (s *SQLiteStorage) replaceIncidentsWithQuerier(ctx context.Context, q querier, ruleID string, incidents []types.Incident) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM incidents WHERE rule_id = ?", ruleID); err != nil {
		return fmt.Errorf("failed to clear incidents: %w", err)
	}
	if len(incidents) == 0 {
		return nil
	}

	builder := sqlb.Insert("incidents").Columns("id", "rule_id", "title", "severity", "occurred_at", "created_at")
	now := time.Now()
	for _, inc := range incidents {
		id := inc.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		var occurredAt interface{}
		if !inc.OccurredAt.IsZero() {
			occurredAt = inc.OccurredAt
		}
		builder = builder.Values(id.String(), ruleID, inc.Title, inc.Severity, occurredAt, now)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert incidents: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ReplaceIncidents(ctx context.Context, ruleID string, incidents []types.Incident) error {
	return s.replaceIncidentsWithQuerier(ctx, s.querier(), ruleID, incidents)
}

// Ownership operations

func (s *SQLiteStorage) findOwnershipsWithQuerier(ctx context.Context, q querier, ruleID uuid.UUID) ([]types.Ownership, error) {
	query, args, err := sqlb.Select("id", "rule_id", "team", "owner", "role").
		From("ownerships").
		Where(sq.Eq{"rule_id": ruleID.String()}).
		OrderBy("team", "id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ownerships: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ownerships := make([]types.Ownership, 0)
	for rows.Next() {
		var own types.Ownership
		var id, rid string
		if err := rows.Scan(&id, &rid, &own.Team, &own.Owner, &own.Role); err != nil {
			return nil, err
		}
		if own.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("ownership %q has invalid ID: %w", id, err)
		}
		if own.BusinessRuleID, err = uuid.Parse(rid); err != nil {
			return nil, fmt.Errorf("ownership %q has invalid rule ID: %w", id, err)
		}
		ownerships = append(ownerships, own)
	}
	return ownerships, rows.Err()
}

func (s *SQLiteStorage) FindOwnershipsByBusinessRuleID(ctx context.Context, ruleID uuid.UUID) ([]types.Ownership, error) {
	return s.findOwnershipsWithQuerier(ctx, s.querier(), ruleID)
}

func (s *SQLiteStorage) replaceOwnershipsWithQuerier(ctx context.Context, q querier, ruleID string, ownerships []types.Ownership) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM ownerships WHERE rule_id = ?", ruleID); err != nil {
		return fmt.Errorf("failed to clear ownerships: %w", err)
	}
	if len(ownerships) == 0 {
		return nil
	}

	builder := sqlb.Insert("ownerships").Columns("id", "rule_id", "team", "owner", "role", "created_at")
	now := time.Now()
	for _, own := range ownerships {
		id := own.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		builder = builder.Values(id.String(), ruleID, own.Team, own.Owner, own.Role, now)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert ownerships: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ReplaceOwnerships(ctx context.Context, ruleID string, ownerships []types.Ownership) error {
	return s.replaceOwnershipsWithQuerier(ctx, s.querier(), ruleID, ownerships)
}

// Project operations

func (s *SQLiteStorage) getProjectWithQuerier(ctx context.Context, q querier, id uuid.UUID) (*types.Project, error) {
	var name string
	err := q.QueryRowContext(ctx, "SELECT name FROM projects WHERE id = ?", id.String()).Scan(&name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &types.Project{ID: id, Name: name}, nil
}

func (s *SQLiteStorage) GetProject(ctx context.Context, id uuid.UUID) (*types.Project, error) {
	return s.getProjectWithQuerier(ctx, s.querier(), id)
}

func (s *SQLiteStorage) allowedRuleIDsWithQuerier(ctx context.Context, q querier, projectID uuid.UUID) ([]string, error) {
	query, args, err := sqlb.Select("pr.rule_id").
		From("project_rules pr").
		Join("business_rules r ON r.id = pr.rule_id").
		Where(sq.Eq{"pr.project_id": projectID.String()}).
		OrderBy("r.position", "r.id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list project rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AllowedRuleIDs returns the project's allow-list in catalogue order. An
// existing project with no rules yields an empty slice.
func (s *SQLiteStorage) AllowedRuleIDs(ctx context.Context, projectID uuid.UUID) ([]string, error) {
	return s.allowedRuleIDsWithQuerier(ctx, s.querier(), projectID)
}

func (s *SQLiteStorage) deleteProjectsNotInWithQuerier(ctx context.Context, q querier, keep []string) (int, error) {
	builder := sqlb.Delete("projects")
	if len(keep) > 0 {
		builder = builder.Where(sq.NotEq{"id": keep})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to prune projects: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// DeleteProjectsNotIn removes projects missing from keep along with their allow-lists
func (s *SQLiteStorage) DeleteProjectsNotIn(ctx context.Context, keep []string) (int, error) {
	return s.deleteProjectsNotInWithQuerier(ctx, s.querier(), keep)
}

func (s *SQLiteStorage) upsertProjectWithQuerier(ctx context.Context, q querier, project *types.Project, ruleIDs []string) error {
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}

	now := time.Now()
	_, err := q.ExecContext(ctx, `
		INSERT INTO projects (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at
	`, project.ID.String(), project.Name, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}

	if _, err := q.ExecContext(ctx, "DELETE FROM project_rules WHERE project_id = ?", project.ID.String()); err != nil {
		return fmt.Errorf("failed to clear project rules: %w", err)
	}
	if len(ruleIDs) == 0 {
		return nil
	}

	builder := sqlb.Insert("project_rules").Columns("project_id", "rule_id").Options("OR IGNORE")
	for _, id := range ruleIDs {
		builder = builder.Values(project.ID.String(), id)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: project %s: %v", ErrUnknownRule, project.Name, err)
	}
	return nil
}

// UpsertProject creates or renames a project and replaces its allow-list
func (s *SQLiteStorage) UpsertProject(ctx context.Context, project *types.Project, ruleIDs []string) error {
	return s.upsertProjectWithQuerier(ctx, s.querier(), project, ruleIDs)
}

// Dependency operations

func (s *SQLiteStorage) replaceDependenciesWithQuerier(ctx context.Context, q querier, ruleID string, dependsOn []string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM rule_dependencies WHERE rule_id = ?", ruleID); err != nil {
		return fmt.Errorf("failed to clear dependencies: %w", err)
	}
	if len(dependsOn) == 0 {
		return nil
	}

	builder := sqlb.Insert("rule_dependencies").Columns("rule_id", "depends_on_id").Options("OR IGNORE")
	for _, dep := range dependsOn {
		builder = builder.Values(ruleID, dep)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: dependencies of %s: %v", ErrUnknownRule, ruleID, err)
	}
	return nil
}

func (s *SQLiteStorage) ReplaceDependencies(ctx context.Context, ruleID string, dependsOn []string) error {
	return s.replaceDependenciesWithQuerier(ctx, s.querier(), ruleID, dependsOn)
}

func (s *SQLiteStorage) countDependenciesWithQuerier(ctx context.Context, q querier, ruleIDs []string) (map[string]types.DependencyCount, error) {
	counts := make(map[string]types.DependencyCount, len(ruleIDs))
	if len(ruleIDs) == 0 {
		return counts, nil
	}

	upstream, args, err := sqlb.Select("rule_id", "COUNT(*)").
		From("rule_dependencies").
		Where(sq.Eq{"rule_id": ruleIDs}).
		GroupBy("rule_id").
		ToSql()
	if err != nil {
		return nil, err
	}
	if err := scanCounts(ctx, q, upstream, args, func(id string, n int) {
		c := counts[id]
		c.Upstream = n
		counts[id] = c
	}); err != nil {
		return nil, fmt.Errorf("failed to count upstream dependencies: %w", err)
	}

	downstream, args, err := sqlb.Select("depends_on_id", "COUNT(*)").
		From("rule_dependencies").
		Where(sq.Eq{"depends_on_id": ruleIDs}).
		GroupBy("depends_on_id").
		ToSql()
	if err != nil {
		return nil, err
	}
	if err := scanCounts(ctx, q, downstream, args, func(id string, n int) {
		c := counts[id]
		c.Downstream = n
		counts[id] = c
	}); err != nil {
		return nil, fmt.Errorf("failed to count downstream dependencies: %w", err)
	}

	return counts, nil
}

// CountDependencies returns degree counts for the given rules. Rules without
// edges are absent from the map.
func (s *SQLiteStorage) CountDependencies(ctx context.Context, ruleIDs []string) (map[string]types.DependencyCount, error) {
	return s.countDependenciesWithQuerier(ctx, s.querier(), ruleIDs)
}

func scanCounts(ctx context.Context, q querier, query string, args []interface{}, fn func(id string, n int)) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return err
		}
		fn(id, n)
	}
	return rows.Err()
}

// Status operations

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*CatalogueStatus, error) {
	status := &CatalogueStatus{}

	counts := []struct {
		table string
		dest  *int
	}{
		{"business_rules", &status.RulesCount},
		{"rule_embeddings", &status.EmbeddingsCount},
		{"incidents", &status.IncidentsCount},
		{"ownerships", &status.OwnershipsCount},
		{"projects", &status.ProjectsCount},
		{"rule_dependencies", &status.DependenciesCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.table, err)
		}
	}

	version, err := currentSchemaVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	status.SchemaVersion = version.String()

	var lastIndexed sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(updated_at) FROM business_rules").Scan(&lastIndexed); err == nil && lastIndexed.Valid {
		status.LastIndexedAt = parseSQLiteTime(lastIndexed.String)
	}

	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.EmbeddingsCount > 0,
		FullyEmbedded:       status.RulesCount > 0 && status.EmbeddingsCount == status.RulesCount,
	}

	return status, nil
}

// parseSQLiteTime accepts the layouts the two drivers write for time.Time
func parseSQLiteTime(raw string) time.Time {
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999 -0700 MST",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
