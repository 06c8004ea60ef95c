// Package storage provides SQLite-based persistence for the business-rule
// catalogue.
//
// The storage layer manages:
//   - Business rules in catalogue order
//   - One embedding per rule, with provider provenance and a content hash
//   - Incidents and ownerships attributed to rules
//   - Projects and their rule allow-lists
//   - Rule dependency edges
//
// # Database Schema
//
// Tables:
//   - business_rules: rules keyed by UUID text, ordered by position
//   - rule_embeddings: little-endian float32 vectors
//   - incidents, ownerships: rows referencing business_rules
//   - projects, project_rules: project scopes
//   - rule_dependencies: directed edges between rules
//
// Every child table cascades on rule deletion, so pruning a rule removes
// everything attributed to it.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.rulecontext/catalogue.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = tx.Rollback() }()
//
//	if err := tx.UpsertRule(ctx, rule, position); err != nil {
//	    return err
//	}
//	if err := tx.ReplaceIncidents(ctx, rule.ID, incidents); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// Retrieval only needs the read side, the Catalogue interface. MemoryCatalogue
// implements it without a database.
//
// # Vector Search
//
// SQLiteStorage satisfies vectorstore.VectorStore. FindTopK uses sqlite-vec's
// vec_distance_cosine in CGO builds and a Go-side cosine scan otherwise.
//
// # Build Tags
//
// CGO Build (sqlite_vec tag) uses github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (purego tag) uses modernc.org/sqlite:
//
//	CGO_ENABLED=0 go build -tags "purego"
package storage
