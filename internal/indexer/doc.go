// Package indexer loads a YAML business-rule catalogue into storage and
// embeds the rule texts.
//
// # Basic Usage
//
//	idx := indexer.New(store,
//	    indexer.WithEmbedder(emb),
//	    indexer.WithVectorWriter(memStore),
//	    indexer.WithLogger(logger),
//	)
//
//	stats, err := idx.IndexFile(ctx, "rules.yaml", nil)
//	fmt.Printf("Indexed %d rules, embedded %d in %v\n",
//	    stats.RulesIndexed, stats.EmbeddingsGenerated, stats.Duration)
//
// # Catalogue Format
//
//	rules:
//	  - id: 6f1c0c1e-3a55-4a7e-9a10-4d1f0f7b2a01
//	    name: REGRA_CALCULO_HORAS_PJ
//	    domain: TRABALHISTA
//	    criticality: ALTA
//	    description: Calcula horas de prestadores PJ
//	    source_file: src/hours/pj.go
//	    depends_on: [...]
//	    incidents:
//	      - title: Overtime paid twice
//	        severity: high
//	        occurred_at: 2024-03-01T10:00:00Z
//	    ownerships:
//	      - team: payroll
//	        owner: ana
//	projects:
//	  - id: 0b6e...
//	    name: checkout
//	    rules: [...]
//
// Rule order in the file is catalogue order, which breaks ranking ties.
//
// # Indexing Pipeline
//
//  1. Validate the catalogue: UUID IDs, known criticality, resolvable references
//  2. Write rules, incidents, ownerships, dependencies and projects in one
//     transaction, deleting rules the file no longer lists
//  3. Skip rules whose stored embedding has the same content hash and model
//  4. Embed the rest in batches on a bounded errgroup worker pool
//  5. Store each embedding and mirror it into the vector writer, if any
//
// Embedding failures are counted in Statistics but do not fail the run. A
// rule without an embedding can still be retrieved by keyword.
//
// # Watching
//
// Watch re-runs IndexFile after the catalogue file changes, debounced by
// DefaultDebounce. Runs never overlap: IndexLock rejects a concurrent run with
// ErrIndexInProgress.
package indexer
