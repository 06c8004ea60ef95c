// Package searcher answers natural-language questions about business rules by
// combining semantic and keyword retrieval over the rule catalogue.
//
// # Basic Usage
//
//	s, err := searcher.NewSearcher(searcher.Options{
//	    Catalogue: store,
//	    Vectors:   store,
//	    Embedder:  emb,
//	    Generator: answer.DummyGenerator{},
//	    Logger:    logger,
//	})
//
//	resp, err := s.Search(ctx, types.RetrievalRequest{
//	    Question:   "Onde alterar o cálculo de horas para Pessoa Jurídica?",
//	    Focus:      types.FocusTechnical,
//	    MaxSources: 5,
//	})
//
//	for i, src := range resp.Sources {
//	    score := resp.RuleScores[i]
//	    fmt.Printf("[%d] %s %s (%d)\n", score.FinalRankPosition, score.MatchType, src.Name, score.CompositeScore)
//	}
//
// # Retrieval Pipeline
//
// A search runs these steps:
//
//  1. Validate the request and apply defaults (focus BUSINESS, 5 sources)
//  2. Load the catalogue and restrict it to the project's allow-list
//  3. Normalize the question (lowercase, accents stripped, whitespace collapsed)
//  4. In parallel, embed the question and fetch the 2*maxSources nearest rules,
//     and match keyword categories against every rule in scope
//  5. Merge both hit sets, or pick the most critical rules if nothing matched
//  6. Score by criticality and incident count, keep the top maxSources
//  7. Assemble the answer with the generator or the deterministic template
//
// # Ranking
//
// Similarity only decides which rules are candidates. Order is decided by the
// composite score:
//
//	criticality_ordinal * 10 + min(incidents * 5, 20)
//
// Ties keep catalogue order. The weights come from ranking.Policy.
//
// # Degradation
//
// Only invalid requests, unknown projects and an unreadable catalogue fail a
// search. An embedder or vector store failure drops the semantic signal and
// logs a warning. A failed incident count ranks by criticality alone. A failed
// or slow generator falls back to the template answer.
//
// # Caching
//
// Question embeddings are kept in an embedder.QueryCache keyed by the
// normalized question, so "Cálculo" and "calculo" share one provider call.
// Entries never expire.
package searcher
