// Package types provides shared type definitions for the RuleContext MCP server.
//
// This package defines the business-rule catalogue entities and the request and
// response shapes of rule retrieval.
//
// # Catalogue
//
// BusinessRule is the unit of retrieval. Each rule carries a Criticality tier
// with a strict order:
//
//	types.CriticalityBaixa.Ordinal()   // 1
//	types.CriticalityCritica.Ordinal() // 4
//
// Incident, Ownership and DependencyCount enrich the context handed to the
// answer generator. They never influence which rules are returned, except that
// the incident count contributes to the composite rank.
//
// # Retrieval
//
// A RetrievalRequest is validated before any work is done:
//
//	req := types.RetrievalRequest{Question: "onde alterar o cálculo de horas PJ?"}
//	if err := req.Validate(); err != nil {
//	    // blank question, bad focus or maxSources out of 1..10
//	}
//
// A RetrievalResponse pairs every Source with a RuleScoreDetail at the same
// index. FinalRankPosition runs 1..n without gaps.
package types
