// Package mcp implements the Model Context Protocol (MCP) server for the rule
// retrieval engine.
//
// The server exposes three tools:
//   - query_rules: Ask which business rules relate to a question
//   - index_rules: Load a YAML rule catalogue and embed its rules
//   - get_status: Report catalogue statistics and index health
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport. The server reads
// requests from stdin and writes responses to stdout, so all logging goes to
// stderr.
//
//	rulecontext serve
//
// # Tool: query_rules
//
//	Request:
//	{
//	  "name": "query_rules",
//	  "arguments": {
//	    "question": "Onde alterar o cálculo de horas para PJ?",
//	    "focus": "TECHNICAL",
//	    "max_sources": 3
//	  }
//	}
//
//	Response:
//	{
//	  "answer": "...",
//	  "confidence": "HIGH",
//	  "sources": [{"ruleId": "...", "name": "...", "criticality": "ALTA"}],
//	  "ruleScores": [{"ruleId": "...", "compositeScore": 40, "finalRankPosition": 1}],
//	  "usedFallback": false,
//	  "disclaimer": "..."
//	}
//
// # Tool: index_rules
//
//	Request:
//	{
//	  "name": "index_rules",
//	  "arguments": {"path": "/srv/rules/catalogue.yaml", "force": false}
//	}
//
// # Error Handling
//
// Handlers return *MCPError values with JSON-RPC codes:
//   - -32602: Invalid params (focus, max_sources, path, catalogue)
//   - -32603: Internal error
//   - -32001: Project not found
//   - -32002: Indexing in progress
//   - -32004: Empty question
package mcp
