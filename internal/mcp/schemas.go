package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/rulecontext-mcp/pkg/types"
)

// queryRulesTool returns the tool definition for query_rules
func queryRulesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "query_rules",
		Description: "Ask which business rules relate to a question. Returns an advisory answer, the ranked rules and why each was selected.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "Natural-language question, e.g. 'Onde alterar o cálculo de horas para PJ?'",
				},
				"focus": map[string]interface{}{
					"type":        "string",
					"description": "Audience of the answer",
					"enum":        []string{string(types.FocusBusiness), string(types.FocusTechnical), string(types.FocusExecutive)},
					"default":     string(types.FocusBusiness),
				},
				"max_sources": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of rules to return (1-10, 0 selects the default)",
					"default":     types.DefaultMaxSources,
					"minimum":     0,
					"maximum":     types.MaxMaxSources,
				},
				"project_id": map[string]interface{}{
					"type":        "string",
					"description": "Optional project UUID restricting results to the project's rules",
				},
			},
			Required: []string{"question"},
		},
	}
}

// indexRulesTool returns the tool definition for index_rules
func indexRulesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_rules",
		Description: "Load a YAML business-rule catalogue and embed its rules",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the catalogue file (.yaml or .yml)",
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, re-embed every rule even when its text is unchanged",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report catalogue statistics, index health and engine configuration",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
