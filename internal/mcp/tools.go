package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/rulecontext-mcp/internal/indexer"
	"github.com/dshills/rulecontext-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeProjectNotFound    = -32001 // project_id does not name a known project
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeEmptyQuery         = -32004 // Question parameter is empty
)

// handleQueryRules handles the query_rules tool invocation
func (s *Server) handleQueryRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	question, _ := args["question"].(string)
	if strings.TrimSpace(question) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "question parameter is required and cannot be empty", map[string]interface{}{
			"param":  "question",
			"reason": "missing or empty",
		})
	}

	maxSources, err := getIntDefault(args, "max_sources", types.DefaultMaxSources)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "max_sources must be an integer", map[string]interface{}{
			"param": "max_sources",
			"value": args["max_sources"],
		})
	}

	req := types.RetrievalRequest{
		Question:   question,
		Focus:      types.Focus(getStringDefault(args, "focus", "")),
		MaxSources: maxSources,
		ProjectID:  getStringDefault(args, "project_id", ""),
	}

	resp, err := s.searcher.Search(ctx, req)
	if err != nil {
		return nil, s.searchError(err, req)
	}

	return mcp.NewToolResultText(formatJSON(resp)), nil
}

// searchError maps a retrieval error onto its MCP error code
func (s *Server) searchError(err error, req types.RetrievalRequest) error {
	switch {
	case errors.Is(err, types.ErrEmptyQuestion):
		return newMCPError(ErrorCodeEmptyQuery, "question parameter is required and cannot be empty", map[string]interface{}{
			"param":  "question",
			"reason": "missing or empty",
		})
	case errors.Is(err, types.ErrInvalidMaxSources):
		return invalidMaxSources(req.MaxSources)
	case errors.Is(err, types.ErrInvalidFocus):
		return newMCPError(ErrorCodeInvalidParams, "invalid focus", map[string]interface{}{
			"param":   "focus",
			"value":   req.Focus,
			"allowed": []types.Focus{types.FocusBusiness, types.FocusTechnical, types.FocusExecutive},
		})
	case errors.Is(err, types.ErrProjectNotFound):
		return newMCPError(ErrorCodeProjectNotFound, "project not found", map[string]interface{}{
			"param": "project_id",
			"value": req.ProjectID,
		})
	default:
		s.logger.Error("query failed", zap.Error(err))
		return newMCPError(ErrorCodeInternalError, "query failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func invalidMaxSources(value int) error {
	return newMCPError(ErrorCodeInvalidParams, "max_sources must be between 1 and 10", map[string]interface{}{
		"param": "max_sources",
		"value": value,
	})
}

// handleIndexRules handles the index_rules tool invocation
func (s *Server) handleIndexRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	config := &indexer.Config{
		Force: getBoolDefault(args, "force", false),
	}

	stats, err := s.indexer.IndexFile(ctx, path, config)
	switch {
	case errors.Is(err, indexer.ErrIndexInProgress):
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	case errors.Is(err, indexer.ErrInvalidCatalogue):
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid catalogue", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed":              true,
		"rules_indexed":        stats.RulesIndexed,
		"rules_deleted":        stats.RulesDeleted,
		"incidents":            stats.Incidents,
		"ownerships":           stats.Ownerships,
		"dependencies":         stats.Dependencies,
		"projects":             stats.Projects,
		"embeddings_generated": stats.EmbeddingsGenerated,
		"embeddings_skipped":   stats.EmbeddingsSkipped,
		"embeddings_failed":    stats.EmbeddingsFailed,
		"duration_ms":          stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	entries, hits, misses := s.searcher.CacheStats()
	policy := s.searcher.Policy()

	lastIndexed := ""
	if !status.LastIndexedAt.IsZero() {
		lastIndexed = status.LastIndexedAt.Format(time.RFC3339)
	}

	response := map[string]interface{}{
		"indexed": status.RulesCount > 0,
		"statistics": map[string]interface{}{
			"rules_count":        status.RulesCount,
			"embeddings_count":   status.EmbeddingsCount,
			"incidents_count":    status.IncidentsCount,
			"ownerships_count":   status.OwnershipsCount,
			"projects_count":     status.ProjectsCount,
			"dependencies_count": status.DependenciesCount,
			"index_size_mb":      fmt.Sprintf("%.2f", status.IndexSizeMB),
			"schema_version":     status.SchemaVersion,
			"last_indexed_at":    lastIndexed,
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
			"fully_embedded":       status.Health.FullyEmbedded,
			"indexing":             s.indexer.Indexing(),
		},
		"query_cache": map[string]interface{}{
			"entries": entries,
			"hits":    hits,
			"misses":  misses,
		},
		"ranking": map[string]interface{}{
			"criticality_weight": policy.CriticalityWeight,
			"incident_weight":    policy.IncidentWeight,
			"incident_cap":       policy.IncidentCap,
			"fallback_size":      policy.FallbackSize,
		},
	}
	if s.config != nil {
		response["engine"] = map[string]interface{}{
			"vector_store": s.config.VectorStore,
			"generator":    s.config.Generator.Kind,
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks that path is an absolute, readable YAML file
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if info.IsDir() {
		return ErrNotFile
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return ErrNotYAML
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value. JSON
// numbers arrive as float64; fractional values are rejected.
func getIntDefault(args map[string]interface{}, key string, defaultValue int) (int, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return defaultValue, nil
	}
	switch val := raw.(type) {
	case float64:
		if val != float64(int(val)) {
			return 0, fmt.Errorf("%s is not an integer", key)
		}
		return int(val), nil
	case int:
		return val, nil
	default:
		return 0, fmt.Errorf("%s is not a number", key)
	}
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotFile         = errors.New("path is a directory")
	ErrNotYAML         = errors.New("catalogue must be a .yaml or .yml file")
)
