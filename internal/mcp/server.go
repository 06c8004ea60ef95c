package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/rulecontext-mcp/internal/app"
	"github.com/dshills/rulecontext-mcp/internal/config"
	"github.com/dshills/rulecontext-mcp/internal/indexer"
	"github.com/dshills/rulecontext-mcp/internal/searcher"
	"github.com/dshills/rulecontext-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "rulecontext-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	config   *config.Config
	storage  storage.Storage
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	logger   *zap.Logger
}

// NewServer creates a new MCP server over wired components
func NewServer(a *app.App) *Server {
	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcp:      mcpServer,
		config:   a.Config,
		storage:  a.Storage,
		indexer:  a.Indexer,
		searcher: a.Searcher,
		logger:   a.Logger,
	}

	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until the client
// disconnects or ctx is cancelled
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(queryRulesTool(), s.handleQueryRules)
	s.mcp.AddTool(indexRulesTool(), s.handleIndexRules)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
