package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/rulecontext-mcp/internal/app"
	"github.com/dshills/rulecontext-mcp/internal/indexer"
	"github.com/dshills/rulecontext-mcp/internal/mcp"
	"github.com/dshills/rulecontext-mcp/internal/storage"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: "Run the MCP server on stdio. When a catalogue is configured it is indexed " +
			"before the server starts accepting requests.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Set up graceful shutdown
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, cleanup, err := flags.openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			return serve(ctx, cancel, a, watch)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "Re-index the configured catalogue when it changes")
	return cmd
}

func serve(ctx context.Context, cancel context.CancelFunc, a *app.App, watch bool) error {
	logger := a.Logger
	logger.Info("RuleContext MCP server starting",
		zap.String("version", version),
		zap.String("build_mode", storage.BuildMode),
		zap.String("driver", storage.DriverName),
		zap.Bool("vector_extension", storage.VectorExtensionAvailable))

	if path := a.Config.Catalogue; path != "" {
		stats, err := a.Indexer.IndexFile(ctx, path, &indexer.Config{})
		if err != nil {
			return err
		}
		logIndexed(logger, path, stats)

		if watch {
			go func() {
				err := a.Indexer.Watch(ctx, path, &indexer.Config{}, func(stats *indexer.Statistics, err error) {
					if err != nil {
						logger.Error("catalogue reload failed", zap.String("path", path), zap.Error(err))
						return
					}
					logIndexed(logger, path, stats)
				})
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("catalogue watcher stopped", zap.Error(err))
				}
			}()
		}
	}

	server := mcp.NewServer(a)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Start server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		logger.Info("MCP server ready, listening on stdio")
		errChan <- server.Serve(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		logger.Info("shutting down gracefully", zap.String("signal", sig.String()))
		cancel()
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}

	logger.Info("server stopped")
	return nil
}

func logIndexed(logger *zap.Logger, path string, stats *indexer.Statistics) {
	logger.Info("catalogue indexed",
		zap.String("path", path),
		zap.Int("rules", stats.RulesIndexed),
		zap.Int("rules_deleted", stats.RulesDeleted),
		zap.Int("projects", stats.Projects),
		zap.Int("embeddings_generated", stats.EmbeddingsGenerated),
		zap.Int("embeddings_skipped", stats.EmbeddingsSkipped),
		zap.Int("embeddings_failed", stats.EmbeddingsFailed),
		zap.Duration("duration", stats.Duration))
}
