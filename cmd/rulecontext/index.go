package main

import (
	"context"
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/rulecontext-mcp/internal/indexer"
)

func newIndexCmd(flags *globalFlags) *cobra.Command {
	var (
		watch     bool
		force     bool
		workers   int
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "index <catalogue.yaml>",
		Short: "Index a business-rule catalogue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, cleanup, err := flags.openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			path := args[0]
			config := &indexer.Config{Force: force, Workers: workers, BatchSize: batchSize}

			stats, err := a.Indexer.IndexFile(ctx, path, config)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, stats); err != nil {
				return err
			}

			if !watch {
				return nil
			}
			a.Logger.Info("watching catalogue for changes", zap.String("path", path))
			err = a.Indexer.Watch(ctx, path, &indexer.Config{Workers: workers, BatchSize: batchSize}, func(stats *indexer.Statistics, err error) {
				if err != nil {
					a.Logger.Error("catalogue reload failed", zap.Error(err))
					return
				}
				logIndexed(a.Logger, path, stats)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and re-index when the file changes")
	cmd.Flags().BoolVar(&force, "force", false, "Re-embed every rule even when its text is unchanged")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent embedding batches (default: number of CPUs)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Rule texts per embedding call (default: 16)")
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
