package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/rulecontext-mcp/internal/app"
	"github.com/dshills/rulecontext-mcp/internal/config"
	"github.com/dshills/rulecontext-mcp/internal/logging"
	"github.com/dshills/rulecontext-mcp/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// globalFlags are shared by every subcommand
type globalFlags struct {
	configFile string
	dbPath     string
	logLevel   string
	console    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:          "rulecontext",
		Short:        "Business-rule retrieval engine and MCP server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "YAML configuration file (overrides "+config.EnvConfigFile+")")
	root.PersistentFlags().StringVar(&flags.dbPath, "db", "", "SQLite database path")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&flags.console, "console", false, "Human-readable logs instead of JSON")

	root.AddCommand(
		newServeCmd(flags),
		newIndexCmd(flags),
		newAskCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "RuleContext MCP Server\n")
			fmt.Fprintf(out, "Version: %s\n", version)
			fmt.Fprintf(out, "Build Time: %s\n", buildTime)
			fmt.Fprintf(out, "Build Mode: %s\n", storage.BuildMode)
			fmt.Fprintf(out, "SQLite Driver: %s\n", storage.DriverName)
			fmt.Fprintf(out, "Vector Extension: %v\n", storage.VectorExtensionAvailable)
		},
	}
}

// loadConfig resolves configuration from the environment, then applies flags
func (f *globalFlags) loadConfig() (*config.Config, error) {
	if f.configFile != "" {
		if err := os.Setenv(config.EnvConfigFile, f.configFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if f.dbPath != "" {
		cfg.DBPath = f.dbPath
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	return cfg, cfg.Validate()
}

func (f *globalFlags) newLogger(level string) (*zap.Logger, error) {
	if f.console {
		return logging.NewDevelopment(level)
	}
	return logging.New(level)
}

// openApp loads configuration and wires the engine. The returned cleanup
// closes the engine and flushes the logger.
func (f *globalFlags) openApp(ctx context.Context) (*app.App, func(), error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger, err := f.newLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}

	cleanup := func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to close engine", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return a, cleanup, nil
}
