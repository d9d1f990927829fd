package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sakif/roboanalyzer-hub/internal/config"
)

// Version is set at build time.
var Version = "dev"

// cli holds what every subcommand needs once PersistentPreRunE has run.
type cli struct {
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "roboanalyzer",
		Short: "RoboAnalyzer Hub API server",
		Long: `RoboAnalyzer Hub serves the accounts, AI chat, community board and
admin API for the RoboAnalyzer learning platform.

Configuration is read from the environment and an optional .env file.
Running without a subcommand starts the server.`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, closeLog, err := config.NewLogger(cfg.Level(), cfg.LogFile)
			if err != nil {
				return fmt.Errorf("set up logging: %w", err)
			}
			slog.SetDefault(logger)
			c.cfg, c.logger, c.closeLog = cfg, logger, closeLog
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.closeLog != nil {
				c.closeLog()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve(cmd.Context())
		},
	}

	root.AddCommand(newServeCmd(c))
	root.AddCommand(newCreateAdminCmd(c))
	return root
}
