package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/roboanalyzer-hub/internal/app"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

The server runs until SIGINT or SIGTERM, then drains in-flight requests
and closes the store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve(cmd.Context())
		},
	}
}

func (c *cli) serve(ctx context.Context) error {
	a, err := app.Open(ctx, c.cfg, c.logger)
	if err != nil {
		c.logger.Error("startup failed", slog.String("error", err.Error()))
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(ctx); err != nil {
			c.logger.Error("closing dependencies", slog.String("error", err.Error()))
		}
	}()

	if c.cfg.AdminSecret == "" {
		c.logger.Warn("ADMIN_SECRET not set, /api/auth/create-admin is disabled")
	}

	if err := a.Server().Start(); err != nil {
		c.logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}
