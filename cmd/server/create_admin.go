package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/roboanalyzer-hub/internal/app"
	"github.com/sakif/roboanalyzer-hub/internal/service"
)

func newCreateAdminCmd(c *cli) *cobra.Command {
	var in service.RegisterInput

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create the single admin account",
		Long: `Create the admin account directly in the store, without going through
the HTTP API or ADMIN_SECRET.

Only one admin may exist; the command fails if there already is one.

Examples:
  roboanalyzer create-admin --username admin --email admin@example.com --password s3cret!`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			a, err := app.Open(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			user, err := a.AuthService().BootstrapAdmin(ctx, in)
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Admin %s (%s) created with id %s\n", user.Username, user.Email, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&in.Username, "username", "u", "", "admin username")
	cmd.Flags().StringVarP(&in.Email, "email", "e", "", "admin email")
	cmd.Flags().StringVarP(&in.Password, "password", "p", "", "admin password")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}
