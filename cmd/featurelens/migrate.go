package main

import (
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/heartmarshall/featurelens/internal/adapter/postgres"
	"github.com/heartmarshall/featurelens/internal/app"
	"github.com/heartmarshall/featurelens/internal/config"
)

var errNoDatabase = errors.New("no database configured (set DATABASE_DSN or database.dsn)")

func (o *rootOptions) loadDatabase() (config.DatabaseConfig, error) {
	db, err := config.LoadDatabase(o.configPath)
	if err != nil {
		return db, err
	}
	if !db.Enabled() {
		return db, errNoDatabase
	}
	return db, nil
}

func cliLogger() *slog.Logger {
	return app.NewLogger(config.LogConfig{Level: "warn", Format: "text"})
}

func newMigrateCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the lookup log schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, err := root.loadDatabase()
				if err != nil {
					return err
				}
				m, err := postgres.NewMigrator(cmd.Context(), db.DSN, cliLogger())
				if err != nil {
					return err
				}
				defer m.Close()

				results, err := m.Up(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(results) == 0 {
					fmt.Fprintln(out, "no pending migrations")
				}
				for _, r := range results {
					fmt.Fprintf(out, "applied %s (%s)\n", r.Source.Path, r.Duration.Round(time.Millisecond))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, err := root.loadDatabase()
				if err != nil {
					return err
				}
				m, err := postgres.NewMigrator(cmd.Context(), db.DSN, cliLogger())
				if err != nil {
					return err
				}
				defer m.Close()

				r, err := m.Down(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", r.Source.Path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, err := root.loadDatabase()
				if err != nil {
					return err
				}
				m, err := postgres.NewMigrator(cmd.Context(), db.DSN, cliLogger())
				if err != nil {
					return err
				}
				defer m.Close()

				statuses, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tSOURCE")
				for _, s := range statuses {
					applied := "-"
					if !s.AppliedAt.IsZero() {
						applied = s.AppliedAt.UTC().Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Source.Version, s.State, applied, s.Source.Path)
				}
				return tw.Flush()
			},
		},
	)
	return cmd
}
