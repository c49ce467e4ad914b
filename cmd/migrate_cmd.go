package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/noteindex/internal/config"
	"github.com/nextlevelbuilder/noteindex/internal/store/pg"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
		Long:  "SQLite stores migrate themselves on open; these commands apply to database.driver: postgres.",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withPostgres(func(dsn string) error {
					db, err := pg.OpenDB(dsn)
					if err != nil {
						return err
					}
					defer db.Close()
					if err := pg.MigrateUp(db); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back migrations (all when steps is omitted)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 0
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n <= 0 {
						return fmt.Errorf("invalid steps %q", args[0])
					}
					steps = n
				}
				return withPostgres(func(dsn string) error {
					db, err := pg.OpenDB(dsn)
					if err != nil {
						return err
					}
					defer db.Close()
					if err := pg.MigrateDown(db, steps); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Migrations rolled back.")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withPostgres(func(dsn string) error {
					db, err := pg.OpenDB(dsn)
					if err != nil {
						return err
					}
					defer db.Close()
					v, dirty, err := pg.SchemaVersion(db)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version %d", v)
					if dirty {
						fmt.Fprint(cmd.OutOrStdout(), " (dirty)")
					}
					fmt.Fprintln(cmd.OutOrStdout())
					return nil
				})
			},
		},
	)
	return cmd
}

func withPostgres(fn func(dsn string) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.Driver != config.DriverPostgres {
		return errors.New("migrate requires database.driver: postgres (or NOTEINDEX_PG_DSN)")
	}
	return fn(cfg.Database.PostgresDSN)
}
