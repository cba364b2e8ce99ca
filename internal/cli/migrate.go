package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/relq/internal/config"
	"github.com/aidanlsb/relq/internal/orm"
	"github.com/aidanlsb/relq/internal/store"
	"github.com/aidanlsb/relq/internal/ui"
)

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file and create the database",
		Long: `Writes a commented config file (unless one exists) and creates every table
of the catalog in the configured database.

Examples:
  relq init
  relq init --config ./relq.toml --db ./blog.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.CreateDefault(a.configPath)
			if err != nil {
				return a.handleError(cmd, &inputError{code: ErrConfigInvalid, msg: err.Error()})
			}
			return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
				tables := db.Catalog.EntityNames()
				a.printResult(cmd, map[string]any{
					"config":   path,
					"database": a.databasePath(),
					"entities": tables,
				}, nil, fmt.Sprintf("%s\n%s",
					ui.Successf("Config: %s", path),
					ui.Successf("Database: %s (%s)", a.databasePath(), strings.Join(tables, ", ")),
				))
				return nil
			})
		},
	}
}

func (a *app) migrateCmd() *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the catalog's tables",
		Long: `Creates tables, pivot tables and foreign-key indexes for the catalog. Running
it again is harmless. With --print the statements are shown instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if printOnly {
				cat, err := a.catalog()
				if err != nil {
					return a.handleError(cmd, &inputError{code: ErrCatalogInvalid, msg: err.Error()})
				}
				stmts := store.DDL(cat)
				if a.useJSON(cmd) {
					outputSuccess(cmd.OutOrStdout(), stmts, &Meta{Count: len(stmts)})
					return nil
				}
				for _, s := range stmts {
					fmt.Fprintln(cmd.OutOrStdout(), s+";")
				}
				return nil
			}
			return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
				n := len(db.Catalog.EntityNames())
				a.printResult(cmd, map[string]any{"database": a.databasePath(), "entities": n},
					nil, ui.Successf("Migrated %d entities in %s", n, a.databasePath()))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the DDL without touching the database")
	return cmd
}
