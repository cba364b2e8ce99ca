// Package cli implements the command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/relq/internal/blog"
	"github.com/aidanlsb/relq/internal/config"
	"github.com/aidanlsb/relq/internal/orm"
	"github.com/aidanlsb/relq/internal/schema"
	"github.com/aidanlsb/relq/internal/store"
	"github.com/aidanlsb/relq/internal/ui"
)

// app holds the global flags and the state resolved from them.
type app struct {
	configPath  string
	dbPath      string
	catalogPath string
	jsonOutput  bool
	trace       bool

	cfg *config.Config
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "relq",
		Short: "relq - relational queries and batch mutations over SQLite",
		Long: `relq composes filtered, scoped queries over a catalog of related entities,
eager loads their relations in batched queries, runs grouped aggregates and
correlated subqueries, and applies chunked batch inserts and multi-row updates.

The built-in catalog is a small blog: users, posts, categories, tags and
billing records. Posts carry the currentMonth scope; pass --without-scope
currentMonth (or --unscoped) to see every post.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cmd.Name() {
			case "completion", "help":
				return nil
			}
			cfg, err := a.loadConfig(cmd.Name() == "init")
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			a.cfg = cfg
			ui.ConfigureTheme(cfg.UI.Accent)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to config file")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (overrides config; \":memory:\" for a scratch database)")
	root.PersistentFlags().StringVar(&a.catalogPath, "catalog", "", "YAML catalog to use instead of the built-in blog catalog")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "Output in JSON format")
	root.PersistentFlags().BoolVar(&a.trace, "trace", false, "Print every SQL statement to stderr")

	root.AddCommand(
		a.initCmd(),
		a.migrateCmd(),
		a.importCmd(),
		a.seedCmd(),
		a.findCmd(),
		a.findManyCmd(),
		a.findByCmd(),
		a.listCmd(),
		a.countCmd(),
		a.chunkCmd(),
		a.aggregateCmd(),
		a.reportCmd(),
		a.createCmd(),
		a.firstOrCreateCmd(),
		a.updateCmd(),
		a.updateOrCreateCmd(),
		a.stepCmd("increment"),
		a.stepCmd("decrement"),
		a.deleteCmd(),
		a.pivotCmd("attach"),
		a.pivotCmd("detach"),
		a.pivotCmd("sync"),
		a.ensureBillingCmd(),
		a.batchInsertCmd(),
		a.batchUpdateCmd(),
		a.versionCmd(),
	)
	return root
}

// loadConfig reads --config or the default config. allowMissing accepts a
// --config path that does not exist yet.
func (a *app) loadConfig(allowMissing bool) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path := strings.TrimSpace(a.configPath); path != "" {
		if _, statErr := os.Stat(path); allowMissing && os.IsNotExist(statErr) {
			return &config.Config{}, nil
		}
		cfg, err = config.LoadFrom(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &config.Config{}
	}
	return cfg, nil
}

func (a *app) config() *config.Config {
	if a.cfg == nil {
		a.cfg = &config.Config{}
	}
	return a.cfg
}

// databasePath returns --db, or the configured path.
func (a *app) databasePath() string {
	if a.dbPath != "" {
		return a.dbPath
	}
	return a.config().DatabasePath()
}

// catalog loads --catalog / the configured catalog, or the blog catalog.
func (a *app) catalog() (*schema.Catalog, error) {
	path := a.catalogPath
	if path == "" {
		path = a.config().Catalog
	}
	if path == "" {
		return blog.Catalog()
	}
	cat, err := schema.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := blog.Register(cat); err != nil {
		return nil, err
	}
	return cat, nil
}

// open opens the database, migrates the catalog and returns an ORM handle.
// The returned func closes the database.
func (a *app) open(cmd *cobra.Command) (*orm.DB, func(), error) {
	path := a.databasePath()
	var db *store.DB
	var err error
	if path == ":memory:" {
		db, err = store.OpenInMemory()
	} else {
		db, err = store.Open(path)
	}
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() { _ = db.Close() }

	if a.trace {
		errOut := cmd.ErrOrStderr()
		db.SetTrace(func(p store.Plan, elapsed time.Duration, err error) {
			fmt.Fprintln(errOut, ui.Trace(p.Op, p.Entity, p.SQL, p.Args, elapsed, err))
		})
	}

	cat, err := a.catalog()
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	if err := store.Migrate(cmd.Context(), db, cat); err != nil {
		closeDB()
		return nil, nil, err
	}
	return orm.New(db, cat, blog.Scopes()), closeDB, nil
}

// withDB runs fn with an open database, routing its error through the
// output mode.
func (a *app) withDB(cmd *cobra.Command, fn func(ctx context.Context, db *orm.DB) error) error {
	db, closeDB, err := a.open(cmd)
	if err != nil {
		return a.handleError(cmd, err)
	}
	defer closeDB()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := fn(ctx, db); err != nil {
		return a.handleError(cmd, err)
	}
	return nil
}

// useJSON reports whether output should be the JSON envelope.
func (a *app) useJSON(cmd *cobra.Command) bool {
	if a.jsonOutput {
		return true
	}
	format := a.config().OutputFormat()
	f, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return format != "table"
	}
	return ui.UseJSON(format, f)
}
