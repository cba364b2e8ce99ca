package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/relq/internal/orm"
	"github.com/aidanlsb/relq/internal/ui"
)

// fixture is one entry of an import file.
type fixture struct {
	Entity string           `yaml:"entity"`
	Rows   []map[string]any `yaml:"rows"`
	Attach []fixtureLink    `yaml:"attach"`
}

// fixtureLink attaches ids through a many-to-many relation of the entry's
// entity.
type fixtureLink struct {
	ID       any    `yaml:"id"`
	Relation string `yaml:"relation"`
	IDs      []any  `yaml:"ids"`
}

// importResult is the outcome for one fixture entry.
type importResult struct {
	Entity   string `json:"entity"`
	Inserted int64  `json:"inserted"`
	Chunks   int    `json:"chunks"`
	Attached int64  `json:"attached,omitempty"`
}

func (a *app) importCmd() *cobra.Command {
	var file string
	var chunk int
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load YAML fixtures with chunked batch inserts",
		Long: `Reads a YAML list of fixture entries and inserts their rows in chunks. Each
chunk commits on its own; a failing chunk stops the import and earlier
chunks stay. Mutators and timestamps run on every row.

Reads stdin when --file is not given.

Example file:
  - entity: User
    rows:
      - { name: Ann, email: ann@example.com, age: 31 }
  - entity: Tag
    rows:
      - { tag: go }
  - entity: Post
    rows:
      - { user_id: 1, title: Hello, created_at: "2024-03-02 09:00:00" }
    attach:
      - { id: 1, relation: tags, ids: [1] }

Examples:
  relq import --file fixtures.yaml
  cat fixtures.yaml | relq import --chunk 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fixtures, err := readFixtures(cmd, file)
			if err != nil {
				return a.handleError(cmd, err)
			}
			if chunk <= 0 {
				chunk = a.config().ChunkSize()
			}
			return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
				results, err := runImport(ctx, db, fixtures, chunk)
				if err != nil {
					return err
				}
				var total int64
				for _, r := range results {
					total += r.Inserted
				}
				if a.useJSON(cmd) {
					outputSuccess(cmd.OutOrStdout(), results, &Meta{Count: len(results), Affected: total})
					return nil
				}
				for _, r := range results {
					line := fmt.Sprintf("%s: %d inserted in %s", r.Entity, r.Inserted, ui.Count(int64(r.Chunks), "chunk", "chunks"))
					if r.Attached > 0 {
						line += fmt.Sprintf(", %d links", r.Attached)
					}
					fmt.Fprintln(cmd.OutOrStdout(), ui.Success(line))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Fixture file (default stdin)")
	cmd.Flags().IntVar(&chunk, "chunk", 0, "Rows per insert statement (default from config)")
	return cmd
}

func readFixtures(cmd *cobra.Command, file string) ([]fixture, error) {
	var fixtures []fixture
	if err := readYAML(cmd, file, &fixtures); err != nil {
		return nil, err
	}
	for i, f := range fixtures {
		if f.Entity == "" {
			return nil, invalidInput(fmt.Sprintf("fixture %d has no entity", i))
		}
	}
	return fixtures, nil
}

// runImport inserts every fixture in file order.
func runImport(ctx context.Context, db *orm.DB, fixtures []fixture, chunk int) ([]importResult, error) {
	results := make([]importResult, 0, len(fixtures))
	for _, f := range fixtures {
		rows := make([]orm.Attrs, len(f.Rows))
		for i, r := range f.Rows {
			rows[i] = orm.Attrs(r)
		}
		report, err := db.InsertMany(ctx, f.Entity, rows, chunk)
		if err != nil {
			return results, fmt.Errorf("%s: %w", f.Entity, err)
		}
		res := importResult{Entity: f.Entity, Inserted: report.Inserted, Chunks: len(report.Chunks)}
		for _, link := range f.Attach {
			n, err := db.Attach(ctx, f.Entity, link.ID, link.Relation, link.IDs...)
			if err != nil {
				return results, fmt.Errorf("%s %v %s: %w", f.Entity, link.ID, link.Relation, err)
			}
			res.Attached += n
		}
		results = append(results, res)
	}
	return results, nil
}
