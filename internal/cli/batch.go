package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aidanlsb/relq/internal/batch"
	"github.com/aidanlsb/relq/internal/orm"
	"github.com/aidanlsb/relq/internal/ui"
)

// insertFile is the input of batch-insert: a column list and positional
// rows.
type insertFile struct {
	Columns []string `yaml:"columns"`
	Rows    [][]any  `yaml:"rows"`
}

func (a *app) batchInsertCmd() *cobra.Command {
	var file string
	var chunk int
	cmd := &cobra.Command{
		Use:   "batch-insert <entity>",
		Short: "Insert positional rows in chunks",
		Long: `Inserts rows with one multi-row INSERT per chunk. Values are taken as given:
no mutators or timestamps run. Each chunk commits on its own, so when a chunk
fails the earlier chunks stay and later chunks are not attempted.

Reads stdin when --file is not given.

Example file:
  columns: [name, email, age, banned, created_at]
  rows:
    - [Ann, ann@example.com, 31, false, "2024-03-01 09:00:00"]
    - [Bob, bob@example.com, 45, true, "2024-03-01 09:00:00"]

Example:
  relq batch-insert User --file users.yaml --chunk 50`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in insertFile
			if err := readYAML(cmd, file, &in); err != nil {
				return a.handleError(cmd, err)
			}
			if chunk <= 0 {
				chunk = a.config().ChunkSize()
			}
			return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
				report, err := db.InsertBatch(ctx, args[0], in.Columns, in.Rows, chunk)
				if err != nil {
					if !a.useJSON(cmd) && len(report.Chunks) > 0 {
						cmd.PrintErrln(ui.Warning(fmt.Sprintf("%d of %d rows committed before the failure", report.Inserted, report.Total)))
					}
					return err
				}
				if a.useJSON(cmd) {
					outputSuccess(cmd.OutOrStdout(), report, &Meta{Count: len(report.Chunks), Affected: report.Inserted})
					return nil
				}
				for _, c := range report.Chunks {
					fmt.Fprintln(cmd.OutOrStdout(), ui.Hint(fmt.Sprintf("chunk %d: rows %d-%d", c.Index, c.Start, c.End-1)))
				}
				fmt.Fprintln(cmd.OutOrStdout(), ui.Successf("Inserted %d rows in %s", report.Inserted, ui.Count(int64(len(report.Chunks)), "chunk", "chunks")))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with columns and rows (default stdin)")
	cmd.Flags().IntVar(&chunk, "chunk", 0, "Rows per insert statement (default from config)")
	return cmd
}

func (a *app) batchUpdateCmd() *cobra.Command {
	var file, key string
	var sets setFlag
	cmd := &cobra.Command{
		Use:   "batch-update <entity>",
		Short: "Update many rows in one statement",
		Long: `Applies per-row updates in a single UPDATE with one CASE expression per
column. Operators are + - * / (arithmetic on numeric columns) and = (assign).
Every operation is checked before any row changes; rows not listed are left
alone.

Operations come from --set key:col:op:value flags, or from a YAML list where
each entry holds the key column and, per column, either a plain value to
assign or an [op, value] pair:

  - { id: 1, likes: ["*", 2], dislikes: ["/", 2] }
  - { id: 2, likes: ["-", 2], title: New title }
  - { id: 3, likes: ["+", 5] }

Examples:
  relq batch-update Post --file ops.yaml
  relq batch-update Post --set 1:likes:*:2 --set 3:likes:+:5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyColumn := key
			if keyColumn == "" {
				keyColumn = "id"
			}
			ops := sets.ops
			if file != "" || len(ops) == 0 {
				var entries []map[string]any
				if err := readYAML(cmd, file, &entries); err != nil {
					return a.handleError(cmd, err)
				}
				fromFile, err := parseOperations(entries, keyColumn)
				if err != nil {
					return a.handleError(cmd, err)
				}
				ops = append(ops, fromFile...)
			}
			return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
				n, err := db.UpdateBatch(ctx, args[0], ops, key)
				if err != nil {
					return err
				}
				a.printResult(cmd, map[string]int64{"updated": n}, &Meta{Affected: n},
					ui.Successf("Updated %s", ui.Count(n, "row", "rows")))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML list of operations (default stdin when no --set is given)")
	cmd.Flags().StringVar(&key, "key", "", "Key column (default primary key)")
	cmd.Flags().Var(&sets, "set", "Operation key:col:op:value (repeatable)")
	return cmd
}

// parseOperations converts YAML entries into batch operations.
func parseOperations(entries []map[string]any, keyColumn string) ([]batch.Operation, error) {
	ops := make([]batch.Operation, 0, len(entries))
	for i, entry := range entries {
		k, ok := entry[keyColumn]
		if !ok {
			return nil, invalidInput(fmt.Sprintf("operation %d has no %s", i, keyColumn))
		}
		op := batch.Operation{Key: k, Set: make(map[string]batch.Delta, len(entry)-1)}
		for col, v := range entry {
			if col == keyColumn {
				continue
			}
			pair, isPair := v.([]any)
			if !isPair {
				op.Set[col] = batch.Set(v)
				continue
			}
			if len(pair) != 2 {
				return nil, invalidInput(fmt.Sprintf("operation %d: %s needs [op, value]", i, col))
			}
			sym, _ := pair[0].(string)
			operator, err := batch.ParseOperator(sym)
			if err != nil {
				return nil, err
			}
			op.Set[col] = batch.Delta{Op: operator, Value: pair[1]}
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// readYAML decodes file, or stdin when file is empty, into v.
func readYAML(cmd *cobra.Command, file string, v any) error {
	var data []byte
	var err error
	if file != "" {
		data, err = os.ReadFile(file)
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return &inputError{code: ErrFileReadError, msg: err.Error()}
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return invalidInput(fmt.Sprintf("invalid YAML: %v", err))
	}
	return nil
}
