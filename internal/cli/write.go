package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/relq/internal/blog"
	"github.com/aidanlsb/relq/internal/model"
	"github.com/aidanlsb/relq/internal/orm"
	"github.com/aidanlsb/relq/internal/query"
	"github.com/aidanlsb/relq/internal/ui"
)

func (a *app) createCmd() *cobra.Command {
	attrs := newAttrsFlag()
	cmd := &cobra.Command{
		Use:   "create <entity>",
		Short: "Insert one row",
		Long: `Inserts one row and prints it as stored, with defaults and the new key.
Mutators and timestamps run: a post's slug follows its title.

Examples:
  relq create User --attr name=Ann --attr email=ann@example.com --attr age=31
  relq create Post --attr user_id=1 --attr title="Hello world"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
				r, err := db.Create(ctx, args[0], attrs.attrs)
				if err != nil {
					return err
				}
				a.printRecord(cmd, r)
				return nil
			})
		},
	}
	cmd.Flags().VarP(attrs, "attr", "a", "Column value col=value (repeatable)")
	return cmd
}

func (a *app) firstOrCreateCmd() *cobra.Command {
	match := newAttrsFlag()
	extra := newAttrsFlag()
	cmd := &cobra.Command{
		Use:   "first-or-create <entity>",
		Short: "Find the first row matching --match, or create it",
		Long: `Finds the first row whose columns equal every --match value. When there is
none, a row is created from the --match values plus the --attr values.
The lookup and the insert share one transaction.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(match.attrs) == 0 {
				return a.handleError(cmd, &inputError{code: ErrMissingArgument, msg: "first-or-create needs at least one --match"})
			}
			return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
				r, created, err := db.FirstOrCreate(ctx, args[0], match.attrs, extra.attrs)
				if err != nil {
					return err
				}
				a.printWritten(cmd, r, created)
				return nil
			})
		},
	}
	cmd.Flags().VarP(match, "match", "m", "Lookup value col=value (repeatable)")
	cmd.Flags().VarP(extra, "attr", "a", "Value used only when creating, col=value (repeatable)")
	return cmd
}

func (a *app) updateCmd() *cobra.Command {
	attrs := newAttrsFlag()
	cmd := &cobra.Command{
		Use:   "update <entity> <id>",
		Short: "Update one row by primary key",
		Long: `Updates one row and prints it as stored. Fails with NOT_FOUND when the row
does not exist or is hidden by a default scope.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
				r, err := db.Update(ctx, args[0], parseLiteral(args[1]), attrs.attrs)
				if err != nil {
					return err
				}
				a.printRecord(cmd, r)
				return nil
			})
		},
	}
	cmd.Flags().VarP(attrs, "attr", "a", "Column value col=value (repeatable)")
	return cmd
}

func (a *app) updateOrCreateCmd() *cobra.Command {
	match := newAttrsFlag()
	values := newAttrsFlag()
	cmd := &cobra.Command{
		Use:   "update-or-create <entity>",
		Short: "Update the row matching --match, or create it",
		Long: `Updates the first row whose columns equal every --match value with the --attr
values, or creates a row from both when none matches.

Example:
  relq update-or-create Post --match slug=hello-world --attr title="Hello world" --attr user_id=1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(match.attrs) == 0 {
				return a.handleError(cmd, &inputError{code: ErrMissingArgument, msg: "update-or-create needs at least one --match"})
			}
			return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
				r, created, err := db.UpdateOrCreate(ctx, args[0], match.attrs, values.attrs)
				if err != nil {
					return err
				}
				a.printWritten(cmd, r, created)
				return nil
			})
		},
	}
	cmd.Flags().VarP(match, "match", "m", "Lookup value col=value (repeatable)")
	cmd.Flags().VarP(values, "attr", "a", "Value to write, col=value (repeatable)")
	return cmd
}

// printWritten prints a record from an upsert-style command along with
// whether it was created.
func (a *app) printWritten(cmd *cobra.Command, r *model.Record, created bool) {
	if a.useJSON(cmd) {
		outputSuccess(cmd.OutOrStdout(), map[string]any{"record": r, "created": created}, nil)
		return
	}
	if created {
		fmt.Fprintln(cmd.OutOrStdout(), ui.Successf("Created key %v", r.Key()))
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), ui.Infof("Found key %v", r.Key()))
	}
}

func (a *app) stepCmd(direction string) *cobra.Command {
	extra := newAttrsFlag()
	var by string
	cmd := &cobra.Command{
		Use:   direction + " <entity> <id> <column>",
		Short: fmt.Sprintf("Atomically %s a numeric column", direction),
		Long: fmt.Sprintf(`Runs one UPDATE that %ss column by --by and assigns the --attr values in the
same statement. Fails with NOT_FOUND when the row does not exist.

Example:
  relq %s Post 3 likes --by 5 --attr title="Post with many likes"`, direction, direction),
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, id, column := args[0], parseLiteral(args[1]), args[2]
			return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
				step := db.Increment
				if direction == "decrement" {
					step = db.Decrement
				}
				if err := step(ctx, entity, id, column, by, extra.attrs); err != nil {
					return err
				}
				r, err := db.FindOrFail(ctx, unscopedQuery(entity), id)
				if err != nil {
					return err
				}
				a.printRecord(cmd, r)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "1", "Amount")
	cmd.Flags().VarP(extra, "attr", "a", "Also assign col=value (repeatable)")
	return cmd
}

func unscopedQuery(entity string) *query.Query {
	return query.From(entity).WithoutScopes()
}

func (a *app) deleteCmd() *cobra.Command {
	var withRelations bool
	cmd := &cobra.Command{
		Use:   "delete <entity> <id>",
		Short: "Delete one row by primary key",
		Long: `Deletes one row. With --with-relations its many-to-many links are detached
first, in the same transaction, so a failure leaves both in place.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, id := args[0], parseLiteral(args[1])
			return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
				var err error
				if withRelations {
					err = db.DeleteWithRelations(ctx, entity, id)
				} else {
					err = db.Delete(ctx, entity, id)
				}
				if err != nil {
					return err
				}
				a.printResult(cmd, map[string]any{"entity": entity, "id": id}, &Meta{Affected: 1},
					ui.Successf("Deleted %s %v", entity, id))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&withRelations, "with-relations", false, "Detach many-to-many links first")
	return cmd
}

func (a *app) pivotCmd(action string) *cobra.Command {
	short := map[string]string{
		"attach": "Link related rows through a many-to-many relation",
		"detach": "Unlink related rows; every link when no ids are given",
		"sync":   "Make the linked rows exactly the given ids",
	}[action]
	minArgs := 4
	if action != "attach" {
		minArgs = 3
	}
	return &cobra.Command{
		Use:   action + " <entity> <id> <relation> [ids...]",
		Short: short,
		Args:  cobra.MinimumNArgs(minArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, id, relation := args[0], parseLiteral(args[1]), args[2]
			ids := parseIDs(args[3:])
			return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
				switch action {
				case "attach":
					n, err := db.Attach(ctx, entity, id, relation, ids...)
					if err != nil {
						return err
					}
					a.printResult(cmd, map[string]int64{"attached": n}, &Meta{Affected: n}, ui.Successf("Attached %d", n))
				case "detach":
					n, err := db.Detach(ctx, entity, id, relation, ids...)
					if err != nil {
						return err
					}
					a.printResult(cmd, map[string]int64{"detached": n}, &Meta{Affected: n}, ui.Successf("Detached %d", n))
				case "sync":
					res, err := db.Sync(ctx, entity, id, relation, ids...)
					if err != nil {
						return err
					}
					n := int64(len(res.Attached) + len(res.Detached))
					a.printResult(cmd, res, &Meta{Affected: n},
						ui.Successf("Attached %v, detached %v", res.Attached, res.Detached))
				}
				return nil
			})
		},
	}
}

func (a *app) ensureBillingCmd() *cobra.Command {
	attrs := newAttrsFlag()
	var card string
	cmd := &cobra.Command{
		Use:   "ensure-billing <name>",
		Short: "Find or create a user and upsert its billing record",
		Long: `Finds the user with the given name, creating it from the --attr values when
missing, then creates or updates its billing record with --card. Both
writes commit together. Prints the user with its billing loaded.

Example:
  relq ensure-billing ann --attr email=ann@example.com --attr age=25 --card 12334455`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if card == "" {
				return a.handleError(cmd, &inputError{code: ErrMissingArgument, msg: "--card is required"})
			}
			return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
				u, err := blog.EnsureUserWithBilling(ctx, db, args[0], attrs.attrs, card)
				if err != nil {
					return err
				}
				a.printRecord(cmd, u)
				return nil
			})
		},
	}
	cmd.Flags().VarP(attrs, "attr", "a", "User column used when creating, col=value (repeatable)")
	cmd.Flags().StringVar(&card, "card", "", "Credit card number")
	return cmd
}
