package store

import (
	"context"
	"fmt"
)

// WithTx runs fn inside a transaction when ex can begin one. The transaction
// commits if fn returns nil and rolls back on any error or panic.
//
// If ex is already a transaction (or cannot begin one), fn runs directly on
// ex and the caller's transaction decides the outcome.
func WithTx(ctx context.Context, ex Executor, fn func(Executor) error) (err error) {
	b, ok := ex.(Beginner)
	if !ok {
		return fn(ex)
	}

	tx, err := b.BeginTx(ctx)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if rbErr := tx.Rollback(); rbErr != nil && err == nil {
			err = fmt.Errorf("rollback: %w", rbErr)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}
