package testutil

import (
	"context"
	"sync"

	"github.com/aidanlsb/relq/internal/store"
)

// CountingExecutor records every plan run through it, including plans run
// inside transactions it begins.
type CountingExecutor struct {
	inner *store.DB

	mu    sync.Mutex
	plans []store.Plan
}

// NewCountingExecutor wraps db.
func NewCountingExecutor(db *store.DB) *CountingExecutor {
	return &CountingExecutor{inner: db}
}

func (c *CountingExecutor) record(p store.Plan) {
	c.mu.Lock()
	c.plans = append(c.plans, p)
	c.mu.Unlock()
}

// Query implements store.Executor.
func (c *CountingExecutor) Query(ctx context.Context, p store.Plan) (*store.Result, error) {
	c.record(p)
	return c.inner.Query(ctx, p)
}

// Exec implements store.Executor.
func (c *CountingExecutor) Exec(ctx context.Context, p store.Plan) (int64, error) {
	c.record(p)
	return c.inner.Exec(ctx, p)
}

// Concurrent implements store.Executor.
func (c *CountingExecutor) Concurrent() bool { return c.inner.Concurrent() }

// BeginTx implements store.Beginner.
func (c *CountingExecutor) BeginTx(ctx context.Context) (store.Txn, error) {
	tx, err := c.inner.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return &countingTx{parent: c, tx: tx}, nil
}

// Reset forgets the recorded plans.
func (c *CountingExecutor) Reset() {
	c.mu.Lock()
	c.plans = nil
	c.mu.Unlock()
}

// Plans returns the recorded plans in execution order.
func (c *CountingExecutor) Plans() []store.Plan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]store.Plan(nil), c.plans...)
}

// Count returns how many plans ran.
func (c *CountingExecutor) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.plans)
}

// CountOp returns how many plans with the given Op ran.
func (c *CountingExecutor) CountOp(op string) int {
	n := 0
	for _, p := range c.Plans() {
		if p.Op == op {
			n++
		}
	}
	return n
}

type countingTx struct {
	parent *CountingExecutor
	tx     store.Txn
}

func (t *countingTx) Query(ctx context.Context, p store.Plan) (*store.Result, error) {
	t.parent.record(p)
	return t.tx.Query(ctx, p)
}

func (t *countingTx) Exec(ctx context.Context, p store.Plan) (int64, error) {
	t.parent.record(p)
	return t.tx.Exec(ctx, p)
}

func (t *countingTx) Concurrent() bool { return t.tx.Concurrent() }
func (t *countingTx) Commit() error    { return t.tx.Commit() }
func (t *countingTx) Rollback() error  { return t.tx.Rollback() }
