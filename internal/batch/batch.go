// Package batch executes chunked inserts and multi-row conditional updates.
//
// Insert is at-least-once across chunks, not all-or-nothing: every chunk is
// its own transaction, so when chunk k fails, chunks before k stay
// committed, chunk k is rolled back and later chunks are never attempted.
// Callers that need all-or-nothing semantics pass a store.Txn as the
// executor, which makes every chunk part of that transaction.
//
// Update applies all operations in one statement inside one transaction and
// validates every operation before touching any row.
package batch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aidanlsb/relq/internal/ormerr"
	"github.com/aidanlsb/relq/internal/schema"
	"github.com/aidanlsb/relq/internal/sqlutil"
	"github.com/aidanlsb/relq/internal/store"
)

// Executor runs batch mutations against entities of a catalog.
type Executor struct {
	catalog *schema.Catalog

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a batch executor.
func New(cat *schema.Catalog) *Executor {
	return &Executor{catalog: cat, locks: make(map[string]*sync.Mutex)}
}

// entityLock serializes chunk statements per entity so concurrent callers
// never interleave inside one chunk.
func (x *Executor) entityLock(entity string) *sync.Mutex {
	x.mu.Lock()
	defer x.mu.Unlock()
	l, ok := x.locks[entity]
	if !ok {
		l = &sync.Mutex{}
		x.locks[entity] = l
	}
	return l
}

// ChunkResult describes one committed chunk.
type ChunkResult struct {
	Index    int   `json:"index"`
	Start    int   `json:"start"` // first row index, inclusive
	End      int   `json:"end"`   // last row index, exclusive
	Inserted int64 `json:"inserted"`
}

// InsertReport summarizes a batch insert.
type InsertReport struct {
	Chunks   []ChunkResult `json:"chunks"`
	Inserted int64         `json:"inserted"`
	Total    int           `json:"total"`
}

// ChunkError reports the chunk that failed. Chunks before Index are committed.
type ChunkError struct {
	Index int
	Start int
	End   int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d (rows %d-%d): %v", e.Index, e.Start, e.End-1, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// Chunks splits n rows into [start, end) ranges of at most size rows.
func Chunks(n, size int) [][2]int {
	if size <= 0 {
		return nil
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// Insert writes rows in chunks of at most chunkSize, one multi-row INSERT
// per chunk. Input is fully validated before the first chunk runs.
func (x *Executor) Insert(ctx context.Context, ex store.Executor, entity string, columns []string, rows [][]any, chunkSize int) (InsertReport, error) {
	report := InsertReport{Total: len(rows)}
	e, err := x.catalog.Entity(entity)
	if err != nil {
		return report, err
	}
	if chunkSize <= 0 {
		return report, ormerr.Validation(fmt.Sprint(chunkSize), "chunk size must be positive")
	}
	if len(columns) == 0 {
		return report, ormerr.Validation("", "insert needs at least one column")
	}
	cols := make([]schema.Column, len(columns))
	seen := make(map[string]bool, len(columns))
	for i, name := range columns {
		c, ok := e.Column(name)
		if !ok {
			return report, ormerr.UnknownColumn(e.Name, name)
		}
		if seen[name] {
			return report, ormerr.Validation(name, "duplicate insert column")
		}
		seen[name] = true
		cols[i] = c
	}

	values := make([][]any, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return report, ormerr.Validation(fmt.Sprint(row), "row %d has %d values for %d columns", i, len(row), len(columns))
		}
		values[i] = make([]any, len(row))
		for j, v := range row {
			nv, err := schema.NormalizeValue(cols[j], v)
			if err != nil {
				return report, fmt.Errorf("row %d: %w", i, err)
			}
			values[i][j] = nv
		}
	}

	rowSQL := "(" + sqlutil.Placeholders(len(columns)) + ")"
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", sqlutil.Quote(e.Table), sqlutil.QuoteAll("", columns))

	lock := x.entityLock(e.Name)
	for idx, bounds := range Chunks(len(values), chunkSize) {
		start, end := bounds[0], bounds[1]
		tuples := make([]string, 0, end-start)
		args := make([]any, 0, (end-start)*len(columns))
		for _, row := range values[start:end] {
			tuples = append(tuples, rowSQL)
			args = append(args, row...)
		}
		plan := store.Plan{Op: "insert", Entity: e.Name, SQL: prefix + strings.Join(tuples, ", "), Args: args}

		var n int64
		lock.Lock()
		err := store.WithTx(ctx, ex, func(tx store.Executor) error {
			var execErr error
			n, execErr = tx.Exec(ctx, plan)
			return execErr
		})
		lock.Unlock()
		if err != nil {
			return report, &ChunkError{Index: idx, Start: start, End: end, Err: err}
		}
		report.Chunks = append(report.Chunks, ChunkResult{Index: idx, Start: start, End: end, Inserted: n})
		report.Inserted += n
	}
	return report, nil
}

// Operation updates one row identified by Key.
type Operation struct {
	Key any
	Set map[string]Delta
}

// Update applies ops in a single CASE-based UPDATE keyed by keyColumn
// (the primary key when empty). Rows not referenced are untouched. It
// returns the number of rows changed.
func (x *Executor) Update(ctx context.Context, ex store.Executor, entity string, ops []Operation, keyColumn string) (int64, error) {
	e, err := x.catalog.Entity(entity)
	if err != nil {
		return 0, err
	}
	if keyColumn == "" {
		keyColumn = e.PrimaryKey
	}
	keyCol, ok := e.Column(keyColumn)
	if !ok {
		return 0, ormerr.UnknownColumn(e.Name, keyColumn)
	}
	if len(ops) == 0 {
		return 0, nil
	}

	type change struct {
		key   any
		delta Delta
	}
	changes := make(map[string][]change)
	keys := make([]any, 0, len(ops))
	seenKeys := make(map[any]bool, len(ops))

	order := make(map[string]int, len(e.Columns))
	for i, c := range e.Columns {
		order[c.Name] = i
	}
	columnsOf := func(set map[string]Delta) []string {
		names := make([]string, 0, len(set))
		for name := range set {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			oi, iok := order[names[i]]
			oj, jok := order[names[j]]
			if iok != jok {
				return iok
			}
			if oi != oj {
				return oi < oj
			}
			return names[i] < names[j]
		})
		return names
	}

	// Operator symbols are checked across every operation before any
	// column or operand.
	for _, op := range ops {
		for _, name := range columnsOf(op.Set) {
			if _, err := ParseOperator(string(op.Set[name].Op)); err != nil {
				return 0, err
			}
		}
	}

	for i, op := range ops {
		if op.Key == nil {
			return 0, ormerr.Validation("", "operation %d has no key", i)
		}
		key, err := schema.NormalizeValue(keyCol, op.Key)
		if err != nil {
			return 0, err
		}
		if seenKeys[key] {
			return 0, ormerr.Validation(fmt.Sprint(op.Key), "duplicate key in batch update")
		}
		seenKeys[key] = true
		if len(op.Set) == 0 {
			continue
		}
		keys = append(keys, key)

		for _, name := range columnsOf(op.Set) {
			d := op.Set[name]
			col, ok := e.Column(name)
			if !ok {
				return 0, ormerr.UnknownColumn(e.Name, name)
			}
			if name == keyColumn {
				return 0, ormerr.Validation(name, "batch update cannot change its key column")
			}
			if d.Op.Arithmetic() {
				if !col.Type.IsNumeric() {
					return 0, &ormerr.ArithmeticError{Column: name, Reason: fmt.Sprintf("operator %s on non-numeric column", d.Op)}
				}
				n, ok := schema.AsFloat(d.Value)
				if !ok {
					return 0, &ormerr.ArithmeticError{Column: name, Reason: fmt.Sprintf("non-numeric operand %v", d.Value)}
				}
				if d.Op == Divide && n == 0 {
					return 0, &ormerr.ArithmeticError{Column: name, Reason: "division by zero"}
				}
				d.Value = n
				if col.Type == schema.ColumnInteger && n == float64(int64(n)) {
					d.Value = int64(n)
				}
			} else {
				v, err := schema.NormalizeValue(col, d.Value)
				if err != nil {
					return 0, err
				}
				d.Value = v
			}
			changes[name] = append(changes[name], change{key: key, delta: d})
		}
	}
	if len(changes) == 0 {
		return 0, nil
	}

	// Columns in declaration order keep the statement deterministic.
	names := make([]string, 0, len(changes))
	for name := range changes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return order[names[i]] < order[names[j]] })

	var sets []string
	var args []any
	qkey := sqlutil.Quote(keyColumn)
	for _, name := range names {
		qcol := sqlutil.Quote(name)
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s = CASE %s", qcol, qkey)
		for _, ch := range changes[name] {
			if ch.delta.Op == Replace {
				sb.WriteString(" WHEN ? THEN ?")
			} else {
				fmt.Fprintf(&sb, " WHEN ? THEN %s %s ?", qcol, ch.delta.Op)
			}
			args = append(args, ch.key, ch.delta.Value)
		}
		fmt.Fprintf(&sb, " ELSE %s END", qcol)
		sets = append(sets, sb.String())
	}
	ph, keyArgs := sqlutil.InClauseArgs(keys)
	args = append(args, keyArgs...)

	plan := store.Plan{
		Op:        "batch update",
		Entity:    e.Name,
		SQL:       fmt.Sprintf("UPDATE %s SET %s WHERE %s IN (%s)", sqlutil.Quote(e.Table), strings.Join(sets, ", "), qkey, ph),
		Args:      args,
		Predicate: fmt.Sprintf("%s in %v", keyColumn, keys),
	}

	var affected int64
	err = store.WithTx(ctx, ex, func(tx store.Executor) error {
		var execErr error
		affected, execErr = tx.Exec(ctx, plan)
		return execErr
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}
