package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aidanlsb/relq/internal/schema"
	"github.com/aidanlsb/relq/internal/sqlutil"
)

// Migrate creates tables, pivot tables and foreign-key indexes for every
// entity in the catalog. It is idempotent.
func Migrate(ctx context.Context, ex Executor, cat *schema.Catalog) error {
	for _, stmt := range DDL(cat) {
		if _, err := ex.Exec(ctx, Plan{Op: "migrate", SQL: stmt}); err != nil {
			return err
		}
	}
	return nil
}

// DDL returns the CREATE statements for a catalog.
func DDL(cat *schema.Catalog) []string {
	var stmts []string
	for _, name := range cat.EntityNames() {
		e := cat.Entities[name]
		stmts = append(stmts, createTable(e))
	}
	for _, name := range sortedPivots(cat) {
		p := cat.Pivots[name]
		cols := make([]string, 0, len(p.Columns)+1)
		names := make([]string, 0, len(p.Columns))
		for _, c := range p.Columns {
			cols = append(cols, columnDef(c))
			names = append(names, sqlutil.Quote(c.Name))
		}
		cols = append(cols, "UNIQUE ("+strings.Join(names, ", ")+")")
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", sqlutil.Quote(name), strings.Join(cols, ",\n\t")))
		for _, c := range p.Columns {
			stmts = append(stmts, createIndex(name, c.Name))
		}
	}
	for _, name := range cat.EntityNames() {
		e := cat.Entities[name]
		for _, rel := range e.RelationNames() {
			r := e.Relations[rel]
			if r.Kind == schema.BelongsTo {
				stmts = append(stmts, createIndex(e.Table, r.ForeignKey))
			}
		}
	}
	return stmts
}

func createTable(e *schema.Entity) string {
	cols := make([]string, 0, len(e.Columns))
	for _, c := range e.Columns {
		if c.Name == e.PrimaryKey {
			cols = append(cols, sqlutil.Quote(c.Name)+" INTEGER PRIMARY KEY")
			continue
		}
		cols = append(cols, columnDef(c))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", sqlutil.Quote(e.Table), strings.Join(cols, ",\n\t"))
}

func columnDef(c schema.Column) string {
	var sb strings.Builder
	sb.WriteString(sqlutil.Quote(c.Name))
	sb.WriteByte(' ')
	sb.WriteString(sqlType(c.Type))
	if !c.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if c.Unique {
		sb.WriteString(" UNIQUE")
	}
	if c.Default != nil {
		sb.WriteString(" DEFAULT ")
		sb.WriteString(defaultLiteral(c.Default))
	}
	return sb.String()
}

func sqlType(t schema.ColumnType) string {
	switch t {
	case schema.ColumnInteger, schema.ColumnBoolean:
		return "INTEGER"
	case schema.ColumnReal:
		return "REAL"
	default:
		// Temporal columns are stored as text so date() and strftime() apply
		// and the driver returns them unparsed.
		return "TEXT"
	}
}

func defaultLiteral(v any) string {
	switch d := v.(type) {
	case bool:
		if d {
			return "1"
		}
		return "0"
	case string:
		return "'" + strings.ReplaceAll(d, "'", "''") + "'"
	default:
		return fmt.Sprint(d)
	}
}

func createIndex(table, column string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		sqlutil.Quote("idx_"+table+"_"+column), sqlutil.Quote(table), sqlutil.Quote(column))
}

func sortedPivots(cat *schema.Catalog) []string {
	names := make([]string, 0, len(cat.Pivots))
	for n := range cat.Pivots {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
