package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/relq/internal/model"
	"github.com/aidanlsb/relq/internal/ui"
)

const maxCellWidth = 48

func hintLine(msg string) string { return ui.Hint(msg) }

// printRecords writes records as a table, or as the JSON envelope.
func (a *app) printRecords(cmd *cobra.Command, records []*model.Record) {
	if records == nil {
		records = []*model.Record{}
	}
	if a.useJSON(cmd) {
		outputSuccess(cmd.OutOrStdout(), records, &Meta{Count: len(records)})
		return
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), ui.Info("No rows"))
		return
	}
	fmt.Fprint(cmd.OutOrStdout(), recordTable(records).String())
	fmt.Fprintln(cmd.OutOrStdout(), ui.Hint(ui.Count(int64(len(records)), "row", "rows")))
}

// printRecord writes one record.
func (a *app) printRecord(cmd *cobra.Command, r *model.Record) {
	if a.useJSON(cmd) {
		var data interface{}
		if r != nil {
			data = r
		}
		outputSuccess(cmd.OutOrStdout(), data, nil)
		return
	}
	if r == nil {
		fmt.Fprintln(cmd.OutOrStdout(), ui.Info("No row"))
		return
	}
	fmt.Fprint(cmd.OutOrStdout(), recordTable([]*model.Record{r}).String())
}

// printResult writes arbitrary data as JSON, or msg in text mode.
func (a *app) printResult(cmd *cobra.Command, data interface{}, meta *Meta, msg string) {
	if a.useJSON(cmd) {
		outputSuccess(cmd.OutOrStdout(), data, meta)
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
}

// recordTable lays records out with one column per selected column, then
// appended attributes, then loaded relations.
func recordTable(records []*model.Record) *ui.Table {
	e := records[0].Entity
	var headers []string
	seen := make(map[string]bool)
	for _, r := range records {
		for _, c := range r.Columns {
			if !seen[c] && !e.IsHidden(c) {
				seen[c] = true
				headers = append(headers, c)
			}
		}
	}
	nCols := len(headers)
	headers = append(headers, e.Appends...)
	var rels []string
	for _, name := range e.RelationNames() {
		for _, r := range records {
			if _, ok := r.Relation(name); ok {
				rels = append(rels, name)
				break
			}
		}
	}
	headers = append(headers, rels...)

	tbl := ui.NewTable(headers...)
	for _, r := range records {
		cells := make([]string, 0, len(headers))
		for _, c := range headers[:nCols] {
			if !r.Has(c) {
				cells = append(cells, "")
				continue
			}
			cells = append(cells, cell(r.Get(c)))
		}
		for _, name := range e.Appends {
			v, _ := r.Attribute(name)
			cells = append(cells, cell(v))
		}
		for _, name := range rels {
			rel, ok := r.Relation(name)
			if !ok {
				cells = append(cells, "")
				continue
			}
			cells = append(cells, relationCell(rel))
		}
		tbl.AddRow(cells...)
	}
	return tbl
}

func cell(v any) string {
	if v == nil {
		return ui.NullCell
	}
	return ui.Truncate(fmt.Sprint(v), maxCellWidth)
}

// relationCell summarizes a loaded relation: the related row as compact
// JSON for single relations, the number of rows and their keys for many.
func relationCell(rel *model.Related) string {
	if rel.Single {
		if rel.Absent || rel.One == nil {
			return ui.NullCell
		}
		b, err := json.Marshal(rel.One)
		if err != nil {
			return err.Error()
		}
		return ui.Truncate(string(b), maxCellWidth)
	}
	keys := make([]any, 0, len(rel.Many))
	for _, r := range rel.Many {
		keys = append(keys, r.Key())
	}
	return ui.Truncate(fmt.Sprintf("%d %v", len(keys), keys), maxCellWidth)
}
