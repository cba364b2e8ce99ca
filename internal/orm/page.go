package orm

import (
	"context"
	"fmt"

	"github.com/aidanlsb/relq/internal/model"
	"github.com/aidanlsb/relq/internal/ormerr"
	"github.com/aidanlsb/relq/internal/query"
)

// Page is one page of a paginated query.
type Page struct {
	Data        []*model.Record `json:"data"`
	Total       int64           `json:"total"`
	PerPage     int             `json:"per_page"`
	CurrentPage int             `json:"current_page"`
	LastPage    int             `json:"last_page"`
	From        int             `json:"from,omitempty"`
	To          int             `json:"to,omitempty"`
}

// Paginate returns page (1-based) of q with perPage rows. The total is
// counted with the same filter and scopes.
func (d *DB) Paginate(ctx context.Context, q *query.Query, perPage, page int) (*Page, error) {
	if perPage <= 0 {
		return nil, ormerr.Validation(fmt.Sprint(perPage), "per page must be positive")
	}
	if page < 1 {
		page = 1
	}
	total, err := d.Count(ctx, q)
	if err != nil {
		return nil, err
	}
	p := &Page{
		Total:       total,
		PerPage:     perPage,
		CurrentPage: page,
		LastPage:    int((total + int64(perPage) - 1) / int64(perPage)),
		Data:        []*model.Record{},
	}
	if p.LastPage < 1 {
		p.LastPage = 1
	}
	offset := (page - 1) * perPage
	if int64(offset) >= total {
		return p, nil
	}
	records, err := d.Get(ctx, q.Clone().Limit(perPage).Offset(offset))
	if err != nil {
		return nil, err
	}
	p.Data = records
	if len(records) > 0 {
		p.From = offset + 1
		p.To = offset + len(records)
	}
	return p, nil
}
