package query

// Subquery is a correlated scalar subquery: it selects one column of at most
// one row of Entity, filtered by predicates that may reference columns of
// the enclosing query through WhereColumn("col", "=", "outer_table.col").
type Subquery struct {
	Entity string

	column  string
	wheres  []Predicate
	orders  []Order
	without map[string]bool
}

// Sub starts a subquery against entity.
func Sub(entity string) *Subquery {
	return &Subquery{Entity: entity}
}

// Select sets the single column the subquery yields.
func (s *Subquery) Select(column string) *Subquery {
	s.column = column
	return s
}

// Where ANDs predicates into the subquery filter.
func (s *Subquery) Where(ps ...Predicate) *Subquery {
	for _, p := range ps {
		if !p.IsEmpty() {
			s.wheres = append(s.wheres, p)
		}
	}
	return s
}

// WhereColumn correlates column with a column of the enclosing query.
func (s *Subquery) WhereColumn(column, outer string) *Subquery {
	return s.Where(WhereColumn(column, "=", outer))
}

// OrderBy sorts ascending.
func (s *Subquery) OrderBy(column string) *Subquery {
	s.orders = append(s.orders, Order{Column: column})
	return s
}

// OrderByDesc sorts descending.
func (s *Subquery) OrderByDesc(column string) *Subquery {
	s.orders = append(s.orders, Order{Column: column, Desc: true})
	return s
}

// WithoutScope suppresses a scope of the subquery entity.
func (s *Subquery) WithoutScope(names ...string) *Subquery {
	if s.without == nil {
		s.without = make(map[string]bool)
	}
	for _, n := range names {
		s.without[n] = true
	}
	return s
}

// Latest is the common "latest related row" subquery: the column of the
// newest row of entity whose foreignKey equals outer, by orderColumn.
func Latest(entity, column, foreignKey, outer, orderColumn string) *Subquery {
	return Sub(entity).Select(column).WhereColumn(foreignKey, outer).OrderByDesc(orderColumn)
}
