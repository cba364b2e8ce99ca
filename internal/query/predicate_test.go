package query

import (
	"encoding/json"
	"testing"
)

func TestPredicateString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		p    Predicate
		want string
	}{
		{"comparison", Where("age", ">=", 40), "age >= 40"},
		{"in", In("id", 1, 2), "id in [1 2]"},
		{"null", IsNull("email"), "email is null"},
		{"month", WhereMonth("created_at", "=", 3), "month(created_at) = 3"},
		{"has", WhereHas("posts"), "has(posts) >= 1"},
		{"column", WhereColumn("user_id", "=", "users.id"), "user_id = users.id"},
		{
			"nested groups",
			Or(And(Eq("banned", true), Where("age", ">=", 40)), And(Eq("banned", false), Where("age", "<=", 30))),
			"(banned = true AND age >= 40) OR (banned = false AND age <= 30)",
		},
		{"having aggregate", HavingAgg(Agg(Sum, "likes"), ">", 500), "sum(likes) > 500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEmptyPredicatesDrop(t *testing.T) {
	t.Parallel()

	if p := And(Predicate{}, Or()); !p.IsEmpty() {
		t.Errorf("expected empty, got %+v", p)
	}
	single := And(Predicate{}, Eq("slug", "x"))
	if single.Op != OpEq || single.Column != "slug" {
		t.Errorf("single child should be unwrapped, got %+v", single)
	}
	if p := When(false, func() Predicate { return Eq("a", 1) }); !p.IsEmpty() {
		t.Errorf("When(false) should be empty")
	}
	if p := When(true, func() Predicate { return Eq("a", 1) }); p.IsEmpty() {
		t.Errorf("When(true) should keep the predicate")
	}
	if p := WhenValue("", func(s string) Predicate { return Eq("slug", s) }); !p.IsEmpty() {
		t.Errorf("WhenValue with empty value should be empty")
	}

	q := From("Post").Where(Predicate{}, WhenValue("", func(s string) Predicate { return Eq("slug", s) }))
	if !q.Filter().IsEmpty() {
		t.Errorf("query should have no filter, got %s", q.Filter())
	}
}

func TestOrWhereWrapsEarlierFilters(t *testing.T) {
	t.Parallel()
	q := From("User").Where(Eq("banned", true), Where("age", ">=", 40)).OrWhere(Where("age", "<", 18))
	want := "(banned = true AND age >= 40) OR age < 18"
	if got := q.Filter().String(); got != want {
		t.Errorf("Filter() = %q, want %q", got, want)
	}
	if got := From("User").OrWhere(Eq("id", 1)).Filter().String(); got != "id = 1" {
		t.Errorf("OrWhere on empty query = %q", got)
	}
}

func TestPredicateJSON(t *testing.T) {
	t.Parallel()
	p := And(Eq("banned", false), In("id", 1, 2))
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back Predicate
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.String() != p.String() {
		t.Errorf("round trip %q != %q", back.String(), p.String())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()
	base := From("Post").Where(Eq("likes", 1)).OrderBy("id")
	c := base.Clone().Where(Eq("dislikes", 0)).Limit(5)
	if got := base.Filter().String(); got != "likes = 1" {
		t.Errorf("base filter changed to %q", got)
	}
	if limit, _ := base.Page(); limit != -1 {
		t.Errorf("base limit changed to %d", limit)
	}
	if limit, _ := c.Page(); limit != 5 {
		t.Errorf("clone limit = %d", limit)
	}
}
