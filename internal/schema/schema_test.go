package schema

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aidanlsb/relq/internal/ormerr"
)

const shopCatalog = `
entities:
  Customer:
    timestamps: true
    columns:
      - { name: name }
      - { name: vip, type: boolean, default: false }
    relations:
      orders: { kind: has_many, target: Order, foreign_key: customer_id }
  Order:
    table: orders
    columns:
      - { name: customer_id, type: integer }
      - { name: total, type: real }
    relations:
      customer: { kind: belongs_to, target: Customer, foreign_key: customer_id }
      items: { kind: many_to_many, target: Item, pivot: order_item, foreign_key: order_id, related_key: item_id }
  Item:
    columns:
      - { name: sku }
pivots:
  order_item:
    columns:
      - { name: order_id, type: integer }
      - { name: item_id, type: integer }
`

func TestParse(t *testing.T) {
	t.Parallel()
	cat, err := Parse([]byte(shopCatalog))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cat.Version != CurrentCatalogVersion {
		t.Errorf("version = %d", cat.Version)
	}

	customer, err := cat.Entity("Customer")
	if err != nil {
		t.Fatalf("Entity: %v", err)
	}
	if customer.Table != "Customer" || customer.PrimaryKey != "id" {
		t.Errorf("defaults not applied: table=%q pk=%q", customer.Table, customer.PrimaryKey)
	}
	want := "id,name,vip,created_at,updated_at"
	if got := strings.Join(customer.ColumnNames(), ","); got != want {
		t.Errorf("columns = %s, want %s", got, want)
	}
	if c, _ := customer.Column("name"); c.Type != ColumnText {
		t.Errorf("untyped column should default to text, got %q", c.Type)
	}

	orders, _ := customer.Relation("orders")
	if orders.Name != "orders" || orders.OwnerKey != "id" {
		t.Errorf("orders relation = %+v", orders)
	}
	owner, _ := cat.Entities["Order"].Relation("customer")
	if owner.OwnerKey != "id" || !owner.Single() {
		t.Errorf("customer relation = %+v", owner)
	}
	if cat.Pivots["order_item"].Name != "order_item" {
		t.Errorf("pivot name not set")
	}
	if got := strings.Join(cat.EntityNames(), ","); got != "Customer,Item,Order" {
		t.Errorf("EntityNames = %s", got)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		doc  string
		want func(error) bool
	}{
		{
			name: "newer version",
			doc:  "version: 9\nentities: {}",
			want: func(err error) bool { return err != nil && strings.Contains(err.Error(), "newer") },
		},
		{
			name: "unknown target",
			doc:  "entities:\n  A:\n    relations:\n      b: { kind: belongs_to, target: B, foreign_key: b_id }",
			want: isConfiguration,
		},
		{
			name: "missing foreign key column",
			doc:  "entities:\n  A:\n    relations:\n      b: { kind: belongs_to, target: B, foreign_key: b_id }\n  B: {}",
			want: isSchema,
		},
		{
			name: "unknown pivot",
			doc:  "entities:\n  A:\n    relations:\n      b: { kind: many_to_many, target: B, pivot: a_b, foreign_key: a_id, related_key: b_id }\n  B: {}",
			want: isConfiguration,
		},
		{
			name: "unknown kind",
			doc:  "entities:\n  A:\n    relations:\n      b: { kind: has_some, target: B, foreign_key: a_id }\n  B: {}",
			want: isConfiguration,
		},
		{
			name: "duplicate column",
			doc:  "entities:\n  A:\n    columns:\n      - { name: x }\n      - { name: x }",
			want: isSchema,
		},
		{
			name: "unsupported type",
			doc:  "entities:\n  A:\n    columns:\n      - { name: x, type: blob }",
			want: isSchema,
		},
		{
			name: "order_by on unknown column",
			doc:  "entities:\n  A:\n    relations:\n      bs: { kind: has_many, target: B, foreign_key: a_id, order_by: rank }\n  B:\n    columns:\n      - { name: a_id, type: integer }",
			want: isSchema,
		},
		{
			name: "invalid yaml",
			doc:  "entities: [",
			want: func(err error) bool { return err != nil },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if !tt.want(err) {
				t.Fatalf("unexpected error %T: %v", err, err)
			}
		})
	}
}

func isSchema(err error) bool {
	var e *ormerr.SchemaError
	return errors.As(err, &e)
}

func isConfiguration(err error) bool {
	var e *ormerr.ConfigurationError
	return errors.As(err, &e)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(shopCatalog), 0o644); err != nil {
		t.Fatal(err)
	}
	cat, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(cat.Entities) != 3 {
		t.Errorf("loaded %d entities", len(cat.Entities))
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected an error for a missing file")
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()
	cat, err := Parse([]byte(shopCatalog))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := cat.RegisterMutator("Item", "colour", func(any, map[string]any) {}); !isSchema(err) {
		t.Errorf("mutator on unknown column: %v", err)
	}
	if err := cat.RegisterDerived("Order", Derived{Name: "x", Requires: []string{"shipments"}}); !isConfiguration(err) {
		t.Errorf("derived needing unknown relation: %v", err)
	}
	if err := cat.RegisterMutator("Item", "sku", func(v any, attrs map[string]any) { attrs["sku"] = strings.ToUpper(v.(string)) }); err != nil {
		t.Fatalf("RegisterMutator: %v", err)
	}
	m, ok := cat.Entities["Item"].Mutator("sku")
	if !ok {
		t.Fatalf("mutator not found")
	}
	attrs := map[string]any{}
	m("abc", attrs)
	if attrs["sku"] != "ABC" {
		t.Errorf("mutator result = %v", attrs["sku"])
	}
}

func TestNormalizeValue(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)
	tests := []struct {
		name    string
		col     Column
		in      any
		want    any
		wantErr bool
	}{
		{"int from float", Column{Name: "n", Type: ColumnInteger}, 3.0, int64(3), false},
		{"int from string", Column{Name: "n", Type: ColumnInteger}, "42", int64(42), false},
		{"int rejects fraction", Column{Name: "n", Type: ColumnInteger}, 2.5, nil, true},
		{"int rejects text", Column{Name: "n", Type: ColumnInteger}, "many", nil, true},
		{"real", Column{Name: "r", Type: ColumnReal}, 2, 2.0, false},
		{"bool true", Column{Name: "b", Type: ColumnBoolean}, true, int64(1), false},
		{"bool from 0", Column{Name: "b", Type: ColumnBoolean}, 0, int64(0), false},
		{"bool rejects 2", Column{Name: "b", Type: ColumnBoolean}, 2, nil, true},
		{"datetime from time", Column{Name: "d", Type: ColumnDatetime}, at, "2024-03-05 09:30:00", false},
		{"datetime from date", Column{Name: "d", Type: ColumnDatetime}, "2024-03-05", "2024-03-05 00:00:00", false},
		{"date from rfc3339", Column{Name: "d", Type: ColumnDate}, "2024-03-05T09:30:00Z", "2024-03-05", false},
		{"date rejects garbage", Column{Name: "d", Type: ColumnDate}, "yesterday", nil, true},
		{"text from number", Column{Name: "s", Type: ColumnText}, 7, "7", false},
		{"nil passes", Column{Name: "s", Type: ColumnInteger}, nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeValue(tt.col, tt.in)
			if tt.wantErr {
				var ve *ormerr.ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("expected ValidationError, got %v (%v)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeValue: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}
