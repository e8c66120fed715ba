package builtin

import (
	"testing"

	"daybook/pkg/records"
)

/* TestRequire verifies rows missing a required value are dropped. */
func TestRequire(t *testing.T) {
	t.Parallel()

	in := []records.Record{
		{"sku": "A", "qty": "1"},
		{"sku": "", "qty": "2"},
		{"qty": "3"},
		{"sku": nil, "qty": "4"},
		{"sku": "E", "qty": "5"},
	}
	out := Require{Fields: []string{"sku"}}.Apply(in)
	if len(out) != 2 || out[0]["sku"] != "A" || out[1]["sku"] != "E" {
		t.Fatalf("unexpected survivors: %v", out)
	}
}

/* TestRequire_NoFields verifies an empty field list keeps every row. */
func TestRequire_NoFields(t *testing.T) {
	t.Parallel()

	in := []records.Record{{"a": ""}, {}}
	if out := (Require{}).Apply(in); len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
}
