package parquet

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"daybook/internal/apperr"
	"daybook/internal/schema"
	"daybook/pkg/records"

	"github.com/google/go-cmp/cmp"
)

func TestEncode_EmptyRowsIsValidationError(t *testing.T) {
	t.Parallel()

	_, err := New().Encode(nil, schema.Schema{{Name: "x", Type: schema.String}})
	if !apperr.IsValidation(err) {
		t.Fatalf("Encode(nil) error = %v, want ValidationError", err)
	}
}

func TestRoundTrip_AppliesCasts(t *testing.T) {
	t.Parallel()

	s := schema.Schema{
		{Name: "id", Type: schema.BigInt},
		{Name: "ratio", Type: schema.Double},
		{Name: "total_amount", Type: schema.Decimal},
		{Name: "ok", Type: schema.Boolean},
		{Name: "at", Type: schema.Timestamp},
		{Name: "name", Type: schema.String},
	}
	rows := []records.Record{
		{"id": "42", "ratio": json.Number("0.25"), "total_amount": "10.50", "ok": "true", "at": "2024-03-01T10:00:00.250Z", "name": "Widget"},
		{"id": nil, "ratio": "", "total_amount": "oops", "ok": "0", "at": "never", "name": json.Number("7")},
	}

	c := New()
	data, err := c.Encode(rows, s)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	got, err := c.Decode(context.Background(), data, s)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}

	want := []records.Record{
		{"id": int64(42), "ratio": 0.25, "total_amount": 10.5, "ok": true, "at": time.Date(2024, 3, 1, 10, 0, 0, 250000000, time.UTC), "name": "Widget"},
		{"id": nil, "ratio": nil, "total_amount": nil, "ok": false, "at": nil, "name": "7"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_ExtendScenario(t *testing.T) {
	t.Parallel()

	s := schema.Schema{{Name: "x", Type: schema.BigInt}}
	c := New()

	existing, err := c.Encode([]records.Record{{"x": "1"}}, s)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	prior, err := c.Decode(context.Background(), existing, s)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	merged := append(prior, records.Record{"x": "2"})

	data, err := c.Encode(merged, s)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	got, err := c.Decode(context.Background(), data, s)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	want := []records.Record{{"x": int64(1)}, {"x": int64(2)}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("merged rows mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_SchemaDrift(t *testing.T) {
	t.Parallel()

	c := New()
	data, err := c.Encode([]records.Record{{"a": "1", "gone": "x"}}, schema.Schema{
		{Name: "a", Type: schema.BigInt},
		{Name: "gone", Type: schema.String},
	})
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	// Read with a wider type for a, a new column b, and without gone.
	got, err := c.Decode(context.Background(), data, schema.Schema{
		{Name: "a", Type: schema.String},
		{Name: "b", Type: schema.Boolean},
	})
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	want := []records.Record{{"a": "1", "b": nil}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_InvalidData(t *testing.T) {
	t.Parallel()

	_, err := New().Decode(context.Background(), []byte("not parquet"), schema.Schema{{Name: "x", Type: schema.String}})
	if err == nil {
		t.Fatalf("expected error for invalid parquet bytes")
	}
}

func TestRoundTrip_PhysicalNames(t *testing.T) {
	t.Parallel()

	s := schema.Schema{{Name: "user.id", Type: schema.BigInt}, {Name: "Název", Type: schema.String}}
	c := New()
	data, err := c.Encode([]records.Record{{"user.id": "9", "Název": "a"}}, s)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	got, err := c.Decode(context.Background(), data, s)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	want := []records.Record{{"user.id": int64(9), "Název": "a"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
	if got := ArrowSchema(s).Field(0).Name; got != "user_id" {
		t.Fatalf("physical name = %q, want user_id", got)
	}
}

/*
TestRoundTrip_InferredLargeIntegersAndOffsets verifies values whose inferred
type comes from text survive encode and decode: integers past int64 keep
their sign as doubles, and offset timestamps land on the right UTC instant.
*/
func TestRoundTrip_InferredLargeIntegersAndOffsets(t *testing.T) {
	t.Parallel()

	rows := []records.Record{
		{"n": "99999999999999999999", "at": "2024-01-01T10:00:00+0200"},
		{"n": "5", "at": "2024-01-02T10:00:00.123+02"},
	}
	s, err := schema.Infer([]string{"n", "at"}, rows)
	if err != nil {
		t.Fatalf("Infer error: %v", err)
	}

	c := New()
	data, err := c.Encode(rows, s)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	got, err := c.Decode(context.Background(), data, s)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}

	want := []records.Record{
		{"n": 1e20, "at": time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)},
		{"n": 5.0, "at": time.Date(2024, 1, 2, 8, 0, 0, 123000000, time.UTC)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}
