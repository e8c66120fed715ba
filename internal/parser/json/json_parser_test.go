package json

import (
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"daybook/pkg/records"
)

/*
TestDecodeAll_PreservesKeyOrder verifies that objects keep the order in which
their keys appear in the source text, including nested objects.
*/
func TestDecodeAll_PreservesKeyOrder(t *testing.T) {
	t.Parallel()

	vals, err := DecodeAll(strings.NewReader(`{"z":1,"a":{"y":true,"b":null},"m":"x"}`))
	if err != nil {
		t.Fatalf("DecodeAll error: %v", err)
	}
	if len(vals) != 1 {
		t.Fatalf("got %d values, want 1", len(vals))
	}
	obj, ok := vals[0].(*records.Object)
	if !ok {
		t.Fatalf("value is %T, want *records.Object", vals[0])
	}
	if got, want := obj.Keys, []string{"z", "a", "m"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	if obj.Values["z"] != json.Number("1") {
		t.Fatalf("z = %#v, want json.Number(1)", obj.Values["z"])
	}
	inner := obj.Values["a"].(*records.Object)
	if got, want := inner.Keys, []string{"y", "b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("inner keys = %v, want %v", got, want)
	}
}

/*
TestDecodeAll_ArraysAndNDJSON verifies that a top-level array decodes to
[]any and that several newline-delimited documents yield several values.
*/
func TestDecodeAll_ArraysAndNDJSON(t *testing.T) {
	t.Parallel()

	vals, err := DecodeAll(strings.NewReader(`[["a","b"],[1,2]]`))
	if err != nil {
		t.Fatalf("DecodeAll error: %v", err)
	}
	arr := vals[0].([]any)
	if len(arr) != 2 {
		t.Fatalf("len = %d, want 2", len(arr))
	}

	vals, err = DecodeAll(strings.NewReader("{\"id\":1}\n{\"id\":2}\n"))
	if err != nil {
		t.Fatalf("DecodeAll error: %v", err)
	}
	if len(vals) != 2 {
		t.Fatalf("got %d values, want 2", len(vals))
	}

	vals, err = DecodeAll(strings.NewReader(`[]`))
	if err != nil {
		t.Fatalf("DecodeAll error: %v", err)
	}
	if got := vals[0].([]any); len(got) != 0 {
		t.Fatalf("empty array decoded to %v", got)
	}
}

/*
TestDecoderNext_TruncatedInput verifies that a document cut off mid-object is
an error rather than a clean io.EOF.
*/
func TestDecoderNext_TruncatedInput(t *testing.T) {
	t.Parallel()

	d := NewDecoder(strings.NewReader(`{"a":1,`))
	_, err := d.Next()
	if err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("Next error = %v, want decode error", err)
	}
}
