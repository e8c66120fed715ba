// Package json decodes JSON documents into plain Go values while keeping the
// key order of every object.
//
// Objects decode to *records.Object, arrays to []any, numbers to json.Number
// and the remaining scalars to string, bool or nil. Order matters because the
// first-seen key order of the rows becomes the column order of the inferred
// schema.
//
// Both a single document and a stream of documents (NDJSON) are supported:
//
//	{"id":1,"name":"a"}
//	{"id":2,"name":"b"}
package json

import (
	"encoding/json"
	"fmt"
	"io"

	"daybook/pkg/records"
)

// Decoder wraps encoding/json.Decoder and walks its token stream.
type Decoder struct {
	dec *json.Decoder
}

// NewDecoder constructs a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	d := json.NewDecoder(r)
	// UseNumber so callers can decide how to map numeric values.
	d.UseNumber()
	return &Decoder{dec: d}
}

// Next decodes the next top-level value. io.EOF is returned when the stream
// is exhausted.
func (d *Decoder) Next() (any, error) {
	v, err := d.value()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("json parser: decode: %w", err)
	}
	return v, nil
}

// DecodeAll reads every top-level value from r.
func DecodeAll(r io.Reader) ([]any, error) {
	d := NewDecoder(r)
	var out []any
	for {
		v, err := d.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

func (d *Decoder) value() (any, error) {
	tok, err := d.dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := records.NewObject()
		for d.dec.More() {
			kt, err := d.dec.Token()
			if err != nil {
				return nil, unexpectedEOF(err)
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("object key is %T, want string", kt)
			}
			v, err := d.value()
			if err != nil {
				return nil, unexpectedEOF(err)
			}
			obj.Set(key, v)
		}
		if _, err := d.dec.Token(); err != nil {
			return nil, unexpectedEOF(err)
		}
		return obj, nil

	case '[':
		arr := []any{}
		for d.dec.More() {
			v, err := d.value()
			if err != nil {
				return nil, unexpectedEOF(err)
			}
			arr = append(arr, v)
		}
		if _, err := d.dec.Token(); err != nil {
			return nil, unexpectedEOF(err)
		}
		return arr, nil
	}

	return nil, fmt.Errorf("unexpected delimiter %q", delim)
}

// unexpectedEOF keeps a truncated document from looking like a clean end of
// stream.
func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
