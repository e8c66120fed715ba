// Package records defines the row model shared by the ingestion pipeline.
//
// A Record is a flat mapping from column name to a scalar value (string,
// json.Number, int64, float64, bool, time.Time or nil). Because Go maps are
// unordered, a Batch carries the column order alongside its rows, and JSON
// objects decoded by the parsers are represented as Object so that key order
// survives until the batch is built.
package records

import "encoding/json"

// Record is a single row.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Object is a decoded JSON object that remembers the order of its keys.
type Object struct {
	Keys   []string
	Values map[string]any
}

// NewObject returns an empty Object ready for Set.
func NewObject() *Object {
	return &Object{Values: map[string]any{}}
}

// Set assigns v to key, appending key to Keys the first time it is seen.
func (o *Object) Set(key string, v any) {
	if _, ok := o.Values[key]; !ok {
		o.Keys = append(o.Keys, key)
	}
	o.Values[key] = v
}

// Batch is an ordered set of rows plus the column order in which their keys
// were first observed.
type Batch struct {
	Columns []string
	Rows    []Record

	seen map[string]struct{}
}

// Add appends r to the batch. keys lists r's columns in their natural order;
// any key not yet present in Columns is appended.
func (b *Batch) Add(keys []string, r Record) {
	b.Observe(keys...)
	b.Rows = append(b.Rows, r)
}

// Observe records column names in first-seen order without adding a row.
func (b *Batch) Observe(keys ...string) {
	if b.seen == nil {
		b.seen = make(map[string]struct{}, len(b.Columns)+len(keys))
		for _, c := range b.Columns {
			b.seen[c] = struct{}{}
		}
	}
	for _, k := range keys {
		if _, ok := b.seen[k]; ok {
			continue
		}
		b.seen[k] = struct{}{}
		b.Columns = append(b.Columns, k)
	}
}

// Len reports the number of rows.
func (b *Batch) Len() int { return len(b.Rows) }

// MarshalJSON encodes o as a JSON object in key order.
func (o *Object) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range o.Keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(o.Values[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	return append(buf, '}'), nil
}
