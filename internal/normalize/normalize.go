// Package normalize turns the raw payload of an upload or a poll into an
// ordered batch of flat rows.
//
// Accepted inputs are text (JSON or CSV, optionally behind a UTF-8/UTF-16
// byte-order mark), a 2D array whose first row holds the headers, an array of
// objects and a single object. Every produced row carries two reserved
// columns: "timestamp", one UTC instant shared by the whole batch, and
// "rowId", a fresh UUID. They overwrite any data column of the same name.
package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"daybook/internal/apperr"
	pcsv "daybook/internal/parser/csv"
	pjson "daybook/internal/parser/json"
	"daybook/internal/schema"
	"daybook/pkg/records"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Reserved column names injected into every row.
const (
	TimestampColumn = "timestamp"
	RowIDColumn     = "rowId"
)

const op = "normalize"

// Normalizer converts raw input into rows. The zero value is not usable; use
// New.
type Normalizer struct {
	csv   *pcsv.Parser
	now   func() time.Time
	newID func() string
}

// Option customizes a Normalizer.
type Option func(*Normalizer)

// WithClock replaces the clock used for the batch timestamp.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithIDGenerator replaces the rowId generator.
func WithIDGenerator(gen func() string) Option {
	return func(n *Normalizer) { n.newID = gen }
}

// WithCSVOptions configures the CSV branch.
func WithCSVOptions(opt pcsv.Options) Option {
	return func(n *Normalizer) { n.csv = pcsv.NewParser(opt) }
}

// New returns a Normalizer with the real clock and UUID generator.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		csv:   pcsv.NewParser(pcsv.Options{}),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize converts raw into a batch of rows.
//
// It fails with a *apperr.ValidationError when raw is an empty array, when a
// 2D array row does not match the header width, when an array element is not
// an object, or when raw has an unsupported type. Blank text is parsed as CSV
// and yields zero rows; so does the JSON text "[]".
func (n *Normalizer) Normalize(raw any) (*records.Batch, error) {
	b, err := n.rows(raw)
	if err != nil {
		return nil, err
	}
	n.stamp(b)
	return b, nil
}

func (n *Normalizer) rows(raw any) (*records.Batch, error) {
	switch v := raw.(type) {
	case string:
		return n.fromText(v)
	case []byte:
		text, err := decodeText(v)
		if err != nil {
			return nil, apperr.Validation(op, "decode text: %v", err)
		}
		return n.fromText(text)
	case []any:
		return fromArray(v)
	case [][]string:
		grid := make([]any, len(v))
		for i, row := range v {
			cells := make([]any, len(row))
			for j, c := range row {
				cells[j] = c
			}
			grid[i] = cells
		}
		return fromArray(grid)
	case [][]any:
		grid := make([]any, len(v))
		for i, row := range v {
			grid[i] = row
		}
		return fromArray(grid)
	case []map[string]any:
		if len(v) == 0 {
			return nil, apperr.Validation(op, "input array is empty")
		}
		b := &records.Batch{}
		for _, m := range v {
			addMap(b, m)
		}
		return b, nil
	case []records.Record:
		if len(v) == 0 {
			return nil, apperr.Validation(op, "input array is empty")
		}
		b := &records.Batch{}
		for _, m := range v {
			addMap(b, m)
		}
		return b, nil
	case []*records.Object:
		items := make([]any, len(v))
		for i, o := range v {
			items[i] = o
		}
		return fromArray(items)
	case *records.Batch:
		if v == nil {
			break
		}
		out := &records.Batch{}
		out.Observe(v.Columns...)
		for _, r := range v.Rows {
			out.Rows = append(out.Rows, r.Clone())
		}
		return out, nil
	case *records.Object:
		return fromArray([]any{v})
	case map[string]any:
		b := &records.Batch{}
		addMap(b, v)
		return b, nil
	case records.Record:
		b := &records.Batch{}
		addMap(b, v)
		return b, nil
	}
	return nil, apperr.Validation(op, "unsupported input type %T", raw)
}

func (n *Normalizer) fromText(text string) (*records.Batch, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		vals, err := pjson.DecodeAll(strings.NewReader(text))
		if err != nil {
			return nil, apperr.Validation(op, "invalid JSON: %v", err)
		}
		if len(vals) == 1 {
			if arr, ok := vals[0].([]any); ok {
				if len(arr) == 0 {
					return &records.Batch{}, nil
				}
				return fromArray(arr)
			}
		}
		return fromArray(vals)
	}

	b, err := n.csv.Parse(strings.NewReader(text))
	if err != nil {
		var we *pcsv.WidthError
		if errors.As(err, &we) {
			return nil, apperr.Validation(op, "%v", we)
		}
		return nil, apperr.Validation(op, "invalid CSV: %v", err)
	}
	return b, nil
}

func fromArray(items []any) (*records.Batch, error) {
	if len(items) == 0 {
		return nil, apperr.Validation(op, "input array is empty")
	}
	if header, ok := items[0].([]any); ok {
		return fromGrid(header, items[1:])
	}

	b := &records.Batch{}
	for i, it := range items {
		switch o := it.(type) {
		case *records.Object:
			addObject(b, o)
		case map[string]any:
			addMap(b, o)
		case records.Record:
			addMap(b, o)
		default:
			return nil, apperr.Validation(op, "row %d is not an object", i)
		}
	}
	return b, nil
}

func fromGrid(header []any, body []any) (*records.Batch, error) {
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = cellText(h)
	}

	b := &records.Batch{}
	b.Observe(cols...)
	for i, raw := range body {
		row, ok := raw.([]any)
		if !ok {
			return nil, apperr.Validation(op, "row %d is not an array", i+1)
		}
		if len(row) != len(cols) {
			return nil, apperr.Validation(op, "row %d has %d cells, header has %d", i+1, len(row), len(cols))
		}
		rec := make(records.Record, len(cols))
		for j, c := range cols {
			rec[c] = scalar(row[j])
		}
		b.Rows = append(b.Rows, rec)
	}
	return b, nil
}

func addObject(b *records.Batch, o *records.Object) {
	keys := make([]string, 0, len(o.Keys))
	rec := make(records.Record, len(o.Keys))
	flattenObject("", o, &keys, rec)
	b.Add(keys, rec)
}

func addMap(b *records.Batch, m map[string]any) {
	keys := make([]string, 0, len(m))
	rec := make(records.Record, len(m))
	flattenMap("", m, &keys, rec)
	b.Add(keys, rec)
}

// flattenObject writes o's leaves into out using dotted keys.
func flattenObject(prefix string, o *records.Object, keys *[]string, out records.Record) {
	for _, k := range o.Keys {
		flattenValue(joinKey(prefix, k), o.Values[k], keys, out)
	}
}

// flattenMap is flattenObject for unordered maps; keys are visited sorted.
func flattenMap(prefix string, m map[string]any, keys *[]string, out records.Record) {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		flattenValue(joinKey(prefix, k), m[k], keys, out)
	}
}

func flattenValue(key string, v any, keys *[]string, out records.Record) {
	switch t := v.(type) {
	case *records.Object:
		flattenObject(key, t, keys, out)
	case map[string]any:
		flattenMap(key, t, keys, out)
	default:
		if _, dup := out[key]; !dup {
			*keys = append(*keys, key)
		}
		out[key] = scalar(v)
	}
}

func joinKey(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + "." + k
}

// scalar keeps scalar values as-is and renders composite values as JSON text.
func scalar(v any) any {
	switch v.(type) {
	case nil, string, bool, json.Number, int, int32, int64, float32, float64, time.Time:
		return v
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func cellText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func (n *Normalizer) stamp(b *records.Batch) {
	if b.Len() == 0 {
		return
	}
	ts := n.now().UTC().Format(schema.TimestampLayout)
	for _, r := range b.Rows {
		r[TimestampColumn] = ts
		r[RowIDColumn] = n.newID()
	}
	b.Observe(TimestampColumn, RowIDColumn)
}

// decodeText converts raw bytes to UTF-8, honoring a UTF-8 or UTF-16 BOM.
func decodeText(b []byte) (string, error) {
	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
