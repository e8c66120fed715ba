// Package csv turns delimited text with a header row into an ordered batch of
// records. Every cell is kept as a string; typing happens later during schema
// inference.
package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"daybook/pkg/records"
)

// Options configures the CSV parser behavior. All fields are optional.
type Options struct {
	// Comma specifies the field delimiter. When zero, ',' is used.
	Comma rune

	// TrimSpace trims leading/trailing spaces from each field value.
	TrimSpace bool

	// HeaderMap maps source header names to canonical keys.
	HeaderMap map[string]string

	// LowercaseHeaders lowercases header names and replaces spaces with
	// underscores when no HeaderMap entry applies.
	LowercaseHeaders bool
}

// Parser parses CSV input according to Options. It is safe to reuse across
// inputs, but Parser itself is not concurrency-safe.
type Parser struct{ opt Options }

// NewParser constructs a Parser with the provided Options.
func NewParser(opt Options) *Parser { return &Parser{opt: opt} }

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "\uFEFF"

// Parse reads the header row and one record per non-empty data line.
//
// Empty input yields an empty batch without error. A data row whose width
// differs from the header is reported as a *WidthError.
func (p *Parser) Parse(r io.Reader) (*records.Batch, error) {
	cr := csv.NewReader(r)
	if p.opt.Comma != 0 {
		cr.Comma = p.opt.Comma
	}
	cr.FieldsPerRecord = -1

	batch := &records.Batch{}

	h, err := cr.Read()
	if err == io.EOF {
		return batch, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	headers := normalizeHeaders(StripHeaderBOM(h), p.opt)
	batch.Observe(headers...)

	for line := 1; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", line, err)
		}
		if len(row) != len(headers) {
			return nil, &WidthError{Row: line, Got: len(row), Want: len(headers)}
		}

		rec := make(records.Record, len(row))
		for i, val := range row {
			if p.opt.TrimSpace {
				val = strings.TrimSpace(val)
			}
			rec[headers[i]] = val
		}
		batch.Rows = append(batch.Rows, rec)
	}

	return batch, nil
}

// WidthError reports a data row whose field count does not match the header.
type WidthError struct {
	Row  int
	Got  int
	Want int
}

func (e *WidthError) Error() string {
	return fmt.Sprintf("row %d has %d fields, header has %d", e.Row, e.Got, e.Want)
}

// normalizeHeaders produces header keys using HeaderMap (when provided) and
// optional lowercasing.
func normalizeHeaders(h []string, opt Options) []string {
	res := make([]string, len(h))
	for i, col := range h {
		c := strings.TrimSpace(col)
		if m, ok := opt.HeaderMap[c]; ok {
			res[i] = m
			continue
		}
		if opt.LowercaseHeaders {
			c = strings.ReplaceAll(strings.ToLower(c), " ", "_")
		}
		res[i] = c
	}
	return res
}
