// Package builtin contains the stock transforms and the format validator
// used by ingestion.
package builtin

import (
	"fmt"
	"sort"

	"daybook/pkg/records"
)

// Result is the outcome of a format check.
type Result struct {
	Valid bool
	Error string
}

// FormatValidator checks that a batch is a non-empty list of rows that all
// share the first row's keys. Unless AllowEmpty is set, a nil or empty
// string value anywhere fails the batch.
type FormatValidator struct {
	AllowEmpty bool
}

// Validate checks rows and reports the first problem found. Keys are
// visited in sorted order.
func (v FormatValidator) Validate(rows []records.Record) Result {
	return v.validate(rows, nil)
}

// ValidateBatch is Validate with keys visited in the batch's column order.
func (v FormatValidator) ValidateBatch(b *records.Batch) Result {
	if b == nil {
		return v.validate(nil, nil)
	}
	return v.validate(b.Rows, b.Columns)
}

func (v FormatValidator) validate(rows []records.Record, order []string) Result {
	if len(rows) == 0 {
		return Result{Error: "Data must be a non-empty array of objects"}
	}
	if rows[0] == nil {
		return Result{Error: "Row 0 is not an object"}
	}

	header := rows[0]
	keys := orderedKeys(header, order)
	for i, row := range rows {
		if row == nil {
			return Result{Error: fmt.Sprintf("Row %d is not an object", i)}
		}
		if len(row) != len(header) {
			return Result{Error: fmt.Sprintf("Row %d has inconsistent headers", i)}
		}
		for k := range row {
			if _, ok := header[k]; !ok {
				return Result{Error: fmt.Sprintf("Row %d has inconsistent headers", i)}
			}
		}
		if v.AllowEmpty {
			continue
		}
		for _, k := range keys {
			if isEmpty(row[k]) {
				return Result{Error: fmt.Sprintf("Empty field for %s in row %d", k, i)}
			}
		}
	}
	return Result{Valid: true}
}

// orderedKeys lists the keys of header, following order where it names
// them and appending the rest sorted.
func orderedKeys(header records.Record, order []string) []string {
	keys := make([]string, 0, len(header))
	seen := make(map[string]struct{}, len(header))
	for _, k := range order {
		if _, ok := header[k]; !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	rest := make([]string, 0, len(header)-len(keys))
	for k := range header {
		if _, ok := seen[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
