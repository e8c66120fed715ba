package schema

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"daybook/internal/apperr"
	"daybook/pkg/records"
)

// SampleSize is the number of leading rows inspected by Infer.
const SampleSize = 100

var (
	isoDateTime  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)
	numericText  = regexp.MustCompile(`^[-+]?(\d+(\.\d*)?|\.\d+)$`)
	moneyKeyword = regexp.MustCompile(`(?i)balance|price|amount|cost|total`)
)

// Infer deduces a schema from the first SampleSize rows.
//
// columns gives the first-seen column order of the batch. Columns present in
// the sample come first in that order; columns that only appear past the
// sample are appended with type String. Null and blank values are not
// evidence. Two conflicting deductions for one column degrade it to String,
// and a column without evidence is String.
func Infer(columns []string, rows []records.Record) (Schema, error) {
	if len(rows) == 0 {
		return nil, apperr.Validation("infer schema", "rows must be a non-empty array")
	}

	sample := rows
	if len(sample) > SampleSize {
		sample = sample[:SampleSize]
	}

	seen := make(map[string]bool, len(columns))
	deduced := make(map[string]LogicalType, len(columns))
	for _, r := range sample {
		for name, v := range r {
			seen[name] = true
			t, ok := DeduceType(name, v)
			if !ok {
				continue
			}
			prev, had := deduced[name]
			switch {
			case !had:
				deduced[name] = t
			case prev != t:
				deduced[name] = String
			}
		}
	}

	out := make(Schema, 0, len(columns))
	var tail Schema
	for _, name := range columns {
		t, ok := deduced[name]
		if !ok {
			t = String
		}
		if seen[name] {
			out = append(out, Column{Name: name, Type: t})
		} else {
			tail = append(tail, Column{Name: name, Type: String})
		}
	}
	return append(out, tail...), nil
}

// DeduceType returns the logical type suggested by a single value, or false
// when the value carries no evidence (nil or blank).
func DeduceType(column string, v any) (LogicalType, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case bool:
		return Boolean, true
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return BigInt, true
		}
		f, err := x.Float64()
		if err != nil {
			return String, true
		}
		return numberType(f), true
	case int, int32, int64, uint32:
		return BigInt, true
	case float32:
		return numberType(float64(x)), true
	case float64:
		return numberType(x), true
	case time.Time:
		return Timestamp, true
	case string:
		return deduceText(column, x)
	}
	return String, true
}

// numberType is BigInt for integral values inside the int64 range.
func numberType(f float64) LogicalType {
	if fitsInt64(f) && f == math.Trunc(f) {
		return BigInt
	}
	return Double
}

func deduceText(column, s string) (LogicalType, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if isoDateTime.MatchString(s) {
		// Only text the timestamp cast can read counts as a timestamp.
		if _, ok := ParseTimestamp(s); ok {
			return Timestamp, true
		}
		return String, true
	}
	if numericText.MatchString(s) {
		if !strings.Contains(s, ".") {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				return Double, true
			}
			return BigInt, true
		}
		if moneyKeyword.MatchString(column) {
			return Decimal, true
		}
		return Double, true
	}
	return String, true
}
