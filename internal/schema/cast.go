package schema

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the textual form used for timestamps everywhere in the
// pipeline: UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05.999999999-07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// fitsInt64 reports whether the integer part of f is representable as an
// int64. NaN and infinities are not.
func fitsInt64(f float64) bool {
	return f >= math.MinInt64 && f < -math.MinInt64
}

func castBigInt(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int64:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case uint32:
		return int64(x)
	case float64:
		if !fitsInt64(x) {
			return nil
		}
		return int64(x)
	case float32:
		return castBigInt(float64(x))
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case json.Number:
		return castBigInt(string(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return castBigInt(f)
		}
		return nil
	}
	return nil
}

func castDouble(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case float32:
		return castDouble(float64(x))
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case bool:
		if x {
			return float64(1)
		}
		return float64(0)
	case json.Number:
		return castDouble(string(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return castDouble(f)
		}
		return nil
	}
	return nil
}

func castBoolean(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		return x
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		return strings.EqualFold(s, "true") || s == "1"
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil
		}
		return f != 0
	case int64:
		return x != 0
	case int:
		return x != 0
	case float64:
		return x != 0
	}
	return nil
}

func castTimestamp(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return x.UTC().Truncate(time.Millisecond)
	case int64:
		return time.UnixMilli(x).UTC()
	case float64:
		return time.UnixMilli(int64(x)).UTC()
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return nil
		}
		return time.UnixMilli(n).UTC()
	case string:
		t, ok := ParseTimestamp(x)
		if !ok {
			return nil
		}
		return t
	}
	return nil
}

// ParseTimestamp parses s with the layouts the pipeline accepts. A bare
// integer is read as epoch milliseconds.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Millisecond), true
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Time{}, false
}

func castString(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case json.Number:
		return x.String()
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(TimestampLayout)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(b)
}
