package builtin

import (
	"strings"
	"time"

	"daybook/internal/schema"
	"daybook/pkg/records"
)

// Coerce converts string fields to native values ahead of schema inference,
// so a source can pin a column's type instead of relying on deduction.
//
// Types maps field -> logical type name (bigint, double, boolean, timestamp,
// string). Timestamp fields are parsed with Layout first when one is set,
// then with the layouts schema.ParseTimestamp accepts. A value that does not
// parse is left as it was.
type Coerce struct {
	Types  map[string]string
	Layout string
}

// Apply coerces in place and returns the input slice.
func (c Coerce) Apply(in []records.Record) []records.Record {
	if len(c.Types) == 0 {
		return in
	}
	for _, r := range in {
		for field, typ := range c.Types {
			s, ok := r[field].(string)
			if !ok || strings.TrimSpace(s) == "" {
				continue
			}
			if v := c.coerce(schema.LogicalType(strings.ToLower(typ)), s); v != nil {
				r[field] = v
			}
		}
	}
	return in
}

func (c Coerce) coerce(t schema.LogicalType, s string) any {
	if t == schema.Timestamp && c.Layout != "" {
		if ts, err := time.Parse(c.Layout, strings.TrimSpace(s)); err == nil {
			return ts.UTC()
		}
	}
	if !t.Known() || t == schema.String {
		return nil
	}
	return t.Cast(s)
}
