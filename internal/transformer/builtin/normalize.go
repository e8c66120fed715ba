package builtin

import (
	"strings"

	"daybook/pkg/records"
)

// TrimSpace trims leading and trailing whitespace from string values. When
// Fields is empty every string field is trimmed.
type TrimSpace struct {
	Fields []string
}

// Apply trims in place and returns the input slice.
func (t TrimSpace) Apply(in []records.Record) []records.Record {
	for _, r := range in {
		if len(t.Fields) == 0 {
			for k, v := range r {
				if s, ok := v.(string); ok {
					r[k] = strings.TrimSpace(s)
				}
			}
			continue
		}
		for _, k := range t.Fields {
			if s, ok := r[k].(string); ok {
				r[k] = strings.TrimSpace(s)
			}
		}
	}
	return in
}
