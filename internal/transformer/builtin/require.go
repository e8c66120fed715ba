package builtin

import "daybook/pkg/records"

// Require removes any record missing a value for one of Fields.
type Require struct {
	Fields []string
}

// Apply returns a filtered slice containing only records that
// have all required fields present and non-empty.
func (r Require) Apply(in []records.Record) []records.Record {
	if len(r.Fields) == 0 {
		return in
	}
	out := in[:0]
	for _, rec := range in {
		ok := true
		for _, f := range r.Fields {
			if isEmpty(rec[f]) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out
}
