package builtin

import (
	"fmt"
	"strings"

	"daybook/pkg/records"
)

// DeDup collapses rows sharing the same values for Keys.
//
// Policy "keep-first" keeps the earliest row of each key; anything else
// keeps the latest. Survivors stay in the position of the row that won.
// Rows missing a key field pass through untouched.
type DeDup struct {
	Keys   []string
	Policy string
}

// Apply returns a new slice with duplicates removed.
func (d DeDup) Apply(in []records.Record) []records.Record {
	if len(in) == 0 || len(d.Keys) == 0 {
		return in
	}
	keepFirst := strings.EqualFold(strings.TrimSpace(d.Policy), "keep-first")

	winner := make(map[string]int, len(in))
	keys := make([]string, len(in))
	keyed := make([]bool, len(in))
	for i, r := range in {
		k, ok := d.keyOf(r)
		if !ok {
			continue
		}
		keys[i], keyed[i] = k, true
		if _, seen := winner[k]; seen && keepFirst {
			continue
		}
		winner[k] = i
	}

	out := make([]records.Record, 0, len(winner))
	for i, r := range in {
		if !keyed[i] || winner[keys[i]] == i {
			out = append(out, r)
		}
	}
	return out
}

func (d DeDup) keyOf(r records.Record) (string, bool) {
	var b strings.Builder
	for i, k := range d.Keys {
		v, ok := r[k]
		if !ok {
			return "", false
		}
		if i > 0 {
			b.WriteByte('\x1f')
		}
		switch t := v.(type) {
		case nil:
			b.WriteByte('\x00')
		case string:
			b.WriteString(t)
		default:
			b.WriteString(fmt.Sprint(t))
		}
	}
	return b.String(), true
}
