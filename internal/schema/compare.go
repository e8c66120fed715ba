package schema

import (
	"strings"

	"github.com/zeebo/xxh3"
)

// Equal reports whether a and b hold the same (name, type) pairs, ignoring
// column order.
func Equal(a, b Schema) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := a.Sorted(), b.Sorted()
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// Merge returns the union of prior and next. Prior columns keep their
// position; new columns are appended in next's order. A column whose type
// differs between the two becomes String.
func Merge(prior, next Schema) Schema {
	out := make(Schema, 0, len(prior)+len(next))
	idx := make(map[string]int, len(prior)+len(next))
	for _, c := range prior {
		idx[c.Name] = len(out)
		out = append(out, c)
	}
	for _, c := range next {
		i, ok := idx[c.Name]
		if !ok {
			idx[c.Name] = len(out)
			out = append(out, c)
			continue
		}
		if out[i].Type != c.Type {
			out[i].Type = String
		}
	}
	return out
}

// Fingerprint hashes the order-insensitive form of s.
func Fingerprint(s Schema) uint64 {
	var sb strings.Builder
	for _, c := range s.Sorted() {
		sb.WriteString(c.Name)
		sb.WriteByte(0)
		sb.WriteString(string(c.Type))
		sb.WriteByte('\n')
	}
	return xxh3.HashString(sb.String())
}
