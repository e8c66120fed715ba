package schema

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// PhysicalName folds a column name into the identifier used inside Parquet
// files and catalog tables: diacritics are stripped, the result is
// lowercased, and every character outside [a-z0-9_] becomes '_'.
func PhysicalName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)

	var sb strings.Builder
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	if sb.Len() == 0 {
		return "_"
	}
	return sb.String()
}

// PhysicalNames returns the physical identifier of every column of s, in
// order. Collisions get a numeric suffix, so earlier columns keep their
// name when columns are appended.
func (s Schema) PhysicalNames() []string {
	out := make([]string, len(s))
	used := make(map[string]bool, len(s))
	for i, c := range s {
		base := PhysicalName(c.Name)
		name := base
		for n := 2; used[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		used[name] = true
		out[i] = name
	}
	return out
}
