package builtin

import (
	"fmt"
	"strings"

	"daybook/internal/config"
	"daybook/internal/transformer"
)

// Build constructs the transformer chain a data source configures under
// its "transforms" key. An empty list yields an empty chain.
func Build(ts []config.Transform) (transformer.Chain, error) {
	c := transformer.Chain{}
	for _, t := range ts {
		switch strings.ToLower(strings.TrimSpace(t.Kind)) {
		case "trim":
			c = append(c, TrimSpace{Fields: t.Options.StringSlice("fields")})
		case "dedup", "dedupe":
			c = append(c, DeDup{
				Keys:   t.Options.StringSlice("keys"),
				Policy: t.Options.String("policy", "keep-last"),
			})
		case "coerce":
			c = append(c, Coerce{
				Types:  t.Options.StringMap("types"),
				Layout: t.Options.String("layout", ""),
			})
		case "require":
			c = append(c, Require{Fields: t.Options.StringSlice("fields")})
		default:
			return nil, fmt.Errorf("unsupported transformer.kind=%s", t.Kind)
		}
	}
	return c, nil
}
