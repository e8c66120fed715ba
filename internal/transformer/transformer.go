// Package transformer defines row-level transforms applied to a batch
// between normalization and schema inference.
package transformer

import "daybook/pkg/records"

// Transformer rewrites a slice of rows. Implementations may reuse the
// input slice.
type Transformer interface {
	Apply([]records.Record) []records.Record
}

// Chain is an ordered list of transformers.
type Chain []Transformer

// Apply runs every transformer in order.
func (c Chain) Apply(in []records.Record) []records.Record {
	out := in
	for _, t := range c {
		out = t.Apply(out)
	}
	return out
}
