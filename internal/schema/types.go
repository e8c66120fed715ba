// Package schema defines the logical column types used across the pipeline
// and the single table that maps each type to its Parquet/Arrow storage type
// and its cast function.
//
// The codec and the inferencer both read from this table, so a type can never
// be deduced that the codec does not know how to store.
package schema

import (
	"sort"
	"strings"

	"github.com/apache/arrow/go/v10/arrow"
)

// LogicalType is the closed set of column types a data source can have.
type LogicalType string

const (
	BigInt    LogicalType = "bigint"
	Double    LogicalType = "double"
	Decimal   LogicalType = "decimal(18,2)"
	Boolean   LogicalType = "boolean"
	Timestamp LogicalType = "timestamp"
	String    LogicalType = "string"
)

// CastFunc coerces a raw value into the Go representation of a logical type.
// It returns nil when v is nil or cannot be coerced.
type CastFunc func(v any) any

// TypeInfo is one row of the type table.
type TypeInfo struct {
	// Arrow is the storage type inside Parquet objects.
	Arrow arrow.DataType
	// SQL is the catalog column type matching Arrow.
	SQL  string
	Cast CastFunc
}

// Decimal shares Double's physical form; Athena cannot read a DOUBLE Parquet
// column as decimal(18,2).
var typeTable = map[LogicalType]TypeInfo{
	BigInt:    {Arrow: arrow.PrimitiveTypes.Int64, SQL: "bigint", Cast: castBigInt},
	Double:    {Arrow: arrow.PrimitiveTypes.Float64, SQL: "double", Cast: castDouble},
	Decimal:   {Arrow: arrow.PrimitiveTypes.Float64, SQL: "double", Cast: castDouble},
	Boolean:   {Arrow: arrow.FixedWidthTypes.Boolean, SQL: "boolean", Cast: castBoolean},
	Timestamp: {Arrow: &arrow.TimestampType{Unit: arrow.Millisecond, TimeZone: "UTC"}, SQL: "timestamp", Cast: castTimestamp},
	String:    {Arrow: arrow.BinaryTypes.String, SQL: "string", Cast: castString},
}

// Info returns the table entry for t. Unknown types resolve to String.
func (t LogicalType) Info() TypeInfo {
	if info, ok := typeTable[t]; ok {
		return info
	}
	return typeTable[String]
}

// Known reports whether t is one of the declared logical types.
func (t LogicalType) Known() bool {
	_, ok := typeTable[t]
	return ok
}

// Cast applies t's cast function to v.
func (t LogicalType) Cast(v any) any {
	return t.Info().Cast(v)
}

// Column is one schema entry.
type Column struct {
	Name string      `json:"name"`
	Type LogicalType `json:"type"`
}

// Schema is an ordered list of columns with unique names.
type Schema []Column

// Names returns the column names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Name
	}
	return out
}

// Lookup returns the column named name.
func (s Schema) Lookup(name string) (Column, bool) {
	for _, c := range s {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Sorted returns a copy of s ordered by column name.
func (s Schema) Sorted() Schema {
	out := append(Schema(nil), s...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// String renders s as "name type" pairs, mostly for logs.
func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = c.Name + " " + string(c.Type)
	}
	return strings.Join(parts, ", ")
}
