// Package parquet encodes rows into Parquet objects and decodes them back.
//
// Column types come from the logical type table in the schema package, and
// the same cast functions run on both sides: values are cast before they are
// appended to the Arrow builders, and the native values read back from a file
// are cast again before they reach the caller. Decimal columns are stored as
// doubles, timestamps as UTC milliseconds.
package parquet

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"daybook/internal/apperr"
	"daybook/internal/schema"
	"daybook/pkg/records"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	pq "github.com/apache/arrow/go/v10/parquet"
	"github.com/apache/arrow/go/v10/parquet/compress"
	"github.com/apache/arrow/go/v10/parquet/file"
	"github.com/apache/arrow/go/v10/parquet/pqarrow"
)

// ContentType is the media type used when storing encoded objects.
const ContentType = "application/vnd.apache.parquet"

// defaultRowGroupSize bounds the rows written per row group.
const defaultRowGroupSize = 64 * 1024

// Codec converts between rows and Parquet bytes. The zero value is ready to
// use with the Go allocator.
type Codec struct {
	Mem          memory.Allocator
	RowGroupSize int64
}

// New returns a Codec backed by the Go allocator.
func New() *Codec {
	return &Codec{Mem: memory.NewGoAllocator(), RowGroupSize: defaultRowGroupSize}
}

func (c *Codec) mem() memory.Allocator {
	if c.Mem == nil {
		return memory.DefaultAllocator
	}
	return c.Mem
}

// ArrowSchema maps s onto an Arrow schema with nullable fields named by the
// columns' physical names.
func ArrowSchema(s schema.Schema) *arrow.Schema {
	names := s.PhysicalNames()
	fields := make([]arrow.Field, len(s))
	for i, col := range s {
		fields[i] = arrow.Field{Name: names[i], Type: col.Type.Info().Arrow, Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// Encode writes rows as a single Parquet object laid out by s. Columns of s
// missing from a row are written as nulls; row keys not in s are dropped.
func (c *Codec) Encode(rows []records.Record, s schema.Schema) ([]byte, error) {
	if len(rows) == 0 {
		return nil, apperr.Validation("encode", "rows must be a non-empty array")
	}
	if len(s) == 0 {
		return nil, apperr.Validation("encode", "schema has no columns")
	}

	mem := c.mem()
	sc := ArrowSchema(s)

	cols := make([]arrow.Array, len(s))
	for i, col := range s {
		arr, err := buildColumn(mem, col, rows)
		if err != nil {
			for _, a := range cols[:i] {
				a.Release()
			}
			return nil, err
		}
		cols[i] = arr
	}
	defer func() {
		for _, a := range cols {
			a.Release()
		}
	}()

	rec := array.NewRecord(sc, cols, int64(len(rows)))
	defer rec.Release()
	table := array.NewTableFromRecords(sc, []arrow.Record{rec})
	defer table.Release()

	chunk := c.RowGroupSize
	if chunk <= 0 {
		chunk = defaultRowGroupSize
	}

	var buf bytes.Buffer
	props := pq.NewWriterProperties(
		pq.WithCompression(compress.Codecs.Snappy),
		pq.WithAllocator(mem),
	)
	if err := pqarrow.WriteTable(table, &buf, chunk, props, pqarrow.DefaultWriterProps()); err != nil {
		return nil, fmt.Errorf("parquet: write table: %w", err)
	}
	return buf.Bytes(), nil
}

func buildColumn(mem memory.Allocator, col schema.Column, rows []records.Record) (arrow.Array, error) {
	bld := array.NewBuilder(mem, col.Type.Info().Arrow)
	defer bld.Release()
	bld.Reserve(len(rows))

	for _, r := range rows {
		v := col.Type.Cast(r[col.Name])
		if v == nil {
			bld.AppendNull()
			continue
		}
		switch b := bld.(type) {
		case *array.Int64Builder:
			b.Append(v.(int64))
		case *array.Float64Builder:
			b.Append(v.(float64))
		case *array.BooleanBuilder:
			b.Append(v.(bool))
		case *array.TimestampBuilder:
			b.Append(arrow.Timestamp(v.(time.Time).UnixMilli()))
		case *array.StringBuilder:
			b.Append(v.(string))
		default:
			return nil, fmt.Errorf("parquet: column %s: unsupported builder %T", col.Name, bld)
		}
	}
	return bld.NewArray(), nil
}

// Decode reads a Parquet object and returns its rows shaped by s, keyed by
// the logical column names. A column of s that the file lacks decodes to
// nil; file columns not in s are dropped.
func (c *Codec) Decode(ctx context.Context, data []byte, s schema.Schema) ([]records.Record, error) {
	pf, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parquet: open: %w", err)
	}
	defer pf.Close()

	mem := c.mem()
	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, fmt.Errorf("parquet: reader: %w", err)
	}
	table, err := reader.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("parquet: read table: %w", err)
	}
	defer table.Release()

	n := int(table.NumRows())
	rows := make([]records.Record, n)
	for i := range rows {
		rows[i] = make(records.Record, len(s))
	}

	names := s.PhysicalNames()
	for i, col := range s {
		idx := table.Schema().FieldIndices(names[i])
		if len(idx) == 0 {
			for _, r := range rows {
				r[col.Name] = nil
			}
			continue
		}
		offset := 0
		for _, chunk := range table.Column(idx[0]).Data().Chunks() {
			for j := 0; j < chunk.Len(); j++ {
				rows[offset+j][col.Name] = col.Type.Cast(nativeValue(chunk, j))
			}
			offset += chunk.Len()
		}
	}
	return rows, nil
}

// nativeValue returns the Go value stored at position i of arr.
func nativeValue(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.Int64:
		return a.Value(i)
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Boolean:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.Binary:
		return string(a.Value(i))
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return timestampToTime(int64(a.Value(i)), unit)
	case *array.Date32:
		return time.Unix(int64(a.Value(i))*86400, 0).UTC()
	}
	return nil
}

func timestampToTime(v int64, unit arrow.TimeUnit) time.Time {
	switch unit {
	case arrow.Second:
		return time.Unix(v, 0).UTC()
	case arrow.Microsecond:
		return time.UnixMicro(v).UTC()
	case arrow.Nanosecond:
		return time.Unix(0, v).UTC()
	default:
		return time.UnixMilli(v).UTC()
	}
}
