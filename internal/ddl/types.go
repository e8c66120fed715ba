package ddl

// ColumnDef describes a single column of an external table.
//
// Fields:
//   - Name: physical column name (unquoted; quoting happens at render time)
//   - SQLType: Hive/Athena type (e.g., bigint, double, string, timestamp)
type ColumnDef struct {
	Name    string
	SQLType string
}

// TableDef describes an external table over a folder of data files.
type TableDef struct {
	// FQN is the table name, optionally qualified by database ("db.t").
	FQN string
	// Columns lists the table columns in order.
	Columns []ColumnDef
	// StoredAs is the file format clause, e.g. PARQUET.
	StoredAs string
	// Location is the folder URI, e.g. s3://bucket/prefix/.
	Location string
}
