// Package sqlstore implements registry.Registry over database/sql and holds
// the per-dialect SQL shared by every relational backend.
package sqlstore

import (
	"fmt"
	"regexp"
	"strings"
)

// columns is the fixed column order of the registry table.
var columns = []string{
	"workspace_id",
	"data_source_id",
	"name",
	"source_type",
	"method",
	"status",
	"error_message",
	"config",
	"secrets",
	"created_at",
	"last_update",
}

// Dialect captures the SQL differences between engines.
type Dialect struct {
	Name string
	// Bind renders the n-th (1-based) placeholder.
	Bind func(n int) string
	// KeyType and TextType are the column types for ids and free text.
	KeyType  string
	TextType string
	// CreateIfMissing wraps a CREATE TABLE body for engines without
	// CREATE TABLE IF NOT EXISTS.
	CreateIfMissing func(table, create string) string
	upsert          func(d Dialect, table string) string
}

func question(int) string { return "?" }

// SQLite targets modernc.org/sqlite.
var SQLite = Dialect{
	Name:     "sqlite",
	Bind:     question,
	KeyType:  "TEXT",
	TextType: "TEXT",
	upsert:   onConflictUpsert,
}

// MySQL targets github.com/go-sql-driver/mysql.
var MySQL = Dialect{
	Name:     "mysql",
	Bind:     question,
	KeyType:  "VARCHAR(128)",
	TextType: "TEXT",
	upsert:   duplicateKeyUpsert,
}

// Postgres uses numbered placeholders; it is executed through pgx.
var Postgres = Dialect{
	Name:     "postgres",
	Bind:     func(n int) string { return fmt.Sprintf("$%d", n) },
	KeyType:  "TEXT",
	TextType: "TEXT",
	upsert:   onConflictUpsert,
}

// SQLServer targets github.com/microsoft/go-mssqldb.
var SQLServer = Dialect{
	Name:     "sqlserver",
	Bind:     func(n int) string { return fmt.Sprintf("@p%d", n) },
	KeyType:  "NVARCHAR(128)",
	TextType: "NVARCHAR(MAX)",
	CreateIfMissing: func(table, create string) string {
		return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL %s", table, create)
	},
	upsert: mergeUpsert,
}

var tableRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Statements is the SQL for one dialect and table.
type Statements struct {
	Create          string
	Select          string
	SelectWorkspace string
	SelectAll       string
	Upsert          string
	UpdateStatus    string
}

// Build renders the statements for table.
func (d Dialect) Build(table string) (Statements, error) {
	if !tableRE.MatchString(table) {
		return Statements{}, fmt.Errorf("%s: invalid table name %q", d.Name, table)
	}
	cols := strings.Join(columns, ", ")

	create := fmt.Sprintf(
		"CREATE TABLE %s (\n  workspace_id %[2]s NOT NULL,\n  data_source_id %[2]s NOT NULL,\n"+
			"  name %[3]s,\n  source_type %[2]s,\n  method %[2]s,\n  status %[2]s,\n"+
			"  error_message %[3]s,\n  config %[3]s,\n  secrets %[3]s,\n"+
			"  created_at %[2]s,\n  last_update %[2]s,\n"+
			"  PRIMARY KEY (workspace_id, data_source_id)\n)",
		table, d.KeyType, d.TextType,
	)
	if d.CreateIfMissing != nil {
		create = d.CreateIfMissing(table, create)
	} else {
		create = strings.Replace(create, "CREATE TABLE ", "CREATE TABLE IF NOT EXISTS ", 1)
	}

	return Statements{
		Create: create,
		Select: fmt.Sprintf("SELECT %s FROM %s WHERE workspace_id = %s AND data_source_id = %s",
			cols, table, d.Bind(1), d.Bind(2)),
		SelectWorkspace: fmt.Sprintf("SELECT %s FROM %s WHERE workspace_id = %s ORDER BY data_source_id",
			cols, table, d.Bind(1)),
		SelectAll: fmt.Sprintf("SELECT %s FROM %s ORDER BY workspace_id, data_source_id", cols, table),
		Upsert:    d.upsert(d, table),
		UpdateStatus: fmt.Sprintf(
			"UPDATE %s SET status = %s, error_message = %s, last_update = %s WHERE workspace_id = %s AND data_source_id = %s",
			table, d.Bind(1), d.Bind(2), d.Bind(3), d.Bind(4), d.Bind(5)),
	}, nil
}

func binds(d Dialect) string {
	ps := make([]string, len(columns))
	for i := range columns {
		ps[i] = d.Bind(i + 1)
	}
	return strings.Join(ps, ", ")
}

func onConflictUpsert(d Dialect, table string) string {
	sets := make([]string, 0, len(columns)-2)
	for _, c := range columns[2:] {
		if c == "created_at" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (workspace_id, data_source_id) DO UPDATE SET %s",
		table, strings.Join(columns, ", "), binds(d), strings.Join(sets, ", "))
}

func duplicateKeyUpsert(d Dialect, table string) string {
	sets := make([]string, 0, len(columns)-2)
	for _, c := range columns[2:] {
		if c == "created_at" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		table, strings.Join(columns, ", "), binds(d), strings.Join(sets, ", "))
}

func mergeUpsert(d Dialect, table string) string {
	src := make([]string, len(columns))
	for i, c := range columns {
		src[i] = fmt.Sprintf("%s AS %s", d.Bind(i+1), c)
	}
	sets := make([]string, 0, len(columns)-2)
	vals := make([]string, len(columns))
	for i, c := range columns {
		vals[i] = "src." + c
		if i < 2 || c == "created_at" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = src.%s", c, c))
	}
	return fmt.Sprintf(
		"MERGE INTO %s WITH (HOLDLOCK) AS tgt USING (SELECT %s) AS src "+
			"ON tgt.workspace_id = src.workspace_id AND tgt.data_source_id = src.data_source_id "+
			"WHEN MATCHED THEN UPDATE SET %s "+
			"WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);",
		table, strings.Join(src, ", "), strings.Join(sets, ", "),
		strings.Join(columns, ", "), strings.Join(vals, ", "))
}
