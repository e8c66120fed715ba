// Package ddl renders the catalog statements that bind a data source's
// storage folder to a queryable external table.
//
// The renderer targets the Hive DDL dialect used by Athena:
//
//   - Table and column identifiers are quoted with backticks.
//   - Each dotted part of the table FQN is quoted separately.
//   - The location is emitted as a single-quoted string literal.
package ddl

import (
	"fmt"
	"strings"
)

// BuildCreateExternalTableSQL renders a CREATE EXTERNAL TABLE statement.
//
// Rules:
//
//   - t.FQN, t.Location and at least one column are required.
//
//   - StoredAs defaults to PARQUET.
//
//   - The resulting statement has the form:
//
//     CREATE EXTERNAL TABLE `db`.`t` (
//     `col1` bigint,
//     `col2` string
//     )
//     STORED AS PARQUET
//     LOCATION 's3://bucket/prefix/'
func BuildCreateExternalTableSQL(t TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}
	loc := strings.TrimSpace(t.Location)
	if loc == "" {
		return "", fmt.Errorf("ddl: table %s has no location", fqn)
	}
	format := strings.TrimSpace(t.StoredAs)
	if format == "" {
		format = "PARQUET"
	}

	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("ddl: column %s missing SQLType", name)
		}
		cols = append(cols, QuoteIdent(name)+" "+typ)
	}

	stmt := fmt.Sprintf(
		"CREATE EXTERNAL TABLE %s (\n  %s\n)\nSTORED AS %s\nLOCATION %s",
		QuoteFQN(fqn),
		strings.Join(cols, ",\n  "),
		format,
		quoteLiteral(loc),
	)
	return stmt, nil
}

// BuildDropTableSQL renders an idempotent DROP TABLE statement.
func BuildDropTableSQL(fqn string) (string, error) {
	fqn = strings.TrimSpace(fqn)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	return "DROP TABLE IF EXISTS " + QuoteFQN(fqn), nil
}

// QuoteIdent quotes a single identifier with backticks.
func QuoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// QuoteFQN quotes every dotted part of fqn.
func QuoteFQN(fqn string) string {
	parts := strings.Split(fqn, ".")
	for i, p := range parts {
		parts[i] = QuoteIdent(p)
	}
	return strings.Join(parts, ".")
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
