package ddl

import (
	"strings"
	"testing"
)

// TestBuildCreateExternalTableSQL verifies that BuildCreateExternalTableSQL
// generates the expected statements and surfaces errors for invalid inputs.
func TestBuildCreateExternalTableSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		def         TableDef
		wantSQL     string
		errContains string
	}{
		{
			name:        "empty FQN returns error",
			def:         TableDef{Columns: []ColumnDef{{Name: "id", SQLType: "bigint"}}, Location: "s3://b/p/"},
			errContains: "table FQN must not be empty",
		},
		{
			name:        "no columns returns error",
			def:         TableDef{FQN: "t", Location: "s3://b/p/"},
			errContains: "at least one column is required",
		},
		{
			name:        "missing location returns error",
			def:         TableDef{FQN: "t", Columns: []ColumnDef{{Name: "id", SQLType: "bigint"}}},
			errContains: "has no location",
		},
		{
			name:        "column with empty type returns error",
			def:         TableDef{FQN: "t", Columns: []ColumnDef{{Name: "id"}}, Location: "s3://b/p/"},
			errContains: "missing SQLType",
		},
		{
			name: "qualified table with defaults",
			def: TableDef{
				FQN: "daybook.ds_abc",
				Columns: []ColumnDef{
					{Name: "name", SQLType: "string"},
					{Name: "amount", SQLType: "double"},
				},
				Location: "s3://bucket/workspaces/w/day-book/dataSources/abc/data/",
			},
			wantSQL: "CREATE EXTERNAL TABLE `daybook`.`ds_abc` (\n" +
				"  `name` string,\n" +
				"  `amount` double\n" +
				")\n" +
				"STORED AS PARQUET\n" +
				"LOCATION 's3://bucket/workspaces/w/day-book/dataSources/abc/data/'",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := BuildCreateExternalTableSQL(tc.def)
			if tc.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("err = %v, want containing %q", err, tc.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.wantSQL {
				t.Fatalf("SQL mismatch\n got: %q\nwant: %q", got, tc.wantSQL)
			}
		})
	}
}

func TestBuildDropTableSQL(t *testing.T) {
	t.Parallel()

	got, err := BuildDropTableSQL("db.ds_1")
	if err != nil {
		t.Fatal(err)
	}
	if want := "DROP TABLE IF EXISTS `db`.`ds_1`"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if _, err := BuildDropTableSQL(" "); err == nil {
		t.Fatalf("expected error for empty FQN")
	}
}

func TestQuoteIdent_EscapesBackticks(t *testing.T) {
	t.Parallel()

	if got := QuoteIdent("a`b"); got != "`a``b`" {
		t.Fatalf("QuoteIdent = %q", got)
	}
}
