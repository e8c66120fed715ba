package catalog

import (
	"context"
	"strings"
	"testing"

	"daybook/internal/apperr"
	"daybook/internal/awstest"
	"daybook/internal/blobstore"
	"daybook/internal/query"
	"daybook/internal/schema"

	"github.com/google/go-cmp/cmp"
)

func newTestSync(t *testing.T) (*Synchronizer, *awstest.S3, *awstest.Athena, *blobstore.Store) {
	t.Helper()
	fs3 := awstest.NewS3()
	fat := awstest.NewAthena()
	store := blobstore.New(fs3, blobstore.Config{Bucket: "bkt"}, nil)
	exec := query.New(fat, query.Config{Database: "daybook"})
	return New(store, exec, "daybook"), fs3, fat, store
}

var csvSchema = schema.Schema{
	{Name: "name", Type: schema.String},
	{Name: "amount", Type: schema.Decimal},
	{Name: "timestamp", Type: schema.Timestamp},
	{Name: "rowId", Type: schema.String},
}

func TestSync_FirstTimeCreatesTableAndPersists(t *testing.T) {
	t.Parallel()

	s, _, fat, store := newTestSync(t)
	ctx := context.Background()

	changed, err := s.Sync(ctx, "w1", "abc", csvSchema)
	if err != nil {
		t.Fatalf("Sync error: %v", err)
	}
	if !changed {
		t.Fatalf("changed = false on first sync")
	}

	sql := fat.SQL()
	if len(sql) != 2 {
		t.Fatalf("statements = %v, want DROP and CREATE", sql)
	}
	if sql[0] != "DROP TABLE IF EXISTS `daybook`.`ds_abc`" {
		t.Fatalf("drop = %q", sql[0])
	}
	wantCreate := "CREATE EXTERNAL TABLE `daybook`.`ds_abc` (\n" +
		"  `name` string,\n" +
		"  `amount` double,\n" +
		"  `timestamp` timestamp,\n" +
		"  `rowid` string\n" +
		")\n" +
		"STORED AS PARQUET\n" +
		"LOCATION 's3://bkt/workspaces/w1/day-book/dataSources/abc/data/'"
	if sql[1] != wantCreate {
		t.Fatalf("create mismatch\n got: %q\nwant: %q", sql[1], wantCreate)
	}
	if got := fat.Executions()[0].OutputLocation; got != "s3://bkt/workspaces/w1/day-book/athenaResults/" {
		t.Fatalf("output location = %q", got)
	}

	persisted, err := store.ReadSchema(ctx, "w1", "abc")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(csvSchema, persisted); diff != "" {
		t.Fatalf("persisted schema (-want +got):\n%s", diff)
	}
}

func TestSync_SecondCallIsNoOp(t *testing.T) {
	t.Parallel()

	s, fs3, fat, _ := newTestSync(t)
	ctx := context.Background()

	if _, err := s.Sync(ctx, "w1", "abc", csvSchema); err != nil {
		t.Fatal(err)
	}
	puts := countPrefix(fs3.Ops(), "put:")

	// Same columns in another order are the same schema.
	reordered := schema.Schema{csvSchema[3], csvSchema[0], csvSchema[2], csvSchema[1]}
	changed, err := s.Sync(ctx, "w1", "abc", reordered)
	if err != nil {
		t.Fatalf("Sync error: %v", err)
	}
	if changed {
		t.Fatalf("changed = true for identical schema")
	}
	if n := len(fat.SQL()); n != 2 {
		t.Fatalf("statements after second sync = %d, want 2", n)
	}
	if got := countPrefix(fs3.Ops(), "put:"); got != puts {
		t.Fatalf("schema rewritten on no-op sync")
	}
}

func TestSync_FailedCreateKeepsPriorSchema(t *testing.T) {
	t.Parallel()

	s, _, fat, store := newTestSync(t)
	ctx := context.Background()

	if _, err := s.Sync(ctx, "w1", "abc", csvSchema); err != nil {
		t.Fatal(err)
	}

	fat.FailWhen = func(sql string) string {
		if strings.HasPrefix(sql, "CREATE") {
			return "HIVE_METASTORE_ERROR"
		}
		return ""
	}
	next := append(schema.Schema{}, csvSchema...)
	next = append(next, schema.Column{Name: "extra", Type: schema.BigInt})

	if _, err := s.Sync(ctx, "w1", "abc", next); err == nil {
		t.Fatalf("expected error from failed CREATE")
	}
	persisted, err := store.ReadSchema(ctx, "w1", "abc")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(csvSchema, persisted); diff != "" {
		t.Fatalf("persisted schema changed after failed DDL (-want +got):\n%s", diff)
	}
}

func TestSync_EmptySchemaIsValidationError(t *testing.T) {
	t.Parallel()

	s, _, _, _ := newTestSync(t)
	if _, err := s.Sync(context.Background(), "w", "d", nil); !apperr.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestTableName_Sanitizes(t *testing.T) {
	t.Parallel()

	if got := TableName("9f1c-44AB"); got != "ds_9f1c_44ab" {
		t.Fatalf("TableName = %q", got)
	}
}

func countPrefix(ops []string, prefix string) int {
	n := 0
	for _, op := range ops {
		if strings.HasPrefix(op, prefix) {
			n++
		}
	}
	return n
}
