package mysql

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"daybook/internal/config"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

func validConfig() config.Options {
	return config.Options{"host": "db.internal", "port": float64(3306), "databaseName": "shop", "table": "orders"}
}

/* TestValidateConfig covers the required settings. */
func TestValidateConfig(t *testing.T) {
	t.Parallel()

	mutate := func(f func(config.Options)) config.Options {
		c := validConfig()
		f(c)
		return c
	}
	tests := []struct {
		name    string
		cfg     config.Options
		wantErr string
	}{
		{name: "ok table", cfg: validConfig()},
		{name: "ok query", cfg: mutate(func(c config.Options) { delete(c, "table"); c["query"] = "SELECT id FROM orders;" })},
		{name: "nil", cfg: nil, wantErr: "Config is missing"},
		{name: "no host", cfg: mutate(func(c config.Options) { delete(c, "host") }), wantErr: "host is required"},
		{name: "no port", cfg: mutate(func(c config.Options) { delete(c, "port") }), wantErr: "port is required"},
		{name: "no table", cfg: mutate(func(c config.Options) { delete(c, "table") }), wantErr: "table or query"},
		{name: "bad table", cfg: mutate(func(c config.Options) { c["table"] = "orders; DROP TABLE x" }), wantErr: "invalid table"},
		{name: "not select", cfg: mutate(func(c config.Options) { delete(c, "table"); c["query"] = "DELETE FROM orders" }), wantErr: "SELECT"},
		{name: "two statements", cfg: mutate(func(c config.Options) { delete(c, "table"); c["query"] = "SELECT 1; SELECT 2" }), wantErr: "SELECT"},
	}
	for _, tt := range tests {
		err := Connector{}.ValidateConfig(tt.cfg)
		if tt.wantErr == "" {
			if err != nil {
				t.Fatalf("%s: %v", tt.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Fatalf("%s: err = %v, want %q", tt.name, err, tt.wantErr)
		}
	}
}

/* TestValidateSecrets verifies both credentials are required. */
func TestValidateSecrets(t *testing.T) {
	t.Parallel()

	if err := (Connector{}).ValidateSecrets(nil, nil); err == nil {
		t.Fatalf("nil secrets accepted")
	}
	if err := (Connector{}).ValidateSecrets(nil, map[string]string{"username": "u"}); err == nil {
		t.Fatalf("missing password accepted")
	}
	if err := (Connector{}).ValidateSecrets(nil, map[string]string{"username": "u", "password": "p"}); err != nil {
		t.Fatalf("valid secrets rejected: %v", err)
	}
}

/* TestBuildDSN verifies the DSN round-trips through the driver parser. */
func TestBuildDSN(t *testing.T) {
	t.Parallel()

	dsn, err := buildDSN(validConfig(), map[string]string{"username": "reader", "password": "p@ss:w/rd"})
	if err != nil {
		t.Fatalf("buildDSN: %v", err)
	}
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("ParseDSN(%q): %v", dsn, err)
	}
	if mc.User != "reader" || mc.Passwd != "p@ss:w/rd" || mc.Addr != "db.internal:3306" || mc.DBName != "shop" || !mc.ParseTime {
		t.Fatalf("parsed config = %+v", mc)
	}
}

/* TestStatement verifies table quoting and query passthrough. */
func TestStatement(t *testing.T) {
	t.Parallel()

	if got := statement(config.Options{"table": "shop.orders"}); got != "SELECT * FROM `shop`.`orders`" {
		t.Fatalf("statement = %q", got)
	}
	if got := statement(config.Options{"query": " SELECT id FROM orders; "}); got != "SELECT id FROM orders" {
		t.Fatalf("statement = %q", got)
	}
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "src.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	for _, stmt := range []string{
		"CREATE TABLE orders (id INTEGER, sku TEXT, note TEXT)",
		"INSERT INTO orders VALUES (1, 'A', NULL), (2, 'B', 'gift')",
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	return db
}

/* TestQueryBatch verifies rows keep column order and values. */
func TestQueryBatch(t *testing.T) {
	t.Parallel()

	db := openSQLite(t)
	b, err := queryBatch(context.Background(), db, "SELECT * FROM `orders` ORDER BY id", 0)
	if err != nil {
		t.Fatalf("queryBatch: %v", err)
	}
	if strings.Join(b.Columns, ",") != "id,sku,note" {
		t.Fatalf("columns = %v", b.Columns)
	}
	if b.Len() != 2 || b.Rows[0]["sku"] != "A" || b.Rows[0]["note"] != nil || b.Rows[1]["note"] != "gift" {
		t.Fatalf("rows = %v", b.Rows)
	}

	empty, err := queryBatch(context.Background(), db, "SELECT * FROM orders WHERE id > 99", 0)
	if err != nil || empty.Len() != 0 {
		t.Fatalf("empty result = %v, %v", empty, err)
	}

	if _, err := queryBatch(context.Background(), db, "SELECT * FROM orders", 1); err == nil {
		t.Fatalf("expected maxRows error")
	}
}

/* TestPoll_UsesSeam verifies Poll end to end over the open seam. */
func TestPoll_UsesSeam(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poll.db")
	seed, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := seed.Exec("CREATE TABLE orders (id INTEGER); INSERT INTO orders VALUES (7)"); err != nil {
		t.Fatal(err)
	}
	seed.Close()

	orig := openDB
	defer func() { openDB = orig }()
	var gotDSN string
	openDB = func(dsn string) (*sql.DB, error) {
		gotDSN = dsn
		return sql.Open("sqlite", "file:"+path)
	}

	out, err := Connector{}.Poll(context.Background(), validConfig(), map[string]string{"username": "u", "password": "p"})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !strings.Contains(gotDSN, "@tcp(db.internal:3306)/shop") {
		t.Fatalf("dsn = %q", gotDSN)
	}
	rows := out.(interface{ Len() int })
	if rows.Len() != 1 {
		t.Fatalf("rows = %d, want 1", rows.Len())
	}
}
