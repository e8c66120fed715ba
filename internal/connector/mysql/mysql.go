// Package mysql implements the "mysql" connector: it runs one SELECT against
// a customer database and returns the rows in column order.
//
// Settings: host, port, databaseName, and either table or query. Secrets:
// username and password. An optional sslCa setting names a CA bundle file.
package mysql

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"daybook/internal/config"
	"daybook/internal/connector"
	"daybook/pkg/records"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// Kind is the source type served by this connector.
const Kind = "mysql"

// DefaultMaxRows bounds one poll when maxRows is not configured.
const DefaultMaxRows = 100000

var tableName = regexp.MustCompile(`^[A-Za-z0-9_$]+(\.[A-Za-z0-9_$]+)?$`)

// openDB is a test seam over sql.Open.
var openDB = func(dsn string) (*sql.DB, error) { return sql.Open("mysql", dsn) }

func init() {
	connector.Register(Kind, Connector{})
}

// Connector polls MySQL tables.
type Connector struct{}

// ValidateConfig requires the connection settings and one of table or query.
func (Connector) ValidateConfig(cfg config.Options) error {
	if cfg == nil {
		return fmt.Errorf("Config is missing")
	}
	for _, f := range []string{"host", "databaseName"} {
		if cfg.String(f, "") == "" {
			return fmt.Errorf("%s is required", f)
		}
	}
	if cfg.Int("port", 0) <= 0 {
		return fmt.Errorf("port is required")
	}
	table, query := cfg.String("table", ""), cfg.String("query", "")
	switch {
	case table == "" && query == "":
		return fmt.Errorf("table or query is required")
	case table != "" && !tableName.MatchString(table):
		return fmt.Errorf("invalid table name %q", table)
	case query != "" && !isSelect(query):
		return fmt.Errorf("query must be a single SELECT statement")
	}
	return nil
}

// ValidateSecrets requires username and password.
func (Connector) ValidateSecrets(_ config.Options, secrets map[string]string) error {
	if secrets == nil {
		return fmt.Errorf("Secrets are missing")
	}
	if secrets["username"] == "" || secrets["password"] == "" {
		return fmt.Errorf("username and password are required")
	}
	return nil
}

// Poll runs the configured statement and returns its rows.
func (c Connector) Poll(ctx context.Context, cfg config.Options, secrets map[string]string) (any, error) {
	if err := c.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if err := c.ValidateSecrets(cfg, secrets); err != nil {
		return nil, err
	}
	dsn, err := buildDSN(cfg, secrets)
	if err != nil {
		return nil, err
	}

	db, err := openDB(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "mysql open")
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	return queryBatch(ctx, db, statement(cfg), cfg.Int("maxRows", DefaultMaxRows))
}

// buildDSN assembles a driver DSN. Credentials never pass through string
// formatting, so special characters need no escaping.
func buildDSN(cfg config.Options, secrets map[string]string) (string, error) {
	mc := mysql.NewConfig()
	mc.User = secrets["username"]
	mc.Passwd = secrets["password"]
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.String("host", ""), strconv.Itoa(cfg.Int("port", 3306)))
	mc.DBName = cfg.String("databaseName", "")
	mc.ParseTime = true
	mc.Timeout = 10 * time.Second
	mc.ReadTimeout = 60 * time.Second

	if ca := cfg.String("sslCa", ""); ca != "" {
		pem, err := os.ReadFile(ca)
		if err != nil {
			return "", errors.Wrap(err, "read sslCa")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return "", fmt.Errorf("sslCa %s holds no certificates", ca)
		}
		name := "daybook-" + mc.Addr
		if err := mysql.RegisterTLSConfig(name, &tls.Config{RootCAs: pool, ServerName: cfg.String("host", "")}); err != nil {
			return "", errors.Wrap(err, "register tls config")
		}
		mc.TLSConfig = name
	}
	return mc.FormatDSN(), nil
}

func statement(cfg config.Options) string {
	if q := strings.TrimSpace(cfg.String("query", "")); q != "" {
		return strings.TrimSuffix(q, ";")
	}
	parts := strings.Split(cfg.String("table", ""), ".")
	for i, p := range parts {
		parts[i] = "`" + p + "`"
	}
	return "SELECT * FROM " + strings.Join(parts, ".")
}

func isSelect(q string) bool {
	q = strings.TrimSuffix(strings.TrimSpace(q), ";")
	return strings.HasPrefix(strings.ToUpper(q), "SELECT ") && !strings.Contains(q, ";")
}

// queryBatch runs stmt and collects the rows in column order. Byte values
// become strings. An empty result is an empty batch, which ingestion
// records as no_data.
func queryBatch(ctx context.Context, db *sql.DB, stmt string, maxRows int) (*records.Batch, error) {
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, errors.Wrap(err, "mysql query")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "mysql columns")
	}

	b := &records.Batch{}
	b.Observe(cols...)
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if maxRows > 0 && b.Len() >= maxRows {
			return nil, fmt.Errorf("mysql: result exceeds %d rows", maxRows)
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "mysql scan")
		}
		r := make(records.Record, len(cols))
		for i, c := range cols {
			v := vals[i]
			if raw, ok := v.([]byte); ok {
				v = string(raw)
			}
			r[c] = v
		}
		b.Rows = append(b.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "mysql rows")
	}
	return b, nil
}
