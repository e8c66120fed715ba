// Package mysql wires the MySQL registry backend into the registry factory.
package mysql

import (
	"context"

	"daybook/internal/registry"
	"daybook/internal/registry/sqlstore"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// open is a test hook that points to sqlstore.Open by default.
var open = sqlstore.Open

func init() {
	registry.Register("mysql", func(ctx context.Context, cfg registry.Config) (registry.Registry, error) {
		dsn, err := normalizeDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		s, err := open(ctx, "mysql", dsn, sqlstore.MySQL, cfg.TableOrDefault())
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// normalizeDSN validates dsn and forces the options the registry relies on.
// clientFoundRows makes UPDATE report matched rather than changed rows.
func normalizeDSN(dsn string) (string, error) {
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Wrap(err, "mysql dsn")
	}
	c.ClientFoundRows = true
	c.ParseTime = false
	return c.FormatDSN(), nil
}
