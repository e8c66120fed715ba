// Package mssql wires the SQL Server registry backend into the registry
// factory.
package mssql

import (
	"context"

	"daybook/internal/registry"
	"daybook/internal/registry/sqlstore"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"
	"github.com/pkg/errors"
)

// open is a test hook that points to sqlstore.Open by default.
var open = sqlstore.Open

func init() {
	registry.Register("mssql", func(ctx context.Context, cfg registry.Config) (registry.Registry, error) {
		// Validate DSN early to fail fast on obvious mistakes.
		if _, err := msdsn.Parse(cfg.DSN); err != nil {
			return nil, errors.Wrap(err, "mssql dsn")
		}
		s, err := open(ctx, "sqlserver", cfg.DSN, sqlstore.SQLServer, cfg.TableOrDefault())
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}
