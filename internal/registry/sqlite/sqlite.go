// Package sqlite wires the SQLite registry backend into the registry
// factory. Registration happens in init.
package sqlite

import (
	"context"
	"strings"

	"daybook/internal/registry"
	"daybook/internal/registry/sqlstore"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// open is a test hook that points to sqlstore.Open by default.
var open = sqlstore.Open

func init() {
	registry.Register("sqlite", func(ctx context.Context, cfg registry.Config) (registry.Registry, error) {
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, errors.New("sqlite: DSN must not be empty")
		}
		s, err := open(ctx, "sqlite", cfg.DSN, sqlstore.SQLite, cfg.TableOrDefault())
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}
