// Package catalog keeps a data source's external table and its persisted
// schema in step.
//
// When the inferred schema differs from the persisted one, the table is
// dropped and recreated over the data folder, and only then is the new
// schema written. A failed DDL statement therefore leaves the previous
// schema document in place.
package catalog

import (
	"context"
	"log"

	"daybook/internal/apperr"
	"daybook/internal/blobstore"
	"daybook/internal/ddl"
	"daybook/internal/schema"

	"github.com/pkg/errors"
)

// SchemaStore persists schema documents and resolves object URIs.
type SchemaStore interface {
	ReadSchema(ctx context.Context, workspaceID, dataSourceID string) (schema.Schema, error)
	WriteSchema(ctx context.Context, workspaceID, dataSourceID string, s schema.Schema) error
	URI(key string) string
}

// Executor runs a statement to completion.
type Executor interface {
	Submit(ctx context.Context, sql, outputLocation string) (string, error)
}

// Synchronizer recreates catalog tables on schema change.
type Synchronizer struct {
	store    SchemaStore
	exec     Executor
	database string
}

// New returns a Synchronizer. database qualifies table names; it may be
// empty when the executor already targets a database.
func New(store SchemaStore, exec Executor, database string) *Synchronizer {
	return &Synchronizer{store: store, exec: exec, database: database}
}

// TableName is the catalog table of a data source.
func TableName(dataSourceID string) string {
	return "ds_" + schema.PhysicalName(dataSourceID)
}

// TableFQN returns the table name qualified by the configured database.
func (s *Synchronizer) TableFQN(dataSourceID string) string {
	if s.database == "" {
		return TableName(dataSourceID)
	}
	return s.database + "." + TableName(dataSourceID)
}

// Sync makes the catalog table and the persisted schema match next. It
// reports whether anything changed.
func (s *Synchronizer) Sync(ctx context.Context, workspaceID, dataSourceID string, next schema.Schema) (bool, error) {
	if len(next) == 0 {
		return false, apperr.Validation("sync catalog", "schema has no columns")
	}

	prior, err := s.store.ReadSchema(ctx, workspaceID, dataSourceID)
	if err != nil {
		return false, errors.Wrap(err, "load persisted schema")
	}
	if prior != nil && schema.Equal(prior, next) {
		return false, nil
	}

	fqn := s.TableFQN(dataSourceID)
	output := s.store.URI(blobstore.ResultsPrefix(workspaceID))

	drop, err := ddl.BuildDropTableSQL(fqn)
	if err != nil {
		return false, err
	}
	if _, err := s.exec.Submit(ctx, drop, output); err != nil {
		return false, errors.Wrapf(err, "drop table %s", fqn)
	}

	create, err := ddl.BuildCreateExternalTableSQL(TableDef(fqn, s.store.URI(blobstore.DataPrefix(workspaceID, dataSourceID)), next))
	if err != nil {
		return false, err
	}
	if _, err := s.exec.Submit(ctx, create, output); err != nil {
		return false, errors.Wrapf(err, "create table %s", fqn)
	}

	if err := s.store.WriteSchema(ctx, workspaceID, dataSourceID, next); err != nil {
		return false, errors.Wrap(err, "persist schema")
	}
	log.Printf("catalog: table %s rebuilt columns=%d fingerprint=%016x", fqn, len(next), schema.Fingerprint(next))
	return true, nil
}

// TableDef maps a schema onto an external Parquet table at location.
func TableDef(fqn, location string, s schema.Schema) ddl.TableDef {
	names := s.PhysicalNames()
	cols := make([]ddl.ColumnDef, len(s))
	for i, c := range s {
		cols[i] = ddl.ColumnDef{Name: names[i], SQLType: c.Type.Info().SQL}
	}
	return ddl.TableDef{FQN: fqn, Columns: cols, StoredAs: "PARQUET", Location: location}
}
