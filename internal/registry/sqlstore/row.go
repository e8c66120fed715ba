package sqlstore

import (
	"database/sql"
	"encoding/json"
	"time"

	"daybook/internal/config"
	"daybook/internal/registry"

	"github.com/pkg/errors"
)

const timeLayout = time.RFC3339Nano

// Row holds one registry row in its column representation. Dest and Args
// line up with the fixed column order.
type Row struct {
	WorkspaceID  string
	DataSourceID string
	Name         sql.NullString
	SourceType   sql.NullString
	Method       sql.NullString
	Status       sql.NullString
	ErrorMessage sql.NullString
	Config       sql.NullString
	Secrets      sql.NullString
	CreatedAt    sql.NullString
	LastUpdate   sql.NullString
}

// Dest returns scan targets in column order.
func (r *Row) Dest() []any {
	return []any{
		&r.WorkspaceID, &r.DataSourceID, &r.Name, &r.SourceType, &r.Method, &r.Status,
		&r.ErrorMessage, &r.Config, &r.Secrets, &r.CreatedAt, &r.LastUpdate,
	}
}

// UpsertArgs encodes ds in column order.
func UpsertArgs(ds *registry.DataSource) ([]any, error) {
	cfg, err := json.Marshal(ds.Config)
	if err != nil {
		return nil, errors.Wrap(err, "encode config")
	}
	secrets, err := json.Marshal(ds.Secrets)
	if err != nil {
		return nil, errors.Wrap(err, "encode secrets")
	}
	return []any{
		ds.WorkspaceID,
		ds.DataSourceID,
		ds.Name,
		ds.SourceType,
		string(ds.Method),
		string(ds.Status),
		nullable(ds.ErrorMessage),
		string(cfg),
		string(secrets),
		formatTime(ds.CreatedAt),
		formatTime(ds.LastUpdate),
	}, nil
}

// StatusArgs encodes a status update for Statements.UpdateStatus.
func StatusArgs(workspaceID, dataSourceID string, u registry.StatusUpdate, now time.Time) []any {
	return []any{string(u.Status), nullable(u.ErrorMessage), formatTime(now), workspaceID, dataSourceID}
}

// DataSource decodes r.
func (r *Row) DataSource() (registry.DataSource, error) {
	method, err := registry.ParseMethod(r.Method.String)
	if err != nil {
		return registry.DataSource{}, errors.Wrapf(err, "data source %s/%s", r.WorkspaceID, r.DataSourceID)
	}
	ds := registry.DataSource{
		WorkspaceID:  r.WorkspaceID,
		DataSourceID: r.DataSourceID,
		Name:         r.Name.String,
		SourceType:   r.SourceType.String,
		Method:       method,
		Status:       registry.Status(r.Status.String),
		ErrorMessage: r.ErrorMessage.String,
		Config:       config.Options{},
		CreatedAt:    parseTime(r.CreatedAt.String),
		LastUpdate:   parseTime(r.LastUpdate.String),
	}
	if r.Config.Valid && r.Config.String != "" && r.Config.String != "null" {
		if err := json.Unmarshal([]byte(r.Config.String), &ds.Config); err != nil {
			return ds, errors.Wrapf(err, "decode config of %s/%s", r.WorkspaceID, r.DataSourceID)
		}
	}
	if r.Secrets.Valid && r.Secrets.String != "" && r.Secrets.String != "null" {
		if err := json.Unmarshal([]byte(r.Secrets.String), &ds.Secrets); err != nil {
			return ds, errors.Wrapf(err, "decode secrets of %s/%s", r.WorkspaceID, r.DataSourceID)
		}
	}
	return ds, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
