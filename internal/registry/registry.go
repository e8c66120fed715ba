// Package registry stores Data Source entities and their ingestion status.
//
// Backends register themselves by kind from init functions; import
// daybook/internal/registry/all to enable every built-in backend.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"daybook/internal/config"
)

// Method selects how a new batch is stored.
type Method string

const (
	// MethodReplace deletes existing data objects before writing.
	MethodReplace Method = "replace"
	// MethodExtend merges new rows into the day's data object.
	MethodExtend Method = "extend"
)

// ParseMethod maps stored method names onto a Method. "overwrite" is the
// legacy name of replace; an empty value means replace.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "replace", "overwrite":
		return MethodReplace, nil
	case "extend":
		return MethodExtend, nil
	}
	return "", fmt.Errorf("unknown method %q", s)
}

// Status is the lifecycle state of a Data Source.
type Status string

const (
	StatusPending       Status = "pending"
	StatusPendingUpload Status = "pending_upload"
	StatusActive        Status = "active"
	StatusError         Status = "error"
	StatusNoData        Status = "no_data"
)

// DataSource is a registered source of data inside a workspace.
type DataSource struct {
	WorkspaceID  string         `json:"workspaceId"`
	DataSourceID string         `json:"dataSourceId"`
	Name         string         `json:"name"`
	SourceType   string         `json:"sourceType"`
	Method       Method         `json:"method"`
	Status       Status         `json:"status"`
	ErrorMessage string         `json:"error,omitempty"`
	Config       config.Options `json:"config"`
	// Secrets holds connector credentials; it is never rendered to clients.
	Secrets    map[string]string `json:"-"`
	CreatedAt  time.Time         `json:"createdAt"`
	LastUpdate time.Time         `json:"lastUpdate"`
}

// StatusUpdate is the mutation applied by ingestion runs. An empty
// ErrorMessage clears any previous error.
type StatusUpdate struct {
	Status       Status
	ErrorMessage string
}

// Registry is the storage-agnostic Data Source store.
type Registry interface {
	// Get returns the data source or an error wrapping
	// apperr.ErrDataSourceNotFound.
	Get(ctx context.Context, workspaceID, dataSourceID string) (*DataSource, error)
	// Put inserts or replaces a data source.
	Put(ctx context.Context, ds *DataSource) error
	// UpdateStatus sets status and error message and bumps LastUpdate.
	UpdateStatus(ctx context.Context, workspaceID, dataSourceID string, u StatusUpdate) error
	// List returns the data sources of one workspace.
	List(ctx context.Context, workspaceID string) ([]DataSource, error)
	// ListAll returns every data source.
	ListAll(ctx context.Context) ([]DataSource, error)
	Close()
}

// Config selects and configures a backend.
type Config struct {
	Kind  string
	DSN   string
	Table string
	// Region is used by the dynamo backend.
	Region string
}

// DefaultTable is the table used when Config.Table is empty.
const DefaultTable = "data_sources"

// TableOrDefault returns c.Table or DefaultTable.
func (c Config) TableOrDefault() string {
	if strings.TrimSpace(c.Table) == "" {
		return DefaultTable
	}
	return c.Table
}

// Factory opens a backend.
type Factory func(ctx context.Context, cfg Config) (Registry, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register adds or replaces the factory for kind.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens the backend named by cfg.Kind.
func New(ctx context.Context, cfg Config) (Registry, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported registry.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds, sorted.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
