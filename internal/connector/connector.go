// Package connector defines the pollable data source kinds.
//
// A connector validates a data source's settings and fetches its current
// payload, which is handed to ingestion as is. Connectors register
// themselves by kind from init functions; import
// daybook/internal/connector/all to enable every built-in kind.
package connector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"daybook/internal/config"
)

// Connector fetches the payload of one data source kind.
type Connector interface {
	// ValidateConfig checks the non-secret settings.
	ValidateConfig(cfg config.Options) error
	// ValidateSecrets checks the credentials against cfg.
	ValidateSecrets(cfg config.Options, secrets map[string]string) error
	// Poll returns the current payload: text, bytes or rows.
	Poll(ctx context.Context, cfg config.Options, secrets map[string]string) (any, error)
}

var (
	mu    sync.RWMutex
	kinds = map[string]Connector{}
)

// Register adds or replaces the connector for kind.
func Register(kind string, c Connector) {
	mu.Lock()
	defer mu.Unlock()
	kinds[kind] = c
}

// Get returns the connector registered for kind.
func Get(kind string) (Connector, error) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := kinds[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported connector.kind=%s", kind)
	}
	return c, nil
}

// Pollable reports whether kind has a registered connector.
func Pollable(kind string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := kinds[kind]
	return ok
}

// ListKinds returns the registered kinds, sorted.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
