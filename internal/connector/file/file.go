// Package file implements the "file" connector, which reads a file below
// the configured data root, e.g. an export dropped by another system.
//
// Settings: path, relative to the data root. The root comes from the
// DAYBOOK_FILE_ROOT environment variable and defaults to the working
// directory.
package file

import (
	"context"
	"fmt"
	"os"

	"daybook/internal/config"
	"daybook/internal/connector"
	"daybook/internal/datasource"
	dsfile "daybook/internal/datasource/file"
)

// Kind is the source type served by this connector.
const Kind = "file"

// MaxBytes bounds one read.
const MaxBytes = 256 << 20

func init() {
	connector.Register(Kind, Connector{Root: os.Getenv("DAYBOOK_FILE_ROOT")})
}

// Connector reads local files.
type Connector struct {
	Root string
}

// openSourceFn is a test seam for source construction.
var openSourceFn = func(root, path string) (datasource.Source, error) {
	return dsfile.NewRooted(root, path)
}

// ValidateConfig requires a path inside the root.
func (c Connector) ValidateConfig(cfg config.Options) error {
	if cfg.String("path", "") == "" {
		return fmt.Errorf("path is required")
	}
	_, err := dsfile.NewRooted(c.root(), cfg.String("path", ""))
	return err
}

// ValidateSecrets accepts anything; files need no credentials.
func (Connector) ValidateSecrets(config.Options, map[string]string) error { return nil }

// Poll returns the file content as bytes.
func (c Connector) Poll(ctx context.Context, cfg config.Options, _ map[string]string) (any, error) {
	src, err := openSourceFn(c.root(), cfg.String("path", ""))
	if err != nil {
		return nil, err
	}
	return datasource.ReadAll(ctx, src, MaxBytes)
}

func (c Connector) root() string {
	if c.Root == "" {
		return "."
	}
	return c.Root
}
