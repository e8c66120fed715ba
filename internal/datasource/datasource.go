// Package datasource holds the byte sources connectors read from.
package datasource

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// Source opens a stream of raw bytes.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// ReadAll opens src and reads it whole. A stream longer than limit bytes is
// an error; limit <= 0 disables the check.
func ReadAll(ctx context.Context, src Source, limit int64) ([]byte, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if limit > 0 {
		r = io.LimitReader(rc, limit+1)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	if limit > 0 && int64(buf.Len()) > limit {
		return nil, fmt.Errorf("source exceeds %d bytes", limit)
	}
	return buf.Bytes(), nil
}
