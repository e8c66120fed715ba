// Package apperr holds the error taxonomy shared by the ingestion pipeline.
//
// Components raise these values; the ingestion orchestrator is the single
// place that classifies them, records the data source's status and re-raises.
package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotFound reports that an object or schema document does not exist yet.
// The blob store translates it to a nil result on reads.
var ErrNotFound = errors.New("not found")

// ErrDataSourceNotFound is returned when the registry has no entry for a
// (workspace, data source) pair.
var ErrDataSourceNotFound = errors.New("data source not found")

// ValidationError describes malformed or empty input to the normalizer,
// the inferencer or the codec.
type ValidationError struct {
	Op  string
	Msg string
}

func (e *ValidationError) Error() string {
	if e.Op == "" {
		return e.Msg
	}
	return e.Op + ": " + e.Msg
}

// Validation builds a *ValidationError with a formatted message.
func Validation(op, format string, args ...any) error {
	return &ValidationError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageError is the opaque error surfaced for any blob storage service
// fault. The underlying service error is logged where it happens and is kept
// out of the message; Unwrap still exposes it to errors.As.
type StorageError struct {
	Op     string
	Target string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s operation failed against %s", e.Op, e.Target)
}

func (e *StorageError) Unwrap() error { return e.Err }

// QueryFailedError is a terminal FAILED state reported by the query service.
type QueryFailedError struct {
	ExecutionID string
	Reason      string
}

func (e *QueryFailedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("query %s failed", e.ExecutionID)
	}
	return fmt.Sprintf("query %s failed: %s", e.ExecutionID, e.Reason)
}

// QueryCancelledError is a terminal CANCELLED state reported by the query
// service.
type QueryCancelledError struct {
	ExecutionID string
}

func (e *QueryCancelledError) Error() string {
	return fmt.Sprintf("query %s was cancelled", e.ExecutionID)
}
