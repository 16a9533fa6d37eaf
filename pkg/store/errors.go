package store

import (
	"errors"
	"fmt"
	"time"
)

// ErrDimensionMismatch is wrapped by errors caused by a vector whose length
// differs from the index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// ConfigurationError means the index and the embedding model disagree, or
// the index cannot be used as configured. It is fatal at startup.
type ConfigurationError struct {
	Index string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("index %q misconfigured: %v", e.Index, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IndexProvisioningError is returned when a created index did not become
// ready within the configured timeout.
type IndexProvisioningError struct {
	Index  string
	Waited time.Duration
	Err    error
}

func (e *IndexProvisioningError) Error() string {
	msg := fmt.Sprintf("index %q not ready after %s", e.Index, e.Waited)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IndexProvisioningError) Unwrap() error { return e.Err }

// UpsertError means one document could not be written.
type UpsertError struct {
	Index string
	ID    string
	Err   error
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("upsert %q into %q: %v", e.ID, e.Index, e.Err)
}

func (e *UpsertError) Unwrap() error { return e.Err }

// RetrievalError reports that the vector store could not answer a query.
// It is distinct from a query that succeeded with no matches.
type RetrievalError struct {
	Index string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("query %q: %v", e.Index, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }
