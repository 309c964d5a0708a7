// Package oceanerrors contains the error types shared across the ingestion
// pipeline, together with the logic for deciding whether a database error is
// worth retrying.
//
// If multiple errors occur while processing a file, the caller should combine
// them into a multierror.Error from github.com/hashicorp/go-multierror.
package oceanerrors

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// ErrStructural indicates that a file is not a valid instrument file, e.g.,
// because a required dimension or variable is missing or the file cannot be
// decoded at all. It aborts processing of that file only, never the run.
type ErrStructural struct {
	Path   string // File the error relates to
	Reason string // Human-readable cause
}

func (err *ErrStructural) Error() string {
	return fmt.Sprintf("%s is not a valid profile file: %s", err.Path, err.Reason)
}

// ErrNotFound is a generic error to be returned whenever some resource isn't found.
type ErrNotFound struct {
	Type  string
	Value string
}

func (err *ErrNotFound) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	}
	return fmt.Sprintf("resource %q does not exist", err.Value)
}

// ErrInvalidArgument is returned on invalid configuration or arguments.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "batchSize"
	Value   interface{} // The invalid value that was provided
	Message string      // Optional explanation of why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %q is invalid for field %q", err.Value, err.Name)
	}
	return fmt.Sprintf("value %q is invalid for field %q; %s", err.Value, err.Name, err.Message)
}

// ErrMaxRetriesExceeded indicates that a retryable database operation was
// retried up to the configured limit without succeeding.
type ErrMaxRetriesExceeded struct {
	Message   string
	LastError error
}

func (err *ErrMaxRetriesExceeded) Error() string {
	return fmt.Sprintf("%s: %v", err.Message, err.LastError)
}

func (err *ErrMaxRetriesExceeded) Unwrap() error {
	return err.LastError
}

// IsNetworkError returns true if err is a transient network-related error,
// in which case the operation that produced it is safe to retry.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return pgconn.SafeToRetry(err)
}

// IsRetryablePostgresError returns true for postgres errors that indicate a
// transient condition (connection loss, administrator shutdown, serialization
// conflicts) as opposed to a problem with the data itself.
func IsRetryablePostgresError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown,
		pgerrcode.CannotConnectNow,
		pgerrcode.SerializationFailure,
		pgerrcode.DeadlockDetected,
		pgerrcode.TooManyConnections:
		return true
	}
	// Class 08 covers all connection exceptions.
	return strings.HasPrefix(pgErr.Code, "08")
}

// IsConstraintError returns true for data-integrity violations (class 23),
// which are never retryable: the same data will fail the same way again.
func IsConstraintError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgerrcode.IsIntegrityConstraintViolation(pgErr.Code)
}

// IsUniqueViolation returns true if err is a postgres unique-constraint
// violation, e.g., from two workers racing to record the same success.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.UniqueViolation
}
