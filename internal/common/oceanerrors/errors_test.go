package oceanerrors

import (
	"context"
	"syscall"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsNetworkError(t *testing.T) {
	tests := map[string]struct {
		err      error
		expected bool
	}{
		"nil":                {nil, false},
		"deadline":           {context.DeadlineExceeded, true},
		"wrapped deadline":   {errors.WithMessage(context.DeadlineExceeded, "storing batch"), true},
		"connection refused": {syscall.ECONNREFUSED, true},
		"connection reset":   {errors.WithStack(syscall.ECONNRESET), true},
		"plain error":        {errors.New("out of cheese"), false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsNetworkError(tc.err))
		})
	}
}

func TestIsRetryablePostgresError(t *testing.T) {
	tests := map[string]struct {
		code     string
		expected bool
	}{
		"admin shutdown":        {pgerrcode.AdminShutdown, true},
		"serialization failure": {pgerrcode.SerializationFailure, true},
		"deadlock":              {pgerrcode.DeadlockDetected, true},
		"connection exception":  {pgerrcode.ConnectionException, true},
		"unique violation":      {pgerrcode.UniqueViolation, false},
		"check violation":       {pgerrcode.CheckViolation, false},
		"undefined table":       {pgerrcode.UndefinedTable, false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := errors.WithStack(&pgconn.PgError{Code: tc.code})
			assert.Equal(t, tc.expected, IsRetryablePostgresError(err))
		})
	}
}

func TestIsConstraintError(t *testing.T) {
	assert.True(t, IsConstraintError(&pgconn.PgError{Code: pgerrcode.UniqueViolation}))
	assert.True(t, IsConstraintError(&pgconn.PgError{Code: pgerrcode.CheckViolation}))
	assert.False(t, IsConstraintError(&pgconn.PgError{Code: pgerrcode.AdminShutdown}))
	assert.False(t, IsConstraintError(errors.New("not a pg error")))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(errors.WithStack(&pgconn.PgError{Code: pgerrcode.UniqueViolation})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: pgerrcode.CheckViolation}))
}
