package po

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, isUniqueViolation(&pgconn.PgError{Code: pgUniqueViolation}))
	require.False(t, isUniqueViolation(&pgconn.PgError{Code: pgInFailedTransaction}))
	require.False(t, isUniqueViolation(errors.New("plain error")))
}

func TestIsInFailedTransaction(t *testing.T) {
	require.True(t, IsInFailedTransaction(&pgconn.PgError{Code: pgInFailedTransaction}))
	require.False(t, IsInFailedTransaction(&pgconn.PgError{Code: pgUniqueViolation}))
}

func TestIsUniqueViolation_UnwrapsWrappedErrors(t *testing.T) {
	wrapped := errors.Join(errors.New("outer"), &pgconn.PgError{Code: pgUniqueViolation})
	require.True(t, isUniqueViolation(wrapped))
}
