package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeForeignKeyViolation  = "23503"
)

// StorageError marks an error that came from Postgres itself.
type StorageError struct {
	Code string
	Err  error
}

func (e *StorageError) Error() string { return e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// Retryable: the transaction lost a lock race and may succeed if rerun.
func (e *StorageError) Retryable() bool {
	switch e.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	}
	return false
}

// classify tags Postgres errors and passes everything else through, so
// domain errors returned from a transaction body keep their type.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &StorageError{Code: pgErr.Code, Err: err}
	}
	return err
}
