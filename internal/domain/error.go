package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrProviderRejected    = errors.New("provider rejected job")
	ErrJobTerminal         = errors.New("job already in a terminal state")
	ErrNotRetryable        = errors.New("job failure is not retryable")
	ErrRateLimited         = errors.New("too many submissions")
	ErrInvalidExecContext  = errors.New("invalid executor context")
	ErrReadDatabaseRow     = errors.New("failed to read database row")
	ErrOperationFailed     = errors.New("operation failed")
)
