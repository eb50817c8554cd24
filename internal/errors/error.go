package errors

import "github.com/pkg/errors"

var (
	// common errors
	ErrInstanceMissing   = errors.New("instance is missing")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input parameters")

	// pipeline errors
	ErrTransientIO          = errors.New("transient mailbox or network failure")
	ErrRoutingFailure       = errors.New("routing failure")
	ErrExtractionMiss       = errors.New("no control number found")
	ErrFilingFailure        = errors.New("filing failure")
	ErrConfiguration        = errors.New("configuration error")
	ErrProcessingInProgress = errors.New("email processing already in progress")

	// retry errors
	ErrNotRetryable = errors.New("processing log entry is not in error state")
)

// Cause walks the pkg/errors chain.
func Cause(err error) error {
	return errors.Cause(err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
