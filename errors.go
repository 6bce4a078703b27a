package harvest

import (
	"github.com/pkg/errors"
)

// Error is a constant error type.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrNotFound is returned by a Remote when the named resource does not
	// exist.
	ErrNotFound = Error("resource not found")

	// ErrMalformed marks a product which could be fetched but not made
	// sense of. It is never retried.
	ErrMalformed = Error("malformed product")

	// ErrWaveMismatch is returned when a spectrum is added on a wavelength
	// axis different from the one already in the table.
	ErrWaveMismatch = Error("wavelength axis mismatch")
)

// transientError marks an error which may go away if the operation is
// attempted again, e.g. a dropped connection or a 503.
type transientError struct {
	err error
}

func (t transientError) Error() string { return "transient: " + t.err.Error() }
func (t transientError) Cause() error  { return t.err }
func (t transientError) Unwrap() error { return t.err }

// Transient wraps err so that IsTransient reports true for it and anything
// wrapping it. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

// IsTransient reports whether any error in err's chain was marked with
// Transient.
func IsTransient(err error) bool {
	var t transientError
	return errors.As(err, &t)
}

// Malformed wraps ErrMalformed with a formatted description.
func Malformed(format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformed, format, args...)
}
