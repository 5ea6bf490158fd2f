package social

import (
	"errors"
	"fmt"
)

// Error kinds returned by every operation in this package. Callers match them
// with errors.Is; the wrapped message carries the detail.
var (
	ErrValidation            = errors.New("validation failed")
	ErrNotFound              = errors.New("not found")
	ErrSelfReference         = errors.New("self reference")
	ErrDuplicateRelationship = errors.New("already following")
	ErrStore                 = errors.New("store failure")
)

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundErr(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
