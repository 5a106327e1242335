package broker

import "errors"

// ErrInvalidType is returned when an operation references a secret type
// that is not registered in the catalog.
var ErrInvalidType = errors.New("invalid secret type")

// MissingFieldError is returned when a secret payload omits one of its
// type's required fields.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "missing required field: " + e.Field
}
