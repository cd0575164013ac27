// CLAUDE:SUMMARY Sentinel errors for the encart service.
package encart

import "errors"

// ErrInvalidInput is returned when request input fails validation.
var ErrInvalidInput = errors.New("encart: invalid input")

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("encart: not found")

// ErrDuplicate is returned when a unique constraint would be violated.
var ErrDuplicate = errors.New("encart: already exists")
