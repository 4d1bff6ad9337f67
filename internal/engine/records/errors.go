package records

import "errors"

// ErrInvalid wraps input validation failures.
var ErrInvalid = errors.New("invalid record")
