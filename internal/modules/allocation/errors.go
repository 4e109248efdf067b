package allocation

import "errors"

// ErrInvariantViolation means the computed shares stopped summing to the
// remainder. The batch is dropped and the inputs logged; this is a bug,
// not a data condition.
var ErrInvariantViolation = errors.New("allocation shares do not sum to the remainder")
