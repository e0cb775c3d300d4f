package store

import "fmt"

// InvariantError reports a precondition violation: a bug in the caller,
// not a recoverable runtime condition. Core store operations panic with
// this type rather than return an error.
type InvariantError struct {
	Op  string
	Msg string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("store: invariant violated in %s: %s", e.Op, e.Msg)
}

func invariant(op, format string, args ...any) {
	panic(&InvariantError{Op: op, Msg: fmt.Sprintf(format, args...)})
}
