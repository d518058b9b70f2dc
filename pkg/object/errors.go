package object

import (
	"errors"
	"fmt"
)

// ErrInvariantViolation is wrapped by every InvariantError.
var ErrInvariantViolation = errors.New("object lifecycle invariant violated")

// InvariantError describes a reference-counting violation. It is raised by
// panicking; the object graph is already inconsistent when it happens.
type InvariantError struct {
	Op       string // "acquire", "release" or "destroy"
	ClassID  string
	Owner    Module
	Consumer Module
	Count    int64 // reference count observed when the violation was detected
	Reason   string
}

func (e *InvariantError) Error() string {
	class := e.ClassID
	if class == "" {
		class = "<anonymous>"
	}
	return fmt.Sprintf("%s %s (owner %s, consumer %s, refs %d): %s",
		e.Op, class, e.Owner, e.Consumer, e.Count, e.Reason)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariantViolation
}

// IsInvariant reports whether a recovered panic value is an invariant
// violation. Code that recovers panics from module calls uses it to re-raise
// violations instead of swallowing them.
func IsInvariant(r any) bool {
	err, ok := r.(error)
	if !ok {
		return false
	}
	return errors.Is(err, ErrInvariantViolation)
}
