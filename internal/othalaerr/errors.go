// Package othalaerr defines the structured error type used at every
// exported boundary in Othala: CLI output, event payloads, and the status
// surface returned to operators.
package othalaerr

import (
	"errors"
	"fmt"
)

// Category buckets an error for the caller, independent of its message.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryNotFound   Category = "not_found"
	CategoryConflict   Category = "conflict"
	CategoryExternal   Category = "external"
	CategoryInternal   Category = "internal"
)

// Error is the structured error carried across package boundaries.
type Error struct {
	Code     string
	Category Category
	What     string
	Why      string
	Fix      string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.What, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.What)
}

func (e *Error) Unwrap() error { return e.Cause }

// UserMessage renders a short operator-facing string, including the fix
// hint when one is set.
func (e *Error) UserMessage() string {
	if e.Fix != "" {
		return fmt.Sprintf("%s (%s)", e.What, e.Fix)
	}
	return e.What
}

func New(code string, category Category, what string) *Error {
	return &Error{Code: code, Category: category, What: what}
}

func (e *Error) WithWhy(why string) *Error {
	e.Why = why
	return e
}

func (e *Error) WithFix(fix string) *Error {
	e.Fix = fix
	return e
}

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// Wrap attaches code/category/what to an existing error as its cause.
func Wrap(cause error, code string, category Category, what string) *Error {
	return &Error{Code: code, Category: category, What: what, Cause: cause}
}

// As reports whether err (or any error in its chain) is an *Error, and if
// so returns it.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Common, reused error constructors for the state machine and pipeline.

func ErrNotFound(kind, id string) *Error {
	return New("not_found", CategoryNotFound, fmt.Sprintf("%s %q not found", kind, id))
}

func ErrInvalidTransition(from, trigger string) *Error {
	return New("invalid_transition", CategoryValidation,
		fmt.Sprintf("no legal transition from %s on trigger %s", from, trigger))
}

func ErrCyclicDependency(taskID string) *Error {
	return New("cyclic_dependency", CategoryValidation,
		fmt.Sprintf("task %s participates in a depends_on cycle", taskID)).
		WithFix("remove one of the edges forming the cycle")
}
