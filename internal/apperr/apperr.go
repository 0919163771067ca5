// Package apperr defines the error kinds the service layer reports and the
// HTTP layer maps to transport responses. Errors are created with a kind and
// compared with errors.Is, so wrapping with fmt.Errorf("%w") is safe.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a sentinel the taxonomy hangs off.
type Kind struct{ name string }

func (k *Kind) Error() string { return k.name }

var (
	// NotFound: account, transaction or card does not exist (or is deleted).
	NotFound = &Kind{"not found"}
	// Forbidden: the actor lacks the required permission level.
	Forbidden = &Kind{"forbidden"}
	// Validation: the request contradicts a domain rule.
	Validation = &Kind{"validation"}
	// Conflict: a uniqueness constraint was violated (duplicate tag etc.).
	Conflict = &Kind{"conflict"}
)

type appError struct {
	kind *Kind
	msg  string
}

func (e *appError) Error() string { return e.msg }

func (e *appError) Is(target error) bool { return target == e.kind }

// New creates an error of the given kind.
func New(kind *Kind, msg string) error {
	return &appError{kind: kind, msg: msg}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind *Kind, format string, args ...any) error {
	return &appError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err belongs to kind, unwrapping as needed.
func IsKind(err error, kind *Kind) bool {
	return errors.Is(err, kind)
}
