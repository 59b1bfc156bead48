package repo

import "fmt"

// NotFoundError reports that an id failed to resolve or was ambiguous.
// It is surfaced verbatim and never auto-resolved.
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }

// NotFoundf builds a NotFoundError.
func NotFoundf(format string, args ...any) error {
	return &NotFoundError{Msg: fmt.Sprintf(format, args...)}
}

// PreconditionError reports a user-actionable validation failure. It is
// always produced before any write; a transaction is never opened after one.
type PreconditionError struct {
	Msg string
}

func (e *PreconditionError) Error() string { return e.Msg }

// Preconditionf builds a PreconditionError.
func Preconditionf(format string, args ...any) error {
	return &PreconditionError{Msg: fmt.Sprintf(format, args...)}
}
