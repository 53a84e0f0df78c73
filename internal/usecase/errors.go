package usecase

import "fmt"

type ErrorCode string

const (
	ErrorCollaborator ErrorCode = "COLLABORATOR_FAILURE"
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
)

// Error is returned by every orchestrator operation. Err is the collaborator
// error exactly as it was returned, so errors.Is and errors.As see through it.
type Error struct {
	Code   ErrorCode
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s %s (%s)", e.Op, e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s %s (%s): %v", e.Op, e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, op, reason string, err error) *Error {
	return &Error{Code: code, Op: op, Reason: reason, Err: err}
}
