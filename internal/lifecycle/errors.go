package lifecycle

import (
	"errors"
	"net/http"
)

// Code classifies why a transition was refused.
type Code string

const (
	CodeValidation      Code = "VALIDATION"
	CodeNotFound        Code = "NOT_FOUND"
	CodeAlreadyStarted  Code = "ALREADY_STARTED"
	CodeNotStarted      Code = "NOT_STARTED"
	CodeCompleted       Code = "EVENT_COMPLETED"
	CodeNoActiveSession Code = "NO_ACTIVE_SESSION"
	CodeNoPendingRecord Code = "NO_PENDING_RECORD"
	CodeNoActiveRecord  Code = "NO_ACTIVE_RECORD"
	CodeWindowExpired   Code = "WINDOW_EXPIRED"
)

// Error is a refused transition. Anything else coming out of the engine
// is a persistence failure.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// HTTPStatus maps the code to the status the API reports.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeNotFound, CodeNoActiveSession, CodeNoPendingRecord, CodeNoActiveRecord:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

// AsError unwraps a lifecycle error from err, if there is one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func newError(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}
