package cerr

import (
	"errors"
	"fmt"
	"runtime"
)

// Violation is one field-level problem to be shown to the caller.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the error type crossing the service boundary.
//
// Msg is returned to the caller together with the code; Err stays in the
// logs. Violations enumerate field-level validation failures so a client can
// re-prompt without a round trip per field.
type Error struct {
	Code       Code
	Msg        string
	Err        error
	Stack      string
	Violations []Violation
}

func NewError(code Code, msg string, underlying error) *Error {
	err := &Error{
		Code: code,
		Msg:  msg,
		Err:  underlying,
	}
	if code.severe() {
		stackTrace := make([]byte, 2048)
		n := runtime.Stack(stackTrace, false)
		err.Stack = string(stackTrace[0:n])
	}
	return err
}

func (e *Error) AddViolation(field, message string) *Error {
	e.Violations = append(e.Violations, Violation{Field: field, Message: message})
	return e
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code.String(), e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code.String(), e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IsCode(err error, code Code) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code == code
	}
	return false
}
