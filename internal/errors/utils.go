package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context, creating a ServerError if the
// input is not already one. Path and location are kept from an inner
// ServerError.
func Wrap(err error, errType ErrorType, code, message string) *ServerError {
	if err == nil {
		return nil
	}

	var se *ServerError
	if errors.As(err, &se) {
		return &ServerError{
			Type:    errType,
			Code:    code,
			Message: message,
			Cause:   err,
			Path:    se.Path,
			Line:    se.Line,
			Column:  se.Column,
		}
	}

	return &ServerError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WrapTemplate wraps an error as a template error for the given file.
func WrapTemplate(err error, code, path string) *ServerError {
	se := Wrap(err, ErrorTypeTemplate, code, "template failed")
	if se != nil && se.Path == "" {
		se.Path = path
	}

	return se
}

// WrapIO wraps an error as an I/O error.
func WrapIO(err error, code, message string) *ServerError {
	return Wrap(err, ErrorTypeIO, code, message)
}

// RecoveredError converts a value obtained from recover into an error.
func RecoveredError(r interface{}) error {
	switch v := r.(type) {
	case nil:
		return nil
	case error:
		return v
	default:
		return NewInternalError("panic", fmt.Errorf("%v", v))
	}
}
