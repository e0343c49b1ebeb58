package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the category an error belongs to. Each category maps
// onto a single HTTP status when the error reaches a connection handler.
type ErrorType string

const (
	ErrorTypeProtocol   ErrorType = "protocol"
	ErrorTypePath       ErrorType = "path"
	ErrorTypeTemplate   ErrorType = "template"
	ErrorTypeArithmetic ErrorType = "arithmetic"
	ErrorTypeUsage      ErrorType = "usage"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeMalformedRequest = "ERR_MALFORMED_REQUEST"
	ErrCodeUnsupported      = "ERR_UNSUPPORTED"
	ErrCodeRequestTimeout   = "ERR_REQUEST_TIMEOUT"
	ErrCodeBadHost          = "ERR_BAD_HOST"
	ErrCodePathTraversal    = "ERR_PATH_TRAVERSAL"
	ErrCodeNotFound         = "ERR_NOT_FOUND"
	ErrCodeParse            = "ERR_TEMPLATE_PARSE"
	ErrCodeExecution        = "ERR_TEMPLATE_EXEC"
	ErrCodeCoercion         = "ERR_COERCION"
	ErrCodeDivideByZero     = "ERR_DIVIDE_BY_ZERO"
	ErrCodeOverflow         = "ERR_OVERFLOW"
	ErrCodeHeaderCommitted  = "ERR_HEADER_COMMITTED"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeBacklogFull      = "ERR_BACKLOG_FULL"
	ErrCodeInternal         = "ERR_INTERNAL"
)

// Sentinels usable with errors.Is against any ServerError of the same
// type and code.
var (
	ErrMalformedRequest = &ServerError{Type: ErrorTypeProtocol, Code: ErrCodeMalformedRequest}
	ErrRequestTimeout   = &ServerError{Type: ErrorTypeProtocol, Code: ErrCodeRequestTimeout}
	ErrForbidden        = &ServerError{Type: ErrorTypePath, Code: ErrCodePathTraversal}
	ErrNotFound         = &ServerError{Type: ErrorTypePath, Code: ErrCodeNotFound}
	ErrBacklogFull      = &ServerError{Type: ErrorTypeInternal, Code: ErrCodeBacklogFull}
	ErrOverflow         = &ServerError{Type: ErrorTypeArithmetic, Code: ErrCodeOverflow}
)

// ServerError is a structured error type with request context.
type ServerError struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Path    string
	Line    int
	Column  int
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Path != "" || e.Line > 0 {
		location := e.Path
		if e.Line > 0 {
			if location != "" {
				location += ":"
			}
			location += fmt.Sprintf("%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *ServerError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison on type and code.
func (e *ServerError) Is(target error) bool {
	var t *ServerError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithLocation adds source position information.
func (e *ServerError) WithLocation(path string, line, column int) *ServerError {
	e.Path = path
	e.Line = line
	e.Column = column

	return e
}

// NewProtocolError creates an error for a malformed or unsupported request.
func NewProtocolError(code, message string) *ServerError {
	return &ServerError{Type: ErrorTypeProtocol, Code: code, Message: message}
}

// NewForbiddenError creates an error for a path escaping the document root.
func NewForbiddenError(path string) *ServerError {
	return &ServerError{
		Type:    ErrorTypePath,
		Code:    ErrCodePathTraversal,
		Message: "path escapes document root",
		Path:    path,
	}
}

// NewNotFoundError creates an error for an unknown path, handler or file.
func NewNotFoundError(path string, cause error) *ServerError {
	return &ServerError{
		Type:    ErrorTypePath,
		Code:    ErrCodeNotFound,
		Message: "resource not found",
		Path:    path,
		Cause:   cause,
	}
}

// NewTemplateError creates a template parse or execution error.
func NewTemplateError(code, message string, cause error) *ServerError {
	return &ServerError{Type: ErrorTypeTemplate, Code: code, Message: message, Cause: cause}
}

// NewArithmeticError creates a coercion or arithmetic error.
func NewArithmeticError(code, message string) *ServerError {
	return &ServerError{Type: ErrorTypeArithmetic, Code: code, Message: message}
}

// NewConfigError creates a configuration error.
func NewConfigError(message string, cause error) *ServerError {
	return &ServerError{Type: ErrorTypeConfig, Code: ErrCodeConfigInvalid, Message: message, Cause: cause}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *ServerError {
	return &ServerError{Type: ErrorTypeIO, Code: code, Message: message, Cause: cause}
}

// NewInternalError creates an internal error.
func NewInternalError(message string, cause error) *ServerError {
	return &ServerError{Type: ErrorTypeInternal, Code: ErrCodeInternal, Message: message, Cause: cause}
}

// IsType reports whether err is a ServerError of the given type.
func IsType(err error, t ErrorType) bool {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Type == t
	}

	return false
}

// StatusCode maps an error onto the HTTP status the connection answers with.
func StatusCode(err error) int {
	if err == nil {
		return 200
	}

	switch {
	case errors.Is(err, ErrForbidden):
		return 403
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrBacklogFull):
		return 503
	case errors.Is(err, ErrRequestTimeout):
		return 408
	case IsType(err, ErrorTypeProtocol):
		return 400
	default:
		return 500
	}
}

// UsageError reports a programming error, such as changing response metadata
// after the header was emitted. It is raised with panic.
type UsageError struct {
	Op      string
	Message string
}

// Error implements the error interface.
func (e *UsageError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", ErrCodeHeaderCommitted, e.Op, e.Message)
}

// Is lets errors.Is match any usage error.
func (e *UsageError) Is(target error) bool {
	_, ok := target.(*UsageError)

	return ok
}

// MustNotCommit panics with a UsageError when committed is set.
func MustNotCommit(committed bool, op string) {
	if committed {
		panic(&UsageError{Op: op, Message: "response header already generated"})
	}
}
