package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Stream error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrColorConflict  ErrorCode = "COLOR_CONFLICT"  // 409
	ErrConflict       ErrorCode = "CONFLICT"        // 409
	ErrPersistence    ErrorCode = "PERSISTENCE"     // 502
	ErrConnectivity   ErrorCode = "CONNECTIVITY"    // 503
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// StreamError represents a structured error with code, status, and details.
type StreamError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// cause is the underlying error, if any. Not serialized.
	cause error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause so errors.Is/As can see through it.
func (e *StreamError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *StreamError {
	return &StreamError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for an entity that cannot be found.
// kind is the entity type ("prompt", "stack", "tag color").
func NewNotFound(kind, identifier string) *StreamError {
	return &StreamError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewColorConflict creates a 409 error when a colour is already bound to another tag.
func NewColorConflict(tag, owner string, hue, lightness int) *StreamError {
	return &StreamError{
		Code:    ErrColorConflict,
		Status:  409,
		Message: "That color is already used by another tag.",
		Details: map[string]any{"tag": tag, "owner": owner, "hue": hue, "lightness": lightness},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *StreamError {
	return &StreamError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewPersistence creates a 502 error for a failed backend write.
func NewPersistence(op string, err error) *StreamError {
	msg := op + " failed"
	if err != nil {
		msg = fmt.Sprintf("%s failed: %v", op, err)
	}
	return &StreamError{
		Code:    ErrPersistence,
		Status:  502,
		Message: msg,
		Details: map[string]any{"op": op},
		cause:   err,
	}
}

// NewConnectivity creates a 503 error when the backend cannot be reached.
func NewConnectivity(err error) *StreamError {
	msg := "API connection failed"
	if err != nil {
		msg = fmt.Sprintf("API connection failed: %v", err)
	}
	return &StreamError{
		Code:    ErrConnectivity,
		Status:  503,
		Message: msg,
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *StreamError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &StreamError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error is (or wraps) a StreamError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *StreamError
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}

// As returns the StreamError in err's chain, if any.
func As(err error) (*StreamError, bool) {
	var sErr *StreamError
	if stderrors.As(err, &sErr) {
		return sErr, true
	}
	return nil, false
}
