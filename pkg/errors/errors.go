package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// StatusCode maps the kind onto an HTTP status
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// AppError represents an application error
type AppError struct {
	Kind    Kind   `json:"-"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode lets the error middleware pick a status without importing this package
func (e *AppError) StatusCode() int {
	return e.Kind.StatusCode()
}

func Validation(message string) *AppError {
	return &AppError{Kind: KindValidation, Message: message}
}

func Unauthorized(message string, err error) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{Kind: KindUnauthorized, Message: message, Err: err}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", resource), Err: err}
}

func Conflict(message string, err error) *AppError {
	return &AppError{Kind: KindConflict, Message: message, Err: err}
}

func Internal(err error) *AppError {
	return &AppError{Kind: KindInternal, Message: "internal server error", Err: err}
}

// KindOf reports the kind of err, KindInternal for anything that is not an AppError
func KindOf(err error) Kind {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err is an AppError of kind k
func Is(err error, k Kind) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Kind == k
}
