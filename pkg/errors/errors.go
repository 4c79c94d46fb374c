package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error
type Kind int

// Error kinds surfaced by the scheduling core
const (
	KindNotFound Kind = iota + 1000
	KindInvalidInput
	KindInvalidState
	KindConflict
	KindUpstream
	KindStore
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindInvalidState:
		return "invalid_state"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	case KindStore:
		return "store_error"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// AppError represents an application error
type AppError struct {
	Kind    Kind   `json:"code"`
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

// Is matches any *AppError of the same kind, so sentinel comparisons like
// errors.Is(err, ErrConflict) work regardless of message.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// HTTPStatus maps the error kind onto a response status code.
func (e *AppError) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput, KindInvalidState:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text that may be shown to API clients. Store errors
// never leak their cause.
func (e *AppError) PublicMessage() string {
	if e.Kind == KindStore {
		return "internal server error"
	}
	return e.Message
}

// Sentinels for errors.Is checks
var (
	ErrNotFound     = &AppError{Kind: KindNotFound}
	ErrInvalidInput = &AppError{Kind: KindInvalidInput}
	ErrInvalidState = &AppError{Kind: KindInvalidState}
	ErrConflict     = &AppError{Kind: KindConflict}
	ErrUpstream     = &AppError{Kind: KindUpstream}
	ErrStore        = &AppError{Kind: KindStore}
)

// Error constructors
func NotFound(resource string, err error) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func InvalidInput(message string, err error) *AppError {
	return &AppError{Kind: KindInvalidInput, Message: message, Err: err}
}

func InvalidState(message string) *AppError {
	return &AppError{Kind: KindInvalidState, Message: message}
}

func Conflict(message string) *AppError {
	return &AppError{Kind: KindConflict, Message: message}
}

func Upstream(message string, err error) *AppError {
	return &AppError{Kind: KindUpstream, Message: message, Err: err}
}

func Store(err error) *AppError {
	return &AppError{Kind: KindStore, Message: "store error", Err: err}
}

func Unauthorized(message string, err error) *AppError {
	return &AppError{Kind: KindUnauthorized, Message: message, Err: err}
}

// As returns the *AppError inside err, wrapping anything else as a store error.
func As(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Store(err)
}
