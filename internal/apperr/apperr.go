package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an engine failure so the HTTP layer can map it to a status
// without inspecting messages.
type Code string

const (
	CodeFormat            Code = "FORMAT"
	CodeInvalid           Code = "INVALID"
	CodeNotFound          Code = "NOT_FOUND"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeConflict          Code = "CONFLICT"
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	CodeInternal          Code = "INTERNAL"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Format(message string) *Error            { return New(CodeFormat, message) }
func Invalid(message string) *Error           { return New(CodeInvalid, message) }
func NotFound(message string) *Error          { return New(CodeNotFound, message) }
func Unauthorized(message string) *Error      { return New(CodeUnauthorized, message) }
func Forbidden(message string) *Error         { return New(CodeForbidden, message) }
func Conflict(message string) *Error          { return New(CodeConflict, message) }
func InsufficientFunds(message string) *Error { return New(CodeInsufficientFunds, message) }

// Internal wraps an unexpected error. The original error stays attached for
// logging; callers must never serialize it to clients.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "Something went wrong", Err: err}
}

// CodeOf returns the classification of err, or CodeInternal for plain errors.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// HTTPStatus maps a failure code onto the status convention used by the API.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeFormat, CodeInvalid, CodeInsufficientFunds:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
