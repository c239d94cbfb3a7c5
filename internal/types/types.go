// Package types holds the AppError scheme the transport layer maps to
// HTTP status codes and wire error bodies.
package types

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrUnauthorized ErrorCode = "unauthorized"
	ErrForbidden    ErrorCode = "forbidden"
	ErrBadRequest   ErrorCode = "bad_request"
	ErrConflict     ErrorCode = "conflict"
	ErrInternal     ErrorCode = "internal"
	ErrNotFound     ErrorCode = "not_found"
	ErrRateLimited  ErrorCode = "rate_limited"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func NewError(code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

func WrapError(code ErrorCode, msg string, err error) *AppError {
	return &AppError{Code: code, Message: msg, Err: err}
}

func Is(err error, code ErrorCode) bool {
	var app *AppError
	if errors.As(err, &app) {
		return app.Code == code
	}
	return false
}
