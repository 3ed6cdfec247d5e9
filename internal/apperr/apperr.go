// Package apperr is the error taxonomy shared by every engine component.
// All kinds are per-request and recoverable by the caller.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation            Kind = "validation_error"
	KindPermission            Kind = "permission_denied"
	KindNotFound              Kind = "not_found"
	KindReferentialProtection Kind = "referential_protection"
	KindConflict              Kind = "conflict"
	KindUnauthenticated       Kind = "unauthenticated"
	KindInternal              Kind = "internal_error"
)

// FieldError is used to indicate an error with a specific input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the kind onto the HTTP status the transport layer should use.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindPermission:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindReferentialProtection, KindConflict:
		return http.StatusConflict
	case KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func Validation(msg string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// Field builds a single-field ValidationError.
func Field(field, msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: []FieldError{{Field: field, Error: msg}}}
}

func Permission(reason string) *Error {
	return &Error{Kind: KindPermission, Message: reason}
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", what)}
}

func ReferentialProtection(msg string) *Error {
	return &Error{Kind: KindReferentialProtection, Message: msg}
}

func Conflict(msg string, err error) *Error {
	return &Error{Kind: KindConflict, Message: msg, Err: err}
}

func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf returns the taxonomy kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As converts any error into an *Error, wrapping foreign errors as internal.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
