// Package access holds the authorization error taxonomy, the per-operation
// role policy and the ownership rule for owned sub-resources.
package access

import (
	"errors"
	"net/http"
)

// Kinds. Every *Error unwraps to exactly one of these.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrBadRequest      = errors.New("bad request")
	ErrConflict        = errors.New("conflict")
)

// Machine-readable codes carried in error responses.
const (
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeInsufficientRole   = "INSUFFICIENT_ROLE"
	CodeMissingTenantClaim = "MISSING_TENANT_CLAIM"
	CodeUnknownOperation   = "UNKNOWN_OPERATION"
	CodeNotOwner           = "NOT_OWNER"
	CodeNotFound           = "NOT_FOUND"
	CodeValidation         = "VALIDATION_FAILED"
	CodeConflict           = "CONFLICT"
)

// Error is a classified failure with a client-facing message.
type Error struct {
	Kind    error
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error { return e.Kind }

// ErrorCode implements response.StatusError.
func (e *Error) ErrorCode() string { return e.Code }

// HTTPStatus implements response.StatusError.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case ErrUnauthenticated:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBadRequest:
		return http.StatusBadRequest
	case ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func Unauthenticated(msg string) error {
	return &Error{Kind: ErrUnauthenticated, Code: CodeUnauthenticated, Message: msg}
}

func Forbidden(code, msg string) error {
	return &Error{Kind: ErrForbidden, Code: code, Message: msg}
}

// NotFound is returned for absent resources and for resources owned by
// another tenant alike.
func NotFound(msg string) error {
	return &Error{Kind: ErrNotFound, Code: CodeNotFound, Message: msg}
}

func BadRequest(msg string) error {
	return &Error{Kind: ErrBadRequest, Code: CodeValidation, Message: msg}
}

func Conflict(msg string) error {
	return &Error{Kind: ErrConflict, Code: CodeConflict, Message: msg}
}

// IsKind reports whether err is classified as kind.
func IsKind(err, kind error) bool {
	return errors.Is(err, kind)
}
