package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes shared by the store, the schedulers and the admin API.
const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeDuplicateKey       = "DUPLICATE_KEY"
	CodeConflict           = "CONFLICT"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeTransientExternal  = "TRANSIENT_EXTERNAL"
	CodeInvariantViolation = "INVARIANT_VIOLATION"
	CodeInternal           = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewDuplicateKey reports an identifier collision on creation.
func NewDuplicateKey(resource string, details map[string]any, err error) error {
	return &DomainError{
		Code:       CodeDuplicateKey,
		Message:    fmt.Sprintf("%s already exists", resource),
		HTTPStatus: http.StatusConflict,
		Details:    details,
		Err:        err,
	}
}

// NewTransientExternal wraps a collaborator failure that the next tick retries.
func NewTransientExternal(operation string, err error) error {
	return &DomainError{
		Code:       CodeTransientExternal,
		Message:    fmt.Sprintf("%s failed", operation),
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewInvariantViolation reports a guard that lost a race; callers log it and move on.
func NewInvariantViolation(message string, details map[string]any) error {
	return NewDomainError(CodeInvariantViolation, message, http.StatusConflict, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

func IsDuplicateKey(err error) bool {
	return HasCode(err, CodeDuplicateKey)
}

func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

func IsTransient(err error) bool {
	return HasCode(err, CodeTransientExternal)
}

func IsInvariantViolation(err error) bool {
	return HasCode(err, CodeInvariantViolation)
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
