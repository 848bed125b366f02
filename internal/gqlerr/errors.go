// Package gqlerr defines the typed errors surfaced through the GraphQL
// endpoint. Every type implements Extensions so graphql-go reports a code.
package gqlerr

import (
	"errors"
	"fmt"
)

// Codes reported under extensions.code.
const (
	CodeValidation          = "validation_failed"
	CodeUnauthorized        = "unauthorized"
	CodeStorage             = "storage_error"
	CodeUniqueViolation     = "unique_violation"
	CodeForeignKeyViolation = "foreign_key_violation"
	CodeNotNullViolation    = "not_null_violation"
	CodeAccessDenied        = "access_denied"
)

// ValidationError reports a payload that cannot be applied.
type ValidationError struct {
	Entity  string
	Field   string
	Message string
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(entity, field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Entity: entity, Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Extensions() map[string]interface{} {
	ext := map[string]interface{}{"code": CodeValidation}
	if e.Entity != "" {
		ext["entity"] = e.Entity
	}
	if e.Field != "" {
		ext["field"] = e.Field
	}
	return ext
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// AuthorizationError wraps a rejection from the authorization collaborator.
type AuthorizationError struct {
	Err error
}

// Unauthorized wraps err as an AuthorizationError. A nil err yields a
// generic rejection.
func Unauthorized(err error) *AuthorizationError {
	if err == nil {
		err = errors.New("not authorized")
	}
	return &AuthorizationError{Err: err}
}

func (e *AuthorizationError) Error() string {
	return e.Err.Error()
}

func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

func (e *AuthorizationError) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": CodeUnauthorized}
}

// IsAuthorizationError reports whether err wraps an AuthorizationError.
func IsAuthorizationError(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}

// StorageError wraps a failure returned by the storage collaborator.
type StorageError struct {
	Op     string
	Entity string
	Code   string
	// Number is the driver error number when known.
	Number uint16
	Err    error
}

func (e *StorageError) Error() string {
	return e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Extensions() map[string]interface{} {
	code := e.Code
	if code == "" {
		code = CodeStorage
	}
	ext := map[string]interface{}{"code": code}
	if e.Op != "" {
		ext["operation"] = e.Op
	}
	if e.Entity != "" {
		ext["entity"] = e.Entity
	}
	if e.Number != 0 {
		ext["number"] = int(e.Number)
	}
	return ext
}

// IsStorageError reports whether err wraps a StorageError.
func IsStorageError(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}

// PolicyWarning is a non-fatal condition, such as a transaction requested
// while transactions are disabled. It is logged rather than returned.
type PolicyWarning struct {
	Message string
}

func (w PolicyWarning) Error() string {
	return w.Message
}
