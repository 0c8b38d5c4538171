// Package apperr defines the failure taxonomy shared by the bookworm services.
//
// Every service returns a *ServiceError whose code has the form
// "<package>.<operation>.<reason>" and whose kind is one of the sentinel
// errors below. errors.Is matches both the kind and the underlying cause.
package apperr

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrDuplicateIdentity  = errors.New("duplicate identity")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyInList      = errors.New("already in list")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrInvalidRating      = errors.New("invalid rating")
	ErrDuplicateName      = errors.New("duplicate name")
	ErrAlreadyMember      = errors.New("already member")
	ErrIllegalTransition  = errors.New("illegal transition")
	ErrAccessDenied       = errors.New("access denied")
	ErrNotFound           = errors.New("not found")
	ErrEmptyMessage       = errors.New("empty message")
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	ErrInvalidBook        = errors.New("invalid book")
	ErrInvalidDomain      = errors.New("invalid domain")
	ErrInvalidProgress    = errors.New("invalid progress")
	ErrInvalidInput       = errors.New("invalid input")

	// ErrInternal marks failures the caller could not have avoided: store
	// outages, driver errors, hashing failures.
	ErrInternal = errors.New("internal failure")
)

var kinds = []error{
	ErrDuplicateIdentity,
	ErrInvalidCredentials,
	ErrAlreadyInList,
	ErrInvalidStatus,
	ErrInvalidRating,
	ErrDuplicateName,
	ErrAlreadyMember,
	ErrIllegalTransition,
	ErrAccessDenied,
	ErrNotFound,
	ErrEmptyMessage,
	ErrCatalogUnavailable,
	ErrInvalidBook,
	ErrInvalidDomain,
	ErrInvalidProgress,
	ErrInvalidInput,
}

// ServiceError carries a machine-readable code, a taxonomy kind and an optional cause.
type ServiceError struct {
	code  string
	kind  error
	cause error
}

func (e *ServiceError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %v", e.code, e.kind)
	}
	return fmt.Sprintf("%s: %v", e.code, e.cause)
}

func (e *ServiceError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

func (e *ServiceError) Code() string {
	return e.code
}

func (e *ServiceError) Kind() error {
	return e.kind
}

// New builds a ServiceError with the code "<operation>.<reason>".
func New(operation, reason string, kind, cause error) error {
	if kind == nil {
		kind = ErrInternal
	}
	return &ServiceError{
		code:  fmt.Sprintf("%s.%s", operation, reason),
		kind:  kind,
		cause: cause,
	}
}

// Reject reports an expected, input-driven failure.
func Reject(operation, reason string, kind error) error {
	return New(operation, reason, kind, nil)
}

// Internal reports an unexpected failure wrapping cause.
func Internal(operation, reason string, cause error) error {
	return New(operation, reason, ErrInternal, cause)
}

// KindOf returns the taxonomy kind of err, or ErrInternal when err carries none.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.kind
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrInternal
}

// CodeOf returns the service code attached to err, if any.
func CodeOf(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.code
	}
	return ""
}

// IsRejection reports whether err means "the input was rejected" as opposed to
// "the system could not complete the operation".
func IsRejection(err error) bool {
	if err == nil {
		return false
	}
	kind := KindOf(err)
	return kind != ErrInternal && kind != ErrCatalogUnavailable
}

// IsUnavailable reports whether err comes from an upstream dependency that could not answer.
func IsUnavailable(err error) bool {
	return err != nil && KindOf(err) == ErrCatalogUnavailable
}

// IsDuplicateKey reports whether a store error is a unique or primary key violation.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") || strings.Contains(message, "duplicate key")
}

// IsForeignKeyViolation reports whether a store error references a missing parent row.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "foreign key constraint") || strings.Contains(message, "violates foreign key")
}
