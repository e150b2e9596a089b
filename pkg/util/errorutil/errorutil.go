package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-readable category of a DomainError.
type Kind string

const (
	KindValidation         Kind = "VALIDATION_FAILED"
	KindInvalidCredentials Kind = "INVALID_CREDENTIALS"
	KindNotFound           Kind = "NOT_FOUND"
	KindExpired            Kind = "EXPIRED"
	KindEmailNotVerified   Kind = "EMAIL_NOT_VERIFIED"
	KindUnauthorized       Kind = "UNAUTHORIZED"
	KindForbidden          Kind = "FORBIDDEN"
	KindRateLimited        Kind = "RATE_LIMITED"
	KindInternal           Kind = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       Kind
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

// Is matches another DomainError by kind so callers can use errors.Is with the sentinels below.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Message == "" && other.Code == e.Code
}

// Sentinels for errors.Is checks; they only carry a kind.
var (
	ErrValidation         = &DomainError{Code: KindValidation}
	ErrInvalidCredentials = &DomainError{Code: KindInvalidCredentials}
	ErrNotFound           = &DomainError{Code: KindNotFound}
	ErrExpired            = &DomainError{Code: KindExpired}
	ErrEmailNotVerified   = &DomainError{Code: KindEmailNotVerified}
	ErrForbidden          = &DomainError{Code: KindForbidden}
)

// NewDomainError constructs a DomainError.
func NewDomainError(code Kind, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(KindValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       KindNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewNotFoundMessage is NewNotFound with a caller-chosen message.
func NewNotFoundMessage(message string) error {
	return NewDomainError(KindNotFound, message, http.StatusNotFound, nil)
}

func NewInvalidCredentials() error {
	return NewDomainError(KindInvalidCredentials, "invalid email or password", http.StatusBadRequest, nil)
}

func NewExpired(message string) error {
	return NewDomainError(KindExpired, message, http.StatusBadRequest, nil)
}

func NewEmailNotVerified(message string) error {
	return NewDomainError(KindEmailNotVerified, message, http.StatusForbidden, nil)
}

func NewUnauthorized(message string) error {
	return NewDomainError(KindUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(KindForbidden, message, http.StatusForbidden, nil)
}

func NewRateLimited() error {
	return NewDomainError(KindRateLimited, "too many requests", http.StatusTooManyRequests, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       KindInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// KindOf reports the kind of err, or KindInternal for anything that is not a DomainError.
func KindOf(err error) Kind {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return KindInternal
}

// WithStatus returns a copy of a DomainError answering with a different HTTP status.
// Non-domain errors are returned unchanged.
func WithStatus(err error, status int) error {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return err
	}
	cp := *domainErr
	cp.HTTPStatus = status
	return &cp
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		if domainErr.HTTPStatus == 0 {
			cp := *domainErr
			cp.HTTPStatus = http.StatusInternalServerError
			return &cp
		}
		return domainErr
	}
	return &DomainError{
		Code:       KindInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
