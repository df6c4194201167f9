package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("resource not found")

	ErrInvalidArgument = errors.New("invalid argument")

	ErrValidation = errors.New("validation failed")

	ErrDatabase = errors.New("database error")

	ErrInternalServer = errors.New("internal server error")

	ErrCopyUnavailable = errors.New("copy is not available for checkout")

	ErrMembershipExpired = errors.New("membership is not valid at this time")

	ErrMemberBanned = errors.New("member is banned")

	ErrLoanLimitReached = errors.New("member reached the concurrent loan limit")

	ErrNoActiveLoan = errors.New("no active loan for this copy")

	ErrRenewalLimitReached = errors.New("loan reached the renewal limit")

	ErrLoanOverdue = errors.New("loan is overdue and cannot be renewed")

	ErrUnauthorized = errors.New("unauthorized")

	ErrForbidden = errors.New("forbidden")

	ErrConflict = errors.New("resource conflict")
)

type ValidationError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

func NewValidationError(field, message string) error {

	return fmt.Errorf("%w: %w", ErrValidation, &ValidationError{Field: field, Message: message})
}

// BanError carries the administrative cause recorded when the member was
// banned, so callers can show it to the operator.
type BanError struct {
	Cause string
}

func (e *BanError) Error() string {
	if e.Cause == "" {
		return "member is banned"
	}
	return fmt.Sprintf("member is banned: %s", e.Cause)
}

func (e *BanError) Unwrap() error {
	return ErrMemberBanned
}

func NewBanError(cause string) error {
	return &BanError{Cause: cause}
}

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func WrapDatabaseError(cause error, message string) error {
	return &AppError{
		Code:    "DB_ERROR",
		Message: message,
		Cause:   fmt.Errorf("%w: %w", ErrDatabase, cause),
	}
}
