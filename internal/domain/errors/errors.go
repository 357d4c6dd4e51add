package errors

import (
	"errors"
	"net/http"
)

// Domain errors
var (
	ErrNotFound         = errors.New("resource not found")
	ErrExpired          = errors.New("resource expired")
	ErrInvalidCode      = errors.New("invalid link code")
	ErrWalletMismatch   = errors.New("wallet key mismatch")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrFeeTooLow        = errors.New("fee below minimum")
	ErrForbidden        = errors.New("forbidden")
	ErrConflict         = errors.New("resource conflict")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrCallNotAllowed   = errors.New("call not in allow list")
)

// String codes surfaced in error payloads
const (
	CodeNotFound         = "NOT_FOUND"
	CodeExpired          = "EXPIRED"
	CodeInvalidCode      = "INVALID_CODE"
	CodeWalletMismatch   = "WALLET_MISMATCH"
	CodeInvalidSignature = "INVALID_SIGNATURE"
	CodeFeeTooLow        = "FEE_TOO_LOW"
	CodeForbidden        = "FORBIDDEN"
	CodeConflict         = "CONFLICT"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeInternalError    = "INTERNAL_ERROR"
)

// AppError represents an application error with an HTTP status
type AppError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new app error
func NewAppError(status int, code, message string, err error) *AppError {
	return &AppError{
		Status:  status,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func NotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, CodeNotFound, message, ErrNotFound)
}

func BadRequest(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeInvalidInput, message, ErrInvalidInput)
}

func Unauthorized(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeUnauthorized, message, ErrUnauthorized)
}

func Forbidden(message string) *AppError {
	return NewAppError(http.StatusForbidden, CodeForbidden, message, ErrForbidden)
}

func Conflict(message string) *AppError {
	return NewAppError(http.StatusConflict, CodeConflict, message, ErrConflict)
}

func AuthError(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeInvalidSignature, message, ErrInvalidSignature)
}

func FeeTooLow(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeFeeTooLow, message, ErrFeeTooLow)
}

func InternalError(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternalError, "internal server error", err)
}
