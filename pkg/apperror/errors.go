package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Is reports whether err carries an AppError with the given code.
func Is(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

const (
	CodeAdapterUnavailable   = "ADP_001"
	CodeInvalidCursor        = "ADP_002"
	CodeMalformedRecord      = "TX_001"
	CodeTransactionNotFound  = "TX_404"
	CodeAlertNotFound        = "ALR_001"
	CodeWalletNotFound       = "WLT_001"
	CodePermanentUnitFailure = "UNIT_001"
	CodeUnitBusy             = "UNIT_002"
	CodeUnitTimeout          = "UNIT_003"
	CodeStorageFailure       = "STO_001"
	CodeRateLimitExceeded    = "RATE_001"
	CodeValidation           = "VAL_001"
	CodeInternal             = "SYS_001"
)

// ---- Chain Adapter (ADP) ----

func ErrAdapterUnavailable(err error) *AppError {
	return Wrap(CodeAdapterUnavailable, "Chain adapter unavailable", http.StatusServiceUnavailable, err)
}

func ErrInvalidCursor(err error) *AppError {
	return Wrap(CodeInvalidCursor, "Cursor rejected by chain adapter", http.StatusConflict, err)
}

// ---- Ingestion (TX) ----

// ErrMalformedRecord names the offending field so skips stay diagnosable.
func ErrMalformedRecord(field string, err error) *AppError {
	return Wrap(CodeMalformedRecord, fmt.Sprintf("Malformed record: %s", field), http.StatusUnprocessableEntity, err)
}

// ---- Lookups ----

func ErrAlertNotFound() *AppError {
	return New(CodeAlertNotFound, "Alert not found", http.StatusNotFound)
}

func ErrWalletNotFound() *AppError {
	return New(CodeWalletNotFound, "Wallet not found", http.StatusNotFound)
}

func ErrTransactionNotFound() *AppError {
	return New(CodeTransactionNotFound, "Transaction not found", http.StatusNotFound)
}

// ---- Sync units (UNIT) ----

func ErrPermanentUnitFailure(reason string) *AppError {
	return New(CodePermanentUnitFailure, reason, http.StatusConflict)
}

func ErrUnitBusy() *AppError {
	return New(CodeUnitBusy, "Sync unit is already running", http.StatusConflict)
}

func ErrUnitTimeout() *AppError {
	return New(CodeUnitTimeout, "Sync unit timed out", http.StatusGatewayTimeout)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (STO/SYS) ----

// ErrStorageFailure marks errors from the durable stores. The orchestrator
// treats these as fatal to the process.
func ErrStorageFailure(err error) *AppError {
	return Wrap(CodeStorageFailure, "Storage unavailable", http.StatusServiceUnavailable, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a VAL_001 validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}
