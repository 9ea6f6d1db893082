package utils

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// AppError represents an application error with context
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	StackTrace string `json:"stack_trace,omitempty"`
	Cause      error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(code, message string, details ...string) *AppError {
	_, file, line, _ := runtime.Caller(1)

	err := &AppError{
		Code:    code,
		Message: message,
		File:    file,
		Line:    line,
	}

	if len(details) > 0 {
		err.Details = details[0]
	}

	return err
}

// WithStackTrace adds stack trace to the error
func (e *AppError) WithStackTrace() *AppError {
	buf := make([]byte, 1024)
	n := runtime.Stack(buf, false)
	e.StackTrace = string(buf[:n])
	return e
}

// WithCause attaches the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// Common error codes
const (
	ErrCodeConnection        = "CONNECTION_ERROR"
	ErrCodeDatabase          = "DATABASE_ERROR"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodeConfiguration     = "CONFIGURATION_ERROR"
	ErrCodeWalletUnavailable = "WALLET_UNAVAILABLE"
	ErrCodeRemoteCall        = "REMOTE_CALL_ERROR"
	ErrCodeInFlight          = "IN_FLIGHT"
)

// NewConfigurationError reports a missing or invalid configuration field.
// Details carries the field name.
func NewConfigurationError(field, message string) *AppError {
	err := NewAppError(ErrCodeConfiguration, message, field)
	_, err.File, err.Line, _ = runtime.Caller(1)
	return err
}

// NewWalletUnavailableError reports that no usable wallet is present
func NewWalletUnavailableError(message string) *AppError {
	err := NewAppError(ErrCodeWalletUnavailable, message)
	_, err.File, err.Line, _ = runtime.Caller(1)
	return err
}

// NewValidationError reports a local validation failure that never reached the network
func NewValidationError(message string, details ...string) *AppError {
	err := NewAppError(ErrCodeValidation, message, details...)
	_, err.File, err.Line, _ = runtime.Caller(1)
	return err
}

// NewRemoteCallError wraps a failed read or write against the ledger.
// Details carries the remote revert reason when the node returned one.
func NewRemoteCallError(operation string, cause error) *AppError {
	err := NewAppError(ErrCodeRemoteCall, operation+" failed", RevertReason(cause))
	_, err.File, err.Line, _ = runtime.Caller(1)
	err.Cause = cause
	return err
}

// HasCode reports whether err is an AppError with the given code
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// RemoteReason returns the human-readable reason attached to a remote call error
func RemoteReason(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code == ErrCodeRemoteCall {
		return appErr.Details
	}
	return ""
}

// RevertReason extracts a Solidity revert reason from a JSON-RPC error.
// Returns an empty string when the error carries no decodable reason.
func RevertReason(err error) string {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code == ErrCodeRemoteCall && appErr.Details != "" {
		return appErr.Details
	}

	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return reasonFromMessage(err.Error())
	}

	var raw []byte
	switch data := dataErr.ErrorData().(type) {
	case string:
		decoded, decodeErr := hexutil.Decode(data)
		if decodeErr != nil {
			return reasonFromMessage(err.Error())
		}
		raw = decoded
	case []byte:
		raw = data
	default:
		return reasonFromMessage(err.Error())
	}

	reason, unpackErr := abi.UnpackRevert(raw)
	if unpackErr != nil {
		return reasonFromMessage(err.Error())
	}
	return reason
}

const revertPrefix = "execution reverted: "

// reasonFromMessage handles nodes that only report the reason in the error text
func reasonFromMessage(message string) string {
	idx := strings.Index(message, revertPrefix)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(message[idx+len(revertPrefix):])
}
