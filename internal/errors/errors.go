// Package errors provides structured error handling for netscope operations.
// It defines error codes and typed errors for scanning, capture analysis and
// configuration, plus helpers to classify errors by code.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"

	// Targets and ranges supplied by the caller.
	CodeTargetInvalid ErrorCode = "TARGET_INVALID"

	// Capture files.
	CodeFileNotFound       ErrorCode = "FILE_NOT_FOUND"
	CodeFilePermission     ErrorCode = "FILE_PERMISSION"
	CodeCaptureParse       ErrorCode = "CAPTURE_PARSE"
	CodeCaptureUnsupported ErrorCode = "CAPTURE_UNSUPPORTED"
)

// ScanError represents an error that occurred during discovery or port scanning.
type ScanError struct {
	Code      ErrorCode
	Message   string
	Target    string
	Operation string
	Cause     error
	Context   map[string]any
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("[%s] %s (target: %s)", e.Code, e.Message, e.Target)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *ScanError) WithContext(key string, value any) *ScanError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithOperation records which engine operation produced the error.
func (e *ScanError) WithOperation(op string) *ScanError {
	e.Operation = op
	return e
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// NewScanErrorWithTarget creates a scan error for a specific target.
func NewScanErrorWithTarget(code ErrorCode, message, target string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Context: make(map[string]any),
	}
}

// WrapScanError wraps an existing error as a scan error.
func WrapScanError(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Cause:   err,
		Context: make(map[string]any),
	}
}

// CaptureError represents a failure while reading or decoding a capture file.
type CaptureError struct {
	Code    ErrorCode
	Message string
	Path    string
	Frame   int
	Cause   error
}

// Error implements the error interface.
func (e *CaptureError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s (file: %s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *CaptureError) Unwrap() error {
	return e.Cause
}

// WithPath attaches the capture file path.
func (e *CaptureError) WithPath(path string) *CaptureError {
	e.Path = path
	return e
}

// NewCaptureError creates a new capture error.
func NewCaptureError(code ErrorCode, message string) *CaptureError {
	return &CaptureError{Code: code, Message: message}
}

// WrapCaptureError wraps an existing error as a capture error.
func WrapCaptureError(code ErrorCode, message string, err error) *CaptureError {
	return &CaptureError{Code: code, Message: message, Cause: err}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   any
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError reports an invalid configuration field.
func NewConfigError(field, message string, value any) *ConfigError {
	return &ConfigError{
		Code:    CodeConfiguration,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Utility functions for common error operations

// IsCode checks if an error, or any error it wraps, has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// GetCode extracts the error code from the first typed error in the chain.
func GetCode(err error) ErrorCode {
	var scanErr *ScanError
	if stderrors.As(err, &scanErr) {
		return scanErr.Code
	}
	var captureErr *CaptureError
	if stderrors.As(err, &captureErr) {
		return captureErr.Code
	}
	var configErr *ConfigError
	if stderrors.As(err, &configErr) {
		return configErr.Code
	}
	return CodeUnknown
}

// Message returns the user-facing message of err. Typed errors yield their
// Message field; capture parse errors yield the underlying cause so the
// decoder's own description reaches the report.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var captureErr *CaptureError
	if stderrors.As(err, &captureErr) {
		if captureErr.Code == CodeCaptureParse && captureErr.Cause != nil {
			return captureErr.Cause.Error()
		}
		return captureErr.Message
	}
	var scanErr *ScanError
	if stderrors.As(err, &scanErr) {
		return scanErr.Message
	}
	var configErr *ConfigError
	if stderrors.As(err, &configErr) {
		return configErr.Message
	}
	return err.Error()
}

// IsInvocation reports whether err was caused by bad caller input rather
// than by the network or the capture file.
func IsInvocation(err error) bool {
	switch GetCode(err) {
	case CodeValidation, CodeTargetInvalid:
		return true
	default:
		return false
	}
}

// Common error creation functions

// ErrInvalidTarget creates an error for invalid scan targets.
func ErrInvalidTarget(target string) *ScanError {
	return NewScanErrorWithTarget(CodeTargetInvalid, "Invalid target specification", target)
}

// ErrValidation creates an invocation error with the given message.
func ErrValidation(message string) *ScanError {
	return NewScanError(CodeValidation, message)
}

// ErrCanceled wraps a context error raised while an operation was running.
func ErrCanceled(op string, err error) *ScanError {
	code := CodeCanceled
	if stderrors.Is(err, context.DeadlineExceeded) {
		code = CodeTimeout
	}
	return WrapScanError(code, "Operation canceled", err).WithOperation(op)
}

// ErrFileNotFound creates the error reported when a capture file is missing.
func ErrFileNotFound(path string) *CaptureError {
	return NewCaptureError(CodeFileNotFound, "File not found").WithPath(path)
}

// ErrCaptureUnsupported reports a capture whose link layer cannot be decoded.
func ErrCaptureUnsupported(path, linkType string) *CaptureError {
	return NewCaptureError(CodeCaptureUnsupported, fmt.Sprintf("Unsupported link type: %s", linkType)).WithPath(path)
}

// ErrCaptureParse wraps a decoder failure.
func ErrCaptureParse(path string, err error) *CaptureError {
	return WrapCaptureError(CodeCaptureParse, "Failed to parse capture", err).WithPath(path)
}
