package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"

	// Path resolution errors
	ErrParentMissing ErrorCode = "PARENT_MISSING"
	ErrNotAbsolute   ErrorCode = "NOT_ABSOLUTE"

	// Containment errors
	ErrAlreadyManaged ErrorCode = "ALREADY_MANAGED"
	ErrNotManaged     ErrorCode = "NOT_MANAGED"

	// Sync errors
	ErrConflict ErrorCode = "CONFLICT"
	ErrBadLink  ErrorCode = "BAD_LINK"
	ErrShadowed ErrorCode = "SHADOWED"
	ErrOverlap  ErrorCode = "OVERLAP"

	// Privilege errors
	ErrNoPrivilege ErrorCode = "NO_PRIVILEGE"

	// Configuration errors
	ErrConfigLoad      ErrorCode = "CONFIG_LOAD"
	ErrConfigParse     ErrorCode = "CONFIG_PARSE"
	ErrNoActiveProfile ErrorCode = "NO_ACTIVE_PROFILE"
	ErrProfileNotFound ErrorCode = "PROFILE_NOT_FOUND"
	ErrModuleNotFound  ErrorCode = "MODULE_NOT_FOUND"

	// FileSystem errors
	ErrFileAccess      ErrorCode = "FILE_ACCESS"
	ErrFileCopy        ErrorCode = "FILE_COPY"
	ErrSymlinkCreate   ErrorCode = "SYMLINK_CREATE"
	ErrDirCreate       ErrorCode = "DIR_CREATE"
	ErrUnsupportedType ErrorCode = "UNSUPPORTED_FILE_TYPE"
)

// ConfigmaError represents a structured error with code and details
type ConfigmaError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *ConfigmaError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *ConfigmaError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *ConfigmaError) Is(target error) bool {
	var targetErr *ConfigmaError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new ConfigmaError with the given code and message
func New(code ErrorCode, message string) *ConfigmaError {
	return &ConfigmaError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new ConfigmaError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *ConfigmaError {
	return &ConfigmaError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a ConfigmaError
func Wrap(err error, code ErrorCode, message string) *ConfigmaError {
	if err == nil {
		return nil
	}
	return &ConfigmaError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *ConfigmaError {
	if err == nil {
		return nil
	}
	return &ConfigmaError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *ConfigmaError) WithDetail(key string, value interface{}) *ConfigmaError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var cErr *ConfigmaError
	if errors.As(err, &cErr) {
		return cErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a ConfigmaError
func GetErrorCode(err error) ErrorCode {
	var cErr *ConfigmaError
	if errors.As(err, &cErr) {
		return cErr.Code
	}
	return ErrUnknown
}
