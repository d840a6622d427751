// Package errors defines the structured error taxonomy used across extplan.
//
// Fatal problems surface as *PlanError values carrying an ErrorType and a
// stable code. Non-fatal diagnostics produced by later build runs are
// recorded as Findings (see findings.go).
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeBuild      ErrorType = "build"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeDuplicateBundle    = "ERR_DUPLICATE_BUNDLE"
	ErrCodeEmptyBundleName    = "ERR_EMPTY_BUNDLE_NAME"
	ErrCodeReservedBundleName = "ERR_RESERVED_BUNDLE_NAME"
	ErrCodeMalformedPatterns  = "ERR_MALFORMED_PATTERNS"
	ErrCodeConfigInvalid      = "ERR_CONFIG_INVALID"
	ErrCodeManifestInvalid    = "ERR_MANIFEST_INVALID"
	ErrCodeFileNotFound       = "ERR_FILE_NOT_FOUND"
	ErrCodeImportOutsideScope = "ERR_IMPORT_OUTSIDE_SCOPE"
	ErrCodeBuildFailed        = "ERR_BUILD_FAILED"
	ErrCodeInternalError      = "ERR_INTERNAL"
)

// PlanError is a structured error type with context.
type PlanError struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Context map[string]interface{}
	Bundle  string
	Stage   string
}

// Error implements the error interface.
func (e *PlanError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Bundle != "" {
		parts = append(parts, "bundle:"+e.Bundle)
	}
	if e.Stage != "" {
		parts = append(parts, "stage:"+e.Stage)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PlanError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by type and code.
func (e *PlanError) Is(target error) bool {
	var t *PlanError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *PlanError) WithContext(key string, value interface{}) *PlanError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithBundle attaches the bundle the error is about.
func (e *PlanError) WithBundle(bundle string) *PlanError {
	e.Bundle = bundle

	return e
}

// WithStage attaches the pipeline stage the error is about.
func (e *PlanError) WithStage(stage string) *PlanError {
	e.Stage = stage

	return e
}

// ContextKeys returns the context keys in sorted order.
func (e *PlanError) ContextKeys() []string {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// NewConfigError creates a configuration error. Configuration errors are
// always fatal to synthesis.
func NewConfigError(code, message string) *PlanError {
	return &PlanError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *PlanError {
	return &PlanError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *PlanError {
	return &PlanError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewBuildError creates a build error.
func NewBuildError(code, message string, cause error) *PlanError {
	return &PlanError{
		Type:    ErrorTypeBuild,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *PlanError {
	return &PlanError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrap wraps an error with additional context, creating a PlanError if the
// input is not already one.
func Wrap(err error, errType ErrorType, code, message string) *PlanError {
	if err == nil {
		return nil
	}

	var pe *PlanError
	if errors.As(err, &pe) {
		return &PlanError{
			Type:    errType,
			Code:    code,
			Message: message,
			Cause:   pe,
			Context: pe.Context,
			Bundle:  pe.Bundle,
			Stage:   pe.Stage,
		}
	}

	return &PlanError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WrapConfig wraps an error as a configuration error.
func WrapConfig(err error, code, message string) *PlanError {
	return Wrap(err, ErrorTypeConfig, code, message)
}

// WrapIO wraps an error as an I/O error.
func WrapIO(err error, code, message string) *PlanError {
	return Wrap(err, ErrorTypeIO, code, message)
}

// WrapValidation wraps an error as a validation error.
func WrapValidation(err error, code, message string) *PlanError {
	return Wrap(err, ErrorTypeValidation, code, message)
}

// IsConfigurationError reports whether err is, or wraps, a configuration error.
func IsConfigurationError(err error) bool {
	var pe *PlanError
	if errors.As(err, &pe) {
		return pe.Type == ErrorTypeConfig
	}

	return false
}

// HasCode reports whether err is, or wraps, a PlanError with the given code.
func HasCode(err error, code string) bool {
	for err != nil {
		var pe *PlanError
		if !errors.As(err, &pe) {
			return false
		}
		if pe.Code == code {
			return true
		}
		err = pe.Cause
	}

	return false
}

// ErrDuplicateBundle reports two manifest entries sharing a name.
func ErrDuplicateBundle(name string, first, second int) *PlanError {
	return NewConfigError(
		ErrCodeDuplicateBundle,
		fmt.Sprintf("bundle name %q is declared more than once", name),
	).WithBundle(name).WithContext("first_index", first).WithContext("second_index", second)
}

// ErrEmptyBundleName reports a manifest entry without a name.
func ErrEmptyBundleName(index int) *PlanError {
	return NewConfigError(
		ErrCodeEmptyBundleName,
		fmt.Sprintf("bundle at index %d has an empty name", index),
	).WithContext("index", index)
}

// ErrReservedBundleName reports a user bundle colliding with a synthetic entry.
func ErrReservedBundleName(name string) *PlanError {
	return NewConfigError(
		ErrCodeReservedBundleName,
		fmt.Sprintf("bundle name %q is reserved when hot update is enabled", name),
	).WithBundle(name)
}

// ErrMalformedPatterns reports an inconsistent pipeline rule registry.
func ErrMalformedPatterns(rule, message string) *PlanError {
	return NewConfigError(ErrCodeMalformedPatterns, message).WithStage(rule)
}
