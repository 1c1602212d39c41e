// Package errors provides a lightweight structured error type (BlogsmithError)
// for category-based classification in the build pipeline and CLI.
package errors

import (
	"fmt"
)

// ErrorCategory represents the category of a blogsmith error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryContent    ErrorCategory = "content"

	// Build and processing errors
	CategoryTemplate   ErrorCategory = "template"
	CategoryRender     ErrorCategory = "render"
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryCache      ErrorCategory = "cache"

	// Runtime and infrastructure errors
	CategoryServer   ErrorCategory = "server"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops generation
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded output
)

// BlogsmithError is a structured error with category, severity, and context
type BlogsmithError struct {
	Category ErrorCategory `json:"category"`
	Severity ErrorSeverity `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for BlogsmithError
type ContextFields map[string]any

// Error implements the error interface
func (e *BlogsmithError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *BlogsmithError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *BlogsmithError) WithContext(key string, value any) *BlogsmithError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new BlogsmithError
func New(category ErrorCategory, severity ErrorSeverity, message string) *BlogsmithError {
	return &BlogsmithError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new BlogsmithError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *BlogsmithError {
	return &BlogsmithError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if be, ok := err.(*BlogsmithError); ok {
		return be.Category == category
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a BlogsmithError
func GetCategory(err error) ErrorCategory {
	if be, ok := err.(*BlogsmithError); ok {
		return be.Category
	}
	return CategoryInternal
}

// ValidationError creates a new validation error
func ValidationError(message string) *BlogsmithError {
	return &BlogsmithError{
		Category: CategoryValidation,
		Severity: SeverityWarning,
		Message:  message,
	}
}

// ConfigError creates a new configuration error
func ConfigError(message string) *BlogsmithError {
	return &BlogsmithError{
		Category: CategoryConfig,
		Severity: SeverityFatal,
		Message:  message,
	}
}

// ContentError wraps an error found while loading or parsing content
func ContentError(err error, message string) *BlogsmithError {
	return &BlogsmithError{
		Category: CategoryContent,
		Severity: SeverityFatal,
		Message:  message,
		Cause:    err,
	}
}
