package errors

import (
	"fmt"
	"strings"
)

// ConnectivityMessage is shown instead of the raw OS error when the backend cannot be reached.
const ConnectivityMessage = "The application failed to connect to the server. Please ensure that you are connected to the network and that the server is reachable."

// UserFriendlyError provides actionable error messages for end users
type UserFriendlyError struct {
	Message    string // User-facing message explaining what went wrong
	Suggestion string // Actionable steps to fix the issue
	DocsLink   string // Optional link to documentation
	Details    error  // Original error for debugging/logs
}

func (e *UserFriendlyError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Suggestion != "" {
		sb.WriteString("\n\n")
		sb.WriteString("How to fix:\n")
		sb.WriteString(e.Suggestion)
	}

	if e.DocsLink != "" {
		sb.WriteString("\n\n")
		sb.WriteString("Documentation: ")
		sb.WriteString(e.DocsLink)
	}

	return sb.String()
}

func (e *UserFriendlyError) Unwrap() error {
	return e.Details
}

// NewFriendlyError creates a user-friendly error
func NewFriendlyError(message, suggestion string) *UserFriendlyError {
	return &UserFriendlyError{
		Message:    message,
		Suggestion: suggestion,
	}
}

// WithDetails adds the underlying error details
func (e *UserFriendlyError) WithDetails(err error) *UserFriendlyError {
	e.Details = err
	return e
}

// WithDocs adds a documentation link
func (e *UserFriendlyError) WithDocs(link string) *UserFriendlyError {
	e.DocsLink = link
	return e
}

// NetworkError wraps a connectivity failure with hints picked from the underlying error.
func NetworkError(err error) *UserFriendlyError {
	suggestion := "Check that the sample backend is running and reachable, then refresh."

	if err != nil {
		errStr := err.Error()

		if strings.Contains(errStr, "no such host") || strings.Contains(errStr, "name resolution") {
			suggestion = "1. Check backend.base_url in your config\n2. Verify DNS settings"
		}

		if strings.Contains(errStr, "connection refused") {
			suggestion = "The server is not listening on that address. Start it, or try:\n  docfetch serve-sample"
		}

		if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
			suggestion = "Server is slow or unreachable. Try:\n1. Increase backend.timeout_seconds\n2. Try again later"
		}
	}

	return &UserFriendlyError{
		Message:    ConnectivityMessage,
		Suggestion: suggestion,
		Details:    err,
	}
}

// AuthError explains a rejected Basic auth request against the backend.
func AuthError(statusCode int, err error) *UserFriendlyError {
	return &UserFriendlyError{
		Message:    fmt.Sprintf("Authentication failed (%d)", statusCode),
		Suggestion: "Check backend.user_id and backend.password.\nThe sample server expects an empty password.",
		Details:    err,
	}
}

// ConfigError returns configuration-related errors
func ConfigError(field, issue string) *UserFriendlyError {
	return &UserFriendlyError{
		Message:    fmt.Sprintf("Configuration error in field '%s': %s", field, issue),
		Suggestion: "Run 'docfetch config validate' to check your configuration",
	}
}

// DatabaseError returns database-related errors with recovery suggestions
func DatabaseError(err error) *UserFriendlyError {
	msg := "Local storage database error"
	suggestion := "Try running: docfetch clean"

	if err != nil {
		errStr := err.Error()

		if strings.Contains(errStr, "locked") {
			msg = "Local storage database is locked by another process"
			suggestion = "Close other docfetch instances and try again"
		}

		if strings.Contains(errStr, "corrupt") || strings.Contains(errStr, "malformed") {
			msg = "Local storage database is corrupted"
			suggestion = "Remove all downloaded layers and start over:\n  docfetch clean"
		}
	}

	return &UserFriendlyError{
		Message:    msg,
		Suggestion: suggestion,
		Details:    err,
	}
}
