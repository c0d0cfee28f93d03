// Package errors provides structured error types for the jdb-mcp server.
// These errors include helpful hints and suggestions that guide the client
// to correct course when something goes wrong.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Session errors
	CodeNoSession      ErrorCode = "NO_SESSION"
	CodeStartupFailure ErrorCode = "STARTUP_FAILURE"
	CodeDisconnected   ErrorCode = "TARGET_DISCONNECTED"

	// Target errors
	CodeUnknownThread      ErrorCode = "UNKNOWN_THREAD"
	CodeLocationUnresolved ErrorCode = "LOCATION_UNRESOLVED"
	CodeValueNotFound      ErrorCode = "VALUE_NOT_FOUND"
	CodeParseFailed        ErrorCode = "PARSE_FAILED"
	CodeReadOnlyTarget     ErrorCode = "READ_ONLY_TARGET"
	CodeInvokeFailed       ErrorCode = "INVOKE_FAILED"

	// Parameter errors
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"

	// Permission errors
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// Configuration errors
	CodeConfigInvalid   ErrorCode = "CONFIG_INVALID"
	CodeProfileNotFound ErrorCode = "PROFILE_NOT_FOUND"
)

// DebugError is a structured error type that includes helpful information
// for the client to understand what went wrong and how to fix it.
type DebugError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is a human-readable description of what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the invalid value, expected format)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *DebugError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *DebugError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *DebugError) WithDetails(key string, value interface{}) *DebugError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *DebugError) WithCause(err error) *DebugError {
	e.Cause = err
	return e
}

// --- Session Errors ---

// NoSession creates an error for requests that need a live target VM.
func NoSession() *DebugError {
	return &DebugError{
		Code:    CodeNoSession,
		Message: "no debug session is active",
		Hint:    "Use debug_start to launch a target VM or debug_attach to connect to a running one.",
	}
}

// StartupFailure creates an error for launch/attach failures.
func StartupFailure(target string, err error) *DebugError {
	return &DebugError{
		Code:    CodeStartupFailure,
		Message: fmt.Sprintf("could not start debug session for %s: %v", target, err),
		Hint:    "Check that the java binary, classpath and main class (or host and port for attach) are correct, and that the target was started with a JDWP agent when attaching.",
		Cause:   err,
		Details: map[string]interface{}{
			"target": target,
		},
	}
}

// Disconnected creates an error for operations interrupted by a dead target.
func Disconnected() *DebugError {
	return &DebugError{
		Code:    CodeDisconnected,
		Message: "the target VM disconnected",
		Hint:    "The session is gone; breakpoints were kept as pending. Start or attach a new session to continue.",
	}
}

// --- Target Errors ---

// UnknownThread creates an error for a thread ID the target does not know.
func UnknownThread(threadID uint64) *DebugError {
	return &DebugError{
		Code:    CodeUnknownThread,
		Message: fmt.Sprintf("thread %d not found in the target VM", threadID),
		Hint:    "Thread IDs are only valid within the current session. Take thread IDs from the stop events returned by debug_events.",
		Details: map[string]interface{}{
			"threadId": threadID,
		},
	}
}

// LocationUnresolved creates an error for a file/line with no code location.
func LocationUnresolved(file string, line int) *DebugError {
	return &DebugError{
		Code:    CodeLocationUnresolved,
		Message: fmt.Sprintf("no code location for %s:%d in any loaded class", file, line),
		Hint:    "The class may not be loaded yet; the breakpoint was recorded as pending and installs automatically when the class loads.",
		Details: map[string]interface{}{
			"file": file,
			"line": line,
		},
	}
}

// ValueNotFound creates an error for a dangling debug location.
func ValueNotFound() *DebugError {
	return &DebugError{
		Code:    CodeValueNotFound,
		Message: "the referenced value could not be resolved",
		Hint:    "Object IDs are session-scoped and stack slots are only valid while the thread stays suspended. Re-read the value from a fresh backtrace.",
	}
}

// ParseFailed creates an error for unparseable set-value input.
func ParseFailed(text, typeName string) *DebugError {
	return &DebugError{
		Code:    CodeParseFailed,
		Message: fmt.Sprintf("could not parse %q as %s", text, typeName),
		Hint:    "Provide a literal matching the slot's type, e.g. 42, 3.14, true, 'c' or \"text\".",
		Details: map[string]interface{}{
			"text":     text,
			"typeName": typeName,
		},
	}
}

// ReadOnlyTarget creates an error for invocations on an unmodifiable VM.
func ReadOnlyTarget() *DebugError {
	return &DebugError{
		Code:    CodeReadOnlyTarget,
		Message: "the target VM does not allow modification",
		Hint:    "toString rendering and value writes need a modifiable target; summaries are still available via debug_value.",
	}
}

// InvokeFailed creates an error for failed target method invocations.
func InvokeFailed(err error) *DebugError {
	return &DebugError{
		Code:    CodeInvokeFailed,
		Message: fmt.Sprintf("target method invocation failed: %v", err),
		Hint:    "The invoking thread must be suspended by an event. Hit a breakpoint first, then retry.",
		Cause:   err,
	}
}

// --- Parameter Errors ---

// MissingParameter creates an error for missing required parameters
func MissingParameter(paramName, description string) *DebugError {
	return &DebugError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter '%s' is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidParameter creates an error for invalid parameter values
func InvalidParameter(paramName string, value interface{}, expected string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter '%s': %v", paramName, value),
		Hint:    fmt.Sprintf("Expected: %s", expected),
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
			"expected":  expected,
		},
	}
}

// --- Permission Errors ---

// PermissionDenied creates an error for permission denied
func PermissionDenied(operation, mode string) *DebugError {
	var hint string
	switch operation {
	case "launch":
		hint = "The server is configured to disallow launching target VMs. Ask the administrator to enable 'allowLaunch' in the configuration."
	case "attach":
		hint = "The server is configured to disallow attaching to processes. Ask the administrator to enable 'allowAttach' in the configuration."
	case "modify":
		hint = "Value modification is disabled in the current server mode. The server may be in read-only mode."
	case "invoke":
		hint = "Target method invocation is disabled. toString rendering falls back to summaries."
	default:
		hint = fmt.Sprintf("This operation is not allowed in '%s' mode.", mode)
	}

	return &DebugError{
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("%s is not allowed in current server mode", operation),
		Hint:    hint,
		Details: map[string]interface{}{
			"operation": operation,
			"mode":      mode,
		},
	}
}

// --- Configuration Errors ---

// ProfileNotFound creates an error for a missing launch profile.
func ProfileNotFound(name string, available []string) *DebugError {
	var hint string
	if len(available) > 0 {
		hint = fmt.Sprintf("Available profiles: %s", strings.Join(available, ", "))
	} else {
		hint = "No launch profiles are configured. Add a 'profiles' section to the configuration file or pass mainClass directly."
	}

	return &DebugError{
		Code:    CodeProfileNotFound,
		Message: fmt.Sprintf("launch profile '%s' not found", name),
		Hint:    hint,
		Details: map[string]interface{}{
			"profile":           name,
			"availableProfiles": available,
		},
	}
}

// ConfigInvalid creates an error for invalid configuration
func ConfigInvalid(reason string) *DebugError {
	return &DebugError{
		Code:    CodeConfigInvalid,
		Message: fmt.Sprintf("configuration is invalid: %s", reason),
		Hint:    "Check the configuration file for syntax errors and ensure all required fields are present.",
		Details: map[string]interface{}{
			"reason": reason,
		},
	}
}

// --- Helper for wrapping generic errors ---

// Wrap wraps a generic error with context
func Wrap(code ErrorCode, message string, hint string, err error) *DebugError {
	return &DebugError{
		Code:    code,
		Message: message,
		Hint:    hint,
		Cause:   err,
	}
}

// FromError creates a DebugError from a generic error, attempting to preserve any existing structure
func FromError(err error) *DebugError {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de
	}
	return &DebugError{
		Code:    "UNKNOWN_ERROR",
		Message: err.Error(),
		Hint:    "An unexpected error occurred. Please check the error message for details.",
		Cause:   err,
	}
}
