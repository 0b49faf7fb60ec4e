// Package apperr defines the typed errors reported to the user.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the broad category of a failure.
type Kind string

// Error kinds.
const (
	KindConfiguration Kind = "configuration"
	KindConnectivity  Kind = "connectivity"
	KindVersion       Kind = "version_incompatible"
	KindToolExecution Kind = "tool_execution"
	KindStorage       Kind = "storage"
)

// Reason refines a Kind.
type Reason string

// Error reasons.
const (
	ReasonMissingField          Reason = "missing_field"
	ReasonUnresolvedPlaceholder Reason = "unresolved_placeholder"
	ReasonUnsupportedStrategy   Reason = "unsupported_strategy"
	ReasonInvalidValue          Reason = "invalid_value"
	ReasonInvalidFile           Reason = "invalid_file"

	ReasonAuthentication  Reason = "authentication"
	ReasonUnreachable     Reason = "unreachable"
	ReasonDatabaseMissing Reason = "database_missing"
	ReasonRoleMissing     Reason = "role_missing"

	ReasonPermissionDenied Reason = "permission_denied"
	ReasonNotFound         Reason = "not_found"
	ReasonConnection       Reason = "connection"

	ReasonUnknown Reason = "unknown"
)

// Error is a classified failure. Message is meant for the user; Cause keeps
// the underlying library or subprocess error for debug output.
type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a classified error.
func New(kind Kind, reason Reason, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Reason:  reason,
		Message: message,
		Cause:   cause,
	}
}

// Config creates a configuration error.
func Config(reason Reason, message string, cause error) *Error {
	return New(KindConfiguration, reason, message, cause)
}

// MissingFields reports required settings that are absent.
func MissingFields(fields ...string) *Error {
	return Config(ReasonMissingField,
		fmt.Sprintf("missing required setting(s): %s", strings.Join(fields, ", ")), nil)
}

// UnresolvedPlaceholder reports a ${NAME} reference to an unset environment variable.
func UnresolvedPlaceholder(name, key string) *Error {
	return Config(ReasonUnresolvedPlaceholder,
		fmt.Sprintf("environment variable %s referenced by %s is not set", name, key), nil)
}

// UnsupportedStrategy reports an unknown database or storage type token.
func UnsupportedStrategy(kind, token string, available []string) *Error {
	return Config(ReasonUnsupportedStrategy,
		fmt.Sprintf("unsupported %s type %q (available: %s)", kind, token, strings.Join(available, ", ")), nil)
}

// Connectivity creates a database connectivity error.
func Connectivity(reason Reason, message string, cause error) *Error {
	return New(KindConnectivity, reason, message, cause)
}

// VersionIncompatible reports a local dump tool older than the server it talks to.
func VersionIncompatible(tool, local, server string) *Error {
	return New(KindVersion, ReasonUnknown, fmt.Sprintf(
		"%s version %s is older than server version %s; install a %s matching the server's major version",
		tool, local, server, tool), nil)
}

// ToolExecution reports a dump or restore tool that exited with an error.
// stderr is included in the message so the user sees the tool's own diagnosis.
func ToolExecution(tool, stderr string, cause error) *Error {
	msg := fmt.Sprintf("%s failed", tool)
	if s := strings.TrimSpace(stderr); s != "" {
		msg = fmt.Sprintf("%s failed: %s", tool, s)
	}
	return New(KindToolExecution, ReasonUnknown, msg, cause)
}

// Storage creates a storage backend error.
func Storage(reason Reason, message string, cause error) *Error {
	return New(KindStorage, reason, message, cause)
}

// NotFound reports a missing artifact, bucket or container.
func NotFound(message string, cause error) *Error {
	return Storage(ReasonNotFound, message, cause)
}

// As returns the classified error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// Is reports whether err is a classified error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HasReason reports whether err is a classified error with the given reason.
func HasReason(err error, reason Reason) bool {
	e, ok := As(err)
	return ok && e.Reason == reason
}

// IsNotFound reports whether err is a NotFound storage error.
func IsNotFound(err error) bool {
	return Is(err, KindStorage) && HasReason(err, ReasonNotFound)
}

// ReasonOf returns the reason of err, or "" when err is not classified.
func ReasonOf(err error) Reason {
	if e, ok := As(err); ok {
		return e.Reason
	}
	return ""
}
