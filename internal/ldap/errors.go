package ldap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// ErrorKind classifies every error returned by the listing operations.
type ErrorKind string

const (
	KindNotFound        ErrorKind = "not_found"
	KindCommunication   ErrorKind = "communication_failure"
	KindInvalidName     ErrorKind = "invalid_name"
	KindMapping         ErrorKind = "mapping_failure"
	KindOperationFailed ErrorKind = "operation_failed"
)

// Sentinel errors for use with errors.Is; they match any *Error of the same kind.
var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrCommunication   = &Error{Kind: KindCommunication}
	ErrInvalidName     = &Error{Kind: KindInvalidName}
	ErrMapping         = &Error{Kind: KindMapping}
	ErrOperationFailed = &Error{Kind: KindOperationFailed}
)

// Error is the single error type surfaced by DirectoryClient.
type Error struct {
	Op        string    // The operation that failed
	Kind      ErrorKind // Error kind
	DN        string    // DN involved in the operation (if applicable)
	LDAPCode  uint16    // LDAP result code, zero when not an LDAP result
	Message   string    // Human-readable message
	ServerMsg string    // Server-provided diagnostic message
	Cause     error     // Underlying error
}

func (e *Error) Error() string {
	var parts []string

	op := e.Op
	if op == "" {
		op = "operation"
	}
	if e.LDAPCode > 0 {
		parts = append(parts, fmt.Sprintf("LDAP %s failed (%s, code %d)", op, e.Kind, e.LDAPCode))
	} else {
		parts = append(parts, fmt.Sprintf("LDAP %s failed (%s)", op, e.Kind))
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	if e.ServerMsg != "" && e.ServerMsg != e.Message {
		parts = append(parts, fmt.Sprintf("server: %s", e.ServerMsg))
	}

	if e.DN != "" {
		parts = append(parts, fmt.Sprintf("DN: %s", e.DN))
	}

	if e.Cause != nil && e.LDAPCode == 0 && e.Cause.Error() != e.Message {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, " - ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches sentinel errors by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.DN == "" && t.Cause == nil && t.Kind == e.Kind
}

// newError builds an *Error of a fixed kind around cause.
func newError(op string, kind ErrorKind, dn DN, message string, cause error) *Error {
	return &Error{
		Op:      op,
		Kind:    kind,
		DN:      dn.String(),
		Message: message,
		Cause:   cause,
	}
}

// translateError converts a protocol or transport error into an *Error.
// An *Error is copied with a missing Op or DN filled in; the original is
// never modified, so the exported sentinels stay usable as errors.Is targets.
func translateError(op string, dn DN, err error) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		out := *existing
		if out.Op == "" {
			out.Op = op
		}
		if out.DN == "" {
			out.DN = dn.String()
		}
		return &out
	}

	out := &Error{
		Op:    op,
		DN:    dn.String(),
		Cause: err,
	}

	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		out.LDAPCode = ldapErr.ResultCode
		out.Kind = kindForResultCode(ldapErr.ResultCode)
		out.Message = resultCodeMessage(ldapErr.ResultCode)
		if ldapErr.Err != nil {
			out.ServerMsg = ldapErr.Err.Error()
		}
		return out
	}

	out.Kind = kindForGenericError(err)
	out.Message = err.Error()
	return out
}

// communicationError translates a failure of the connection collaborator.
// Errors that carry no better classification become CommunicationFailure.
func communicationError(op string, dn DN, err error) *Error {
	var existing *Error
	if errors.As(err, &existing) {
		return translateError(op, dn, err)
	}
	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) && kindForResultCode(ldapErr.ResultCode) != KindOperationFailed {
		return translateError(op, dn, err)
	}
	return newError(op, KindCommunication, dn, err.Error(), err)
}

// kindForResultCode classifies an LDAP result code.
func kindForResultCode(code uint16) ErrorKind {
	switch code {
	case ldap.LDAPResultNoSuchObject:
		return KindNotFound

	case ldap.LDAPResultInvalidDNSyntax,
		ldap.LDAPResultNamingViolation:
		return KindInvalidName

	case ldap.LDAPResultServerDown,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultBusy,
		ldap.LDAPResultTimeout,
		ldap.LDAPResultConnectError,
		ldap.LDAPResultProtocolError,
		ldap.ErrorNetwork:
		return KindCommunication

	default:
		return KindOperationFailed
	}
}

// kindForGenericError classifies errors that carry no LDAP result code.
func kindForGenericError(err error) ErrorKind {
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) {
		return KindCommunication
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindCommunication
	}

	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return KindCommunication
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"connection", "network", "timeout", "broken pipe"} {
		if strings.Contains(errStr, pattern) {
			return KindCommunication
		}
	}

	return KindOperationFailed
}

// resultCodeMessage returns the go-ldap description of a result code.
func resultCodeMessage(code uint16) string {
	if msg, ok := ldap.LDAPResultCodeMap[code]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown LDAP error (code %d)", code)
}

// GetErrorKind returns the kind of err, or KindOperationFailed for foreign errors.
func GetErrorKind(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		return kindForResultCode(ldapErr.ResultCode)
	}

	return kindForGenericError(err)
}

// IsNotFoundError checks if an error indicates a missing directory node.
func IsNotFoundError(err error) bool {
	return GetErrorKind(err) == KindNotFound
}

// IsCommunicationError checks if an error was caused by the transport.
func IsCommunicationError(err error) bool {
	return GetErrorKind(err) == KindCommunication
}

// ConnectionError represents failures of the connection collaborator.
type ConnectionError struct {
	message   string
	retryable bool
	cause     error
}

func (e *ConnectionError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *ConnectionError) IsRetryable() bool {
	return e.retryable
}

func (e *ConnectionError) Unwrap() error {
	return e.cause
}

// NewConnectionError creates a new connection error.
func NewConnectionError(message string, retryable bool, cause error) *ConnectionError {
	return &ConnectionError{
		message:   message,
		retryable: retryable,
		cause:     cause,
	}
}
