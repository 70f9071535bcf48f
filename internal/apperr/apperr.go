package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindTemplate
	KindConflict
	KindExternal
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindTemplate:
		return "template"
	case KindConflict:
		return "conflict"
	case KindExternal:
		return "external"
	case KindStorage:
		return "storage"
	default:
		return "internal"
	}
}

// Error is the application error carried from services to the HTTP layer.
//
// Message is safe to show to a caller. Remediation tells an operator what to fix,
// Detail carries upstream diagnostics (renderer stderr, board response body).
type Error struct {
	Kind        Kind
	Code        string
	Message     string
	Remediation string
	Detail      string
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// NotFound reports a missing card, file, pending registration or journal entry.
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: resource + " not found"}
}

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

// Template reports an unreadable or unregistrable document template.
func Template(message string, cause error) *Error {
	return &Error{Kind: KindTemplate, Code: "TEMPLATE_INVALID", Message: message, Cause: cause}
}

// Conflict reports a number collision. The caller has to request a fresh number.
func Conflict(message string, cause error) *Error {
	return &Error{Kind: KindConflict, Code: "NUMBER_TAKEN", Message: message, Cause: cause}
}

// External reports a failure of the board API, the renderer or the signing utility.
func External(service, message, detail string, cause error) *Error {
	return &Error{
		Kind:    KindExternal,
		Code:    "UPSTREAM_" + strings.ToUpper(service) + "_FAILED",
		Message: message,
		Detail:  detail,
		Cause:   cause,
	}
}

func Storage(message, remediation string, cause error) *Error {
	return &Error{Kind: KindStorage, Code: "STORAGE_ERROR", Message: message, Remediation: remediation, Cause: cause}
}

func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL_ERROR", Message: message, Cause: cause}
}

// As extracts an *Error from the chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Is reports whether err carries an *Error of the given kind.
func Is(err error, k Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == k
}

// StatusOf maps a kind to its HTTP status code.
func StatusOf(k Kind) int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindTemplate:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
