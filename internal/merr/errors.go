// Package merr defines the error kinds shared across meshnode's components.
//
// Handlers map these to HTTP status codes by Kind() rather than by
// string-matching error text, mirroring the way the teacher daemon's
// handlers.respondError distinguishes client and server failures.
package merr

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	KindConfiguration Kind = "ConfigurationError"
	KindStorage       Kind = "StorageError"
	KindReportConflict Kind = "ReportConflict"
	KindPeerUnreachable Kind = "PeerUnreachable"
	KindPeerProtocol    Kind = "PeerProtocolError"
	KindInvalidParameter Kind = "InvalidParameter"
)

// Error is a typed error carrying a Kind plus a human-readable message.
type Error struct {
	K   Kind
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.K, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.K, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Kind returns the error's machine-readable category.
func (e *Error) Kind() Kind { return e.K }

func New(k Kind, msg string) *Error {
	return &Error{K: k, Msg: msg}
}

func Wrap(k Kind, msg string, err error) *Error {
	return &Error{K: k, Msg: msg, Err: err}
}

func Configuration(msg string) *Error   { return New(KindConfiguration, msg) }
func Storage(msg string, err error) *Error { return Wrap(KindStorage, msg, err) }
func ReportConflict(msg string) *Error  { return New(KindReportConflict, msg) }
func PeerUnreachable(msg string, err error) *Error {
	return Wrap(KindPeerUnreachable, msg, err)
}
func PeerProtocol(msg string) *Error    { return New(KindPeerProtocol, msg) }
func InvalidParameter(msg string) *Error { return New(KindInvalidParameter, msg) }

// KindOf extracts the Kind from err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.K, true
	}
	return "", false
}

// HTTPStatus maps a Kind to the status code spec.md §7 prescribes.
func HTTPStatus(k Kind) int {
	switch k {
	case KindInvalidParameter:
		return 400
	case KindReportConflict:
		return 409
	case KindStorage:
		return 500
	case KindPeerUnreachable, KindPeerProtocol:
		return 502
	case KindConfiguration:
		return 500
	default:
		return 500
	}
}
