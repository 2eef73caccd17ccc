package syncerr

import (
	"errors"
	"fmt"
)

// Kind tags an error with the failure category the queue supervisor classifies on.
type Kind string

const (
	KindConnection        Kind = "connection"
	KindAuth              Kind = "auth"
	KindRemoteServer      Kind = "remote_server"
	KindMalformedResponse Kind = "malformed_response"
	KindUnresolvedItem    Kind = "unresolved_item"
	KindAlreadySynced     Kind = "already_synced"
	KindValidation        Kind = "validation"
	KindInternal          Kind = "internal"
)

// Error is the typed error threaded through session, client, reader, engine and supervisor.
type Error struct {
	Kind       Kind
	Op         string
	Message    string
	StatusCode int // remote HTTP status, 0 when no response was received
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Connection creates a connection (timeout/unreachable) error.
func Connection(op string, err error) *Error {
	return Wrap(KindConnection, op, err)
}

// Auth creates an authentication error.
func Auth(op, message string) *Error {
	return &Error{Kind: KindAuth, Op: op, Message: message}
}

// RemoteServer creates an error for a non-success remote response.
func RemoteServer(op string, statusCode int, message string) *Error {
	return &Error{Kind: KindRemoteServer, Op: op, Message: message, StatusCode: statusCode}
}

// Malformed creates an error for a response body that could not be decoded.
func Malformed(op string, err error) *Error {
	return Wrap(KindMalformedResponse, op, err)
}

// Unresolved creates a permanent error for an item key with no local product.
func Unresolved(op, itemKey string) *Error {
	return &Error{Kind: KindUnresolvedItem, Op: op, Message: fmt.Sprintf("no product matches item key %q", itemKey)}
}

// Validation creates an error for caller-supplied bad input.
func Validation(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// AlreadySynced creates the benign no-op signal for a delta that is already synced.
func AlreadySynced(op, id string) *Error {
	return &Error{Kind: KindAlreadySynced, Op: op, Message: fmt.Sprintf("delta %s already synced", id)}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// StatusOf returns the remote HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var se *Error
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
