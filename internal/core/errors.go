package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an agent error for the controller.
type Kind string

const (
	KindClient      Kind = "client_error"
	KindConflict    Kind = "conflict"
	KindLaunch      Kind = "launch_error"
	KindUnsupported Kind = "environment_unsupported"
	KindNotFound    Kind = "not_found"
	KindForbidden   Kind = "forbidden"
	KindInternal    Kind = "internal"
)

// HTTPStatus maps a kind to the status code sent on the wire.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindClient:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error is the structured failure every directive reports.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error without an underlying cause.
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to a lower-level error.
func Wrap(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf reports the kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the human-readable part of err without the cause chain.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return err.Error()
}
