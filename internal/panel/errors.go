package panel

import (
	"errors"
	"fmt"
)

// Kind classifies adapter failures.
type Kind string

const (
	KindAuth              Kind = "auth"
	KindDuplicateIdentity Kind = "duplicate_identity"
	KindRemoteRejected    Kind = "remote_rejected"
	KindRemote            Kind = "remote"
)

// Error is returned by every adapter operation.
type Error struct {
	Kind   Kind
	Panel  string
	Op     string
	Status int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Panel, e.Op, e.Kind)
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Status > 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an adapter error of kind.
func IsKind(err error, kind Kind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}

func authError(panel, msg string, status int, err error) *Error {
	return &Error{Kind: KindAuth, Panel: panel, Op: "authenticate", Status: status, Msg: msg, Err: err}
}

func rejected(panel, op string, status int, msg string) *Error {
	return &Error{Kind: KindRemoteRejected, Panel: panel, Op: op, Status: status, Msg: msg}
}

func duplicate(panel, op, username string) *Error {
	return &Error{Kind: KindDuplicateIdentity, Panel: panel, Op: op, Msg: "client " + username + " already exists"}
}

func remoteError(panel, op string, err error) *Error {
	return &Error{Kind: KindRemote, Panel: panel, Op: op, Err: err}
}
