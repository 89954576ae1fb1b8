package provisioning

import (
	"errors"

	"vpnshop/internal/linkbuilder"
	"vpnshop/internal/panel"
)

// Kind classifies a failed provisioning run.
type Kind string

const (
	KindAuth                     Kind = "auth_error"
	KindDuplicateIdentity        Kind = "duplicate_identity"
	KindClientNotFoundForRenewal Kind = "client_not_found_for_renewal"
	KindOriginalOrderNotFound    Kind = "original_order_not_found"
	KindMissingIdentifier        Kind = "missing_identifier"
	KindLinkConstruction         Kind = "link_construction"
	KindRemoteRejected           Kind = "remote_rejected"
	KindRemote                   Kind = "remote_error"
	KindInvalidOrder             Kind = "invalid_order"
)

// Error is the failure of a provisioning run.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" && e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Panel and link errors map to their provisioning
// kind; anything unrecognized is a remote error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	var ae *panel.Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case panel.KindAuth:
			return KindAuth
		case panel.KindDuplicateIdentity:
			return KindDuplicateIdentity
		case panel.KindRemoteRejected:
			return KindRemoteRejected
		default:
			return KindRemote
		}
	}
	switch {
	case errors.Is(err, linkbuilder.ErrMissingIdentifier):
		return KindMissingIdentifier
	case errors.Is(err, linkbuilder.ErrLinkConstruction):
		return KindLinkConstruction
	}
	return KindRemote
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// classify wraps err into an *Error unless it already is one.
func classify(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Kind: KindOf(err), Err: err}
}
