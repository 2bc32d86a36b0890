package ledger

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindNetworkUnavailable ErrorKind = iota + 1
	KindAccountMissing
	KindInvalidAsset
	KindIssuerNotConfigured
	KindRejectedByNetwork
	// KindOutcomeUnknown means the request may have reached the network; the
	// transaction must be looked up before anything is resubmitted.
	KindOutcomeUnknown
)

var (
	ErrNetworkUnavailable  = errors.New("ledger network unavailable")
	ErrAccountMissing      = errors.New("ledger account missing")
	ErrInvalidAsset        = errors.New("invalid certification asset")
	ErrIssuerNotConfigured = errors.New("issuer key not configured")
	ErrRejectedByNetwork   = errors.New("transaction rejected by network")
	ErrOutcomeUnknown      = errors.New("transaction outcome unknown")

	ErrInvalidAddress = errors.New("invalid ledger address")
	ErrInvalidSecret  = errors.New("invalid ledger secret")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNetworkUnavailable:
		return ErrNetworkUnavailable
	case KindAccountMissing:
		return ErrAccountMissing
	case KindInvalidAsset:
		return ErrInvalidAsset
	case KindIssuerNotConfigured:
		return ErrIssuerNotConfigured
	case KindRejectedByNetwork:
		return ErrRejectedByNetwork
	case KindOutcomeUnknown:
		return ErrOutcomeUnknown
	}
	return nil
}

func (k ErrorKind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return "unknown ledger error"
}

// Error is returned by every Gateway operation that talks to the network.
type Error struct {
	Kind ErrorKind
	Op   string
	// Codes holds Horizon result codes for rejected submissions, e.g. "tx_failed,op_no_trust".
	Codes string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.Codes != "" {
		msg += " (" + e.Codes + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func errorf(kind ErrorKind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of a ledger error, or 0 if err is not one.
func KindOf(err error) ErrorKind {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	return 0
}
