package session

import (
	"errors"
	"fmt"
)

// Kind classifies session failures.
type Kind int

const (
	// KindRendezvous: room not found, full, already exists or expired.
	KindRendezvous Kind = iota + 1
	// KindNegotiation: the peer connection could not be set up.
	KindNegotiation
	// KindTransport: the peer channel failed or closed mid-transfer.
	KindTransport
	// KindProtocol: the peer sent frames out of sequence.
	KindProtocol
	// KindIntegrity: decryption failed (wrong password or tampering).
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindRendezvous:
		return "rendezvous"
	case KindNegotiation:
		return "negotiation"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// Error is the terminal error of a session.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil || e.Err.Error() == e.Msg {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a session error, or 0 if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

var (
	// ErrBusy is returned when an operation is not allowed in the current
	// state.
	ErrBusy = errors.New("session is busy")

	// ErrNotConnected is returned when sending without an open peer channel.
	ErrNotConnected = errors.New("peer is not connected")
)
