package session

import (
	"context"
	"sync"
)

// State is a step of the session state machine. Sender and receiver share
// the enum; each role only visits its own subset.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateWaitingForPeer
	StateNegotiating
	StateTransferring
	StateReady
	StateAwaitingPassword
	StateConnecting
	StateWaitingForMetadata
	StateChoosingSaveLocation
	StateReceiving
	StateDecrypting
	StateSending
	StateError
)

var stateNames = [...]string{
	StateIdle:                 "idle",
	StatePreparing:            "preparing",
	StateWaitingForPeer:       "waiting-for-peer",
	StateNegotiating:          "negotiating",
	StateTransferring:         "transferring",
	StateReady:                "ready",
	StateAwaitingPassword:     "awaiting-password",
	StateConnecting:           "connecting",
	StateWaitingForMetadata:   "waiting-for-metadata",
	StateChoosingSaveLocation: "choosing-save-location",
	StateReceiving:            "receiving",
	StateDecrypting:           "decrypting",
	StateSending:              "sending",
	StateError:                "error",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Status is a snapshot of a session.
type Status struct {
	State     State
	Progress  int    // 0..100 for the file in flight
	File      string // name of the file in flight
	RoomID    string
	Link      string // sender only
	Connected bool   // peer channel open
	Err       error  // *Error once State is StateError
}

// Terminal reports whether the session has settled: ready or failed.
func (s Status) Terminal() bool {
	return s.State == StateReady || s.State == StateError
}

// broadcaster holds the status and wakes waiters on every change. The
// changed channel is closed and replaced each time.
type broadcaster struct {
	mu      sync.Mutex
	status  Status
	changed chan struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{changed: make(chan struct{})}
}

func (b *broadcaster) get() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// update applies fn to the status and notifies waiters.
func (b *broadcaster) update(fn func(*Status)) {
	b.mu.Lock()
	fn(&b.status)
	close(b.changed)
	b.changed = make(chan struct{})
	b.mu.Unlock()
}

// await blocks until pred holds for the status or ctx is done.
func (b *broadcaster) await(ctx context.Context, pred func(Status) bool) (Status, error) {
	for {
		b.mu.Lock()
		st, changed := b.status, b.changed
		b.mu.Unlock()

		if pred(st) {
			return st, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}
