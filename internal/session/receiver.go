package session

import (
	"context"

	"github.com/1ureka/beam/internal/crypto"
)

// Receiver joins a room from a share link and receives files.
//
//	(awaiting-password) → connecting → waiting-for-metadata →
//	(choosing-save-location) → receiving → decrypting → ready
type Receiver struct {
	*core

	roomID string
	token  crypto.Token
}

// NewReceiver creates an idle receiver session.
func NewReceiver(cfg Config) *Receiver {
	return &Receiver{core: newCore(cfg, false)}
}

// Join parses link and connects to its room. When the link is password
// protected and password is empty, the session stops in
// StateAwaitingPassword until Unlock is called.
func (r *Receiver) Join(ctx context.Context, link, password string) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if st := r.st.get().State; st != StateIdle {
		return ErrBusy
	}

	roomID, tokenText, err := ParseLink(link)
	if err != nil {
		e := newError(KindRendezvous, "invalid share link", err)
		r.fail(e)
		return e
	}
	token, err := crypto.ParseToken(tokenText)
	if err != nil {
		e := newError(KindIntegrity, "invalid key in share link", err)
		r.fail(e)
		return e
	}
	r.roomID, r.token = roomID, token
	r.st.update(func(st *Status) { st.RoomID = roomID })

	if token.Protected() && password == "" {
		r.setState(StateAwaitingPassword)
		return nil
	}
	return r.connect(ctx, password)
}

// Unlock supplies the password for a protected link. A wrong password is
// only detected when the first file fails to decrypt.
func (r *Receiver) Unlock(ctx context.Context, password string) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if st := r.st.get().State; st != StateAwaitingPassword {
		return ErrBusy
	}
	return r.connect(ctx, password)
}

// connect joins the room and prepares the peer for the incoming offer. The
// caller holds lifecycle.
func (r *Receiver) connect(ctx context.Context, password string) error {
	r.setState(StateConnecting)

	if err := r.dial(ctx, password); err != nil {
		r.teardown()
		r.fail(err)
		return err
	}
	r.start()
	return nil
}

func (r *Receiver) dial(ctx context.Context, password string) *Error {
	key, err := r.token.Resolve(password)
	if err != nil {
		return newError(KindIntegrity, "invalid key", err)
	}

	relay, err := r.cfg.Dial(ctx)
	if err != nil {
		return newError(KindNegotiation, "failed to reach relay", err)
	}
	r.relay = relay

	if err := relay.JoinRoom(ctx, r.roomID); err != nil {
		return newError(KindRendezvous, "failed to join room", err)
	}

	peer, err := r.cfg.NewPeer(context.WithoutCancel(ctx))
	if err != nil {
		return newError(KindNegotiation, "failed to create peer connection", err)
	}
	r.attach(peer)

	r.key = key
	return nil
}
