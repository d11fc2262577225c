package session

import (
	"context"

	"github.com/1ureka/beam/internal/crypto"
	"github.com/1ureka/beam/internal/protocol"
	"github.com/1ureka/beam/internal/room"
)

// Sender shares a file: it registers a room, hands out a link and sends the
// file once the receiver connects. The channel stays open afterwards for
// more files in either direction.
//
//	idle → preparing → waiting-for-peer → negotiating → transferring → ready
type Sender struct {
	*core
}

// NewSender creates an idle sender session.
func NewSender(cfg Config) *Sender {
	return &Sender{core: newCore(cfg, true)}
}

// Share encrypts f, registers a room and returns the share link. A non-empty
// password derives the key from it and the link carries only the salt;
// otherwise a random key travels in the link fragment. The transfer itself
// starts when the receiver connects; watch it with Await.
func (s *Sender) Share(ctx context.Context, f File, password string) (string, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if st := s.st.get().State; st != StateIdle {
		return "", ErrBusy
	}
	s.st.update(func(st *Status) {
		st.State = StatePreparing
		st.File = f.Name
	})

	roomID, link, err := s.prepare(ctx, f, password)
	if err != nil {
		s.teardown()
		s.fail(err)
		return "", err
	}

	s.st.update(func(st *Status) {
		st.State = StateWaitingForPeer
		st.RoomID = roomID
		st.Link = link
	})
	s.start()
	return link, nil
}

func (s *Sender) prepare(ctx context.Context, f File, password string) (roomID, link string, _ *Error) {
	var key []byte
	var token string
	var err error

	if password == "" {
		if key, err = crypto.GenerateKey(); err != nil {
			return "", "", newError(KindIntegrity, "failed to generate key", err)
		}
		token = crypto.ExportKey(key)
	} else {
		salt, err := crypto.NewSalt()
		if err != nil {
			return "", "", newError(KindIntegrity, "failed to generate salt", err)
		}
		key = crypto.DeriveKey(password, salt)
		token = crypto.PasswordToken(salt)
	}

	if f.ID == "" {
		f.ID = protocol.NewFileID()
	}
	if f.MimeType == "" {
		f.MimeType = DetectMIME(f.Name, f.Data)
	}
	ciphertext, err := crypto.Encrypt(f.Data, key)
	if err != nil {
		return "", "", newError(KindIntegrity, "failed to encrypt file", err)
	}

	relay, err := s.cfg.Dial(ctx)
	if err != nil {
		return "", "", newError(KindNegotiation, "failed to reach relay", err)
	}
	s.relay = relay

	id := s.cfg.RoomID
	if id == "" {
		id = room.NewID()
	}
	roomID, err = relay.CreateRoom(ctx, id)
	if err != nil {
		return "", "", newError(KindRendezvous, "failed to create room", err)
	}

	s.key = key
	s.pending = &outgoing{file: f, ciphertext: ciphertext}
	return roomID, BuildLink(s.cfg.BaseURL, roomID, token), nil
}
