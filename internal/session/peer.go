package session

import (
	"context"
	"encoding/json"

	"github.com/1ureka/beam/internal/config"
	"github.com/1ureka/beam/internal/protocol"
	"github.com/1ureka/beam/internal/signaling"
	"github.com/1ureka/beam/internal/transport"
)

// Relay is the rendezvous connection a session negotiates through.
// *signaling.Client implements it.
type Relay interface {
	CreateRoom(ctx context.Context, id string) (string, error)
	JoinRoom(ctx context.Context, id string) error
	SendOffer(sdp json.RawMessage) error
	SendAnswer(sdp json.RawMessage) error
	SendCandidate(candidate json.RawMessage) error
	Events() <-chan signaling.Event
	Close() error
}

// Peer is the direct channel to the other participant.
// *transport.Transport implements it.
type Peer interface {
	protocol.Channel

	CreateOffer() (json.RawMessage, error)
	AcceptOffer(sdp json.RawMessage) (json.RawMessage, error)
	AcceptAnswer(sdp json.RawMessage) error
	AddCandidate(candidate json.RawMessage) error
	OnCandidate(fn func(json.RawMessage))

	Ready() <-chan struct{}
	Done() <-chan struct{}
	Messages() <-chan protocol.Frame
	Close() error
}

// File is a plaintext file handed to or produced by a session.
type File struct {
	ID       string
	Name     string
	MimeType string
	Data     []byte // nil when the file was streamed to Path
	Path     string
}

// Config wires a session to its relay, peer channel and local storage.
type Config struct {
	Dial    func(ctx context.Context) (Relay, error)
	NewPeer func(ctx context.Context) (Peer, error)

	BaseURL string // share link prefix
	RoomID  string // sender: fixed room id; empty picks a random one

	// ChooseSink, when set, is asked for a destination as each incoming
	// file starts. Returning nil buffers the file in memory.
	ChooseSink func(meta protocol.Metadata) (Sink, error)

	// Deliver receives every decrypted file.
	Deliver func(f File) error
}

// NewConfig returns the production wiring for c: the WebSocket relay client,
// WebRTC transport and files written to c.OutputDir.
func NewConfig(c config.Client) Config {
	cfg := Config{
		Dial: func(ctx context.Context) (Relay, error) {
			client, err := signaling.Dial(ctx, c.RelayURL)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		NewPeer: func(ctx context.Context) (Peer, error) {
			t, err := transport.NewTransport(ctx, c.ICEServers)
			if err != nil {
				return nil, err
			}
			return t, nil
		},
		BaseURL: c.BaseURL,
		Deliver: func(f File) error {
			if f.Data == nil {
				return nil // already on disk
			}
			_, err := SaveFile(c.OutputDir, f)
			return err
		},
	}
	if c.Stream {
		cfg.ChooseSink = func(meta protocol.Metadata) (Sink, error) {
			sink, err := NewFileSink(c.OutputDir, meta)
			if err != nil {
				return nil, err
			}
			return sink, nil
		}
	}
	return cfg
}
