package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/1ureka/beam/internal/room"
)

var (
	// ErrClosed is returned by client operations after the connection is gone.
	ErrClosed = errors.New("relay connection closed")

	// ErrRateLimited is the reason given when the relay drops a message
	// because its sender exceeded the per-connection budget.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// RequestError reports a create/join request the relay refused.
type RequestError struct {
	Op     MessageType
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Op, e.Reason)
}

// Unwrap maps the relay's reason back onto the room sentinels so callers can
// use errors.Is(err, room.ErrNotFound) and friends.
func (e *RequestError) Unwrap() error {
	for _, sentinel := range []error{room.ErrExists, room.ErrNotFound, room.ErrFull, room.ErrOwnRoom, room.ErrBadID, ErrRateLimited} {
		if e.Reason == sentinel.Error() {
			return sentinel
		}
	}
	return nil
}

// Client is a session's connection to the relay.
type Client struct {
	conn *websocket.Conn
	out  *sender

	roomMu sync.Mutex
	roomID string

	mu      sync.Mutex
	seq     uint64
	pending map[uint64]chan message

	events chan Event
	done   chan struct{}
	quit   chan struct{}
	err    error

	closeOnce sync.Once
}

// Dial connects to the relay WebSocket at url.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}

	c := &Client{
		conn:    conn,
		out:     &sender{conn: conn},
		pending: make(map[uint64]chan message),
		events:  make(chan Event, 64),
		done:    make(chan struct{}),
		quit:    make(chan struct{}),
	}
	go c.watch()
	return c, nil
}

// CreateRoom registers a room with the given id and returns the id the relay
// confirmed. An empty id lets the relay pick one.
func (c *Client) CreateRoom(ctx context.Context, id string) (string, error) {
	ack, err := c.request(ctx, message{Type: MsgCreateRoom, RoomID: id})
	if err != nil {
		return "", err
	}
	c.setRoom(ack.RoomID)
	return ack.RoomID, nil
}

// JoinRoom joins an existing room as its receiver.
func (c *Client) JoinRoom(ctx context.Context, id string) error {
	if _, err := c.request(ctx, message{Type: MsgJoinRoom, RoomID: id}); err != nil {
		return err
	}
	c.setRoom(id)
	return nil
}

// RoomID returns the room this client created or joined.
func (c *Client) RoomID() string {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()
	return c.roomID
}

func (c *Client) setRoom(id string) {
	c.roomMu.Lock()
	c.roomID = id
	c.roomMu.Unlock()
}

// SendOffer forwards an SDP offer to the other party of the room.
func (c *Client) SendOffer(sdp json.RawMessage) error {
	return c.forward(message{Type: MsgOffer, SDP: sdp})
}

// SendAnswer forwards an SDP answer to the other party of the room.
func (c *Client) SendAnswer(sdp json.RawMessage) error {
	return c.forward(message{Type: MsgAnswer, SDP: sdp})
}

// SendCandidate forwards an ICE candidate to the other party of the room.
func (c *Client) SendCandidate(candidate json.RawMessage) error {
	return c.forward(message{Type: MsgCandidate, Candidate: candidate})
}

func (c *Client) forward(msg message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	msg.RoomID = c.RoomID()
	if err := c.out.send(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	return nil
}

// request sends msg with a fresh sequence number and waits for its ack.
func (c *Client) request(ctx context.Context, msg message) (message, error) {
	reply := make(chan message, 1)

	c.mu.Lock()
	c.seq++
	msg.Seq = c.seq
	c.pending[msg.Seq] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.Seq)
		c.mu.Unlock()
	}()

	if err := c.out.send(msg); err != nil {
		return message{}, fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}

	select {
	case ack := <-reply:
		if !ack.Success {
			return ack, &RequestError{Op: msg.Type, Reason: ack.Error}
		}
		return ack, nil
	case <-c.done:
		return message{}, ErrClosed
	case <-ctx.Done():
		return message{}, ctx.Err()
	}
}

// Events returns the stream of relay notifications. It is closed when the
// connection ends.
func (c *Client) Events() <-chan Event { return c.events }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the reason the connection ended, once Done is closed.
func (c *Client) Err() error {
	<-c.done
	return c.err
}

// Close closes the relay connection. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.quit)
		c.out.mu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline())
		c.out.mu.Unlock()
		err = c.conn.Close()
	})
	return err
}
