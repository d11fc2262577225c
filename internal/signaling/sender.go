package signaling

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// sender serializes outgoing messages to one WebSocket (private). It is used
// by both relay endpoints and clients.
type sender struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// send writes a message to the WebSocket, guarded by a mutex.
func (s *sender) send(msg message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

// ack answers the request identified by seq.
func (s *sender) ack(seq uint64, roomID string, err error) error {
	msg := message{Type: MsgAck, Seq: seq, RoomID: roomID, Success: err == nil}
	if err != nil {
		msg.Error = err.Error()
	}
	return s.send(msg)
}

// ping sends a WebSocket ping control frame. WriteControl may run
// concurrently with send.
func (s *sender) ping() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}
