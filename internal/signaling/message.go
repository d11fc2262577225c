// Package signaling implements the rendezvous relay that pairs two peers by
// room id and forwards their WebRTC negotiation messages, plus the client used
// by sessions to talk to it. Offers, answers and ICE candidates are carried as
// opaque JSON and never inspected.
package signaling

import "encoding/json"

// MessageType identifies the kind of relay message.
type MessageType string

const (
	// Requests (client → relay), answered with MsgAck.
	MsgCreateRoom MessageType = "create-room"
	MsgJoinRoom   MessageType = "join-room"

	MsgAck MessageType = "ack"

	// Forwarded verbatim between the two parties of a room.
	MsgOffer     MessageType = "offer"
	MsgAnswer    MessageType = "answer"
	MsgCandidate MessageType = "ice-candidate"

	// Events (relay → client).
	MsgPeerJoined       MessageType = "peer-joined"
	MsgPeerDisconnected MessageType = "peer-disconnected"
	MsgRoomExpired      MessageType = "room-expired"
	MsgError            MessageType = "error"
)

// message is the JSON structure exchanged over the WebSocket.
type message struct {
	Type      MessageType     `json:"type"`
	Seq       uint64          `json:"seq,omitempty"` // request/ack correlation
	RoomID    string          `json:"roomId,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Success   bool            `json:"success,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Event is an asynchronous notification delivered to a client.
type Event struct {
	Type      MessageType
	SDP       json.RawMessage // MsgOffer, MsgAnswer
	Candidate json.RawMessage // MsgCandidate
	Error     string          // MsgError
}
