package signaling

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/1ureka/beam/internal/room"
	"github.com/1ureka/beam/internal/util"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // SDP blobs are a few KiB

	// Per-endpoint message budget. Trickled ICE produces short bursts.
	messageRate  = 50
	messageBurst = 200
)

// Relay pairs WebSocket endpoints by room id. The room map lives in the
// registry; the relay itself only tracks which endpoints are connected.
type Relay struct {
	rooms *room.Registry

	mu        sync.Mutex
	endpoints map[string]*endpoint
}

// endpoint is one connected client as seen by the relay.
type endpoint struct {
	id      string
	out     *sender
	limiter *rate.Limiter
}

// NewRelay creates a relay backed by the given registry.
func NewRelay(rooms *room.Registry) *Relay {
	return &Relay{
		rooms:     rooms,
		endpoints: make(map[string]*endpoint),
	}
}

// Rooms exposes the registry, mainly for health reporting.
func (r *Relay) Rooms() *room.Registry { return r.rooms }

// Serve runs the read loop for one WebSocket connection and blocks until it
// closes. On exit every room the endpoint belonged to is torn down and the
// remaining party is told.
func (r *Relay) Serve(conn *websocket.Conn) {
	ep := &endpoint{
		id:      uuid.NewString(),
		out:     &sender{conn: conn},
		limiter: rate.NewLimiter(messageRate, messageBurst),
	}

	r.mu.Lock()
	r.endpoints[ep.id] = ep
	r.mu.Unlock()

	util.LogDebug("[%s] endpoint connected from %s", ep.id[:8], conn.RemoteAddr())

	done := make(chan struct{})
	defer func() {
		close(done)
		conn.Close()
		r.disconnect(ep)
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := ep.out.ping(); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				util.LogDebug("[%s] read error: %v", ep.id[:8], err)
			}
			return
		}
		if !ep.limiter.Allow() {
			r.limited(ep, msg)
			continue
		}
		r.handle(ep, msg)
	}
}

// handle dispatches one inbound message.
func (r *Relay) handle(ep *endpoint, msg message) {
	switch msg.Type {
	case MsgCreateRoom:
		id, err := r.createRoom(ep, msg.RoomID)
		r.reply(ep, msg.Seq, id, err)

	case MsgJoinRoom:
		_, err := r.rooms.Join(msg.RoomID, ep.id)
		r.reply(ep, msg.Seq, msg.RoomID, err)
		if err != nil {
			return
		}
		util.LogInfo("peer joined room %s", msg.RoomID)
		r.forward(ep, msg.RoomID, message{Type: MsgPeerJoined})

	case MsgOffer, MsgAnswer:
		r.forward(ep, msg.RoomID, message{Type: msg.Type, SDP: msg.SDP})

	case MsgCandidate:
		r.forward(ep, msg.RoomID, message{Type: msg.Type, Candidate: msg.Candidate})

	default:
		r.deliver(ep.id, message{Type: MsgError, Error: "unknown message type: " + string(msg.Type)})
	}
}

// limited rejects a message over the endpoint's budget. Requests still get
// their ack so the caller is not left waiting for one.
func (r *Relay) limited(ep *endpoint, msg message) {
	switch msg.Type {
	case MsgCreateRoom, MsgJoinRoom:
		r.reply(ep, msg.Seq, msg.RoomID, ErrRateLimited)
	default:
		r.deliver(ep.id, message{Type: MsgError, Error: ErrRateLimited.Error()})
	}
}

// createRoom registers a room for ep. An empty id asks the relay to pick one.
func (r *Relay) createRoom(ep *endpoint, id string) (string, error) {
	if id != "" {
		if _, err := r.rooms.Create(id, ep.id); err != nil {
			return "", err
		}
		r.opened(id)
		return id, nil
	}

	for range 8 {
		id = room.NewID()
		_, err := r.rooms.Create(id, ep.id)
		if errors.Is(err, room.ErrExists) {
			continue
		}
		if err != nil {
			return "", err
		}
		r.opened(id)
		return id, nil
	}
	return "", room.ErrExists
}

func (r *Relay) opened(id string) {
	util.Stats.OpenRoom()
	util.LogInfo("room created: %s", id)
}

// reply acknowledges a request. Failures are only ever reported to the
// requester, never broadcast.
func (r *Relay) reply(ep *endpoint, seq uint64, roomID string, err error) {
	if err := ep.out.ack(seq, roomID, err); err != nil {
		util.LogDebug("[%s] ack failed: %v", ep.id[:8], err)
	}
}

// forward sends msg to every participant of roomID except the origin. It is a
// silent no-op when the room is gone or the origin is not a participant.
func (r *Relay) forward(from *endpoint, roomID string, msg message) {
	for _, id := range r.rooms.Others(roomID, from.id) {
		r.deliver(id, msg)
	}
}

// deliver writes msg to the endpoint with the given id, if still connected.
func (r *Relay) deliver(id string, msg message) {
	r.mu.Lock()
	ep, ok := r.endpoints[id]
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := ep.out.send(msg); err != nil {
		util.LogDebug("[%s] send %s failed: %v", id[:8], msg.Type, err)
	}
}

// disconnect unregisters ep, removes its rooms and notifies the other party
// of each one exactly once.
func (r *Relay) disconnect(ep *endpoint) {
	r.mu.Lock()
	delete(r.endpoints, ep.id)
	r.mu.Unlock()

	for _, rm := range r.rooms.Leave(ep.id) {
		util.Stats.CloseRoom()
		util.LogInfo("room deleted: %s", rm.ID)
		for _, id := range rm.Members() {
			if id != ep.id {
				r.deliver(id, message{Type: MsgPeerDisconnected})
			}
		}
	}
	util.LogDebug("[%s] endpoint disconnected", ep.id[:8])
}

// Sweep removes every expired room after notifying its participants.
func (r *Relay) Sweep() int {
	n := 0
	for _, rm := range r.rooms.Expired() {
		for _, id := range rm.Members() {
			r.deliver(id, message{Type: MsgRoomExpired})
		}
		if r.rooms.Expire(rm.ID) {
			util.Stats.CloseRoom()
			util.LogInfo("room expired: %s", rm.ID)
			n++
		}
	}
	return n
}

// Run sweeps expired rooms every interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-ctx.Done():
			return
		}
	}
}
