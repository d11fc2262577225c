package signaling

import (
	"time"

	"github.com/gorilla/websocket"
)

func deadline() time.Time { return time.Now().Add(writeWait) }

// watch reads relay messages until the connection closes, routing acks to the
// waiting request and everything else to the events channel.
func (c *Client) watch() {
	defer func() {
		close(c.done)
		close(c.events)
	}()

	for {
		var msg message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.err = err
			}
			return
		}

		switch msg.Type {
		case MsgAck:
			c.mu.Lock()
			reply, ok := c.pending[msg.Seq]
			c.mu.Unlock()
			if ok {
				reply <- msg
			}

		case MsgPeerJoined, MsgPeerDisconnected, MsgRoomExpired,
			MsgOffer, MsgAnswer, MsgCandidate, MsgError:
			ev := Event{
				Type:      msg.Type,
				SDP:       msg.SDP,
				Candidate: msg.Candidate,
				Error:     msg.Error,
			}
			select {
			case c.events <- ev:
			case <-c.quit:
				return
			}
		}
	}
}
