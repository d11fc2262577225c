// Package session drives one participant of a file drop: rendezvous through
// the relay, peer channel negotiation, then any number of encrypted file
// transfers in either direction until reset.
//
// Each session runs a single event loop goroutine that owns the relay
// connection, the peer channel and the protocol engines. Callers observe it
// through Status and Await.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/1ureka/beam/internal/crypto"
	"github.com/1ureka/beam/internal/protocol"
	"github.com/1ureka/beam/internal/signaling"
	"github.com/1ureka/beam/internal/util"
)

// outgoing is a file queued for the peer, optionally already encrypted.
type outgoing struct {
	file       File
	ciphertext []byte
	reply      chan error // nil for the file shared at creation
}

type sendResult struct {
	meta  protocol.Metadata
	err   error
	reply chan error
}

// core is the machinery shared by Sender and Receiver.
type core struct {
	cfg       Config
	initiator bool // sender role: offers on peer-joined, sends the first file

	st   *broadcaster
	hist history

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	loopDone  chan struct{}
	cmds      chan outgoing

	// Owned by the loop once it runs.
	relay     Relay
	peer      Peer
	key       []byte
	pending   *outgoing
	inbound   *protocol.Receiver
	sink      Sink
	sending   chan sendResult
	outFile   string // outbound file in flight
	connected bool   // peer channel currently open
	reached   bool   // peer channel opened at least once
}

func newCore(cfg Config, initiator bool) *core {
	return &core{
		cfg:       cfg,
		initiator: initiator,
		st:        newBroadcaster(),
	}
}

// Status returns a snapshot of the session.
func (c *core) Status() Status { return c.st.get() }

// Await blocks until pred holds for the session status or ctx is done.
func (c *core) Await(ctx context.Context, pred func(Status) bool) (Status, error) {
	return c.st.await(ctx, pred)
}

// History returns every completed transfer, oldest first.
func (c *core) History() []Record { return c.hist.list() }

// SendFile encrypts f and sends it over the open peer channel. It is allowed
// in the ready state only and blocks until the transfer finishes.
func (c *core) SendFile(ctx context.Context, f File) error {
	c.lifecycle.Lock()
	cmds, done := c.cmds, c.loopDone
	c.lifecycle.Unlock()
	if cmds == nil {
		return newError(KindTransport, "not connected", ErrNotConnected)
	}

	req := outgoing{file: f, reply: make(chan error, 1)}
	select {
	case cmds <- req:
	case <-done:
		return newError(KindTransport, "not connected", ErrNotConnected)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-done:
		select {
		case err := <-req.reply:
			return err
		default:
		}
		return newError(KindTransport, "session closed", ErrNotConnected)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset tears the session down from any state and returns it to idle.
// History is kept.
func (c *core) Reset() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.cancel != nil {
		c.cancel()
		<-c.loopDone
		c.cancel, c.loopDone, c.cmds = nil, nil, nil
	} else {
		c.teardown()
	}
	c.key, c.pending = nil, nil
	c.st.update(func(s *Status) { *s = Status{State: StateIdle} })
}

// start launches the event loop. The caller holds lifecycle.
func (c *core) start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.loopDone = make(chan struct{})
	c.cmds = make(chan outgoing)
	go c.run(ctx, c.loopDone)
}

// attach adopts a freshly created peer.
func (c *core) attach(p Peer) {
	c.peer = p
	p.OnCandidate(func(candidate json.RawMessage) {
		if err := c.relay.SendCandidate(candidate); err != nil {
			util.LogDebug("failed to relay ICE candidate: %v", err)
		}
	})
	c.inbound = protocol.NewReceiver(
		protocol.OnStart(c.openSink),
		protocol.OnProgress(c.setProgress),
	)
}

func (c *core) setState(s State) {
	c.st.update(func(st *Status) { st.State = s })
}

func (c *core) setProgress(p int) {
	c.st.update(func(st *Status) { st.Progress = p })
}

func (c *core) fail(err *Error) {
	c.st.update(func(st *Status) {
		st.State = StateError
		st.Err = err
	})
}

// run is the event loop. It exits on reset or on the first terminal error,
// releasing the relay connection and peer channel either way.
func (c *core) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer c.teardown()

	events := c.relay.Events()
	var ready, peerDone <-chan struct{}
	var frames <-chan protocol.Frame

	// Frames are only read once the channel is open, so nothing is received
	// ahead of the connected transition.
	watch := func() {
		ready, peerDone = c.peer.Ready(), c.peer.Done()
	}
	if c.peer != nil {
		watch()
	}

	for {
		var err *Error

		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				if !c.reached {
					err = newError(KindRendezvous, "lost connection to relay", signaling.ErrClosed)
				}
				break
			}
			hadPeer := c.peer != nil
			err = c.handleEvent(ctx, ev)
			if !hadPeer && c.peer != nil {
				watch()
			}

		case <-ready:
			ready, frames = nil, c.peer.Messages()
			err = c.onConnected(ctx)

		case <-peerDone:
			peerDone = nil
			for drained := false; !drained && err == nil; {
				select {
				case f := <-frames:
					err = c.handleFrame(f)
				default:
					drained = true
				}
			}
			frames = nil
			if err == nil {
				err = c.onPeerClosed()
			}

		case f := <-frames:
			err = c.handleFrame(f)

		case res := <-c.sending:
			c.sending = nil
			err = c.onSent(res)

		case req := <-c.cmds:
			c.queue(ctx, req)

		case <-ctx.Done():
			return
		}

		if err != nil {
			c.fail(err)
			return
		}
	}
}

// handleEvent reacts to one relay notification.
func (c *core) handleEvent(ctx context.Context, ev signaling.Event) *Error {
	switch ev.Type {
	case signaling.MsgPeerJoined:
		if !c.initiator || c.peer != nil {
			return nil
		}
		return c.offer(ctx)

	case signaling.MsgOffer:
		if c.initiator || c.peer == nil {
			return nil
		}
		answer, err := c.peer.AcceptOffer(ev.SDP)
		if err != nil {
			return newError(KindNegotiation, "failed to accept offer", err)
		}
		if err := c.relay.SendAnswer(answer); err != nil {
			return newError(KindNegotiation, "failed to send answer", err)
		}

	case signaling.MsgAnswer:
		if !c.initiator || c.peer == nil {
			return nil
		}
		if err := c.peer.AcceptAnswer(ev.SDP); err != nil {
			return newError(KindNegotiation, "failed to accept answer", err)
		}

	case signaling.MsgCandidate:
		if c.peer != nil {
			if err := c.peer.AddCandidate(ev.Candidate); err != nil {
				util.LogDebug("ignoring ICE candidate: %v", err)
			}
		}

	case signaling.MsgPeerDisconnected:
		if !c.reached {
			return newError(KindNegotiation, "peer disconnected before the connection was established", nil)
		}
		if !c.connected {
			return nil
		}
		if c.busy() {
			return newError(KindTransport, "peer disconnected during transfer", nil)
		}
		if c.st.get().State == StateWaitingForMetadata {
			return newError(KindTransport, "peer disconnected before sending a file", nil)
		}
		c.disconnected()

	case signaling.MsgRoomExpired:
		if !c.reached {
			return newError(KindRendezvous, "room expired", nil)
		}

	case signaling.MsgError:
		if !c.reached {
			return newError(KindRendezvous, "relay error: "+ev.Error, nil)
		}
	}
	return nil
}

// offer creates the peer channel and sends the offer. Sender role only.
func (c *core) offer(ctx context.Context) *Error {
	c.setState(StateNegotiating)

	p, err := c.cfg.NewPeer(ctx)
	if err != nil {
		return newError(KindNegotiation, "failed to create peer connection", err)
	}
	c.attach(p)

	sdp, err := p.CreateOffer()
	if err != nil {
		return newError(KindNegotiation, "failed to create offer", err)
	}
	if err := c.relay.SendOffer(sdp); err != nil {
		return newError(KindNegotiation, "failed to send offer", err)
	}
	return nil
}

func (c *core) onConnected(ctx context.Context) *Error {
	c.connected, c.reached = true, true
	c.st.update(func(st *Status) { st.Connected = true })

	if c.pending != nil {
		req := *c.pending
		c.pending = nil
		c.transfer(ctx, req)
		return nil
	}
	c.setState(StateWaitingForMetadata)
	return nil
}

func (c *core) onPeerClosed() *Error {
	if !c.reached {
		return newError(KindNegotiation, "peer connection failed", nil)
	}
	if c.busy() {
		err := c.inbound.Close()
		if err == nil {
			err = errors.New("peer channel closed")
		}
		return newError(KindTransport, "peer channel closed during transfer", err)
	}
	if s := c.st.get().State; s == StateWaitingForMetadata {
		return newError(KindTransport, "peer channel closed before any file arrived", c.inbound.Close())
	}
	c.disconnected()
	return nil
}

func (c *core) disconnected() {
	c.connected = false
	c.st.update(func(st *Status) { st.Connected = false })
}

// busy reports whether a file is moving in either direction.
func (c *core) busy() bool {
	if c.sending != nil {
		return true
	}
	_, receiving := c.inbound.Current()
	return receiving
}

// ---------------------------------------------------------------------------
// Outbound
// ---------------------------------------------------------------------------

// queue handles a SendFile request from the loop.
func (c *core) queue(ctx context.Context, req outgoing) {
	switch {
	case !c.connected:
		req.reply <- newError(KindTransport, "not connected", ErrNotConnected)
	case c.busy() || c.st.get().State != StateReady:
		req.reply <- ErrBusy
	default:
		c.transfer(ctx, req)
	}
}

// transfer starts sending req in its own goroutine so the loop keeps
// serving relay and peer events.
func (c *core) transfer(ctx context.Context, req outgoing) {
	c.outFile = req.file.Name
	c.st.update(func(st *Status) {
		st.State = c.sendingState()
		st.File = req.file.Name
		st.Progress = 0
	})

	result := make(chan sendResult, 1)
	c.sending = result
	peer, key := c.peer, c.key

	go func() {
		meta, err := send(ctx, peer, key, req, c.setProgress)
		result <- sendResult{meta: meta, err: err, reply: req.reply}
	}()
}

func send(ctx context.Context, peer Peer, key []byte, req outgoing, progress func(int)) (protocol.Metadata, error) {
	f := req.file
	if f.MimeType == "" {
		f.MimeType = DetectMIME(f.Name, f.Data)
	}

	ciphertext := req.ciphertext
	if ciphertext == nil {
		var err error
		if ciphertext, err = crypto.Encrypt(f.Data, key); err != nil {
			return protocol.Metadata{}, err
		}
	}

	meta := protocol.Metadata{
		FileID:   f.ID,
		Name:     f.Name,
		MimeType: f.MimeType,
		Size:     int64(len(f.Data)),
	}
	return protocol.NewSender(peer).Send(ctx, meta, ciphertext, progress)
}

func (c *core) onSent(res sendResult) *Error {
	if res.err != nil {
		err := newError(KindTransport, "transfer failed", res.err)
		if res.reply != nil {
			res.reply <- err
		}
		return err
	}

	util.Stats.FileSent()
	c.hist.add(Record{
		FileID:      res.meta.FileID,
		Name:        res.meta.Name,
		Size:        res.meta.Size,
		Direction:   DirectionSent,
		CompletedAt: time.Now(),
	})
	c.outFile = ""
	c.settle()
	if res.reply != nil {
		res.reply <- nil
	}
	return nil
}

// ---------------------------------------------------------------------------
// Inbound
// ---------------------------------------------------------------------------

// openSink runs when a file starts arriving.
func (c *core) openSink(meta protocol.Metadata) (io.WriteCloser, error) {
	c.sink = nil
	c.st.update(func(st *Status) {
		st.File = meta.Name
		st.Progress = 0
	})

	if c.cfg.ChooseSink != nil {
		c.setState(StateChoosingSaveLocation)
		sink, err := c.cfg.ChooseSink(meta)
		if err != nil {
			return nil, err
		}
		c.sink = sink
	}
	c.setState(StateReceiving)

	if c.sink == nil {
		return nil, nil
	}
	return c.sink, nil
}

func (c *core) handleFrame(f protocol.Frame) *Error {
	res, err := c.inbound.Feed(f)
	if err != nil {
		if errors.Is(err, protocol.ErrProtocolViolation) {
			return newError(KindProtocol, "protocol violation", err)
		}
		return newError(KindTransport, "receive failed", err)
	}
	if res == nil {
		return nil
	}
	return c.received(res)
}

// received decrypts and delivers a completed file.
func (c *core) received(res *protocol.Result) *Error {
	c.setState(StateDecrypting)

	f := File{ID: res.Metadata.FileID, Name: res.Metadata.Name, MimeType: res.Metadata.MimeType}
	if res.Streamed {
		path, err := c.sink.Finalize(c.key)
		c.sink = nil
		if err != nil {
			return decryptError(err)
		}
		f.Path = path
	} else {
		plain, err := crypto.Decrypt(res.Data, c.key)
		if err != nil {
			return decryptError(err)
		}
		f.Data = plain
	}

	if c.cfg.Deliver != nil {
		if err := c.cfg.Deliver(f); err != nil {
			return newError(KindTransport, "failed to save file", err)
		}
	}

	util.Stats.FileRecv()
	c.hist.add(Record{
		FileID:      f.ID,
		Name:        f.Name,
		Size:        res.Metadata.Size,
		Direction:   DirectionReceived,
		CompletedAt: time.Now(),
	})
	c.settle()
	return nil
}

// settle runs after a transfer in one direction finished. The session is
// ready only once nothing moves either way; otherwise the status goes back
// to the transfer still running.
func (c *core) settle() {
	if meta, receiving := c.inbound.Current(); receiving {
		c.st.update(func(st *Status) {
			st.State = StateReceiving
			st.File = meta.Name
		})
		return
	}
	if c.sending != nil {
		c.st.update(func(st *Status) {
			st.State = c.sendingState()
			st.File = c.outFile
		})
		return
	}
	c.st.update(func(st *Status) {
		st.State = StateReady
		st.Progress = 100
	})
}

func (c *core) sendingState() State {
	if c.initiator {
		return StateTransferring
	}
	return StateSending
}

func decryptError(err error) *Error {
	if errors.Is(err, crypto.ErrIntegrity) {
		return newError(KindIntegrity, crypto.ErrIntegrity.Error(), err)
	}
	return newError(KindTransport, "failed to finalize file", err)
}

// teardown releases every resource of the current connection.
func (c *core) teardown() {
	if c.inbound != nil {
		c.inbound.Close()
		c.inbound = nil
	}
	if c.peer != nil {
		c.peer.Close()
		c.peer = nil
	}
	if c.relay != nil {
		c.relay.Close()
		c.relay = nil
	}
	c.sink = nil
	c.sending, c.outFile = nil, ""
	c.connected, c.reached = false, false
}
