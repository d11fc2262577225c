// Package transport provides the peer channel: one WebRTC PeerConnection
// carrying a single ordered, reliable DataChannel.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/beam/internal/protocol"
	"github.com/1ureka/beam/internal/util"
)

const inboxSize = 256

// Transport wraps a single PeerConnection + DataChannel pair. SDP and ICE
// candidates cross its API as opaque JSON, ready to hand to the relay.
//
// Its lifecycle is governed by the DataChannel state and the context passed
// at construction time. A failed PeerConnection also ends it.
type Transport struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	openSignal  chan struct{}
	drainSignal chan struct{}
	inbox       chan protocol.Frame

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

// NewTransport creates a Transport using the given STUN servers.
func NewTransport(ctx context.Context, iceServers []string) (*Transport, error) {
	pc, dc, err := newPeerConnection(iceServers)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	tCtx, tCancel := context.WithCancel(ctx)

	t := &Transport{
		pc:          pc,
		dc:          dc,
		openSignal:  make(chan struct{}),
		drainSignal: make(chan struct{}, 1),
		inbox:       make(chan protocol.Frame, inboxSize),
		ctx:         tCtx,
		cancel:      tCancel,
	}

	var openOnce sync.Once
	dc.OnOpen(func() {
		util.LogDebug("DataChannel open")
		openOnce.Do(func() { close(t.openSignal) })
	})

	dc.OnClose(func() {
		util.LogDebug("DataChannel closed")
		tCancel()
	})

	// Inbound messages are handed over in order. A slow consumer stalls the
	// channel reader rather than losing frames.
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		util.Stats.AddRecv(len(msg.Data))
		select {
		case t.inbox <- protocol.Frame{Text: msg.IsString, Data: msg.Data}:
		case <-tCtx.Done():
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			tCancel()
		}
	})

	t.watchBuffer()

	return t, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Ready returns a channel that is closed when the DataChannel is open.
func (t *Transport) Ready() <-chan struct{} {
	return t.openSignal
}

// Done returns a channel that is closed when the Transport is shut down
// (DataChannel closed, connection failed or parent context cancelled).
func (t *Transport) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Messages returns inbound DataChannel messages in arrival order.
func (t *Transport) Messages() <-chan protocol.Frame {
	return t.inbox
}

// Close shuts down the DataChannel and PeerConnection.
func (t *Transport) Close() error {
	t.cancel()
	return errors.Join(t.dc.Close(), t.pc.Close())
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an offer, applies it locally and returns it as JSON.
func (t *Transport) CreateOffer() (json.RawMessage, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}
	return json.Marshal(offer)
}

// AcceptOffer applies a remote offer and returns the local answer as JSON.
func (t *Transport) AcceptOffer(sdp json.RawMessage) (json.RawMessage, error) {
	if err := t.setRemote(sdp, webrtc.SDPTypeOffer); err != nil {
		return nil, err
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}
	return json.Marshal(answer)
}

// AcceptAnswer applies the remote answer to a previously created offer.
func (t *Transport) AcceptAnswer(sdp json.RawMessage) error {
	return t.setRemote(sdp, webrtc.SDPTypeAnswer)
}

func (t *Transport) setRemote(raw json.RawMessage, want webrtc.SDPType) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", want, err)
	}
	if desc.Type != want {
		return fmt.Errorf("expected %s, got %s", want, desc.Type)
	}
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	t.mu.Lock()
	t.remoteSet = true
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	for _, c := range pending {
		if err := t.pc.AddICECandidate(c); err != nil {
			return fmt.Errorf("failed to add ICE candidate: %w", err)
		}
	}
	return nil
}

// OnCandidate registers a callback for each gathered local ICE candidate.
func (t *Transport) OnCandidate(fn func(json.RawMessage)) {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // gathering complete
		}
		raw, err := json.Marshal(c.ToJSON())
		if err != nil {
			util.LogWarning("failed to encode ICE candidate: %v", err)
			return
		}
		fn(raw)
	})
}

// AddCandidate adds a remote ICE candidate. Candidates that arrive before the
// remote description are held until it is set.
func (t *Transport) AddCandidate(raw json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &init); err != nil {
		return fmt.Errorf("failed to parse ICE candidate: %w", err)
	}

	t.mu.Lock()
	if !t.remoteSet {
		t.pending = append(t.pending, init)
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if err := t.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("failed to add ICE candidate: %w", err)
	}
	return nil
}
