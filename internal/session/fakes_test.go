package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/1ureka/beam/internal/protocol"
	"github.com/1ureka/beam/internal/room"
	"github.com/1ureka/beam/internal/signaling"
)

// startRelay serves a real relay over httptest.
func startRelay(t *testing.T, opts ...room.Option) (*signaling.Relay, func(context.Context) (Relay, error)) {
	t.Helper()
	relay := signaling.NewRelay(room.NewRegistry(time.Minute, opts...))
	srv := httptest.NewServer(signaling.NewServer(relay).Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return relay, func(ctx context.Context) (Relay, error) {
		c, err := signaling.Dial(ctx, url)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// peerNet is an in-memory stand-in for WebRTC. Offers and answers carry the
// peer id; the pair opens when the answer is accepted.
type peerNet struct {
	mu    sync.Mutex
	peers map[string]*fakePeer
	n     int
}

func newPeerNet() *peerNet {
	return &peerNet{peers: make(map[string]*fakePeer)}
}

func (n *peerNet) NewPeer(context.Context) (Peer, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.n++
	p := &fakePeer{
		net:   n,
		id:    fmt.Sprintf("peer-%d", n.n),
		ready: make(chan struct{}),
		done:  make(chan struct{}),
		inbox: make(chan protocol.Frame, 4096),
	}
	n.peers[p.id] = p
	return p, nil
}

func (n *peerNet) get(id string) *fakePeer {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.peers[id]
}

type fakeSDP struct {
	Peer string `json:"peer"`
}

type fakePeer struct {
	net   *peerNet
	id    string
	ready chan struct{}
	done  chan struct{}
	inbox chan protocol.Frame

	mu        sync.Mutex
	remote    *fakePeer
	gate      chan struct{} // when set, sends wait for it to close
	readyOnce sync.Once
	doneOnce  sync.Once
}

func (p *fakePeer) sdp() json.RawMessage {
	b, _ := json.Marshal(fakeSDP{Peer: p.id})
	return b
}

func (p *fakePeer) lookup(raw json.RawMessage) (*fakePeer, error) {
	var s fakeSDP
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	remote := p.net.get(s.Peer)
	if remote == nil {
		return nil, errors.New("unknown peer " + s.Peer)
	}
	return remote, nil
}

func (p *fakePeer) CreateOffer() (json.RawMessage, error) { return p.sdp(), nil }

func (p *fakePeer) AcceptOffer(raw json.RawMessage) (json.RawMessage, error) {
	remote, err := p.lookup(raw)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.remote = remote
	p.mu.Unlock()
	return p.sdp(), nil
}

func (p *fakePeer) AcceptAnswer(raw json.RawMessage) error {
	remote, err := p.lookup(raw)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.remote = remote
	p.mu.Unlock()

	p.open()
	remote.open()
	return nil
}

func (p *fakePeer) open() {
	p.readyOnce.Do(func() { close(p.ready) })
}

func (p *fakePeer) AddCandidate(json.RawMessage) error { return nil }

func (p *fakePeer) OnCandidate(fn func(json.RawMessage)) {
	fn(json.RawMessage(`{"candidate":"candidate:0 1 udp 1 127.0.0.1 9 typ host"}`))
}

func (p *fakePeer) Ready() <-chan struct{}          { return p.ready }
func (p *fakePeer) Done() <-chan struct{}           { return p.done }
func (p *fakePeer) Messages() <-chan protocol.Frame { return p.inbox }
func (p *fakePeer) BufferedAmount() uint64          { return 0 }

func (p *fakePeer) Send(data []byte) error {
	return p.deliver(protocol.Frame{Data: bytes.Clone(data)})
}

func (p *fakePeer) SendText(text string) error {
	return p.deliver(protocol.Frame{Text: true, Data: []byte(text)})
}

// hold makes every later send block until the returned func is called.
func (p *fakePeer) hold() (release func()) {
	gate := make(chan struct{})
	p.mu.Lock()
	p.gate = gate
	p.mu.Unlock()
	return func() { close(gate) }
}

// inject queues f as if the remote side had sent it.
func (p *fakePeer) inject(f protocol.Frame) {
	p.inbox <- f
}

func (p *fakePeer) deliver(f protocol.Frame) error {
	p.mu.Lock()
	remote, gate := p.remote, p.gate
	p.mu.Unlock()
	if remote == nil {
		return errors.New("not connected")
	}
	if gate != nil {
		select {
		case <-gate:
		case <-p.done:
			return errors.New("channel closed")
		}
	}
	select {
	case remote.inbox <- f:
		return nil
	case <-p.done:
		return errors.New("channel closed")
	}
}

// Close ends both sides, as closing a data channel does.
func (p *fakePeer) Close() error {
	p.shut()
	p.mu.Lock()
	remote := p.remote
	p.mu.Unlock()
	if remote != nil {
		remote.shut()
	}
	return nil
}

func (p *fakePeer) shut() {
	p.doneOnce.Do(func() { close(p.done) })
}
