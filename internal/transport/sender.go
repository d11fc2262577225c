package transport

import (
	"fmt"

	"github.com/1ureka/beam/internal/protocol"
	"github.com/1ureka/beam/internal/util"
)

// Send writes one binary message.
func (t *Transport) Send(data []byte) error {
	if err := t.dc.Send(data); err != nil {
		return fmt.Errorf("data channel send: %w", err)
	}
	util.Stats.AddSent(len(data))
	return nil
}

// SendText writes one text message.
func (t *Transport) SendText(text string) error {
	if err := t.dc.SendText(text); err != nil {
		return fmt.Errorf("data channel send: %w", err)
	}
	util.Stats.AddSent(len(text))
	return nil
}

// BufferedAmount returns the bytes queued on the channel but not yet sent.
func (t *Transport) BufferedAmount() uint64 {
	return t.dc.BufferedAmount()
}

// Drained fires after the buffered amount falls to protocol.BufferThreshold.
// It holds at most one pending signal.
func (t *Transport) Drained() <-chan struct{} {
	return t.drainSignal
}

// watchBuffer wires the drain signal to the data channel.
func (t *Transport) watchBuffer() {
	t.dc.SetBufferedAmountLowThreshold(protocol.BufferThreshold)
	t.dc.OnBufferedAmountLow(func() {
		select {
		case t.drainSignal <- struct{}{}:
		default:
		}
	})
}
