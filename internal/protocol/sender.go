package protocol

import (
	"context"
	"fmt"
	"time"
)

// Channel is the outbound half of a peer channel.
type Channel interface {
	Send(data []byte) error
	SendText(text string) error
	BufferedAmount() uint64
}

// Drainer is implemented by channels that can signal when their buffer has
// drained below the threshold. Channels without it are polled.
type Drainer interface {
	Drained() <-chan struct{}
}

// Sender writes files to a Channel with backpressure.
type Sender struct {
	ch         Channel
	chunkSize  int
	threshold  uint64
	retryDelay time.Duration
}

// SenderOption customizes a Sender.
type SenderOption func(*Sender)

// WithChunkSize overrides ChunkSize. The buffer threshold follows it.
func WithChunkSize(n int) SenderOption {
	return func(s *Sender) {
		if n > 0 {
			s.chunkSize = n
			s.threshold = uint64(10 * n)
		}
	}
}

// WithRetryDelay overrides RetryDelay.
func WithRetryDelay(d time.Duration) SenderOption {
	return func(s *Sender) { s.retryDelay = d }
}

// NewSender creates a Sender writing to ch.
func NewSender(ch Channel, opts ...SenderOption) *Sender {
	s := &Sender{
		ch:         ch,
		chunkSize:  ChunkSize,
		threshold:  BufferThreshold,
		retryDelay: RetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send transmits ciphertext as one file: start, chunks in order, end. An
// empty meta.FileID is filled in, and meta.EncryptedSize is always set from
// ciphertext; the metadata actually sent is returned. progress, if not nil,
// receives round(chunksSent/totalChunks × 100) after every chunk.
func (s *Sender) Send(ctx context.Context, meta Metadata, ciphertext []byte, progress func(int)) (Metadata, error) {
	if meta.FileID == "" {
		meta.FileID = NewFileID()
	}
	meta.EncryptedSize = int64(len(ciphertext))

	if err := s.ch.SendText(EncodeStart(meta)); err != nil {
		return meta, fmt.Errorf("failed to send start of %s: %w", meta.FileID, err)
	}

	chunks := Split(ciphertext, s.chunkSize)
	for i, chunk := range chunks {
		if err := s.wait(ctx); err != nil {
			return meta, err
		}
		if err := s.ch.Send(chunk); err != nil {
			return meta, fmt.Errorf("failed to send chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if progress != nil {
			progress(percent(int64(i+1), int64(len(chunks))))
		}
	}

	if err := s.ch.SendText(EncodeEnd(meta.FileID)); err != nil {
		return meta, fmt.Errorf("failed to send end of %s: %w", meta.FileID, err)
	}
	return meta, nil
}

// wait blocks while the channel holds more than the threshold. There is no
// upper bound on how long it waits; ctx is the only way out.
func (s *Sender) wait(ctx context.Context) error {
	var drained <-chan struct{}
	if d, ok := s.ch.(Drainer); ok {
		drained = d.Drained()
	}

	for s.ch.BufferedAmount() > s.threshold {
		timer := time.NewTimer(s.retryDelay)
		select {
		case <-drained:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
		timer.Stop()
	}
	return nil
}
