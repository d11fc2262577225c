package protocol

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeChannel records frames. Every BufferedAmount call drains up to drainStep
// bytes, imitating the network slowly taking data off the buffer.
type fakeChannel struct {
	mu        sync.Mutex
	frames    []Frame
	buffered  uint64
	drainStep uint64
	threshold uint64
	overfull  int // chunk sends made while above threshold
}

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.threshold > 0 && c.buffered > c.threshold {
		c.overfull++
	}
	c.frames = append(c.frames, Frame{Data: bytes.Clone(data)})
	c.buffered += uint64(len(data))
	return nil
}

func (c *fakeChannel) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, Frame{Text: true, Data: []byte(text)})
	return nil
}

func (c *fakeChannel) BufferedAmount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.buffered
	c.buffered -= min(c.buffered, c.drainStep)
	return n
}

func (c *fakeChannel) Frames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.frames...)
}

// drainingChannel only empties when drain is called, and signals it.
type drainingChannel struct {
	fakeChannel
	drained chan struct{}
}

func (c *drainingChannel) Drained() <-chan struct{} { return c.drained }

func (c *drainingChannel) drain() {
	c.mu.Lock()
	c.buffered = 0
	c.mu.Unlock()
	c.drained <- struct{}{}
}

func payload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

// TestSenderFraming verifies start, ordered chunks and end.
func TestSenderFraming(t *testing.T) {
	ch := &fakeChannel{drainStep: ^uint64(0)}
	data := payload(2*ChunkSize + 10)

	meta, err := NewSender(ch).Send(context.Background(), Metadata{Name: "x.bin", Size: 123}, data, nil)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if meta.FileID == "" {
		t.Error("Send did not assign a file id")
	}
	if meta.EncryptedSize != int64(len(data)) {
		t.Errorf("EncryptedSize = %d, want %d", meta.EncryptedSize, len(data))
	}

	frames := ch.Frames()
	if len(frames) != 5 {
		t.Fatalf("got %d frames, want start + 3 chunks + end", len(frames))
	}

	start, err := DecodeControl(frames[0].Data)
	if err != nil || start.Kind != KindStart || start.Metadata != meta {
		t.Errorf("first frame is not the start for %+v: %+v, %v", meta, start, err)
	}
	end, err := DecodeControl(frames[4].Data)
	if err != nil || end.Kind != KindEnd || end.FileID != meta.FileID {
		t.Errorf("last frame is not the end for %s: %+v, %v", meta.FileID, end, err)
	}

	var chunks [][]byte
	for _, f := range frames[1:4] {
		if f.Text {
			t.Fatal("text frame among chunks")
		}
		chunks = append(chunks, f.Data)
	}
	if !bytes.Equal(Join(chunks), data) {
		t.Error("chunks do not reassemble to the ciphertext")
	}
}

func TestSenderKeepsGivenFileID(t *testing.T) {
	ch := &fakeChannel{drainStep: ^uint64(0)}
	meta, err := NewSender(ch).Send(context.Background(), Metadata{FileID: "mine"}, payload(10), nil)
	if err != nil {
		t.Fatal(err)
	}
	if meta.FileID != "mine" {
		t.Errorf("FileID = %q, want mine", meta.FileID)
	}
}

// TestSenderProgress verifies round(chunksSent/totalChunks × 100) per chunk.
func TestSenderProgress(t *testing.T) {
	ch := &fakeChannel{drainStep: ^uint64(0)}

	var got []int
	_, err := NewSender(ch).Send(context.Background(), Metadata{}, payload(3*ChunkSize), func(p int) {
		got = append(got, p)
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []int{33, 67, 100}
	if len(got) != len(want) {
		t.Fatalf("progress = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("progress = %v, want %v", got, want)
			break
		}
	}
}

// TestSenderPollsBufferedAmount verifies no chunk is written while the
// channel is above the threshold.
func TestSenderPollsBufferedAmount(t *testing.T) {
	ch := &fakeChannel{
		buffered:  BufferThreshold * 2,
		drainStep: ChunkSize,
		threshold: BufferThreshold,
	}
	data := payload(40 * ChunkSize)

	s := NewSender(ch, WithRetryDelay(time.Millisecond))
	if _, err := s.Send(context.Background(), Metadata{}, data, nil); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if ch.overfull != 0 {
		t.Errorf("%d chunks sent above the threshold", ch.overfull)
	}
	if n := len(ch.Frames()); n != 42 {
		t.Errorf("got %d frames, want 42", n)
	}
}

// TestSenderWaitsForDrainSignal verifies the drain event resumes sending
// without relying on the poll timer.
func TestSenderWaitsForDrainSignal(t *testing.T) {
	ch := &drainingChannel{drained: make(chan struct{}, 1)}
	ch.buffered = BufferThreshold + 1

	s := NewSender(ch, WithRetryDelay(time.Hour))
	done := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), Metadata{}, payload(ChunkSize), nil)
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("Send returned before drain: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	if n := len(ch.Frames()); n != 1 {
		t.Fatalf("got %d frames before drain, want only the start", n)
	}

	ch.drain()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not resume after drain")
	}
}

func TestSenderCancelledWhileWaiting(t *testing.T) {
	ch := &fakeChannel{buffered: BufferThreshold + 1}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewSender(ch, WithRetryDelay(5*time.Millisecond)).Send(ctx, Metadata{}, payload(10), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want context.DeadlineExceeded", err)
	}
}
