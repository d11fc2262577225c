package protocol

import (
	"bytes"
	"fmt"
	"io"
)

// Result is one completed file.
type Result struct {
	Metadata Metadata
	Data     []byte // nil when Streamed
	Streamed bool   // chunks went to the sink returned by OnStart
}

// Aborter is implemented by sinks that can discard partial output. The
// receiver calls Abort instead of Close when a transfer fails.
type Aborter interface {
	Abort() error
}

type phase int

const (
	awaitingMetadata phase = iota
	receiving
	failed
)

// Receiver reassembles files from inbound frames. Files arrive one after
// another; anything out of sequence fails the receiver for good.
// A Receiver is not safe for concurrent use.
type Receiver struct {
	onStart    func(Metadata) (io.WriteCloser, error)
	onProgress func(int)

	phase    phase
	variant  Variant
	meta     Metadata
	buf      bytes.Buffer
	sink     io.WriteCloser
	received int64
	done     int
	err      error
}

// ReceiverOption customizes a Receiver.
type ReceiverOption func(*Receiver)

// OnStart is called when a file starts. A non-nil writer streams that file's
// chunks into it instead of memory; returning nil, nil buffers as usual.
func OnStart(fn func(Metadata) (io.WriteCloser, error)) ReceiverOption {
	return func(r *Receiver) { r.onStart = fn }
}

// OnProgress receives round(received/encryptedSize × 100) after every chunk.
func OnProgress(fn func(int)) ReceiverOption {
	return func(r *Receiver) { r.onProgress = fn }
}

// NewReceiver creates a receiver awaiting the first file.
func NewReceiver(opts ...ReceiverOption) *Receiver {
	r := &Receiver{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Current returns the metadata of the file being received, if any.
func (r *Receiver) Current() (Metadata, bool) {
	return r.meta, r.phase == receiving
}

// Feed consumes one frame. It returns a Result when the frame completed a
// file and nil otherwise. After the first error every call returns it.
func (r *Receiver) Feed(f Frame) (*Result, error) {
	if r.phase == failed {
		return nil, r.err
	}
	if !f.Text {
		return nil, r.chunk(f.Data)
	}

	c, err := DecodeControl(f.Data)
	if err != nil {
		return nil, r.fail(err)
	}
	if r.variant != 0 && c.Variant != r.variant {
		return nil, r.violation("%s message after %s messages", c.Variant, r.variant)
	}
	r.variant = c.Variant

	switch c.Kind {
	case KindStart:
		return nil, r.start(c.Metadata)
	default:
		return r.end(c)
	}
}

func (r *Receiver) start(meta Metadata) error {
	if r.phase == receiving {
		return r.violation("start of %q before end of %q", meta.Name, r.meta.Name)
	}

	r.meta = meta
	r.received = 0
	r.buf.Reset()
	r.sink = nil
	if r.onStart != nil {
		sink, err := r.onStart(meta)
		if err != nil {
			return r.fail(fmt.Errorf("failed to open sink for %q: %w", meta.Name, err))
		}
		r.sink = sink
	}
	r.phase = receiving
	return nil
}

func (r *Receiver) chunk(data []byte) error {
	if r.phase != receiving {
		return r.violation("chunk of %d bytes before start", len(data))
	}
	if len(data) > ChunkSize {
		return r.violation("chunk of %d bytes exceeds %d", len(data), ChunkSize)
	}
	total := r.meta.EncryptedSize
	if total > 0 && r.received+int64(len(data)) > total {
		return r.violation("received more than the announced %d bytes", total)
	}

	var err error
	if r.sink != nil {
		_, err = r.sink.Write(data)
	} else {
		_, err = r.buf.Write(data)
	}
	if err != nil {
		return r.fail(fmt.Errorf("failed to write chunk: %w", err))
	}

	r.received += int64(len(data))
	if r.onProgress != nil && total > 0 {
		r.onProgress(percent(r.received, total))
	}
	return nil
}

func (r *Receiver) end(c Control) (*Result, error) {
	if r.phase != receiving {
		return nil, r.violation("end without start")
	}
	if c.Variant == VariantCurrent && c.FileID != r.meta.FileID {
		return nil, r.violation("end of %q while receiving %q", c.FileID, r.meta.FileID)
	}
	if total := r.meta.EncryptedSize; total > 0 && r.received != total {
		return nil, r.violation("end after %d of %d bytes", r.received, total)
	}

	res := &Result{Metadata: r.meta}
	if r.sink != nil {
		if err := r.sink.Close(); err != nil {
			r.sink = nil
			return nil, r.fail(fmt.Errorf("failed to finalize sink: %w", err))
		}
		res.Streamed = true
	} else {
		res.Data = bytes.Clone(r.buf.Bytes())
	}

	r.phase = awaitingMetadata
	r.sink = nil
	r.buf.Reset()
	r.done++
	return res, nil
}

// Close reports how the channel closing leaves the receiver: nil when at
// least one file completed and none is in flight.
func (r *Receiver) Close() error {
	switch {
	case r.phase == failed:
		return r.err
	case r.phase == receiving:
		return r.fail(fmt.Errorf("%w: %q at %d of %d bytes", ErrIncomplete, r.meta.Name, r.received, r.meta.EncryptedSize))
	case r.done == 0:
		return r.fail(ErrNoData)
	}
	return nil
}

func (r *Receiver) violation(format string, args ...any) error {
	return r.fail(fmt.Errorf("%w: "+format, append([]any{ErrProtocolViolation}, args...)...))
}

// fail moves the receiver into its terminal state and discards any partial
// sink output.
func (r *Receiver) fail(err error) error {
	if r.sink != nil {
		if a, ok := r.sink.(Aborter); ok {
			a.Abort()
		} else {
			r.sink.Close()
		}
		r.sink = nil
	}
	r.buf.Reset()
	r.phase = failed
	r.err = err
	return err
}
