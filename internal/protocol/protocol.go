// Package protocol frames encrypted files for the peer channel.
//
// A file travels as a JSON start message, a run of binary chunks and a JSON
// end message, all over one ordered, reliable channel:
//
//	{"type":"file-start","fileId":"…","name":"…","mimeType":"…","size":N,"encryptedSize":M}
//	<binary chunk ≤ ChunkSize> …
//	{"type":"file-end","fileId":"…"}
//
// The decoder also accepts the legacy "metadata"/"complete" pair, which
// carries no file id, and the nested {"metadata":{…}} start shape. The
// encoder only ever emits the file-start/file-end form.
package protocol

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	// ChunkSize is the largest binary frame sent or accepted.
	ChunkSize = 16 * 1024

	// BufferThreshold is the buffered byte count above which the sender
	// stops writing until the channel drains.
	BufferThreshold = 10 * ChunkSize

	// RetryDelay is how long the sender waits before checking the buffered
	// amount again when the channel offers no drain signal.
	RetryDelay = 50 * time.Millisecond
)

var (
	// ErrProtocolViolation marks any frame sequence the receiver refuses.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrNoData is returned when the channel closes before a single file
	// completed.
	ErrNoData = errors.New("channel closed before receiving data")

	// ErrIncomplete is returned when the channel closes between a start and
	// its end.
	ErrIncomplete = errors.New("channel closed mid-transfer")
)

// Metadata describes one file on the wire.
type Metadata struct {
	FileID        string `json:"fileId,omitempty"`
	Name          string `json:"name"`
	MimeType      string `json:"mimeType"`
	Size          int64  `json:"size"`          // plaintext bytes
	EncryptedSize int64  `json:"encryptedSize"` // ciphertext bytes, i.e. what is chunked
}

// Frame is one inbound peer channel message.
type Frame struct {
	Text bool
	Data []byte
}

// NewFileID returns a fresh file id.
func NewFileID() string {
	return uuid.NewString()
}

// percent returns round(done/total × 100).
func percent(done, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}
