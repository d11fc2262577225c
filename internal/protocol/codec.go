package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind distinguishes control messages.
type Kind int

const (
	KindStart Kind = iota + 1
	KindEnd
)

// Variant records which wire dialect a control message used.
type Variant int

const (
	VariantCurrent Variant = iota + 1 // file-start / file-end
	VariantLegacy                     // metadata / complete
)

func (v Variant) String() string {
	switch v {
	case VariantCurrent:
		return "file-start/file-end"
	case VariantLegacy:
		return "metadata/complete"
	default:
		return "unknown"
	}
}

const (
	typeFileStart = "file-start"
	typeFileEnd   = "file-end"
	typeMetadata  = "metadata"
	typeComplete  = "complete"
)

// Control is a decoded JSON control message.
type Control struct {
	Kind     Kind
	Variant  Variant
	FileID   string
	Metadata Metadata // KindStart only
}

type startMessage struct {
	Type string `json:"type"`
	Metadata
}

type endMessage struct {
	Type   string `json:"type"`
	FileID string `json:"fileId"`
}

// inbound is the union of every accepted control shape.
type inbound struct {
	Type   string    `json:"type"`
	FileID string    `json:"fileId"`
	Nested *Metadata `json:"metadata"`
	Metadata
}

// EncodeStart serializes the start message for meta.
func EncodeStart(meta Metadata) string {
	b, _ := json.Marshal(startMessage{Type: typeFileStart, Metadata: meta})
	return string(b)
}

// EncodeEnd serializes the end message for fileID.
func EncodeEnd(fileID string) string {
	b, _ := json.Marshal(endMessage{Type: typeFileEnd, FileID: fileID})
	return string(b)
}

// DecodeControl parses a text frame. Anything unparseable or of an unknown
// type is a protocol violation.
func DecodeControl(data []byte) (Control, error) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return Control{}, fmt.Errorf("%w: malformed control message: %v", ErrProtocolViolation, err)
	}

	switch msg.Type {
	case typeFileStart, typeMetadata:
		meta := msg.Metadata
		if msg.Nested != nil {
			meta = *msg.Nested
		}
		meta.FileID = msg.FileID

		c := Control{Kind: KindStart, Variant: VariantCurrent, FileID: msg.FileID, Metadata: meta}
		if msg.Type == typeMetadata {
			c.Variant = VariantLegacy
		}
		if meta.Size < 0 || meta.EncryptedSize < 0 {
			return Control{}, fmt.Errorf("%w: negative size in %s", ErrProtocolViolation, msg.Type)
		}
		return c, nil

	case typeFileEnd:
		return Control{Kind: KindEnd, Variant: VariantCurrent, FileID: msg.FileID}, nil

	case typeComplete:
		return Control{Kind: KindEnd, Variant: VariantLegacy, FileID: msg.FileID}, nil

	default:
		return Control{}, fmt.Errorf("%w: unknown control type %q", ErrProtocolViolation, msg.Type)
	}
}

// Split cuts data into consecutive slices of at most size bytes. The slices
// share data's backing array.
func Split(data []byte, size int) [][]byte {
	if size <= 0 {
		size = ChunkSize
	}
	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for off := 0; off < len(data); off += size {
		end := min(off+size, len(data))
		chunks = append(chunks, data[off:end])
	}
	return chunks
}

// Join concatenates chunks in order.
func Join(chunks [][]byte) []byte {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	out := make([]byte, 0, n)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
