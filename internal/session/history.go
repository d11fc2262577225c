package session

import (
	"sync"
	"time"
)

// Direction tells whether a file left or arrived.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Record is one completed transfer. History is local only.
type Record struct {
	FileID      string
	Name        string
	Size        int64
	Direction   Direction
	CompletedAt time.Time
}

type history struct {
	mu      sync.Mutex
	records []Record
}

func (h *history) add(r Record) {
	h.mu.Lock()
	h.records = append(h.records, r)
	h.mu.Unlock()
}

func (h *history) list() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Record(nil), h.records...)
}
