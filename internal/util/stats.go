package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide traffic/room counter.
var Stats = &stats{}

type stats struct {
	RoomsOpened atomic.Int64 // cumulative rooms created on this relay
	RoomsClosed atomic.Int64 // cumulative rooms removed (disconnect or expiry)
	FilesSent   atomic.Int64 // completed outbound transfers
	FilesRecv   atomic.Int64 // completed inbound transfers
	BytesSent   atomic.Int64 // cumulative bytes written to the peer channel
	BytesRecv   atomic.Int64 // cumulative bytes read from the peer channel
}

func (s *stats) OpenRoom()     { s.RoomsOpened.Add(1) }
func (s *stats) CloseRoom()    { s.RoomsClosed.Add(1) }
func (s *stats) FileSent()     { s.FilesSent.Add(1) }
func (s *stats) FileRecv()     { s.FilesRecv.Add(1) }
func (s *stats) AddSent(n int) { s.BytesSent.Add(int64(n)) }
func (s *stats) AddRecv(n int) { s.BytesRecv.Add(int64(n)) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs traffic statistics
// every 10 seconds. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prevSent, prevRecv, prevOpened, prevClosed int64
		for {
			select {
			case <-ticker.C:
				opened := Stats.RoomsOpened.Load()
				closed := Stats.RoomsClosed.Load()
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()

				outS := float64(sent-prevSent) / 10.0
				inS := float64(recv-prevRecv) / 10.0
				inR := opened - prevOpened
				outR := closed - prevClosed

				if inR > 0 || outR > 0 || inS > 10 || outS > 10 {
					logger.Info(formatStats(inS, outS, inR, outR))
				}

				prevSent = sent
				prevRecv = recv
				prevOpened = opened
				prevClosed = closed

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// FormatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func FormatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, inR, outR int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Rooms: %2d↑ %2d↓",
		FormatBytes(inS),
		FormatBytes(outS),
		inR,
		outR,
	)
}
