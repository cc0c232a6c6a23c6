package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide frame/traffic counter.
var Stats = &stats{}

type stats struct {
	FramesSent     atomic.Int64 // frames handed to the transport
	FramesReceived atomic.Int64 // complete frames produced by the transport
	FramesDropped  atomic.Int64 // frames evicted from a full frame buffer
	BytesSent      atomic.Int64 // wire bytes written, headers included
	BytesRecv      atomic.Int64 // wire bytes read, headers included
	Malformed      atomic.Int64 // packets rejected by decode or reassembly
	Superseded     atomic.Int64 // partial frames abandoned for a newer one
}

func (s *stats) AddFrameSent()         { s.FramesSent.Add(1) }
func (s *stats) AddFrameReceived()     { s.FramesReceived.Add(1) }
func (s *stats) AddDropped(n int64)    { s.FramesDropped.Add(n) }
func (s *stats) AddSent(n int)         { s.BytesSent.Add(int64(n)) }
func (s *stats) AddRecv(n int)         { s.BytesRecv.Add(int64(n)) }
func (s *stats) AddMalformed()         { s.Malformed.Add(1) }
func (s *stats) AddSuperseded(n int64) { s.Superseded.Add(n) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	FramesSent     int64 `json:"framesSent"`
	FramesReceived int64 `json:"framesReceived"`
	FramesDropped  int64 `json:"framesDropped"`
	BytesSent      int64 `json:"bytesSent"`
	BytesRecv      int64 `json:"bytesRecv"`
	Malformed      int64 `json:"malformed"`
	Superseded     int64 `json:"superseded"`
}

// Snapshot loads every counter.
func (s *stats) Snapshot() Snapshot {
	return Snapshot{
		FramesSent:     s.FramesSent.Load(),
		FramesReceived: s.FramesReceived.Load(),
		FramesDropped:  s.FramesDropped.Load(),
		BytesSent:      s.BytesSent.Load(),
		BytesRecv:      s.BytesRecv.Load(),
		Malformed:      s.Malformed.Load(),
		Superseded:     s.Superseded.Load(),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

const reportInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs traffic statistics
// every 10 seconds while frames are flowing. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()

		var prev Snapshot
		for {
			select {
			case <-ticker.C:
				cur := Stats.Snapshot()
				if cur.FramesSent != prev.FramesSent || cur.FramesReceived != prev.FramesReceived {
					pterm.DefaultLogger.Info(formatStats(prev, cur, reportInterval))
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats renders the change between two snapshots over interval.
func formatStats(prev, cur Snapshot, interval time.Duration) string {
	secs := interval.Seconds()
	return fmt.Sprintf("Out: %s/s %5.1f fps | In: %s/s %5.1f fps | Drop: %d | Bad: %d | Superseded: %d",
		formatBytes(float64(cur.BytesSent-prev.BytesSent)/secs),
		float64(cur.FramesSent-prev.FramesSent)/secs,
		formatBytes(float64(cur.BytesRecv-prev.BytesRecv)/secs),
		float64(cur.FramesReceived-prev.FramesReceived)/secs,
		cur.FramesDropped-prev.FramesDropped,
		cur.Malformed-prev.Malformed,
		cur.Superseded-prev.Superseded,
	)
}
