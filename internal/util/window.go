package util

import "time"

// Window measures throughput over consecutive runs of a fixed number of
// frames. It is owned by a single goroutine.
type Window struct {
	size   int
	start  time.Time
	frames int
	bytes  int64
}

// Rate is the throughput of one completed window.
type Rate struct {
	Frames   int
	Bytes    int64
	Elapsed  time.Duration
	FPS      float64
	BytesSec float64
}

// NewWindow creates a Window that completes every size frames.
func NewWindow(size int) *Window {
	return &Window{size: max(size, 1)}
}

// Add records one frame of n bytes observed at now. When the window fills
// it returns the window's rate and starts a new window.
func (w *Window) Add(now time.Time, n int) (Rate, bool) {
	if w.frames == 0 {
		w.start = now
	}
	w.frames++
	w.bytes += int64(n)
	if w.frames < w.size {
		return Rate{}, false
	}

	r := Rate{Frames: w.frames, Bytes: w.bytes, Elapsed: now.Sub(w.start)}
	if secs := r.Elapsed.Seconds(); secs > 0 {
		// Frames-1 intervals separate Frames observations.
		r.FPS = float64(r.Frames-1) / secs
		r.BytesSec = float64(r.Bytes) / secs
	}
	w.frames, w.bytes = 0, 0
	return r, true
}

// String renders the rate for logs.
func (r Rate) String() string {
	return formatBytes(r.BytesSec) + "/s"
}
