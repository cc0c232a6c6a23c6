// Package buffer provides the bounded hand-off queue between pipeline
// stages. It never blocks the producer: when full, the oldest frame is
// evicted to make room for the newest.
package buffer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/1ureka/framelink/internal/media"
)

// FrameBuffer is a bounded FIFO of frames with a drop-oldest overflow policy.
// Push and Pop are safe for concurrent use.
type FrameBuffer struct {
	mu       sync.Mutex
	frames   []media.Frame // ring storage, len == capacity
	head     int           // index of the oldest frame
	size     int
	capacity int

	notify  chan struct{} // holds one token while frames may be available
	dropped atomic.Uint64
}

// New creates a FrameBuffer holding at most capacity frames. A capacity
// below 1 is treated as 1.
func New(capacity int) *FrameBuffer {
	capacity = max(capacity, 1)
	return &FrameBuffer{
		frames:   make([]media.Frame, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Push appends frame at the tail. If the buffer is full the oldest frame is
// evicted and counted as dropped. Push never blocks.
func (b *FrameBuffer) Push(frame media.Frame) {
	b.mu.Lock()
	if b.size == b.capacity {
		b.frames[b.head] = media.Frame{}
		b.head = (b.head + 1) % b.capacity
		b.size--
		b.dropped.Add(1)
	}
	b.frames[(b.head+b.size)%b.capacity] = frame
	b.size++
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest frame. ok is false if the buffer is
// empty; Pop never blocks.
func (b *FrameBuffer) Pop() (frame media.Frame, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return media.Frame{}, false
	}
	frame = b.frames[b.head]
	b.frames[b.head] = media.Frame{} // release the payload
	b.head = (b.head + 1) % b.capacity
	b.size--
	return frame, true
}

// PopWait removes and returns the oldest frame, waiting until one is pushed
// or ctx is done.
func (b *FrameBuffer) PopWait(ctx context.Context) (media.Frame, error) {
	for {
		if frame, ok := b.Pop(); ok {
			return frame, nil
		}
		select {
		case <-b.notify:
		case <-ctx.Done():
			return media.Frame{}, ctx.Err()
		}
	}
}

// Len returns the number of buffered frames.
func (b *FrameBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the capacity.
func (b *FrameBuffer) Cap() int { return b.capacity }

// Dropped returns how many frames were evicted by overflow.
func (b *FrameBuffer) Dropped() uint64 { return b.dropped.Load() }
