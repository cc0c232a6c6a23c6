package buffer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/1ureka/framelink/internal/buffer"
	"github.com/1ureka/framelink/internal/media"
)

func frame(i uint32) media.Frame {
	return media.Frame{Index: i, Data: []byte{byte(i)}}
}

func drain(b *buffer.FrameBuffer) []uint32 {
	var out []uint32
	for {
		f, ok := b.Pop()
		if !ok {
			return out
		}
		out = append(out, f.Index)
	}
}

// TestOverflowKeepsNewest pushes N+k frames and expects exactly the last N,
// in push order.
func TestOverflowKeepsNewest(t *testing.T) {
	testCases := []struct {
		capacity int
		pushed   int
	}{
		{1, 1},
		{1, 5},
		{4, 3},
		{4, 4},
		{4, 11},
		{8, 100},
	}

	for _, tc := range testCases {
		b := buffer.New(tc.capacity)
		for i := 0; i < tc.pushed; i++ {
			b.Push(frame(uint32(i)))
			require.LessOrEqual(t, b.Len(), tc.capacity)
		}

		kept := min(tc.capacity, tc.pushed)
		var want []uint32
		for i := tc.pushed - kept; i < tc.pushed; i++ {
			want = append(want, uint32(i))
		}

		require.Equal(t, want, drain(b), "capacity %d pushed %d", tc.capacity, tc.pushed)
		require.Equal(t, uint64(tc.pushed-kept), b.Dropped())
	}
}

// TestPopEmpty verifies Pop reports an empty buffer without blocking.
func TestPopEmpty(t *testing.T) {
	b := buffer.New(2)
	_, ok := b.Pop()
	require.False(t, ok)

	b.Push(frame(1))
	f, ok := b.Pop()
	require.True(t, ok)
	require.Equal(t, uint32(1), f.Index)

	_, ok = b.Pop()
	require.False(t, ok)
}

// TestInterleavedWrapAround exercises the ring across many wrap-arounds.
func TestInterleavedWrapAround(t *testing.T) {
	b := buffer.New(3)
	next := uint32(0)
	for round := 0; round < 50; round++ {
		b.Push(frame(next))
		b.Push(frame(next + 1))
		f, ok := b.Pop()
		require.True(t, ok)
		require.Equal(t, next, f.Index)
		f, ok = b.Pop()
		require.True(t, ok)
		require.Equal(t, next+1, f.Index)
		next += 2
	}
	require.Zero(t, b.Len())
}

// TestCapacityClamp verifies a non-positive capacity still buffers one frame.
func TestCapacityClamp(t *testing.T) {
	b := buffer.New(0)
	require.Equal(t, 1, b.Cap())
	b.Push(frame(1))
	b.Push(frame(2))
	require.Equal(t, []uint32{2}, drain(b))
}

// TestPopWaitWakesOnPush verifies a waiting consumer is released by Push.
func TestPopWaitWakesOnPush(t *testing.T) {
	b := buffer.New(4)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan media.Frame, 1)
	go func() {
		f, err := b.PopWait(ctx)
		if err == nil {
			got <- f
		}
	}()

	time.Sleep(20 * time.Millisecond)
	b.Push(frame(9))

	select {
	case f := <-got:
		require.Equal(t, uint32(9), f.Index)
	case <-ctx.Done():
		t.Fatal("PopWait was not woken by Push")
	}
}

// TestPopWaitCancel verifies PopWait returns the context error when nothing
// arrives.
func TestPopWaitCancel(t *testing.T) {
	b := buffer.New(4)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := b.PopWait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestConcurrentProducerConsumer runs one producer against one consumer and
// checks the consumer only ever sees increasing indices.
func TestConcurrentProducerConsumer(t *testing.T) {
	b := buffer.New(4)
	const total = 5000

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= total; i++ {
			b.Push(frame(uint32(i)))
		}
	}()

	var last uint32
	var received int
	deadline := time.After(5 * time.Second)
	for last != total {
		select {
		case <-deadline:
			t.Fatalf("consumer stalled at %d", last)
		default:
		}
		f, err := b.PopWait(ctx)
		require.NoError(t, err)
		require.Greater(t, f.Index, last)
		last = f.Index
		received++
	}
	wg.Wait()

	require.Equal(t, uint64(total), uint64(received)+b.Dropped())
}
