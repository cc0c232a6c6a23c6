// Package session runs the two halves of a live link. A Sender captures,
// encodes and transmits frames; a Receiver reassembles and delivers them.
// Each side runs two tasks joined by a bounded frame buffer, so a slow
// stage drops old frames instead of stalling its neighbour.
package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/1ureka/framelink/internal/buffer"
	"github.com/1ureka/framelink/internal/media"
	"github.com/1ureka/framelink/internal/transport"
	"github.com/1ureka/framelink/internal/util"
)

// throughputWindow is the number of frames between throughput log lines.
const throughputWindow = 30

// run starts the tasks under a shared context. The context is the running
// flag: the first task to return, or the caller cancelling, stops the
// others, and shutdown runs once to unblock any pending I/O.
func run(ctx context.Context, shutdown func(), tasks ...func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var once sync.Once
	closeAll := func() { once.Do(shutdown) }

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, closeAll)
	defer stop()

	for _, task := range tasks {
		g.Go(func() error {
			defer cancel()
			return task(gctx)
		})
	}
	err := g.Wait()
	closeAll()
	return err
}

// stopping reports whether err is part of an orderly shutdown: the context
// was cancelled, or the peer or local side closed the link.
func stopping(ctx context.Context, err error) bool {
	return ctx.Err() != nil || transport.IsClosed(err) ||
		errors.Is(err, media.ErrSourceClosed) || errors.Is(err, io.EOF)
}

// pushCounted pushes frame and forwards any eviction to the global stats.
// Only one goroutine pushes into a given buffer, so the delta is exact.
func pushCounted(buf *buffer.FrameBuffer, frame media.Frame, lastDropped *uint64) {
	buf.Push(frame)
	if d := buf.Dropped(); d > *lastDropped {
		util.Stats.AddDropped(int64(d - *lastDropped))
		*lastDropped = d
	}
}

func logRate(what string, index uint32, r util.Rate) {
	util.LogFields(what,
		"frame", index,
		"fps", fmt.Sprintf("%.1f", r.FPS),
		"rate", r.String(),
		"window", r.Elapsed.Round(time.Millisecond))
}
