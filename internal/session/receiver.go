package session

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/1ureka/framelink/internal/buffer"
	"github.com/1ureka/framelink/internal/media"
	"github.com/1ureka/framelink/internal/transport"
	"github.com/1ureka/framelink/internal/util"
)

// Receiver pulls complete frames from a Transport and hands them to a Sink.
type Receiver struct {
	tr   transport.Transport
	sink media.Sink
	buf  *buffer.FrameBuffer
}

// NewReceiver wires a receiver pipeline with a frame buffer of the given
// capacity between receive and delivery. The caller owns sink.
func NewReceiver(tr transport.Transport, sink media.Sink, capacity int) *Receiver {
	return &Receiver{tr: tr, sink: sink, buf: buffer.New(capacity)}
}

// Run blocks until ctx is cancelled or the peer disconnects, returning nil
// in those cases. The transport is closed before Run returns.
func (r *Receiver) Run(ctx context.Context) error {
	util.LogInfo("receiving over %s", r.tr.Kind())
	err := run(ctx, func() { r.tr.Close() }, r.receive, r.consume)
	util.LogInfo("receiver stopped (%d frames dropped locally)", r.buf.Dropped())
	return err
}

// receive is the producer: Receive → Push.
func (r *Receiver) receive(ctx context.Context) error {
	var dropped uint64
	win := util.NewWindow(throughputWindow)
	for ctx.Err() == nil {
		frame, err := r.tr.Receive()
		if err != nil {
			if stopping(ctx, err) {
				if ctx.Err() == nil {
					util.LogInfo("peer disconnected: %v", err)
				}
				return nil
			}
			return errors.WithMessage(err, "receive")
		}

		util.Stats.AddFrameReceived()
		pushCounted(r.buf, frame, &dropped)
		if rate, ok := win.Add(time.Now(), len(frame.Data)); ok {
			logRate("received", frame.Index, rate)
		}
	}
	return nil
}

// consume is the consumer: PopWait → Sink. A sink failure drops the frame.
func (r *Receiver) consume(ctx context.Context) error {
	for ctx.Err() == nil {
		frame, err := r.buf.PopWait(ctx)
		if err != nil {
			return nil
		}
		if err := r.sink.WriteFrame(ctx, frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			util.LogWarning("frame %d: sink: %v", frame.Index, err)
		}
	}
	return nil
}
