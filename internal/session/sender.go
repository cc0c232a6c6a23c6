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

// Sender captures images from a Source, encodes them and sends them over a
// Transport.
type Sender struct {
	src media.Source
	enc media.Encoder
	tr  transport.Transport
	buf *buffer.FrameBuffer
}

// NewSender wires a sender pipeline with a frame buffer of the given
// capacity between capture and send.
func NewSender(src media.Source, enc media.Encoder, tr transport.Transport, capacity int) *Sender {
	return &Sender{src: src, enc: enc, tr: tr, buf: buffer.New(capacity)}
}

// Run blocks until ctx is cancelled, the peer disconnects or the source
// ends, and returns nil in those cases. The transport and source are closed
// before Run returns.
func (s *Sender) Run(ctx context.Context) error {
	util.LogInfo("sending over %s to %s", s.tr.Kind(), s.tr.RemoteAddr())
	err := run(ctx, s.shutdown, s.capture, s.send)
	util.LogInfo("sender stopped (%d frames dropped locally)", s.buf.Dropped())
	return err
}

func (s *Sender) shutdown() {
	s.tr.Close()
	s.src.Close()
}

// capture is the producer: Next → Encode → Push. Push never blocks, so a
// slow link costs old frames, not capture latency.
func (s *Sender) capture(ctx context.Context) error {
	var (
		index   uint32
		dropped uint64
	)
	for ctx.Err() == nil {
		img, err := s.src.Next(ctx)
		if err != nil {
			if stopping(ctx, err) {
				return nil
			}
			return errors.WithMessage(err, "capture")
		}

		data, err := s.enc.Encode(img)
		if err != nil {
			util.LogWarning("frame %d: %v", index, err)
			continue
		}

		pushCounted(s.buf, media.Frame{Index: index, Data: data, Captured: time.Now()}, &dropped)
		index++
	}
	return nil
}

// send is the consumer: PopWait → Send. A frame that fails to send is
// dropped; only a closed link ends the loop.
func (s *Sender) send(ctx context.Context) error {
	win := util.NewWindow(throughputWindow)
	for ctx.Err() == nil {
		frame, err := s.buf.PopWait(ctx)
		if err != nil {
			return nil
		}

		if err := s.tr.Send(frame); err != nil {
			if stopping(ctx, err) {
				if ctx.Err() == nil {
					util.LogInfo("peer disconnected: %v", err)
				}
				return nil
			}
			util.LogWarning("frame %d: send failed: %v", frame.Index, err)
			continue
		}

		util.Stats.AddFrameSent()
		if r, ok := win.Add(time.Now(), len(frame.Data)); ok {
			logRate("sent", frame.Index, r)
		}
	}
	return nil
}
