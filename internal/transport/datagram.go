package transport

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/1ureka/framelink/internal/config"
	"github.com/1ureka/framelink/internal/media"
	"github.com/1ureka/framelink/internal/protocol"
	"github.com/1ureka/framelink/internal/reassembly"
	"github.com/1ureka/framelink/internal/util"
)

// maxReadFailures bounds consecutive non-closing read errors before Receive
// gives up on the carrier.
const maxReadFailures = 64

// datagramConn is a message-preserving carrier. ReadDatagram returns a
// buffer owned by the caller; WriteDatagram must not retain b. Carriers
// report a closed link with an error matching ErrClosed.
type datagramConn interface {
	WriteDatagram(b []byte) error
	ReadDatagram() ([]byte, error)
	Close() error
	RemoteAddr() string
}

// datagramTransport fragments frames into packets on Send and reassembles
// them on Receive. It runs unchanged over every datagram carrier.
type datagramTransport struct {
	kind          config.Kind
	conn          datagramConn
	maxPacketSize int

	reasm   *reassembly.Reassembler
	pending []*protocol.Packet
	seen    reassembly.Stats

	closeOnce sync.Once
	closeErr  error
}

func newDatagramTransport(kind config.Kind, conn datagramConn, maxPacketSize int) *datagramTransport {
	return &datagramTransport{
		kind:          kind,
		conn:          conn,
		maxPacketSize: maxPacketSize,
		reasm:         reassembly.New(),
	}
}

// Send splits the frame into packets tagged with frame.Index and writes
// each as its own datagram. Packets already written stay written if a later
// one fails; the receiver will supersede the partial frame.
func (t *datagramTransport) Send(frame media.Frame) error {
	packets, err := protocol.Split(frame.Index, frame.Data, t.maxPacketSize)
	if err != nil {
		return err
	}
	for _, pkt := range packets {
		buf := protocol.Encode(pkt)
		if err := t.conn.WriteDatagram(buf); err != nil {
			return errors.WithMessagef(err, "frame %d packet %d/%d",
				pkt.FrameIndex, pkt.PacketIndex, pkt.TotalPackets)
		}
		util.Stats.AddSent(len(buf))
	}
	return nil
}

// Receive reads datagrams until one completes a frame. Packets that arrived
// in the same datagram after the completing one are kept for the next call.
func (t *datagramTransport) Receive() (media.Frame, error) {
	failures := 0
	for {
		for len(t.pending) > 0 {
			pkt := t.pending[0]
			t.pending[0] = nil
			t.pending = t.pending[1:]

			data, index, ok := t.reasm.Feed(pkt)
			if ok {
				t.syncStats()
				return media.Frame{Index: index, Data: data, Captured: time.Now()}, nil
			}
		}
		t.syncStats()

		b, err := t.conn.ReadDatagram()
		if err != nil {
			if errors.Is(err, ErrClosed) {
				if index, ok := t.reasm.InFlight(); ok {
					util.LogDebug("%s closed with frame %d partially received", t.kind, index)
				}
				return media.Frame{}, err
			}
			failures++
			if failures >= maxReadFailures {
				return media.Frame{}, errors.WithMessage(err, "too many read failures")
			}
			util.LogDebug("%s read error: %v", t.kind, err)
			continue
		}
		failures = 0
		util.Stats.AddRecv(len(b))

		packets, err := protocol.DecodeAll(b)
		if err != nil {
			util.Stats.AddMalformed()
			util.LogDebug("%s: %v (%d packets salvaged from %d bytes)", t.kind, err, len(packets), len(b))
		}
		t.pending = packets
	}
}

// syncStats forwards reassembler counters accumulated since the last call
// to the process-wide stats.
func (t *datagramTransport) syncStats() {
	cur := t.reasm.Stats()
	for i := t.seen.Malformed; i < cur.Malformed; i++ {
		util.Stats.AddMalformed()
	}
	if d := cur.Superseded - t.seen.Superseded; d > 0 {
		util.Stats.AddSuperseded(int64(d))
	}
	t.seen = cur
}

func (t *datagramTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func (t *datagramTransport) Kind() config.Kind { return t.kind }

func (t *datagramTransport) RemoteAddr() string { return t.conn.RemoteAddr() }
