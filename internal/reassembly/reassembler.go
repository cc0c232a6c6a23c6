// Package reassembly rebuilds frames from datagram packets that may arrive
// lost, duplicated, or out of order.
package reassembly

import (
	"github.com/1ureka/framelink/internal/protocol"
	"github.com/1ureka/framelink/internal/util"
)

// Stats counts what happened to the packets fed into a Reassembler.
type Stats struct {
	Emitted    uint64 // frames completed and returned
	Superseded uint64 // partial frames discarded because a newer frame began
	Stale      uint64 // packets for frames older than the current one
	Duplicates uint64 // packets for slots that were already filled
	Malformed  uint64 // packets whose indices contradict the frame in flight
}

// Reassembler collects the fragments of at most one frame at a time and
// prefers freshness over completeness: any packet of a newer frame discards
// the frame in flight. It is goroutine-local (owned by the receiving
// goroutine) and needs no locking.
type Reassembler struct {
	started bool   // false until the first packet is accepted
	current uint32 // frame index in flight, or the last emitted one
	active  bool   // a frame is being accumulated

	slots   [][]byte
	filled  []bool
	missing int
	size    int

	stats Stats
}

// New creates an idle Reassembler.
func New() *Reassembler {
	return &Reassembler{}
}

// Feed processes one packet. When it completes a frame, Feed returns the
// concatenated payload with its frame index and ok=true.
func (r *Reassembler) Feed(pkt *protocol.Packet) (frame []byte, index uint32, ok bool) {
	if pkt.TotalPackets == 0 || pkt.TotalPackets > protocol.MaxTotalPackets || pkt.PacketIndex >= pkt.TotalPackets {
		r.stats.Malformed++
		util.LogDebug("frame %d: packet %d/%d out of range, dropping",
			pkt.FrameIndex, pkt.PacketIndex, pkt.TotalPackets)
		return nil, 0, false
	}

	switch {
	case !r.started || pkt.FrameIndex > r.current:
		if r.active {
			r.stats.Superseded++
			util.LogDebug("frame %d superseded by %d with %d/%d packets missing",
				r.current, pkt.FrameIndex, r.missing, len(r.slots))
		}
		r.reset(pkt.FrameIndex, int(pkt.TotalPackets))

	case pkt.FrameIndex < r.current, !r.active:
		// Older frame, or a late packet of the frame just emitted.
		r.stats.Stale++
		return nil, 0, false

	case int(pkt.TotalPackets) != len(r.slots):
		r.stats.Malformed++
		util.LogDebug("frame %d: packet claims %d packets, expected %d, dropping",
			pkt.FrameIndex, pkt.TotalPackets, len(r.slots))
		return nil, 0, false
	}

	i := pkt.PacketIndex
	if r.filled[i] {
		r.stats.Duplicates++
		r.size -= len(r.slots[i])
	} else {
		r.filled[i] = true
		r.missing--
	}
	r.slots[i] = pkt.Payload
	r.size += len(pkt.Payload)

	if r.missing > 0 {
		return nil, 0, false
	}

	frame = make([]byte, 0, r.size)
	for _, s := range r.slots {
		frame = append(frame, s...)
	}
	r.active = false
	r.slots, r.filled = nil, nil
	r.stats.Emitted++
	return frame, r.current, true
}

// reset starts accumulating a new frame, dropping any partial data.
func (r *Reassembler) reset(index uint32, total int) {
	r.started = true
	r.active = true
	r.current = index
	r.slots = make([][]byte, total)
	r.filled = make([]bool, total)
	r.missing = total
	r.size = 0
}

// InFlight reports the frame index being accumulated, if any.
func (r *Reassembler) InFlight() (uint32, bool) {
	return r.current, r.active
}

// Stats returns a copy of the counters.
func (r *Reassembler) Stats() Stats {
	return r.stats
}
