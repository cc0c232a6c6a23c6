package reassembly_test

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/1ureka/framelink/internal/protocol"
	"github.com/1ureka/framelink/internal/reassembly"
)

func split(t *testing.T, index uint32, payload []byte, maxPacket int) []*protocol.Packet {
	t.Helper()
	pkts, err := protocol.Split(index, payload, maxPacket)
	require.NoError(t, err)
	return pkts
}

func payloadOf(seed uint64, n int) []byte {
	r := rand.New(rand.NewPCG(seed, seed+1))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.IntN(256))
	}
	return b
}

// feedAll feeds packets in order and returns every emitted frame.
func feedAll(r *reassembly.Reassembler, pkts []*protocol.Packet) [][]byte {
	var out [][]byte
	for _, p := range pkts {
		if frame, _, ok := r.Feed(p); ok {
			out = append(out, frame)
		}
	}
	return out
}

// TestRoundTripAnyOrder verifies split-then-reassemble yields the original
// payload regardless of arrival order.
func TestRoundTripAnyOrder(t *testing.T) {
	testCases := []struct {
		name      string
		length    int
		maxPacket int
	}{
		{"single packet", 10, 1200},
		{"exact multiple", 400, protocol.HeaderSize + 100},
		{"ragged tail", 950, 116},
		{"one byte chunks", 64, protocol.HeaderSize + 1},
		{"empty frame", 0, 1200},
		{"large frame", 200_000, 1200},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			payload := payloadOf(uint64(tc.length), tc.length)

			for seed := uint64(0); seed < 20; seed++ {
				pkts := split(t, 3, payload, tc.maxPacket)
				rng := rand.New(rand.NewPCG(seed, 99))
				rng.Shuffle(len(pkts), func(i, j int) { pkts[i], pkts[j] = pkts[j], pkts[i] })

				frames := feedAll(reassembly.New(), pkts)
				require.Len(t, frames, 1)
				require.True(t, bytes.Equal(payload, frames[0]))
			}
		})
	}
}

// TestReverseOrderScenario reassembles a 950-byte frame split into 10
// packets delivered last to first.
func TestReverseOrderScenario(t *testing.T) {
	payload := payloadOf(950, 950)
	pkts := split(t, 0, payload, 116)
	require.Len(t, pkts, 10)

	r := reassembly.New()
	for i := len(pkts) - 1; i > 0; i-- {
		_, _, ok := r.Feed(pkts[i])
		require.False(t, ok)
	}

	frame, index, ok := r.Feed(pkts[0])
	require.True(t, ok)
	require.Equal(t, uint32(0), index)
	require.True(t, bytes.Equal(payload, frame))
}

// TestDuplicateIsIdempotent verifies a packet delivered twice does not
// complete the frame early or corrupt it.
func TestDuplicateIsIdempotent(t *testing.T) {
	payload := payloadOf(7, 300)
	pkts := split(t, 1, payload, protocol.HeaderSize+100)
	require.Len(t, pkts, 3)

	r := reassembly.New()
	order := []*protocol.Packet{pkts[1], pkts[1], pkts[0], pkts[0]}
	for _, p := range order {
		_, _, ok := r.Feed(p)
		require.False(t, ok, "frame must not complete before every slot is filled")
	}

	frame, _, ok := r.Feed(pkts[2])
	require.True(t, ok)
	require.True(t, bytes.Equal(payload, frame))
	require.Equal(t, uint64(2), r.Stats().Duplicates)
}

// TestNewestWins verifies an incomplete frame is abandoned as soon as a
// packet of a newer frame arrives.
func TestNewestWins(t *testing.T) {
	old := split(t, 5, payloadOf(5, 500), protocol.HeaderSize+100)
	fresh := payloadOf(6, 250)
	next := split(t, 6, fresh, protocol.HeaderSize+100)

	r := reassembly.New()
	for _, p := range old[:4] {
		_, _, ok := r.Feed(p)
		require.False(t, ok)
	}

	_, _, ok := r.Feed(next[2])
	require.False(t, ok)

	// The missing packet of frame 5 is now stale and must not resurrect it.
	_, _, ok = r.Feed(old[4])
	require.False(t, ok)

	_, _, ok = r.Feed(next[0])
	require.False(t, ok)
	frame, index, ok := r.Feed(next[1])
	require.True(t, ok)
	require.Equal(t, uint32(6), index)
	require.True(t, bytes.Equal(fresh, frame))

	stats := r.Stats()
	require.Equal(t, uint64(1), stats.Superseded)
	require.Equal(t, uint64(1), stats.Stale)
	require.Equal(t, uint64(1), stats.Emitted)
}

// TestStaleDrop verifies packets older than the current frame are ignored.
func TestStaleDrop(t *testing.T) {
	r := reassembly.New()
	current := split(t, 10, payloadOf(10, 300), protocol.HeaderSize+100)
	_, _, ok := r.Feed(current[0])
	require.False(t, ok)

	for _, p := range split(t, 9, []byte("old"), 1200) {
		_, _, ok := r.Feed(p)
		require.False(t, ok)
	}

	inFlight, active := r.InFlight()
	require.True(t, active)
	require.Equal(t, uint32(10), inFlight)
	require.Equal(t, uint64(1), r.Stats().Stale)
}

// TestLateDuplicateAfterEmit verifies a retransmitted packet of a frame that
// was already emitted does not start a new reassembly.
func TestLateDuplicateAfterEmit(t *testing.T) {
	pkts := split(t, 4, []byte("complete"), 1200)

	r := reassembly.New()
	frames := feedAll(r, pkts)
	require.Len(t, frames, 1)

	_, _, ok := r.Feed(pkts[0])
	require.False(t, ok)
	_, active := r.InFlight()
	require.False(t, active)
}

// TestMalformedIndicesDropped verifies invalid indices are counted and never
// disturb the frame in flight.
func TestMalformedIndicesDropped(t *testing.T) {
	payload := payloadOf(2, 200)
	pkts := split(t, 2, payload, protocol.HeaderSize+100)

	r := reassembly.New()
	_, _, ok := r.Feed(pkts[0])
	require.False(t, ok)

	bad := []*protocol.Packet{
		{FrameIndex: 2, PacketIndex: 2, TotalPackets: 2},
		{FrameIndex: 2, PacketIndex: 0, TotalPackets: 0},
		{FrameIndex: 2, PacketIndex: 0, TotalPackets: 3},
		{FrameIndex: 3, PacketIndex: 0, TotalPackets: protocol.MaxTotalPackets + 1},
	}
	for _, p := range bad {
		_, _, ok := r.Feed(p)
		require.False(t, ok)
	}

	frame, _, ok := r.Feed(pkts[1])
	require.True(t, ok)
	require.True(t, bytes.Equal(payload, frame))
	require.Equal(t, uint64(4), r.Stats().Malformed)
}

// TestInterleavedLossKeepsOnlyCompleteFrames simulates a lossy, reordering
// link carrying many frames and checks every emitted frame is intact and
// strictly newer than the previous one.
func TestInterleavedLossKeepsOnlyCompleteFrames(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 42))
	want := make(map[uint32][]byte)

	var wire []*protocol.Packet
	for f := uint32(0); f < 50; f++ {
		payload := payloadOf(uint64(f), 500+rng.IntN(2000))
		want[f] = payload
		pkts := split(t, f, payload, 300)

		// Drop ~5% and reorder within a small window.
		for _, p := range pkts {
			if rng.IntN(20) != 0 {
				wire = append(wire, p)
			}
		}
	}
	for i := 0; i+1 < len(wire); i += 2 {
		if rng.IntN(2) == 0 {
			wire[i], wire[i+1] = wire[i+1], wire[i]
		}
	}

	r := reassembly.New()
	var last int64 = -1
	for _, p := range wire {
		frame, index, ok := r.Feed(p)
		if !ok {
			continue
		}
		require.Greater(t, int64(index), last)
		require.True(t, bytes.Equal(want[index], frame), "frame %d corrupted", index)
		last = int64(index)
	}
	require.Positive(t, r.Stats().Emitted)
}

// TestRoundTripAtPacketLimit verifies a frame split into the largest
// accepted number of packets is rebuilt.
func TestRoundTripAtPacketLimit(t *testing.T) {
	payload := payloadOf(11, protocol.MaxTotalPackets)
	pkts := split(t, 1, payload, protocol.HeaderSize+1)
	require.Len(t, pkts, protocol.MaxTotalPackets)

	r := reassembly.New()
	frames := feedAll(r, pkts)
	require.Len(t, frames, 1)
	require.Equal(t, payload, frames[0])
	require.Zero(t, r.Stats().Malformed)
}
