package protocol

import "github.com/pkg/errors"

// Split breaks payload into packets of at most maxPacketSize encoded bytes.
// Packets carry contiguous ranges in index order; only the last may be
// shorter. An empty payload still yields one (empty) packet so the frame is
// not lost. Packet payloads alias payload.
func Split(frameIndex uint32, payload []byte, maxPacketSize int) ([]*Packet, error) {
	chunkSize := maxPacketSize - HeaderSize
	if chunkSize <= 0 {
		return nil, errors.WithMessagef(ErrConfiguration,
			"max packet size %d leaves no room for payload (header is %d bytes)", maxPacketSize, HeaderSize)
	}

	total := (len(payload) + chunkSize - 1) / chunkSize
	if total == 0 {
		total = 1
	}
	if total > MaxTotalPackets {
		return nil, errors.WithMessagef(ErrConfiguration,
			"%d-byte frame needs %d packets of %d bytes, limit is %d", len(payload), total, maxPacketSize, MaxTotalPackets)
	}

	pkts := make([]*Packet, total)
	for i := range pkts {
		start := i * chunkSize
		end := min(start+chunkSize, len(payload))
		pkts[i] = &Packet{
			FrameIndex:   frameIndex,
			PacketIndex:  uint32(i),
			TotalPackets: uint32(total),
			Payload:      payload[start:end:end],
		}
	}
	return pkts, nil
}

// PacketCount returns how many packets Split would produce, ignoring the
// MaxTotalPackets limit, or 0 when maxPacketSize leaves no room for payload.
func PacketCount(payloadLen, maxPacketSize int) int {
	chunkSize := maxPacketSize - HeaderSize
	if chunkSize <= 0 {
		return 0
	}
	return max(1, (payloadLen+chunkSize-1)/chunkSize)
}
