package protocol

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Encode serializes a Packet into a freshly allocated byte slice.
func Encode(pkt *Packet) []byte {
	return AppendEncode(make([]byte, 0, pkt.Size()), pkt)
}

// AppendEncode appends the encoded packet to dst and returns the extended slice.
func AppendEncode(dst []byte, pkt *Packet) []byte {
	dst = binary.BigEndian.AppendUint32(dst, pkt.FrameIndex)
	dst = binary.BigEndian.AppendUint32(dst, pkt.PacketIndex)
	dst = binary.BigEndian.AppendUint32(dst, pkt.TotalPackets)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(pkt.Payload)))
	return append(dst, pkt.Payload...)
}

// Decode deserializes exactly one packet from the start of data. Bytes after
// the declared payload are ignored; use DecodeAll to consume them.
// The returned payload aliases data.
func Decode(data []byte) (*Packet, error) {
	pkt, _, err := decodeOne(data)
	return pkt, err
}

// DecodeAll decodes every packet in a buffer holding one or more packets
// back to back. On a malformed packet it returns the packets decoded so far
// together with the error; the remainder of the buffer is discarded because
// the framing can no longer be trusted.
func DecodeAll(data []byte) ([]*Packet, error) {
	var pkts []*Packet
	for len(data) > 0 {
		pkt, n, err := decodeOne(data)
		if err != nil {
			return pkts, err
		}
		pkts = append(pkts, pkt)
		data = data[n:]
	}
	return pkts, nil
}

func decodeOne(data []byte) (*Packet, int, error) {
	if len(data) < HeaderSize {
		return nil, 0, errors.WithMessagef(ErrMalformedPacket,
			"packet too short: %d bytes (need at least %d)", len(data), HeaderSize)
	}

	pkt := &Packet{
		FrameIndex:   binary.BigEndian.Uint32(data[0:4]),
		PacketIndex:  binary.BigEndian.Uint32(data[4:8]),
		TotalPackets: binary.BigEndian.Uint32(data[8:12]),
	}
	length := binary.BigEndian.Uint32(data[12:16])

	if pkt.PacketIndex >= pkt.TotalPackets {
		return nil, 0, errors.WithMessagef(ErrMalformedPacket,
			"packet index %d out of range (total %d)", pkt.PacketIndex, pkt.TotalPackets)
	}

	end := uint64(HeaderSize) + uint64(length)
	if uint64(len(data)) < end {
		return nil, 0, errors.WithMessagef(ErrMalformedPacket,
			"payload truncated: have %d bytes, header declares %d", len(data)-HeaderSize, length)
	}

	pkt.Payload = data[HeaderSize:end:end]
	return pkt, int(end), nil
}
