// Package protocol defines the wire formats used between a sender and a
// receiver: the fixed-header packet carried by datagram transports and the
// length-prefixed framing used on stream transports.
package protocol

import "github.com/pkg/errors"

// HeaderSize is the fixed packet header size:
// FrameIndex(4) + PacketIndex(4) + TotalPackets(4) + PayloadLength(4).
const HeaderSize = 16

// ErrMalformedPacket reports a packet whose header is inconsistent with its
// length or whose indices are out of range.
var ErrMalformedPacket = errors.New("malformed packet")

// ErrConfiguration reports a configuration that cannot start a session,
// including a packet size bound that cannot carry a frame.
var ErrConfiguration = errors.New("configuration error")

// MaxTotalPackets bounds the packets of one frame, and with it the slot
// allocation a single received header can trigger.
const MaxTotalPackets = 1 << 17

// Packet is one fragment of a frame. The payload length travels on the wire
// but is always len(Payload) in memory.
type Packet struct {
	FrameIndex   uint32 // Sender-assigned, monotonically increasing
	PacketIndex  uint32 // Position inside the frame, 0..TotalPackets-1
	TotalPackets uint32 // Number of fragments of the frame
	Payload      []byte
}

// Size returns the encoded size of the packet.
func (p *Packet) Size() int {
	return HeaderSize + len(p.Payload)
}
