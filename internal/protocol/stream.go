package protocol

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// LengthPrefixSize is the size of the unsigned big-endian frame length that
// precedes every frame on a stream transport.
const LengthPrefixSize = 8

// MaxFrameSize bounds the declared length of a single streamed frame. A
// larger prefix means the stream is desynchronized or hostile.
const MaxFrameSize = 64 << 20

// WriteFrame writes one length-prefixed frame to w in a single Write call.
func WriteFrame(w io.Writer, frame []byte) error {
	if len(frame) > MaxFrameSize {
		return errors.WithMessagef(ErrMalformedPacket,
			"frame length %d exceeds limit %d", len(frame), MaxFrameSize)
	}
	buf := make([]byte, LengthPrefixSize+len(frame))
	binary.BigEndian.PutUint64(buf, uint64(len(frame)))
	copy(buf[LengthPrefixSize:], frame)
	_, err := w.Write(buf)
	return err
}

// FrameReader reads length-prefixed frames from a byte stream. Reads from
// the underlying reader may return arbitrarily small chunks; FrameReader
// keeps reading until the prefix and then the full payload are buffered.
type FrameReader struct {
	r      *bufio.Reader
	prefix [LengthPrefixSize]byte
}

// NewFrameReader wraps r with a buffered frame reader.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// ReadFrame returns the next frame. It returns io.EOF only when the stream
// ends cleanly on a frame boundary; a stream cut mid-frame yields
// io.ErrUnexpectedEOF.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.prefix[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint64(fr.prefix[:])
	if length > MaxFrameSize {
		return nil, errors.WithMessagef(ErrMalformedPacket,
			"declared frame length %d exceeds limit %d", length, MaxFrameSize)
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(fr.r, frame); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return frame, nil
}
