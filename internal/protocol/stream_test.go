package protocol_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"testing/iotest"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/framelink/internal/protocol"
)

// TestFrameReaderOneByteChunks feeds the prefix and payload one byte per
// Read call and expects the frames to come back whole.
func TestFrameReaderOneByteChunks(t *testing.T) {
	frames := [][]byte{
		[]byte("first frame"),
		{},
		bytes.Repeat([]byte{0x5A}, 3000),
	}

	var wire bytes.Buffer
	for _, f := range frames {
		require.NoError(t, protocol.WriteFrame(&wire, f))
	}

	fr := protocol.NewFrameReader(iotest.OneByteReader(&wire))
	for _, want := range frames {
		got, err := fr.ReadFrame()
		require.NoError(t, err)
		require.True(t, bytes.Equal(want, got))
	}

	_, err := fr.ReadFrame()
	require.ErrorIs(t, err, io.EOF)
}

// TestWriteFramePrefix pins the 8-byte big-endian length prefix.
func TestWriteFramePrefix(t *testing.T) {
	var wire bytes.Buffer
	require.NoError(t, protocol.WriteFrame(&wire, []byte("abc")))
	require.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 3, 'a', 'b', 'c'}, wire.Bytes())
}

// TestFrameReaderTruncated verifies a stream cut mid-frame is not reported as
// a clean end of stream.
func TestFrameReaderTruncated(t *testing.T) {
	var wire bytes.Buffer
	require.NoError(t, protocol.WriteFrame(&wire, []byte("complete frame")))
	truncated := wire.Bytes()[:wire.Len()-3]

	fr := protocol.NewFrameReader(iotest.HalfReader(bytes.NewReader(truncated)))
	_, err := fr.ReadFrame()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

// TestFrameReaderOversized verifies an absurd length prefix is rejected
// before any allocation.
func TestFrameReaderOversized(t *testing.T) {
	prefix := make([]byte, protocol.LengthPrefixSize)
	binary.BigEndian.PutUint64(prefix, protocol.MaxFrameSize+1)

	fr := protocol.NewFrameReader(bytes.NewReader(prefix))
	_, err := fr.ReadFrame()
	require.True(t, errors.Is(err, protocol.ErrMalformedPacket))
}
