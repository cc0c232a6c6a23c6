// Package media defines the frame type that flows through the pipeline and
// the collaborator interfaces the session drives: where raw images come
// from, how they are compressed, and where received frames go.
package media

import (
	"context"
	"image"
	"time"
)

// Frame is one encoded image. Index is assigned by the sender and increases
// monotonically; Captured is local to the process that created the value.
type Frame struct {
	Index    uint32
	Data     []byte
	Captured time.Time
}

// Source yields raw images, one per call. Closing a Source unblocks a
// pending Next, which then returns an error.
type Source interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// Encoder compresses a raw image into an opaque payload.
type Encoder interface {
	Encode(img image.Image) ([]byte, error)
}

// Decoder reverses Encoder.
type Decoder interface {
	Decode(data []byte) (image.Image, error)
}

// Sink accepts received frames for display or export.
type Sink interface {
	WriteFrame(ctx context.Context, frame Frame) error
	Close() error
}
