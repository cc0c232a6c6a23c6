package media

import (
	"context"
	stderrors "errors"
	"image"

	"github.com/pkg/errors"
)

// MultiSink delivers every frame to each of its sinks in order. All sinks
// see the frame even if an earlier one fails; the errors are joined.
type MultiSink []Sink

// WriteFrame fans the frame out.
func (m MultiSink) WriteFrame(ctx context.Context, frame Frame) error {
	var errs []error
	for _, s := range m {
		if err := s.WriteFrame(ctx, frame); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Close closes every sink.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// DecodeSink decodes each frame and hands the image to a callback. It stands
// in for an on-screen display and surfaces frames that do not decode.
type DecodeSink struct {
	Decoder Decoder
	OnImage func(frame Frame, img image.Image)
}

// WriteFrame decodes the frame and invokes OnImage.
func (d *DecodeSink) WriteFrame(_ context.Context, frame Frame) error {
	img, err := d.Decoder.Decode(frame.Data)
	if err != nil {
		return errors.Wrapf(err, "frame %d", frame.Index)
	}
	if d.OnImage != nil {
		d.OnImage(frame, img)
	}
	return nil
}

// Close is a no-op.
func (d *DecodeSink) Close() error { return nil }

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, frame Frame) error

// WriteFrame calls f.
func (f SinkFunc) WriteFrame(ctx context.Context, frame Frame) error { return f(ctx, frame) }

// Close is a no-op.
func (f SinkFunc) Close() error { return nil }
