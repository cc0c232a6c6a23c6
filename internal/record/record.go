// Package record persists received frames to disk and reads them back.
//
// A recording is the 8-byte magic "FLNKREC1" followed by a sequence of
// CBOR-encoded Record values, one per frame.
package record

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/1ureka/framelink/internal/media"
)

// Magic identifies a recording file.
const Magic = "FLNKREC1"

// ErrBadMagic is returned when a file is not a recording.
var ErrBadMagic = errors.New("not a framelink recording")

// Record is one persisted frame.
type Record struct {
	Index    uint32 `cbor:"1,keyasint"`
	Captured int64  `cbor:"2,keyasint"` // unix nanoseconds, 0 if unknown
	Data     []byte `cbor:"3,keyasint"`
}

// Frame converts the record back into a pipeline frame.
func (r Record) Frame() media.Frame {
	f := media.Frame{Index: r.Index, Data: r.Data}
	if r.Captured != 0 {
		f.Captured = time.Unix(0, r.Captured)
	}
	return f
}

// Writer appends frames to a recording. It implements media.Sink and is
// safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	closer io.Closer
	w      *bufio.Writer
	enc    *cbor.Encoder
	count  int
}

var _ media.Sink = (*Writer)(nil)

// Create opens a new timestamped recording in dir and returns its writer
// and path.
func Create(dir string) (*Writer, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", err
	}
	name := filepath.Join(dir, fmt.Sprintf("%s_framelink.rec", time.Now().Format("20060102_150405")))
	f, err := os.Create(name)
	if err != nil {
		return nil, "", err
	}
	w, err := NewWriter(f)
	if err != nil {
		_ = f.Close()
		return nil, "", err
	}
	w.closer = f
	return w, name, nil
}

// NewWriter writes the magic to w and returns a Writer appending to it.
// Closing the Writer flushes but does not close w.
func NewWriter(w io.Writer) (*Writer, error) {
	bw := bufio.NewWriterSize(w, 1024*1024)
	if _, err := bw.WriteString(Magic); err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	return &Writer{w: bw, enc: cbor.NewEncoder(bw)}, nil
}

// WriteFrame appends one frame and flushes it to the underlying writer.
func (r *Writer) WriteFrame(_ context.Context, frame media.Frame) error {
	rec := Record{Index: frame.Index, Data: frame.Data}
	if !frame.Captured.IsZero() {
		rec.Captured = frame.Captured.UnixNano()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return errors.New("recording is closed")
	}
	if err := r.enc.Encode(rec); err != nil {
		return errors.Wrapf(err, "record frame %d", frame.Index)
	}
	if err := r.w.Flush(); err != nil {
		return err
	}
	r.count++
	return nil
}

// Count returns the number of frames written.
func (r *Writer) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Close flushes and, for files opened by Create, closes the file.
func (r *Writer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	err := r.w.Flush()
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
	}
	r.w = nil
	return err
}

// Reader iterates over the records of a recording.
type Reader struct {
	dec *cbor.Decoder
}

// NewReader checks the magic and returns a Reader positioned at the first
// record.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	header := make([]byte, len(Magic))
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, errors.Wrap(err, "read magic")
	}
	if string(header) != Magic {
		return nil, errors.WithMessagef(ErrBadMagic, "unexpected magic %q", string(header))
	}
	return &Reader{dec: cbor.NewDecoder(br)}, nil
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, errors.Wrap(err, "decode record")
	}
	return rec, nil
}
