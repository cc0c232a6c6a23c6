package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/1ureka/framelink/internal/config"
	"github.com/1ureka/framelink/internal/media"
	"github.com/1ureka/framelink/internal/protocol"
	"github.com/1ureka/framelink/internal/util"
)

// streamTransport frames whole images on a reliable byte stream with an
// 8-byte length prefix. Ordering and delivery come from TCP, so there is no
// fragmentation; the receiver numbers frames itself.
type streamTransport struct {
	conn   net.Conn
	reader *protocol.FrameReader

	writeMu sync.Mutex
	next    uint32

	closeOnce sync.Once
	closeErr  error
}

func newStreamTransport(conn net.Conn) *streamTransport {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	return &streamTransport{
		conn:   conn,
		reader: protocol.NewFrameReader(conn),
	}
}

func dialStream(ctx context.Context, cfg config.Config) (*streamTransport, error) {
	d := net.Dialer{Timeout: 10 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}
	applyTOS(conn, cfg.TOS)
	util.LogInfo("connected to %s over tcp", conn.RemoteAddr())
	return newStreamTransport(conn), nil
}

// listenStream accepts exactly one peer and closes the listener.
func listenStream(ctx context.Context, cfg config.Config) (*streamTransport, error) {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}
	util.LogInfo("listening on %s over tcp", ln.Addr())
	return acceptOne(ctx, ln, cfg.TOS)
}

func acceptOne(ctx context.Context, ln net.Listener, tos int) (*streamTransport, error) {
	defer ln.Close()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	conn, err := ln.Accept()
	if err != nil {
		return nil, err
	}
	applyTOS(conn, tos)
	util.LogInfo("peer connected from %s", conn.RemoteAddr())
	return newStreamTransport(conn), nil
}

// Send writes one length-prefixed frame. Any write failure leaves the
// stream unusable and is reported as a disconnect.
func (t *streamTransport) Send(frame media.Frame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := protocol.WriteFrame(t.conn, frame.Data); err != nil {
		if errors.Is(err, protocol.ErrMalformedPacket) {
			return err
		}
		return closedError(err)
	}
	util.Stats.AddSent(protocol.LengthPrefixSize + len(frame.Data))
	return nil
}

// Receive blocks until a whole frame has been read. A malformed length
// prefix desynchronises the stream and is returned as-is.
func (t *streamTransport) Receive() (media.Frame, error) {
	data, err := t.reader.ReadFrame()
	if err != nil {
		if errors.Is(err, protocol.ErrMalformedPacket) {
			util.Stats.AddMalformed()
			return media.Frame{}, err
		}
		return media.Frame{}, closedError(err)
	}
	util.Stats.AddRecv(protocol.LengthPrefixSize + len(data))

	frame := media.Frame{Index: t.next, Data: data, Captured: time.Now()}
	t.next++
	return frame, nil
}

func (t *streamTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func (t *streamTransport) Kind() config.Kind { return config.KindTCP }

func (t *streamTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }
