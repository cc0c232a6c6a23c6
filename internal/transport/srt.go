package transport

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	srtgo "github.com/zsiec/srtgo"

	"github.com/1ureka/framelink/internal/config"
	"github.com/1ureka/framelink/internal/util"
)

const (
	srtLatency        = 120 * time.Millisecond
	srtReadBufferSize = 1500
	srtStreamID       = "framelink"
	srtDialTimeout    = 10 * time.Second
)

// srtConn carries one packet per SRT live-mode message.
type srtConn struct {
	conn       *srtgo.Conn
	stopListen func()
	buf        []byte
	closed     atomic.Bool
}

// srtListener accepts one caller; taken rejects every later handshake.
type srtListener struct {
	l     *srtgo.Listener
	taken atomic.Bool
}

func srtConfig(tos int) srtgo.Config {
	scfg := srtgo.DefaultConfig()
	scfg.Latency = srtLatency
	if tos > 0 {
		scfg.IPTOS = tos
	}
	return scfg
}

func dialSRT(ctx context.Context, cfg config.Config) (*datagramTransport, error) {
	scfg := srtConfig(cfg.TOS)
	scfg.StreamID = srtStreamID

	ch := make(chan srtDialResult, 1)
	go func() {
		conn, err := srtgo.Dial(cfg.Addr, scfg)
		ch <- srtDialResult{conn, err}
	}()

	timer := time.NewTimer(srtDialTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		util.LogInfo("connected to %s over srt", res.conn.RemoteAddr())
		c := &srtConn{conn: res.conn, buf: make([]byte, srtReadBufferSize)}
		return newDatagramTransport(config.KindSRT, c, cfg.MaxPacketSize), nil
	case <-timer.C:
		go drainSRTDial(ch)
		return nil, errors.Errorf("dial timed out after %s", srtDialTimeout)
	case <-ctx.Done():
		go drainSRTDial(ch)
		return nil, ctx.Err()
	}
}

type srtDialResult struct {
	conn *srtgo.Conn
	err  error
}

// drainSRTDial closes a connection that completed after its caller gave up.
func drainSRTDial(ch <-chan srtDialResult) {
	if res := <-ch; res.conn != nil {
		res.conn.Close()
	}
}

// listenSRT accepts exactly one caller and rejects any later ones.
func listenSRT(ctx context.Context, cfg config.Config) (*datagramTransport, error) {
	ln, err := bindSRT(cfg)
	if err != nil {
		return nil, err
	}
	util.LogInfo("listening on %s over srt", ln.l.Addr())
	return acceptSRT(ctx, ln, cfg.MaxPacketSize)
}

func bindSRT(cfg config.Config) (*srtListener, error) {
	l, err := srtgo.Listen(cfg.Addr, srtConfig(cfg.TOS))
	if err != nil {
		return nil, err
	}
	ln := &srtListener{l: l}
	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if ln.taken.Load() {
			util.LogDebug("rejecting srt caller %s: peer already connected", req.RemoteAddr)
			return srtgo.RejPeer
		}
		return 0
	})
	return ln, nil
}

// acceptSRT waits for the first caller. The listener stays open until the
// transport closes so later callers get an explicit rejection.
func acceptSRT(ctx context.Context, ln *srtListener, maxPacketSize int) (*datagramTransport, error) {
	stop := context.AfterFunc(ctx, func() { ln.l.Close() })
	defer stop()

	conn, err := ln.l.Accept()
	if err != nil {
		ln.l.Close()
		return nil, err
	}
	ln.taken.Store(true)
	util.LogInfo("peer connected from %s (stream %q)", conn.RemoteAddr(), conn.StreamID())

	c := &srtConn{conn: conn, stopListen: func() { ln.l.Close() }, buf: make([]byte, srtReadBufferSize)}
	return newDatagramTransport(config.KindSRT, c, maxPacketSize), nil
}

func (c *srtConn) WriteDatagram(b []byte) error {
	if _, err := c.conn.Write(b); err != nil {
		return c.wrap(err)
	}
	return nil
}

func (c *srtConn) ReadDatagram() ([]byte, error) {
	n, err := c.conn.Read(c.buf)
	if err != nil {
		return nil, c.wrap(err)
	}
	out := make([]byte, n)
	copy(out, c.buf[:n])
	return out, nil
}

// wrap maps errors after Close, and a peer hang-up, to ErrClosed.
func (c *srtConn) wrap(err error) error {
	if c.closed.Load() || IsClosed(err) || errors.Is(err, srtgo.ErrPeerShutdown) {
		return closedError(err)
	}
	return err
}

func (c *srtConn) Close() error {
	c.closed.Store(true)
	err := c.conn.Close()
	if c.stopListen != nil {
		c.stopListen()
	}
	return err
}

func (c *srtConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }
