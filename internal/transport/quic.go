package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/1ureka/framelink/internal/config"
	"github.com/1ureka/framelink/internal/util"
)

// quicALPN is negotiated by both ends; a mismatch fails the handshake.
const quicALPN = "framelink"

func quicConfig() *quic.Config {
	return &quic.Config{
		EnableDatagrams: true,
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}
}

// quicConn carries packets as QUIC unreliable datagrams (RFC 9221) on a
// single connection. The listening side keeps its listener until Close.
type quicConn struct {
	conn     quic.Connection
	listener *quic.Listener
	udp      *net.UDPConn

	ctx    context.Context
	cancel context.CancelFunc
}

func newQUICConn(conn quic.Connection, listener *quic.Listener, udp *net.UDPConn) *quicConn {
	ctx, cancel := context.WithCancel(context.Background())
	return &quicConn{conn: conn, listener: listener, udp: udp, ctx: ctx, cancel: cancel}
}

func dialQUIC(ctx context.Context, cfg config.Config) (*datagramTransport, error) {
	tlsConf := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{quicALPN},
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := quic.DialAddr(dialCtx, cfg.Addr, tlsConf, quicConfig())
	if err != nil {
		return nil, err
	}
	util.LogInfo("connected to %s over quic", conn.RemoteAddr())
	return newDatagramTransport(config.KindQUIC, newQUICConn(conn, nil, nil), cfg.MaxPacketSize), nil
}

// listenQUIC accepts exactly one connection.
func listenQUIC(ctx context.Context, cfg config.Config) (*datagramTransport, error) {
	ln, udp, err := bindQUIC(cfg)
	if err != nil {
		return nil, err
	}
	util.LogInfo("listening on %s over quic", ln.Addr())
	return acceptQUIC(ctx, ln, udp, cfg.MaxPacketSize)
}

func bindQUIC(cfg config.Config) (*quic.Listener, *net.UDPConn, error) {
	cert, err := selfSignedCert()
	if err != nil {
		return nil, nil, err
	}
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{quicALPN},
	}

	laddr, err := net.ResolveUDPAddr("udp", cfg.Addr)
	if err != nil {
		return nil, nil, err
	}
	udp, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, nil, err
	}
	applyTOS(udp, cfg.TOS)

	ln, err := quic.Listen(udp, tlsConf, quicConfig())
	if err != nil {
		udp.Close()
		return nil, nil, err
	}
	return ln, udp, nil
}

func acceptQUIC(ctx context.Context, ln *quic.Listener, udp *net.UDPConn, maxPacketSize int) (*datagramTransport, error) {
	conn, err := ln.Accept(ctx)
	if err != nil {
		ln.Close()
		udp.Close()
		return nil, err
	}
	util.LogInfo("peer connected from %s", conn.RemoteAddr())
	return newDatagramTransport(config.KindQUIC, newQUICConn(conn, ln, udp), maxPacketSize), nil
}

func (c *quicConn) WriteDatagram(b []byte) error {
	if err := c.conn.SendDatagram(b); err != nil {
		if c.ctx.Err() != nil || c.conn.Context().Err() != nil {
			return closedError(err)
		}
		return err
	}
	return nil
}

// ReadDatagram only fails once the connection is gone.
func (c *quicConn) ReadDatagram() ([]byte, error) {
	b, err := c.conn.ReceiveDatagram(c.ctx)
	if err != nil {
		return nil, closedError(err)
	}
	return b, nil
}

func (c *quicConn) Close() error {
	c.cancel()
	err := c.conn.CloseWithError(0, "closing")
	if c.listener != nil {
		c.listener.Close()
	}
	if c.udp != nil {
		c.udp.Close()
	}
	return err
}

func (c *quicConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }
