package transport

import (
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/1ureka/framelink/internal/config"
	"github.com/1ureka/framelink/internal/util"
)

// udpReadBufferSize fits the largest possible UDP payload.
const udpReadBufferSize = 64 * 1024

// udpConn is the plain UDP carrier. The dialing side owns a connected
// socket; the listening side locks onto the first address it hears from and
// ignores everyone else.
type udpConn struct {
	conn      *net.UDPConn
	connected bool
	buf       []byte

	mu   sync.RWMutex
	peer *net.UDPAddr
}

func dialUDP(cfg config.Config) (*datagramTransport, error) {
	raddr, err := net.ResolveUDPAddr("udp", cfg.Addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}
	applyTOS(conn, cfg.TOS)
	util.LogInfo("sending to %s over udp", raddr)

	c := &udpConn{conn: conn, connected: true, peer: raddr, buf: make([]byte, udpReadBufferSize)}
	return newDatagramTransport(config.KindUDP, c, cfg.MaxPacketSize), nil
}

func listenUDP(cfg config.Config) (*datagramTransport, error) {
	laddr, err := net.ResolveUDPAddr("udp", cfg.Addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	applyTOS(conn, cfg.TOS)
	util.LogInfo("listening on %s over udp", conn.LocalAddr())

	c := &udpConn{conn: conn, buf: make([]byte, udpReadBufferSize)}
	return newDatagramTransport(config.KindUDP, c, cfg.MaxPacketSize), nil
}

func (c *udpConn) WriteDatagram(b []byte) error {
	if c.connected {
		_, err := c.conn.Write(b)
		return udpErr(err)
	}

	c.mu.RLock()
	peer := c.peer
	c.mu.RUnlock()
	if peer == nil {
		return errors.New("no peer yet")
	}
	_, err := c.conn.WriteToUDP(b, peer)
	return udpErr(err)
}

func (c *udpConn) ReadDatagram() ([]byte, error) {
	for {
		n, addr, err := c.conn.ReadFromUDP(c.buf)
		if err != nil {
			return nil, udpErr(err)
		}

		if !c.connected && !c.accept(addr) {
			util.LogDebug("ignoring %d bytes from %s, locked to %s", n, addr, c.peerAddr())
			continue
		}

		out := make([]byte, n)
		copy(out, c.buf[:n])
		return out, nil
	}
}

// accept records the first sender and reports whether addr is that sender.
func (c *udpConn) accept(addr *net.UDPAddr) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.peer == nil {
		c.peer = addr
		util.LogInfo("peer locked to %s", addr)
		return true
	}
	return c.peer.IP.Equal(addr.IP) && c.peer.Port == addr.Port
}

func (c *udpConn) peerAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.peer == nil {
		return ""
	}
	return c.peer.String()
}

func (c *udpConn) Close() error { return c.conn.Close() }

func (c *udpConn) RemoteAddr() string { return c.peerAddr() }

func udpErr(err error) error {
	if err != nil && errors.Is(err, net.ErrClosed) {
		return closedError(err)
	}
	return err
}
