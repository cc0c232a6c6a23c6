package transport

import (
	"net"

	"golang.org/x/net/ipv4"

	"github.com/1ureka/framelink/internal/util"
)

// applyTOS marks outgoing IPv4 traffic with the given TOS byte. Zero leaves
// the socket untouched; failures (e.g. IPv6 sockets) are logged and ignored.
func applyTOS(conn net.Conn, tos int) {
	if tos <= 0 {
		return
	}

	var err error
	switch c := conn.(type) {
	case *net.UDPConn:
		err = ipv4.NewPacketConn(c).SetTOS(tos)
	default:
		err = ipv4.NewConn(c).SetTOS(tos)
	}
	if err != nil {
		util.LogWarning("failed to set TOS 0x%02x on %s: %v", tos, conn.LocalAddr(), err)
		return
	}
	util.LogDebug("TOS 0x%02x set on %s", tos, conn.LocalAddr())
}
