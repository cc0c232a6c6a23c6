package transport

import (
	"context"

	"github.com/pkg/errors"

	"github.com/1ureka/framelink/internal/config"
	"github.com/1ureka/framelink/internal/signaling"
	"github.com/1ureka/framelink/internal/webrtc"
)

// peerConn adapts a DataChannel peer to the datagram carrier contract.
type peerConn struct {
	peer *webrtc.Peer
}

// dialWebRTC connects to the receiver's signaling WebSocket at cfg.Addr.
func dialWebRTC(ctx context.Context, cfg config.Config) (*datagramTransport, error) {
	wsURL, err := config.NormalizeWSURL(cfg.Addr)
	if err != nil {
		return nil, err
	}
	peer, err := signaling.EstablishAsClient(ctx, wsURL)
	if err != nil {
		return nil, err
	}
	return newDatagramTransport(config.KindWebRTC, &peerConn{peer: peer}, cfg.MaxPacketSize), nil
}

// listenWebRTC hosts the signaling WebSocket on cfg.Addr and offers the
// DataChannel to the first sender that connects.
func listenWebRTC(ctx context.Context, cfg config.Config) (*datagramTransport, error) {
	peer, err := signaling.EstablishAsHost(ctx, cfg.Addr)
	if err != nil {
		return nil, err
	}
	return newDatagramTransport(config.KindWebRTC, &peerConn{peer: peer}, cfg.MaxPacketSize), nil
}

func (c *peerConn) WriteDatagram(b []byte) error {
	return peerErr(c.peer.WriteDatagram(b))
}

func (c *peerConn) ReadDatagram() ([]byte, error) {
	b, err := c.peer.ReadDatagram()
	return b, peerErr(err)
}

func (c *peerConn) Close() error { return c.peer.Close() }

func (c *peerConn) RemoteAddr() string { return c.peer.RemoteAddr() }

func peerErr(err error) error {
	if errors.Is(err, webrtc.ErrClosed) {
		return closedError(err)
	}
	return err
}
