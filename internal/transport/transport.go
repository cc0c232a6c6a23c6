// Package transport moves encoded frames between one sender and one receiver.
// A Transport is selected once from config: a length-prefixed byte stream
// (tcp) or a datagram carrier (udp, quic, srt, webrtc) running the
// fragmentation and reassembly engine.
package transport

import (
	"context"
	"io"
	"net"

	"github.com/pkg/errors"

	"github.com/1ureka/framelink/internal/config"
	"github.com/1ureka/framelink/internal/media"
)

var (
	// ErrTransport marks bind, connect, accept and signaling failures.
	ErrTransport = errors.New("transport error")
	// ErrClosed is returned once the transport or its peer has gone away.
	ErrClosed = errors.New("transport closed")
)

// Transport carries whole frames to or from exactly one peer.
//
// Send is called only by the sender's send task and Receive only by the
// receiver's receive task. Close may be called from any goroutine and
// unblocks a pending Send or Receive.
type Transport interface {
	Send(frame media.Frame) error
	Receive() (media.Frame, error)
	Close() error
	Kind() config.Kind
	RemoteAddr() string
}

// Dial connects the sender side of cfg.Kind to cfg.Addr.
func Dial(ctx context.Context, cfg config.Config) (Transport, error) {
	var (
		t   Transport
		err error
	)
	switch cfg.Kind {
	case config.KindTCP:
		t, err = dialStream(ctx, cfg)
	case config.KindUDP:
		t, err = dialUDP(cfg)
	case config.KindQUIC:
		t, err = dialQUIC(ctx, cfg)
	case config.KindSRT:
		t, err = dialSRT(ctx, cfg)
	case config.KindWebRTC:
		t, err = dialWebRTC(ctx, cfg)
	default:
		return nil, errors.Wrapf(config.ErrConfiguration, "unknown transport %q", cfg.Kind)
	}
	if err != nil {
		return nil, wrapSetup(ctx, err, "dial %s %s", cfg.Kind, cfg.Addr)
	}
	return t, nil
}

// Listen binds the receiver side of cfg.Kind to cfg.Addr and waits for the
// peer. UDP has no handshake and returns as soon as the socket is bound.
func Listen(ctx context.Context, cfg config.Config) (Transport, error) {
	var (
		t   Transport
		err error
	)
	switch cfg.Kind {
	case config.KindTCP:
		t, err = listenStream(ctx, cfg)
	case config.KindUDP:
		t, err = listenUDP(cfg)
	case config.KindQUIC:
		t, err = listenQUIC(ctx, cfg)
	case config.KindSRT:
		t, err = listenSRT(ctx, cfg)
	case config.KindWebRTC:
		t, err = listenWebRTC(ctx, cfg)
	default:
		return nil, errors.Wrapf(config.ErrConfiguration, "unknown transport %q", cfg.Kind)
	}
	if err != nil {
		return nil, wrapSetup(ctx, err, "listen %s %s", cfg.Kind, cfg.Addr)
	}
	return t, nil
}

// wrapSetup tags a setup failure with ErrTransport, leaving context
// cancellation recognisable to the caller.
func wrapSetup(ctx context.Context, err error, format string, args ...interface{}) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.WithMessagef(&setupError{cause: err}, format, args...)
}

type setupError struct{ cause error }

func (e *setupError) Error() string { return e.cause.Error() }
func (e *setupError) Unwrap() []error {
	return []error{ErrTransport, e.cause}
}

// IsClosed reports whether err means the transport or its peer went away,
// which the session treats as normal termination.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// closedError wraps a carrier-level disconnect so that it matches ErrClosed
// while keeping the original text.
func closedError(err error) error {
	if err == nil || errors.Is(err, ErrClosed) {
		return err
	}
	return &closed{cause: err}
}

type closed struct{ cause error }

func (e *closed) Error() string { return "transport closed: " + e.cause.Error() }
func (e *closed) Unwrap() []error {
	return []error{ErrClosed, e.cause}
}
