// Package config holds the immutable session configuration and its
// validation. Runtime state lives elsewhere.
package config

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/1ureka/framelink/internal/protocol"
)

// ErrConfiguration reports a configuration that cannot start a session. It
// is the same sentinel packet splitting fails with.
var ErrConfiguration = protocol.ErrConfiguration

// Role represents which end of the link this process is.
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// Kind selects the transport carrier.
type Kind string

const (
	KindTCP    Kind = "tcp"    // reliable stream, length-prefixed frames
	KindUDP    Kind = "udp"    // plain datagrams
	KindQUIC   Kind = "quic"   // QUIC unreliable datagrams
	KindSRT    Kind = "srt"    // SRT live-mode messages
	KindWebRTC Kind = "webrtc" // unordered, unreliable DataChannel
)

// Kinds lists every supported carrier.
var Kinds = []Kind{KindTCP, KindUDP, KindQUIC, KindSRT, KindWebRTC}

// Datagram reports whether frames are fragmented into packets on this kind.
func (k Kind) Datagram() bool {
	return k != KindTCP
}

// MaxPacketLimit returns the largest datagram the carrier can deliver
// intact, or 0 for stream kinds.
func (k Kind) MaxPacketLimit() int {
	switch k {
	case KindUDP:
		return 65507
	case KindQUIC:
		return 1100
	case KindSRT:
		return 1316
	case KindWebRTC:
		return 16384
	}
	return 0
}

// Defaults.
const (
	DefaultAddr           = "127.0.0.1:8082"
	DefaultBufferCapacity = 8
	DefaultMaxPacketSize  = 1200
	DefaultQuality        = 75
	DefaultFPS            = 30
	DefaultWidth          = 640
	DefaultHeight         = 480
)

// Config stores every parameter a session needs. It is a value: copy it,
// never mutate a shared one.
type Config struct {
	Role           Role
	Kind           Kind
	Addr           string // Peer (sender) or bind (receiver) host:port; ws URL for a WebRTC sender
	BufferCapacity int    // Frame buffer capacity on either side
	MaxPacketSize  int    // Datagram bound including the packet header
	Quality        int    // Passed through to the encoder
	FPS            int    // Synthetic source frame rate
	Width, Height  int    // Synthetic source size
	PreviewAddr    string // Receiver: live preview HTTP address, empty to disable
	RecordDir      string // Receiver: recording directory, empty to disable
	TOS            int    // IPv4 TOS byte for tcp/udp sockets, 0 leaves it unset
	Debug          bool
}

// Default returns a configuration with every default applied.
func Default() Config {
	return Config{
		Kind:           KindTCP,
		Addr:           DefaultAddr,
		BufferCapacity: DefaultBufferCapacity,
		MaxPacketSize:  DefaultMaxPacketSize,
		Quality:        DefaultQuality,
		FPS:            DefaultFPS,
		Width:          DefaultWidth,
		Height:         DefaultHeight,
	}
}

// Validate checks the configuration before any goroutine starts. Every
// failure wraps ErrConfiguration.
func (c Config) Validate() error {
	if c.Role != RoleSender && c.Role != RoleReceiver {
		return errors.WithMessagef(ErrConfiguration, "invalid role %q: must be %q or %q", c.Role, RoleSender, RoleReceiver)
	}

	if !c.Kind.valid() {
		return errors.WithMessagef(ErrConfiguration, "invalid transport %q: must be one of %s", c.Kind, kindList())
	}

	if err := c.ValidateAddr(); err != nil {
		return err
	}

	if c.Kind.Datagram() {
		if c.MaxPacketSize <= protocol.HeaderSize {
			return errors.WithMessagef(ErrConfiguration,
				"max packet size %d must exceed the %d-byte header", c.MaxPacketSize, protocol.HeaderSize)
		}
		if n := protocol.PacketCount(protocol.MaxFrameSize, c.MaxPacketSize); n > protocol.MaxTotalPackets {
			return errors.WithMessagef(ErrConfiguration,
				"max packet size %d splits a %d-byte frame into %d packets, limit is %d",
				c.MaxPacketSize, protocol.MaxFrameSize, n, protocol.MaxTotalPackets)
		}
		if limit := c.Kind.MaxPacketLimit(); c.MaxPacketSize > limit {
			return errors.WithMessagef(ErrConfiguration,
				"max packet size %d exceeds the %s limit of %d", c.MaxPacketSize, c.Kind, limit)
		}
	}

	if c.BufferCapacity < 1 {
		return errors.WithMessagef(ErrConfiguration, "buffer capacity %d must be at least 1", c.BufferCapacity)
	}
	if c.Quality < 1 || c.Quality > 100 {
		return errors.WithMessagef(ErrConfiguration, "quality %d must be 1~100", c.Quality)
	}
	if c.FPS < 1 {
		return errors.WithMessagef(ErrConfiguration, "fps %d must be at least 1", c.FPS)
	}
	if c.Width < 16 || c.Height < 16 {
		return errors.WithMessagef(ErrConfiguration, "frame size %dx%d is too small", c.Width, c.Height)
	}
	if c.TOS < 0 || c.TOS > 255 {
		return errors.WithMessagef(ErrConfiguration, "tos %d must be 0~255", c.TOS)
	}
	if c.PreviewAddr != "" {
		if err := checkHostPort(c.PreviewAddr, true); err != nil {
			return errors.WithMessage(err, "preview address")
		}
	}
	return nil
}

// ValidateAddr checks Addr for the configured role and kind.
func (c Config) ValidateAddr() error {
	if c.Kind == KindWebRTC && c.Role == RoleSender {
		_, err := NormalizeWSURL(c.Addr)
		return err
	}
	return checkHostPort(c.Addr, c.Role == RoleReceiver)
}

// checkHostPort validates host:port. An empty host is only allowed when
// binding.
func checkHostPort(addr string, bind bool) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return errors.WithMessagef(ErrConfiguration, "invalid address %q: %v", addr, err)
	}
	if host == "" && !bind {
		return errors.WithMessagef(ErrConfiguration, "address %q is missing a host", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 || (port == 0 && !bind) {
		return errors.WithMessagef(ErrConfiguration, "invalid port in %q (must be 1~65535)", addr)
	}
	return nil
}

// NormalizeWSURL validates a raw signaling URL and normalizes it to
// scheme://host/ws. A bare host:port is accepted and defaults to ws.
func NormalizeWSURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", errors.WithMessagef(ErrConfiguration, "invalid WebSocket URL: %s", raw)
	}
	scheme := "ws"
	if u.Scheme == "wss" || u.Scheme == "https" {
		scheme = "wss"
	}
	return scheme + "://" + u.Host + "/ws", nil
}

func (k Kind) valid() bool {
	for _, kk := range Kinds {
		if k == kk {
			return true
		}
	}
	return false
}

func kindList() string {
	names := make([]string, len(Kinds))
	for i, k := range Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
