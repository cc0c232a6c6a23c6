package config_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/framelink/internal/config"
	"github.com/1ureka/framelink/internal/protocol"
)

// minPacketSize is the smallest bound that carries a maximum-size frame in
// at most MaxTotalPackets packets.
const minPacketSize = protocol.HeaderSize + protocol.MaxFrameSize/protocol.MaxTotalPackets

func valid(role config.Role, kind config.Kind) config.Config {
	c := config.Default()
	c.Role = role
	c.Kind = kind
	return c
}

func TestValidateAcceptsDefaults(t *testing.T) {
	for _, kind := range config.Kinds {
		for _, role := range []config.Role{config.RoleSender, config.RoleReceiver} {
			c := valid(role, kind)
			if kind == config.KindQUIC {
				c.MaxPacketSize = 1100
			}
			require.NoError(t, c.Validate(), "%s %s", role, kind)
		}
	}
}

func TestValidateRejects(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing role", func(c *config.Config) { c.Role = "" }},
		{"unknown transport", func(c *config.Config) { c.Kind = "carrier-pigeon" }},
		{"packet size equals header", func(c *config.Config) { c.Kind = config.KindUDP; c.MaxPacketSize = 16 }},
		{"packet size negative", func(c *config.Config) { c.Kind = config.KindUDP; c.MaxPacketSize = -5 }},
		{"packet size above srt limit", func(c *config.Config) { c.Kind = config.KindSRT; c.MaxPacketSize = 1400 }},
		{"packet size splits frames too finely", func(c *config.Config) { c.Kind = config.KindUDP; c.MaxPacketSize = protocol.HeaderSize + 1 }},
		{"packet size just under the frame limit", func(c *config.Config) { c.Kind = config.KindUDP; c.MaxPacketSize = minPacketSize - 1 }},
		{"packet size above quic limit", func(c *config.Config) { c.Kind = config.KindQUIC; c.MaxPacketSize = 1200 }},
		{"address without port", func(c *config.Config) { c.Addr = "localhost" }},
		{"sender without host", func(c *config.Config) { c.Addr = ":8082" }},
		{"port out of range", func(c *config.Config) { c.Addr = "127.0.0.1:70000" }},
		{"zero buffer", func(c *config.Config) { c.BufferCapacity = 0 }},
		{"quality too high", func(c *config.Config) { c.Quality = 101 }},
		{"zero fps", func(c *config.Config) { c.FPS = 0 }},
		{"tiny frame", func(c *config.Config) { c.Width = 8 }},
		{"bad tos", func(c *config.Config) { c.TOS = 256 }},
		{"bad preview", func(c *config.Config) { c.PreviewAddr = "nope" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid(config.RoleSender, config.KindTCP)
			tc.mutate(&c)
			err := c.Validate()
			require.True(t, errors.Is(err, config.ErrConfiguration), "got %v", err)
		})
	}
}

// TestStreamIgnoresPacketSize verifies the packet bound only matters for
// datagram carriers.
func TestStreamIgnoresPacketSize(t *testing.T) {
	c := valid(config.RoleSender, config.KindTCP)
	c.MaxPacketSize = 0
	require.NoError(t, c.Validate())
}

// TestReceiverMayBindAnyHost verifies an empty host is accepted for binding.
func TestReceiverMayBindAnyHost(t *testing.T) {
	c := valid(config.RoleReceiver, config.KindUDP)
	c.Addr = ":0"
	require.NoError(t, c.Validate())
}

func TestNormalizeWSURL(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"127.0.0.1:9000", "ws://127.0.0.1:9000/ws"},
		{"ws://example.com:80/anything", "ws://example.com:80/ws"},
		{"wss://tunnel.example.dev", "wss://tunnel.example.dev/ws"},
		{"https://tunnel.example.dev/ws", "wss://tunnel.example.dev/ws"},
	}
	for _, tc := range testCases {
		got, err := config.NormalizeWSURL(tc.in)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}

	_, err := config.NormalizeWSURL("ws://")
	require.True(t, errors.Is(err, config.ErrConfiguration))
}

// TestWebRTCSenderTakesURL verifies a WebRTC sender's address is a
// signaling URL rather than host:port.
func TestWebRTCSenderTakesURL(t *testing.T) {
	c := valid(config.RoleSender, config.KindWebRTC)
	c.Addr = "wss://tunnel.example.dev/ws"
	require.NoError(t, c.Validate())
}

// TestValidateSmallestPacketSize verifies the smallest bound whose largest
// frame still fits the packet limit is accepted.
func TestValidateSmallestPacketSize(t *testing.T) {
	c := valid(config.RoleReceiver, config.KindUDP)
	c.MaxPacketSize = minPacketSize
	require.NoError(t, c.Validate())
}

// TestConfigurationErrorIsShared verifies a packet splitting failure matches
// the configuration sentinel.
func TestConfigurationErrorIsShared(t *testing.T) {
	_, err := protocol.Split(0, []byte("x"), protocol.HeaderSize)
	require.True(t, errors.Is(err, config.ErrConfiguration), "got %v", err)
}
