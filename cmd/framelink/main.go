// Framelink CLI entry point.
//
// This tool streams live video frames from a sender to a receiver over one of
// several transports (tcp, udp, quic, srt, webrtc). Frames are JPEG-encoded;
// datagram transports fragment them into packets and the receiver keeps only
// the newest frame when packets are lost.
//
// It can be launched interactively (no -role flag) or non-interactively via
// CLI flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"golang.org/x/sync/errgroup"

	"github.com/1ureka/framelink/internal/config"
	"github.com/1ureka/framelink/internal/media"
	"github.com/1ureka/framelink/internal/preview"
	"github.com/1ureka/framelink/internal/record"
	"github.com/1ureka/framelink/internal/session"
	"github.com/1ureka/framelink/internal/transport"
	"github.com/1ureka/framelink/internal/util"
)

var version = "dev"

// errSessionEnded stops the preview server once the receiver session is over.
var errSessionEnded = errors.New("session ended")

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.Default()
	role := flag.String("role", "", "Role: sender or receiver (interactive when empty)")
	kind := flag.String("transport", string(cfg.Kind), "Transport: tcp, udp, quic, srt or webrtc")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Peer address (sender) or bind address (receiver); ws URL for a webrtc sender")
	flag.IntVar(&cfg.BufferCapacity, "buffer", cfg.BufferCapacity, "Frame buffer capacity")
	flag.IntVar(&cfg.MaxPacketSize, "mtu", cfg.MaxPacketSize, "Max datagram size including the 16-byte header")
	flag.IntVar(&cfg.Quality, "quality", cfg.Quality, "JPEG quality 1~100")
	flag.IntVar(&cfg.FPS, "fps", cfg.FPS, "Test pattern frame rate")
	size := flag.String("size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height), "Test pattern size WxH")
	flag.StringVar(&cfg.PreviewAddr, "preview", "", "Receiver: serve a live preview on this address")
	flag.StringVar(&cfg.RecordDir, "record", "", "Receiver: record frames into this directory")
	flag.IntVar(&cfg.TOS, "tos", 0, "IPv4 TOS byte for tcp/udp/quic sockets (0 = unset)")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Framelink v%s", version))
	pterm.Println()

	cfg.Kind = config.Kind(strings.ToLower(*kind))
	w, h, err := parseSize(*size)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	cfg.Width, cfg.Height = w, h

	mtuSet := false
	flag.Visit(func(f *flag.Flag) { mtuSet = mtuSet || f.Name == "mtu" })

	if *role == "" {
		cfg = runInteractive(cfg)
	} else {
		cfg.Role = config.Role(strings.ToLower(*role))
	}

	// The default packet size is too large for some carriers; clamp it
	// unless the user asked for a specific one.
	if !mtuSet && cfg.Kind.Datagram() {
		cfg.MaxPacketSize = min(cfg.MaxPacketSize, cfg.Kind.MaxPacketLimit())
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.StartStatsReporter(ctx)

	switch cfg.Role {
	case config.RoleSender:
		err = runSender(ctx, cfg)
	case config.RoleReceiver:
		err = runReceiver(ctx, cfg)
	}
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("session closed")
}

// ---------------------------------------------------------------------------
// Run modes
// ---------------------------------------------------------------------------

// runInteractive asks for the role, transport and address when no -role
// flag is provided.
func runInteractive(cfg config.Config) config.Config {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Sender:   stream the test pattern", "Receiver: accept and display a stream"}).
		WithDefaultText("Select your role").
		Show()
	pterm.Println()

	cfg.Role = config.RoleReceiver
	if strings.HasPrefix(role, "Sender") {
		cfg.Role = config.RoleSender
	}

	options := make([]string, len(config.Kinds))
	for i, k := range config.Kinds {
		options[i] = string(k)
	}
	kind, _ := pterm.DefaultInteractiveSelect.
		WithOptions(options).
		WithDefaultOption(string(cfg.Kind)).
		WithDefaultText("Select the transport").
		Show()
	pterm.Println()
	cfg.Kind = config.Kind(kind)

	cfg.Addr = askAddr(cfg)
	return cfg
}

// runSender captures the test pattern and streams it to the receiver.
func runSender(ctx context.Context, cfg config.Config) error {
	tr, err := transport.Dial(ctx, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.WithMessage(err, "failed to connect")
	}
	util.LogSuccess("connected, streaming %dx%d @ %d fps", cfg.Width, cfg.Height, cfg.FPS)

	src := media.NewPattern(cfg.Width, cfg.Height, cfg.FPS)
	s := session.NewSender(src, media.JPEG{Quality: cfg.Quality}, tr, cfg.BufferCapacity)
	return s.Run(ctx)
}

// runReceiver waits for the sender and delivers frames to every configured
// sink. The preview server, if any, runs alongside the session.
func runReceiver(ctx context.Context, cfg config.Config) error {
	sinks := media.MultiSink{&media.DecodeSink{Decoder: media.JPEG{}}}

	if cfg.RecordDir != "" {
		rec, path, err := record.Create(cfg.RecordDir)
		if err != nil {
			return errors.WithMessage(err, "failed to create recording")
		}
		util.LogInfo("recording to %s", path)
		sinks = append(sinks, rec)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.PreviewAddr != "" {
		pv := preview.New()
		sinks = append(sinks, pv)
		g.Go(func() error {
			return errors.WithMessage(pv.ListenAndServe(gctx, cfg.PreviewAddr), "preview server")
		})
	}
	defer sinks.Close()

	g.Go(func() error {
		tr, err := transport.Listen(gctx, cfg)
		if err != nil {
			if gctx.Err() != nil {
				return nil
			}
			return errors.WithMessage(err, "failed to accept sender")
		}
		util.LogSuccess("sender connected from %s", tr.RemoteAddr())

		r := session.NewReceiver(tr, sinks, cfg.BufferCapacity)
		if err := r.Run(gctx); err != nil {
			return err
		}
		return errSessionEnded
	})

	if err := g.Wait(); !errors.Is(err, errSessionEnded) {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// parseSize parses a WxH frame size.
func parseSize(raw string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(strings.TrimSpace(raw)), "x")
	if !ok {
		return 0, 0, errors.Errorf("invalid -size %q (expected WxH)", raw)
	}
	w, err1 := strconv.Atoi(ws)
	h, err2 := strconv.Atoi(hs)
	if err1 != nil || err2 != nil {
		return 0, 0, errors.Errorf("invalid -size %q (expected WxH)", raw)
	}
	return w, h, nil
}

// askAddr prompts for the address until the configuration validates.
func askAddr(cfg config.Config) string {
	prompt := "Bind address (host:port)"
	switch {
	case cfg.Role == config.RoleSender && cfg.Kind == config.KindWebRTC:
		prompt = "Receiver signaling URL (e.g. ws://127.0.0.1:8082/ws)"
	case cfg.Role == config.RoleSender:
		prompt = "Receiver address (host:port)"
	}

	fallback := cfg.Addr
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(fmt.Sprintf("%s [%s]", prompt, fallback)).
			Show()

		cfg.Addr = strings.TrimSpace(raw)
		if cfg.Addr == "" {
			cfg.Addr = fallback
		}
		pterm.Println()
		err := cfg.ValidateAddr()
		if err == nil {
			return cfg.Addr
		}
		util.LogWarning("%v", err)
	}
}
