// Package signaling performs the WebSocket SDP/ICE exchange that brings up a
// WebRTC DataChannel. The receiver hosts the WebSocket and sends the offer;
// the sender connects and answers. Callers receive a ready Peer.
package signaling

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"
	pion "github.com/pion/webrtc/v4"
	"github.com/pkg/errors"

	"github.com/1ureka/framelink/internal/util"
	"github.com/1ureka/framelink/internal/webrtc"
)

// EstablishAsHost executes the host-side signaling flow:
//  1. Start a WS server on addr
//  2. Wait for the client to connect
//  3. Create a Peer and send the offer
//  4. Wait for the DataChannel to be ready
//  5. Close the WS server and connection
func EstablishAsHost(ctx context.Context, addr string) (*webrtc.Peer, error) {
	srv := newServer()
	bound, err := srv.start(addr)
	if err != nil {
		return nil, err
	}
	defer srv.close()

	util.LogInfo("signaling server listening on ws://%s/ws", bound)

	wsConn, err := srv.waitForClient(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to wait for client")
	}
	defer wsConn.Close()
	util.LogInfo("signaling client connected from %s", wsConn.RemoteAddr())

	peer, s, errCh, err := startExchange(ctx, wsConn)
	if err != nil {
		return nil, err
	}

	// Host sends the offer first.
	if err := s.sendOffer(); err != nil {
		peer.Close()
		return nil, errors.WithMessage(err, "failed to send offer")
	}

	return awaitReady(ctx, peer, errCh)
}

// EstablishAsClient executes the client-side signaling flow:
//  1. Connect to the host's WS server
//  2. Create a Peer and answer the host's offer
//  3. Wait for the DataChannel to be ready
//  4. Close the WS connection
func EstablishAsClient(ctx context.Context, wsURL string) (*webrtc.Peer, error) {
	util.LogInfo("connecting to signaling server %s", wsURL)
	wsConn, err := connect(ctx, wsURL)
	if err != nil {
		return nil, err
	}
	defer wsConn.Close()

	peer, _, errCh, err := startExchange(ctx, wsConn)
	if err != nil {
		return nil, err
	}

	return awaitReady(ctx, peer, errCh)
}

// startExchange creates the Peer, wires trickle ICE to the WebSocket and
// starts the receiving loop. The loop exits when wsConn is closed.
func startExchange(ctx context.Context, wsConn *websocket.Conn) (*webrtc.Peer, *sender, <-chan error, error) {
	peer, err := webrtc.NewPeer(ctx)
	if err != nil {
		return nil, nil, nil, errors.WithMessage(err, "failed to create peer")
	}

	s := &sender{peer: peer, conn: wsConn}
	r := &receiver{peer: peer, conn: wsConn, sender: s}

	peer.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		data, _ := json.Marshal(c.ToJSON())
		// Best-effort: the WS may already be closed once the channel is up.
		_ = s.sendCandidate(string(data))
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.watch()
	}()

	return peer, s, errCh, nil
}

func awaitReady(ctx context.Context, peer *webrtc.Peer, errCh <-chan error) (*webrtc.Peer, error) {
	select {
	case <-peer.Ready():
		util.LogSuccess("WebRTC DataChannel established, closing WS")
		return peer, nil

	case err := <-errCh:
		peer.Close()
		return nil, errors.WithMessage(err, "signaling failed")

	case <-ctx.Done():
		peer.Close()
		return nil, ctx.Err()
	}
}
