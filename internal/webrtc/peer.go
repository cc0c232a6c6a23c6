// Package webrtc wraps a pion PeerConnection and a single unreliable
// DataChannel into a datagram carrier: one message in, one message out, no
// ordering and no retransmission.
package webrtc

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/framelink/internal/util"
)

// STUN servers for ICE candidate gathering. No TURN: the tool is designed
// for direct P2P connectivity with zero infrastructure cost.
var stunServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

const (
	highWaterMark = 1024 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark  = 256 * 1024  // resume sending when bufferedAmount drops below this
	inboxSize     = 1024        // received messages waiting for ReadDatagram
)

// ErrClosed is returned by ReadDatagram and WriteDatagram once the
// DataChannel or the parent context is done.
var ErrClosed = errors.New("datachannel closed")

// Peer wraps a single PeerConnection + DataChannel pair, providing the
// signaling hooks needed to connect it and a datagram read/write API.
//
// Its lifecycle is governed by the DataChannel state and the context passed
// at construction time. The PeerConnection state is recorded but does not
// drive open/close decisions.
type Peer struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	openSignal  chan struct{}
	drainSignal chan struct{}
	inbox       chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	pcState webrtc.PeerConnectionState
}

// NewPeer creates a Peer backed by a new PeerConnection and a pre-negotiated
// DataChannel. The caller performs signaling via the exposed methods
// (CreateOffer / CreateAnswer / …) and then uses ReadDatagram / WriteDatagram.
func NewPeer(ctx context.Context) (*Peer, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
	})
	if err != nil {
		return nil, err
	}

	dc, err := newDataChannel(pc)
	if err != nil {
		pc.Close()
		return nil, err
	}

	pCtx, pCancel := context.WithCancel(ctx)

	p := &Peer{
		pc:          pc,
		dc:          dc,
		openSignal:  make(chan struct{}),
		drainSignal: make(chan struct{}, 1),
		inbox:       make(chan []byte, inboxSize),
		ctx:         pCtx,
		cancel:      pCancel,
		pcState:     webrtc.PeerConnectionStateNew,
	}

	// DC open gate.
	var openOnce sync.Once
	dc.OnOpen(func() {
		openOnce.Do(func() { close(p.openSignal) })
	})

	// DC close → cancel peer context.
	dc.OnClose(func() {
		util.LogDebug("DataChannel closed")
		pCancel()
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case p.inbox <- msg.Data:
		default:
			util.LogDebug("DataChannel inbox full, dropping %d-byte message", len(msg.Data))
		}
	})

	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case p.drainSignal <- struct{}{}:
		default:
		}
	})

	// Record PC state (informational only) and treat a failed link as closed.
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		p.mu.Lock()
		p.pcState = state
		p.mu.Unlock()
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			pCancel()
		}
	})

	return p, nil
}

// newDataChannel creates a pre-negotiated DataChannel (ID 0) so both sides
// can create it independently. Unordered with zero retransmits makes every
// message a datagram: late or lost messages are simply gone.
func newDataChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	ordered := false
	negotiated := true
	retransmits := uint16(0)
	id := uint16(0)

	return pc.CreateDataChannel("frames", &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &retransmits,
		Negotiated:     &negotiated,
		ID:             &id,
	})
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Ready returns a channel that is closed when the DataChannel is open.
func (p *Peer) Ready() <-chan struct{} {
	return p.openSignal
}

// Done returns a channel that is closed when the Peer is shut down
// (DataChannel closed, connection failed, or parent context cancelled).
func (p *Peer) Done() <-chan struct{} {
	return p.ctx.Done()
}

// Close shuts down the DataChannel and PeerConnection.
func (p *Peer) Close() error {
	p.cancel()
	return errors.Join(p.dc.Close(), p.pc.Close())
}

// ConnectionState returns the last observed PeerConnection state.
func (p *Peer) ConnectionState() webrtc.PeerConnectionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pcState
}

// RemoteAddr describes the peer for logs.
func (p *Peer) RemoteAddr() string {
	return "datachannel/" + p.ConnectionState().String()
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (p *Peer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (p *Peer) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (p *Peer) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(sdp)
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. A nil candidate signals the end of gathering.
func (p *Peer) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	p.pc.OnICECandidate(fn)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (p *Peer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

// ---------------------------------------------------------------------------
// Data
// ---------------------------------------------------------------------------

// WriteDatagram sends one message. It waits for the channel to open and,
// when the SCTP send buffer is above the high-water mark, for it to drain.
func (p *Peer) WriteDatagram(b []byte) error {
	select {
	case <-p.openSignal:
	case <-p.ctx.Done():
		return ErrClosed
	}

	if p.dc.BufferedAmount() > uint64(highWaterMark) {
		select {
		case <-p.drainSignal:
		case <-p.ctx.Done():
			return ErrClosed
		}
	}

	if err := p.dc.Send(b); err != nil {
		if p.ctx.Err() != nil {
			return ErrClosed
		}
		return err
	}
	return nil
}

// ReadDatagram returns the next received message.
func (p *Peer) ReadDatagram() ([]byte, error) {
	select {
	case msg := <-p.inbox:
		return msg, nil
	case <-p.ctx.Done():
		return nil, ErrClosed
	}
}
