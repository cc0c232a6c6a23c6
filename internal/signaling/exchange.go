package signaling

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	pion "github.com/pion/webrtc/v4"
	"github.com/pkg/errors"

	"github.com/1ureka/framelink/internal/webrtc"
)

// sender serializes outgoing signaling messages to the WebSocket.
type sender struct {
	peer *webrtc.Peer
	conn *websocket.Conn
	mu   sync.Mutex
}

// send writes a signaling message to the WebSocket, guarded by a mutex.
func (s *sender) send(msg message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

// sendOffer creates an SDP offer, sets it as local description, and sends it.
func (s *sender) sendOffer() error {
	offer, err := s.peer.CreateOffer()
	if err != nil {
		return err
	}
	if err := s.peer.SetLocalDescription(offer); err != nil {
		return err
	}
	return s.send(message{Type: msgTypeOffer, SDP: offer.SDP})
}

// sendAnswer creates an SDP answer, sets it as local description, and sends it.
func (s *sender) sendAnswer() error {
	answer, err := s.peer.CreateAnswer()
	if err != nil {
		return err
	}
	if err := s.peer.SetLocalDescription(answer); err != nil {
		return err
	}
	return s.send(message{Type: msgTypeAnswer, SDP: answer.SDP})
}

// sendCandidate sends an ICE candidate message over the WebSocket.
func (s *sender) sendCandidate(candidate string) error {
	return s.send(message{Type: msgTypeCandidate, Candidate: candidate})
}

// receiver applies incoming signaling messages to the peer.
type receiver struct {
	peer   *webrtc.Peer
	conn   *websocket.Conn
	sender *sender
}

// watch reads signaling messages until the WebSocket fails or is closed.
func (r *receiver) watch() error {
	for {
		var msg message
		if err := r.conn.ReadJSON(&msg); err != nil {
			return errors.WithMessage(err, "failed to read WS message")
		}

		switch msg.Type {
		case msgTypeOffer:
			if err := r.peer.SetRemoteDescription(pion.SessionDescription{
				Type: pion.SDPTypeOffer, SDP: msg.SDP,
			}); err != nil {
				return err
			}
			if err := r.sender.sendAnswer(); err != nil {
				return err
			}

		case msgTypeAnswer:
			if err := r.peer.SetRemoteDescription(pion.SessionDescription{
				Type: pion.SDPTypeAnswer, SDP: msg.SDP,
			}); err != nil {
				return err
			}

		case msgTypeCandidate:
			var init pion.ICECandidateInit
			if err := json.Unmarshal([]byte(msg.Candidate), &init); err != nil {
				return errors.WithMessage(err, "failed to parse ICE candidate")
			}
			if err := r.peer.AddICECandidate(init); err != nil {
				return err
			}
		}
	}
}
