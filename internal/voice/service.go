// SPDX-License-Identifier: AGPL-3.0-or-later
// canis - realtime messaging and voice core
// Copyright (C) 2023-2026 Jacob McSwain
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Wolftown-io/canis/internal/config"
	"github.com/Wolftown-io/canis/internal/events"
	"github.com/Wolftown-io/canis/internal/gateway"
	"github.com/Wolftown-io/canis/internal/permissions"
	"github.com/Wolftown-io/canis/internal/pubsub"
	"github.com/Wolftown-io/canis/internal/voice/sfu"
	"github.com/pion/webrtc/v4"
	"gorm.io/gorm"
)

// Service is the call manager plus signaling relay, implementing
// gateway.IntentHandler's HandleCallSignal. internal/http's intentHandler
// composes it alongside internal/messages to satisfy the full interface.
type Service struct {
	*Manager
	bus              pubsub.PubSub
	iceServers       []webrtc.ICEServer
	renegotiationWin time.Duration

	mu    sync.Mutex
	peers map[string]map[string]*sfu.Peer // channelID -> userID -> server-side peer
}

func NewService(db *gorm.DB, resolver *permissions.Resolver, hub *gateway.Hub, bus pubsub.PubSub, cfg config.Voice, stunServers []string) *Service {
	var ice []webrtc.ICEServer
	for _, url := range stunServers {
		ice = append(ice, webrtc.ICEServer{URLs: []string{url}})
	}
	renegotiationWin := cfg.ICERenegotiationTimeout
	if renegotiationWin <= 0 {
		renegotiationWin = 10 * time.Second
	}
	return &Service{
		Manager:          NewManager(db, resolver, hub, cfg),
		bus:              bus,
		iceServers:       ice,
		renegotiationWin: renegotiationWin,
		peers:            make(map[string]map[string]*sfu.Peer),
	}
}

// HandleCallSignal routes one signaling frame: "sfu" negotiates directly
// with the server's media router, anything else relays peer-to-peer.
// internal/gateway's per-connection read pump calls this serially per
// session, which is what gives same-(call,pair) deliveries their FIFO
// guarantee: nothing reorders frames between the websocket read and here.
func (s *Service) HandleCallSignal(ctx context.Context, userID, channelID string, frame gateway.ClientFrame) error {
	var payload SignalPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return fmt.Errorf("voice: decode signal payload: %w", err)
	}

	if payload.Target == signalTargetSFU {
		return s.handleSFUSignal(ctx, userID, channelID, payload)
	}
	return s.relayToPeer(userID, channelID, payload)
}

// relayToPeer forwards a signaling message to another participant's
// session without interpreting it, addressed by user rather than channel so
// it cannot leak to channel members outside the call.
func (s *Service) relayToPeer(fromUser, channelID string, payload SignalPayload) error {
	return s.publishSignal(payload.Target, RelayedSignalPayload{
		CallID: payload.CallID, FromUser: fromUser, Type: payload.Type, SDP: payload.SDP, Candidate: payload.Candidate,
	})
}

// handleSFUSignal terminates a participant's media connection at the
// server, creating their Peer on first offer and relaying ICE candidates
// for as long as the call keeps it around.
func (s *Service) handleSFUSignal(ctx context.Context, userID, channelID string, payload SignalPayload) error {
	call, ok := s.router(channelID)
	if !ok {
		return ErrCallEnded
	}

	switch payload.Type {
	case "offer":
		peer, err := s.peerFor(userID, channelID, call)
		if err != nil {
			return fmt.Errorf("voice: create sfu peer: %w", err)
		}
		answer, err := answerOffer(peer, payload.SDP)
		if err != nil {
			return err
		}
		return s.relayFromSFU(userID, payload.CallID, "answer", answer, nil)
	case "ice-candidate":
		peer := s.existingPeer(userID, channelID)
		if peer == nil {
			return ErrNotInCall
		}
		return addICECandidate(peer, payload.Candidate)
	default:
		slog.Debug("voice sfu signal ignored", "type", payload.Type)
		return nil
	}
}

func (s *Service) peerFor(userID, channelID string, call *Call) (*sfu.Peer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byUser, ok := s.peers[channelID]
	if !ok {
		byUser = make(map[string]*sfu.Peer)
		s.peers[channelID] = byUser
	}
	if peer, ok := byUser[userID]; ok {
		return peer, nil
	}
	peer, err := sfu.NewPeer(userID, call.router, s.iceServers)
	if err != nil {
		return nil, err
	}
	peer.OnLocalICECandidate(func(candidate webrtc.ICECandidateInit) {
		raw, err := json.Marshal(candidate)
		if err != nil {
			return
		}
		_ = s.relayFromSFU(userID, call.ID, "ice-candidate", "", raw)
	})
	// A single renegotiation window is allowed after ICE fails; if the
	// connection hasn't recovered by the deadline, the participant is evicted
	// with ice_failed.
	peer.OnICEFailed(func() {
		time.AfterFunc(s.renegotiationWin, func() {
			if p := s.existingPeer(userID, channelID); p != nil && p.ConnectionState() == webrtc.ICEConnectionStateFailed {
				s.EvictForICEFailure(channelID, userID)
			}
		})
	})
	byUser[userID] = peer
	return peer, nil
}

// relayFromSFU delivers the server's own signaling messages (the SDP
// answer, trickled ICE candidates) back to userID the same way a
// peer-directed relay would, tagging FromUser as "sfu" rather than another
// participant.
func (s *Service) relayFromSFU(userID, callID, msgType, sdp string, candidate json.RawMessage) error {
	return s.publishSignal(userID, RelayedSignalPayload{
		CallID: callID, FromUser: signalTargetSFU, Type: msgType, SDP: sdp, Candidate: candidate,
	})
}

// publishSignal wraps a relayed signal in the same Frame/Envelope shape
// internal/events uses for channel broadcasts, but delivers it over a
// user-scoped topic instead, since signaling must never leak to channel
// members outside the call (mirroring internal/presence's UserTopic fan-out).
func (s *Service) publishSignal(toUser string, out RelayedSignalPayload) error {
	wrapped, err := events.Marshal(events.KindSignalRelay, 0, out)
	if err != nil {
		return fmt.Errorf("voice: marshal relayed signal: %w", err)
	}
	return s.bus.Publish(events.UserTopic(toUser), wrapped)
}

func (s *Service) existingPeer(userID, channelID string) *sfu.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.peers[channelID]
	if !ok {
		return nil
	}
	return byUser[userID]
}

// Leave additionally tears down userID's server-side peer, overriding the
// embedded Manager's Leave.
func (s *Service) Leave(ctx context.Context, userID, channelID string) error {
	s.mu.Lock()
	if byUser, ok := s.peers[channelID]; ok {
		if peer, ok := byUser[userID]; ok {
			_ = peer.Close()
			delete(byUser, userID)
		}
	}
	s.mu.Unlock()
	return s.Manager.Leave(ctx, userID, channelID)
}
