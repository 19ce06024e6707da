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

package sfu

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// audioLevelURI is the RTP header extension carrying per-packet voice
// activity, negotiated once per PeerConnection in newMediaAPI.
const audioLevelURI = "urn:ietf:params:rtp-hdrext:ssrc-audio-level"

// Peer is one participant's server-side PeerConnection: one upstream track
// per kind they publish, one downstream TrackLocalStaticRTP per (publisher,
// kind) they are admitted to receive. It is the only piece of this package
// that touches real media; Router above stays pure routing logic.
type Peer struct {
	userID string
	pc     *webrtc.PeerConnection
	router *Router

	mu         sync.Mutex
	downstream map[string]map[TrackKind]*webrtc.TrackLocalStaticRTP
}

func newMediaAPI() (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	if err := mediaEngine.RegisterHeaderExtension(webrtc.RTPHeaderExtensionCapability{URI: audioLevelURI}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, err
	}
	return webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(registry)), nil
}

// NewPeer creates userID's PeerConnection within call's router and wires its
// inbound tracks to the router's forwarding decisions.
func NewPeer(userID string, router *Router, iceServers []webrtc.ICEServer) (*Peer, error) {
	api, err := newMediaAPI()
	if err != nil {
		return nil, err
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, err
	}

	p := &Peer{
		userID:     userID,
		pc:         pc,
		router:     router,
		downstream: make(map[string]map[TrackKind]*webrtc.TrackLocalStaticRTP),
	}

	pc.OnTrack(func(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		kind := trackKindFromRID(remote.RID())
		router.StartPublishing(userID, kind)
		go p.drainUpstream(remote, kind)
	})

	return p, nil
}

// OnICEFailed registers the callback fired when the PeerConnection's ICE
// connection transitions to failed, so the caller can start the
// renegotiation-window timer that ends in eviction if it doesn't recover.
func (p *Peer) OnICEFailed(fn func()) {
	p.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		if state == webrtc.ICEConnectionStateFailed {
			fn()
		}
	})
}

// OnLocalICECandidate registers the callback fired with every ICE candidate
// the server gathers, which the caller relays back to the client over the
// signaling channel.
func (p *Peer) OnLocalICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		fn(c.ToJSON())
	})
}

// SetRemoteOffer applies a client offer and returns the server's answer SDP.
func (p *Peer) SetRemoteOffer(sdp string) (string, error) {
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return "", err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

// AddICECandidate adds a trickled client candidate to the in-progress
// negotiation.
func (p *Peer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

// ConnectionState reports the underlying PeerConnection's ICE connection
// state, used to detect the ice_failed eviction condition.
func (p *Peer) ConnectionState() webrtc.ICEConnectionState {
	return p.pc.ICEConnectionState()
}

func trackKindFromRID(rid string) TrackKind {
	if rid == string(TrackScreen) {
		return TrackScreen
	}
	return TrackVideo
}

// drainUpstream reads RTP from one of userID's published tracks, consults
// the router for where to forward each packet, and writes it unmodified to
// every admitted subscriber's downstream track.
func (p *Peer) drainUpstream(remote *webrtc.TrackRemote, kind TrackKind) {
	if remote.Kind() == webrtc.RTPCodecTypeAudio {
		kind = TrackAudio
	}
	defer p.router.StopPublishing(p.userID, kind)

	for {
		pkt, attrs, err := remote.ReadRTP()
		if err != nil {
			return
		}
		if kind == TrackAudio {
			p.observeAudioLevel(pkt, attrs)
		}

		now := time.Now().UTC()
		for _, dest := range p.router.Route(p.userID, kind, pkt.MarshalSize(), now) {
			if err := forwardTo(p.downstreamTrack(dest.SubscriberID, kind, remote), pkt); err != nil {
				slog.Debug("sfu forward failed", "from", p.userID, "to", dest.SubscriberID, "kind", kind, "error", err)
			}
		}
	}
}

func (p *Peer) observeAudioLevel(pkt *rtp.Packet, attrs interceptor.Attributes) {
	id := extensionID(attrs)
	if id == 0 {
		return
	}
	raw := pkt.GetExtension(id)
	if raw == nil {
		return
	}
	var level rtp.AudioLevelExtension
	if err := level.Unmarshal(raw); err != nil {
		return
	}
	p.router.ObserveAudioLevel(p.userID, level.Voice, time.Now().UTC())
}

// extensionID recovers the negotiated header extension ID for the audio
// level URI from the attributes pion's interceptor chain attaches to each
// read; 0 (no valid extension uses ID 0) means it was not negotiated.
func extensionID(attrs interceptor.Attributes) uint8 {
	if attrs == nil {
		return 0
	}
	if v, ok := attrs.Get(audioLevelURI).(uint8); ok {
		return v
	}
	return 0
}

// downstreamTrack lazily creates subscriberID's local track for
// (publisherID=p.userID, kind), cloning the remote track's codec so the
// forwarded payload type matches what was negotiated upstream.
func (p *Peer) downstreamTrack(subscriberID string, kind TrackKind, remote *webrtc.TrackRemote) *webrtc.TrackLocalStaticRTP {
	p.mu.Lock()
	defer p.mu.Unlock()

	byKind, ok := p.downstream[subscriberID]
	if !ok {
		byKind = make(map[TrackKind]*webrtc.TrackLocalStaticRTP)
		p.downstream[subscriberID] = byKind
	}
	track, ok := byKind[kind]
	if !ok {
		local, err := webrtc.NewTrackLocalStaticRTP(remote.Codec().RTPCodecCapability, string(kind), p.userID)
		if err != nil {
			return nil
		}
		byKind[kind] = local
		track = local
	}
	return track
}

func forwardTo(track *webrtc.TrackLocalStaticRTP, pkt *rtp.Packet) error {
	if track == nil {
		return nil
	}
	return track.WriteRTP(pkt)
}

// HandleReceiverReport folds a subscriber's RTCP receiver report into a
// coarse bandwidth estimate, used to pick a simulcast layer for future
// packets sent to them. Packet loss above lossThresholdPercent downgrades
// the selected layer; otherwise it upgrades toward the highest available.
func HandleReceiverReport(pkt rtcp.Packet) (lossFraction uint8, ok bool) {
	rr, ok := pkt.(*rtcp.ReceiverReport)
	if !ok || len(rr.Reports) == 0 {
		return 0, false
	}
	return rr.Reports[0].FractionLost, true
}

const lossThresholdPercent = 10 // percent; lossFraction is converted from RTCP's 0-255 scale

// SelectSimulcastLayer picks a layer for a subscriber given the most recent
// receiver-report-derived loss fraction, preferring the highest quality
// layer whose bandwidth the report suggests the link can sustain.
func SelectSimulcastLayer(layers []string, lossFraction uint8) string {
	if len(layers) == 0 {
		return ""
	}
	if int(lossFraction)*100/255 >= lossThresholdPercent {
		return layers[0] // lowest-quality layer is conventionally listed first
	}
	return layers[len(layers)-1]
}

// Close tears down the PeerConnection. Idempotent, mirroring
// webrtc.PeerConnection.Close's own idempotence.
func (p *Peer) Close() error {
	return p.pc.Close()
}
