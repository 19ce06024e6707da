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

// Package sfu is the selective-forwarding router for one call: it
// decides, per inbound packet, which subscribers receive it, without ever
// touching the payload. The routing decisions (mute gating, admission
// control, simulcast layer choice, speaking debounce) are plain Go logic in
// this file so they can be unit tested without a live ICE/DTLS session; the
// pion/webrtc plumbing that feeds packets into Route lives in bridge.go.
package sfu

import (
	"sync"
	"time"
)

// TrackKind identifies what a published track carries. Track identity is
// (publisher, kind) per the router contract.
type TrackKind string

const (
	TrackAudio  TrackKind = "audio"
	TrackVideo  TrackKind = "video"
	TrackScreen TrackKind = "screen"
)

// slowStartInitialBudget and slowStartGrowthInterval implement the
// admission-control budget: a newly subscribed track starts allowed only a
// trickle of packets and ramps up, so a burst of simultaneous subscribers
// joining a busy call doesn't saturate the forwarder in one instant.
const (
	slowStartInitialBudget = 50
	slowStartGrowthPerTick = 50
	slowStartGrowthTick    = time.Second
	slowStartMaxBudget     = 1 << 30 // effectively unbounded once ramped
)

type publisher struct {
	kind   TrackKind
	muted  bool
	screen bool
}

type subscription struct {
	budget     int
	lastGrowth time.Time
}

type participant struct {
	userID      string
	publishers  map[TrackKind]*publisher
	// subscriptions[publisherID][kind] is this participant's admission
	// budget for that remote track.
	subscriptions map[string]map[TrackKind]*subscription
}

// Router forwards RTP for one call. It holds no network state itself; a
// Peer (bridge.go) owns the actual PeerConnections and calls Route for
// every packet it reads off an upstream track.
type Router struct {
	mu           sync.Mutex
	participants map[string]*participant
	speaking     *speakingDetector
}

func NewRouter() *Router {
	return &Router{
		participants: make(map[string]*participant),
		speaking:     newSpeakingDetector(),
	}
}

func (r *Router) AddParticipant(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[userID]; ok {
		return
	}
	r.participants[userID] = &participant{
		userID:        userID,
		publishers:    make(map[TrackKind]*publisher),
		subscriptions: make(map[string]map[TrackKind]*subscription),
	}
}

func (r *Router) RemoveParticipant(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants, userID)
	for _, p := range r.participants {
		delete(p.subscriptions, userID)
	}
}

// SetMuted gates upstream forwarding for userID's audio track at the
// router, not just the client UI, so a muted participant's audio never
// reaches subscribers regardless of what the client reports.
func (r *Router) SetMuted(userID string, muted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[userID]
	if !ok {
		return
	}
	pub, ok := p.publishers[TrackAudio]
	if !ok {
		return
	}
	pub.muted = muted
}

// StartPublishing records that userID has begun publishing kind. Screen
// share is a second slot distinct from the camera/mic publish; at most one
// screen-share publisher exists per user, since publishers are keyed by kind
// and a repeated call for the same kind replaces the earlier publisher.
func (r *Router) StartPublishing(userID string, kind TrackKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[userID]
	if !ok {
		return
	}
	p.publishers[kind] = &publisher{kind: kind, screen: kind == TrackScreen}
}

func (r *Router) StopPublishing(userID string, kind TrackKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.participants[userID]; ok {
		delete(p.publishers, kind)
	}
}

// subscribe lazily creates a subscriber's admission-control slot for a
// remote track the first time a packet from it needs forwarding.
func (r *Router) subscribe(subscriber *participant, publisherID string, kind TrackKind) *subscription {
	slots, ok := subscriber.subscriptions[publisherID]
	if !ok {
		slots = make(map[TrackKind]*subscription)
		subscriber.subscriptions[publisherID] = slots
	}
	sub, ok := slots[kind]
	if !ok {
		sub = &subscription{budget: slowStartInitialBudget, lastGrowth: time.Now().UTC()}
		slots[kind] = sub
	}
	return sub
}

// growBudget ramps a subscriber's admission budget forward in
// slowStartGrowthTick increments since it was last spent against.
func (s *subscription) growBudget(now time.Time) {
	elapsed := now.Sub(s.lastGrowth)
	if elapsed < slowStartGrowthTick {
		return
	}
	ticks := int(elapsed / slowStartGrowthTick)
	s.budget += ticks * slowStartGrowthPerTick
	if s.budget > slowStartMaxBudget {
		s.budget = slowStartMaxBudget
	}
	s.lastGrowth = now
}

// Destination is one subscriber that should receive a forwarded packet.
type Destination struct {
	SubscriberID string
}

// Route decides which of the call's other participants should receive one
// packet published by (publisherID, kind), applying the mute gate and each
// subscriber's admission-control budget. It never rewrites the payload;
// callers are responsible for the actual RTP write.
func (r *Router) Route(publisherID string, kind TrackKind, packetSize int, now time.Time) []Destination {
	r.mu.Lock()
	defer r.mu.Unlock()

	pub, ok := r.participants[publisherID]
	if !ok {
		return nil
	}
	if track, ok := pub.publishers[kind]; ok && track.muted {
		return nil
	}

	var out []Destination
	for userID, subscriber := range r.participants {
		if userID == publisherID {
			continue
		}
		sub := r.subscribe(subscriber, publisherID, kind)
		sub.growBudget(now)
		if sub.budget < packetSize {
			continue // admission control: not yet ramped for this track
		}
		sub.budget -= packetSize
		out = append(out, Destination{SubscriberID: userID})
	}
	return out
}

// ObserveAudioLevel feeds one audio-level-extension reading into the
// speaking detector and returns any debounced transitions it produced.
func (r *Router) ObserveAudioLevel(userID string, voice bool, at time.Time) []SpeakingEvent {
	return r.speaking.observe(userID, voice, at)
}
