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

// Package voice is the call state machine, signaling relay and SFU router
// backing voice channels and DM calls. internal/gateway owns the
// session transport; this package owns call lifecycle and media routing,
// and implements gateway.IntentHandler's HandleCallSignal.
package voice

import (
	"time"

	"github.com/Wolftown-io/canis/internal/voice/sfu"
)

// State is a call's position in the state machine.
type State string

const (
	StateRinging State = "ringing"
	StateActive  State = "active"
	StateEnded   State = "ended"
)

// EndReason explains why an ended call stopped.
type EndReason string

const (
	ReasonAllDeclined EndReason = "all_declined"
	ReasonCancelled   EndReason = "cancelled"
	ReasonNoAnswer    EndReason = "no_answer"
	ReasonLastLeft    EndReason = "last_left"
	ReasonICEFailed   EndReason = "ice_failed"
)

// Participant is one user's presence in a call. A user may hold at most one
// Participant per call; joining again from a different device replaces it
// (displacement). The replaced Participant is marked Subscriber and returned
// to the caller, but it leaves the roster: the router and peers are keyed by
// user, so the prior device keeps no separate subscriber-only session.
type Participant struct {
	UserID      string
	DeviceID    string
	Muted       bool
	ScreenShare bool
	Subscriber  bool // true once displaced: no publish rights, still receives media
	JoinedAt    time.Time
}

// Call is one active or historical call scoped to a channel. DM channels
// pass through ringing; guild voice channels skip straight to active.
type Call struct {
	ID        string
	ChannelID string
	GuildID   string // empty for a DM call
	Initiator string

	State  State
	Reason EndReason

	participants map[string]*Participant
	router       *sfu.Router

	ringingTimer *time.Timer
}

func newCall(id, channelID, guildID, initiator string) *Call {
	c := &Call{
		ID:           id,
		ChannelID:    channelID,
		GuildID:      guildID,
		Initiator:    initiator,
		participants: make(map[string]*Participant),
		router:       sfu.NewRouter(),
	}
	if guildID != "" {
		c.State = StateActive
	} else {
		c.State = StateRinging
	}
	return c
}

// isDM reports whether this call belongs to a DM channel rather than a
// guild voice channel.
func (c *Call) isDM() bool { return c.GuildID == "" }

// Participants returns a snapshot of the current roster.
func (c *Call) Participants() []*Participant {
	out := make([]*Participant, 0, len(c.participants))
	for _, p := range c.participants {
		out = append(out, p)
	}
	return out
}

// join adds or displaces a participant, returning the prior session's
// Participant if this join displaced one on another device.
func (c *Call) join(userID, deviceID string) (joined *Participant, displaced *Participant) {
	if existing, ok := c.participants[userID]; ok && existing.DeviceID != deviceID {
		displaced = existing
		existing.Subscriber = true
	}
	p := &Participant{UserID: userID, DeviceID: deviceID, JoinedAt: time.Now().UTC()}
	c.participants[userID] = p
	c.router.AddParticipant(userID)
	return p, displaced
}

func (c *Call) leave(userID string) {
	delete(c.participants, userID)
	c.router.RemoveParticipant(userID)
}

func (c *Call) setMuted(userID string, muted bool) {
	if p, ok := c.participants[userID]; ok {
		p.Muted = muted
	}
	c.router.SetMuted(userID, muted)
}

func (c *Call) count() int { return len(c.participants) }
