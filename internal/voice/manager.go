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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wolftown-io/canis/internal/config"
	"github.com/Wolftown-io/canis/internal/db/models"
	"github.com/Wolftown-io/canis/internal/events"
	"github.com/Wolftown-io/canis/internal/gateway"
	"github.com/Wolftown-io/canis/internal/ids"
	"github.com/Wolftown-io/canis/internal/permissions"
	"gorm.io/gorm"
)

var (
	ErrCallEnded    = errors.New("voice: call has already ended")
	ErrNotInCall    = errors.New("voice: user is not in this call")
	ErrScreenShared = errors.New("voice: user is already screen-sharing")
)

// StatePayload is the call.state broadcast emitted on every transition.
type StatePayload struct {
	CallID       string   `json:"call_id"`
	State        State    `json:"state"`
	Reason       string   `json:"reason,omitempty"`
	Participants []string `json:"participants"`
}

// Manager owns every call's lifecycle and broadcasts call.state transitions
// through the gateway hub. One Manager serves every channel; calls are
// keyed by channel since at most one call exists per channel at a time.
type Manager struct {
	db       *gorm.DB
	resolver *permissions.Resolver
	hub      *gateway.Hub

	ringTimeout time.Duration

	mu    sync.Mutex
	calls map[string]*Call
}

func NewManager(db *gorm.DB, resolver *permissions.Resolver, hub *gateway.Hub, cfg config.Voice) *Manager {
	ringTimeout := cfg.RingTimeout
	if ringTimeout <= 0 {
		ringTimeout = 45 * time.Second
	}
	return &Manager{db: db, resolver: resolver, hub: hub, ringTimeout: ringTimeout, calls: make(map[string]*Call)}
}

// Join places userID/deviceID into channelID's call, starting one if none
// exists. Guild voice channels enter active immediately; DM channels ring
// until a second participant joins or the call is accepted.
func (m *Manager) Join(ctx context.Context, userID, deviceID, channelID string) (State, error) {
	allowed, err := m.resolver.Check(ctx, userID, channelID, models.PermissionConnect)
	if err != nil {
		return "", fmt.Errorf("voice: check connect permission: %w", err)
	}
	if !allowed {
		return "", fmt.Errorf("voice: %s may not connect to channel %s", userID, channelID)
	}

	channel, err := models.FindChannelByID(m.db.WithContext(ctx), channelID)
	if err != nil {
		return "", fmt.Errorf("voice: find channel: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	call, ok := m.calls[channelID]
	if !ok || call.State == StateEnded {
		call = newCall(ids.New().String(), channelID, channel.GuildID, userID)
		m.calls[channelID] = call
		if call.isDM() {
			call.ringingTimer = time.AfterFunc(m.ringTimeout, func() { m.timeoutRinging(channelID, call.ID) })
		}
	}

	_, displaced := call.join(userID, deviceID)
	if displaced != nil {
		// second join from a different device: Call.join has replaced the
		// prior Participant, and nothing further is done for the old device.
	}

	if call.isDM() && call.State == StateRinging && call.count() >= 2 {
		m.transitionLocked(call, StateActive, "")
	} else {
		m.broadcastLocked(call)
	}

	return call.State, nil
}

// Accept moves a ringing DM call straight to active, e.g. when the callee
// answers before a second device join would have done it anyway.
func (m *Manager) Accept(ctx context.Context, userID, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	call, ok := m.calls[channelID]
	if !ok || call.State != StateRinging {
		return ErrCallEnded
	}
	if _, ok := call.participants[userID]; !ok {
		call.join(userID, "")
	}
	m.transitionLocked(call, StateActive, "")
	return nil
}

// Decline removes userID from a ringing call. If every invited participant
// has now declined, the call ends with all_declined.
func (m *Manager) Decline(ctx context.Context, userID, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	call, ok := m.calls[channelID]
	if !ok || call.State != StateRinging {
		return ErrCallEnded
	}
	call.leave(userID)
	if call.count() == 0 {
		m.transitionLocked(call, StateEnded, string(ReasonAllDeclined))
		delete(m.calls, channelID)
	} else {
		m.broadcastLocked(call)
	}
	return nil
}

// Cancel is the initiator ending a call nobody has answered yet.
func (m *Manager) Cancel(ctx context.Context, userID, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	call, ok := m.calls[channelID]
	if !ok || call.State != StateRinging {
		return ErrCallEnded
	}
	if call.Initiator != userID {
		return fmt.Errorf("voice: only the initiator may cancel a ringing call")
	}
	m.transitionLocked(call, StateEnded, string(ReasonCancelled))
	delete(m.calls, channelID)
	return nil
}

// Leave removes userID from channelID's call. The last participant leaving
// an active call ends it with last_left.
func (m *Manager) Leave(ctx context.Context, userID, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	call, ok := m.calls[channelID]
	if !ok {
		return ErrCallEnded
	}
	if _, in := call.participants[userID]; !in {
		return ErrNotInCall
	}
	call.leave(userID)
	if call.count() == 0 {
		reason := ReasonLastLeft
		if call.State == StateRinging {
			reason = ReasonNoAnswer
		}
		m.transitionLocked(call, StateEnded, string(reason))
		delete(m.calls, channelID)
	} else {
		m.broadcastLocked(call)
	}
	return nil
}

// SetMuted toggles userID's upstream mute at the SFU, not just client-side.
func (m *Manager) SetMuted(ctx context.Context, userID, channelID string, muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, ok := m.calls[channelID]
	if !ok {
		return ErrCallEnded
	}
	call.setMuted(userID, muted)
	return nil
}

// EvictForICEFailure removes a participant whose renegotiation attempt
// timed out, ending the call if they were last.
func (m *Manager) EvictForICEFailure(channelID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, ok := m.calls[channelID]
	if !ok {
		return
	}
	call.leave(userID)
	if call.count() == 0 {
		m.transitionLocked(call, StateEnded, string(ReasonICEFailed))
		delete(m.calls, channelID)
	} else {
		m.broadcastLocked(call)
	}
}

func (m *Manager) timeoutRinging(channelID, callID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, ok := m.calls[channelID]
	if !ok || call.ID != callID || call.State != StateRinging {
		return
	}
	m.transitionLocked(call, StateEnded, string(ReasonNoAnswer))
	delete(m.calls, channelID)
}

func (m *Manager) transitionLocked(call *Call, state State, reason string) {
	if call.ringingTimer != nil && state != StateRinging {
		call.ringingTimer.Stop()
	}
	call.State = state
	if reason != "" {
		call.Reason = EndReason(reason)
	}
	m.broadcastLocked(call)
}

func (m *Manager) broadcastLocked(call *Call) {
	participants := make([]string, 0, len(call.participants))
	for id := range call.participants {
		participants = append(participants, id)
	}
	payload := StatePayload{CallID: call.ID, State: call.State, Reason: string(call.Reason), Participants: participants}
	if err := m.hub.Publish(call.ChannelID, events.KindCallState, 0, payload); err != nil {
		return
	}
}

// router returns channelID's call for signal relaying, if one exists there
// in any state.
func (m *Manager) router(channelID string) (*Call, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, ok := m.calls[channelID]
	return call, ok
}
