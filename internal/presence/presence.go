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

// Package presence implements a short-TTL status cache: a user's
// status lives in internal/kv with a 90s TTL refreshed by Heartbeat, and
// transitions to offline 30s after the last session disconnects (unless
// another reconnects first). Connect, Disconnect and Heartbeat run only
// when a caller invokes them; the gateway's sessions do not call them.
package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Wolftown-io/canis/internal/db/models"
	"github.com/Wolftown-io/canis/internal/events"
	"github.com/Wolftown-io/canis/internal/kv"
	"github.com/Wolftown-io/canis/internal/pubsub"
	"gorm.io/gorm"
)

// Status is a user's presence state.
type Status string

const (
	StatusOnline    Status = "online"
	StatusAway      Status = "away"
	StatusDND       Status = "dnd"
	StatusInvisible Status = "invisible"
	StatusOffline   Status = "offline"
)

const (
	ttl   = 90 * time.Second
	grace = 30 * time.Second
)

// Update is broadcast on presence.update.
type Update struct {
	UserID       string `json:"user_id"`
	Status       Status `json:"status"`
	CustomStatus string `json:"custom_status,omitempty"`
}

// Service tracks active session counts per user in-process and mirrors
// status into internal/kv so a presence read doesn't need to ask the hub
// which sessions are live.
type Service struct {
	db  *gorm.DB
	kv  kv.KV
	bus pubsub.PubSub

	mu       sync.Mutex
	sessions map[string]int
	timers   map[string]*time.Timer
}

func New(db *gorm.DB, store kv.KV, bus pubsub.PubSub) *Service {
	return &Service{
		db:       db,
		kv:       store,
		bus:      bus,
		sessions: make(map[string]int),
		timers:   make(map[string]*time.Timer),
	}
}

// Connect records a new active session for userID. If an offline grace
// timer was pending, it's cancelled: the user never left.
func (s *Service) Connect(ctx context.Context, userID string) error {
	s.mu.Lock()
	if timer, ok := s.timers[userID]; ok {
		timer.Stop()
		delete(s.timers, userID)
	}
	s.sessions[userID]++
	s.mu.Unlock()

	return s.setStatus(ctx, userID, StatusOnline)
}

// Disconnect drops one of userID's active sessions. Once the count reaches
// zero, a grace timer fires the offline transition unless a reconnect
// cancels it first.
func (s *Service) Disconnect(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[userID]--
	if s.sessions[userID] > 0 {
		return
	}
	delete(s.sessions, userID)

	timer := time.AfterFunc(grace, func() {
		s.mu.Lock()
		_, reconnected := s.sessions[userID]
		delete(s.timers, userID)
		s.mu.Unlock()
		if reconnected {
			return
		}
		_ = s.setStatus(context.Background(), userID, StatusOffline)
	})
	s.timers[userID] = timer
}

// Heartbeat refreshes userID's TTL without changing status. No gateway
// session calls it.
func (s *Service) Heartbeat(ctx context.Context, userID string) error {
	return s.kv.Expire(ctx, statusKey(userID), ttl)
}

// SetStatus is the client-initiated status change path (away/dnd/
// invisible), distinct from the connect/disconnect-driven online/offline
// transitions.
func (s *Service) SetStatus(ctx context.Context, userID string, status Status) error {
	return s.setStatus(ctx, userID, status)
}

// SetCustomStatus updates the slow-changing custom status text without
// touching the TTL-bound status.
func (s *Service) SetCustomStatus(ctx context.Context, userID, text string) error {
	if err := s.kv.Set(ctx, customStatusKey(userID), []byte(text)); err != nil {
		return fmt.Errorf("presence: set custom status: %w", err)
	}
	status, err := s.currentStatus(ctx, userID)
	if err != nil {
		return err
	}
	return s.broadcast(ctx, userID, status, text)
}

func (s *Service) currentStatus(ctx context.Context, userID string) (Status, error) {
	raw, err := s.kv.Get(ctx, statusKey(userID))
	if err != nil {
		return StatusOffline, nil
	}
	return Status(raw), nil
}

func (s *Service) setStatus(ctx context.Context, userID string, status Status) error {
	if err := s.kv.Set(ctx, statusKey(userID), []byte(status)); err != nil {
		return fmt.Errorf("presence: set status: %w", err)
	}
	if err := s.kv.Expire(ctx, statusKey(userID), ttl); err != nil {
		return fmt.Errorf("presence: set ttl: %w", err)
	}
	custom, _ := s.kv.Get(ctx, customStatusKey(userID))
	return s.broadcast(ctx, userID, status, string(custom))
}

// broadcast fans the update out to every guild userID belongs to and to
// their friends. Presence is best-effort and unordered, so this
// publishes directly rather than through the sequenced channel bus.
func (s *Service) broadcast(ctx context.Context, userID string, status Status, custom string) error {
	update := Update{UserID: userID, Status: status, CustomStatus: custom}
	wire, err := events.Marshal(events.KindPresenceUpdate, 0, update)
	if err != nil {
		return fmt.Errorf("presence: marshal update: %w", err)
	}

	guilds, err := models.ListGuildsForUser(s.db, userID)
	if err != nil {
		return fmt.Errorf("presence: list guilds: %w", err)
	}
	for _, guild := range guilds {
		_ = s.bus.Publish(events.GuildTopic(guild.ID), wire)
	}

	friends, err := models.ListFriends(s.db, userID)
	if err != nil {
		return fmt.Errorf("presence: list friends: %w", err)
	}
	for _, friendID := range friends {
		_ = s.bus.Publish(events.UserTopic(friendID), wire)
	}
	return nil
}

func statusKey(userID string) string       { return "presence:status:" + userID }
func customStatusKey(userID string) string { return "presence:custom:" + userID }
