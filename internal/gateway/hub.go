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

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/Wolftown-io/canis/internal/db/models"
	"github.com/Wolftown-io/canis/internal/events"
	"github.com/Wolftown-io/canis/internal/permissions"
	"github.com/Wolftown-io/canis/internal/pubsub"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v4"
	"gorm.io/gorm"
)

// IntentHandler executes the side-effecting intents a session may send.
// Implementations live in internal/messages and internal/voice; the gateway
// itself never touches persistence or SFU state directly.
type IntentHandler interface {
	HandleSendTyping(ctx context.Context, userID, channelID string) error
	HandleSendMessage(ctx context.Context, userID, channelID string, frame ClientFrame) error
	HandleCallSignal(ctx context.Context, userID, channelID string, frame ClientFrame) error
}

// channelFeed is the single shared pubsub subscription backing every local
// session subscribed to a channel, so N sessions cost one remote
// subscription rather than N.
type channelFeed struct {
	sub      pubsub.Subscription
	sessions *xsync.Map[*Session, struct{}]
}

// userFeed is the same sharing trick as channelFeed, keyed by user id
// instead of channel id: it backs events.UserTopic deliveries (presence
// updates, call signaling) that must reach every one of a user's sessions
// without ever being visible to a channel's other subscribers.
type userFeed struct {
	sub      pubsub.Subscription
	sessions *xsync.Map[*Session, struct{}]
}

// Hub is the session registry and event fan-out for the gateway. Sessions
// and feeds live in xsync.Map (read-mostly, lock-free lookups on the hot
// fan-out path); mu only guards the feed-create/feed-teardown compound
// sequence, mirroring the subscriptions-map-plus-companion-mutex shape the
// teacher uses in internal/dmr/hub/subscription_manager.go.
type Hub struct {
	db       *gorm.DB
	resolver *permissions.Resolver
	bus      pubsub.PubSub
	upgrader websocket.Upgrader
	backlog  int

	mu        sync.Mutex
	sessions  *xsync.Map[*Session, struct{}]
	feeds     *xsync.Map[string, *channelFeed]
	userFeeds *xsync.Map[string, *userFeed]
}

func NewHub(db *gorm.DB, resolver *permissions.Resolver, bus pubsub.PubSub, corsHosts []string, backlog int) *Hub {
	return &Hub{
		db:        db,
		resolver:  resolver,
		bus:       bus,
		backlog:   backlog,
		sessions:  xsync.NewMap[*Session, struct{}](),
		feeds:     xsync.NewMap[string, *channelFeed](),
		userFeeds: xsync.NewMap[string, *userFeed](),
		upgrader: websocket.Upgrader{
			CheckOrigin: checkOrigin(corsHosts),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, host := range allowed {
			if host == "*" || host == origin {
				return true
			}
		}
		return false
	}
}

// Accept upgrades an HTTP request to a websocket session and runs its read
// and write pumps until disconnect, blocking the calling goroutine for the
// lifetime of the connection.
func (h *Hub) Accept(w http.ResponseWriter, r *http.Request, userID, deviceID string, handler IntentHandler) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("gateway: upgrade: %w", err)
	}

	session := newSession(h, conn, userID, deviceID, h.backlog)
	h.sessions.Store(session, struct{}{})
	h.joinUserFeed(session)

	go session.writePump()
	session.readPump(func(s *Session, frame ClientFrame) {
		h.dispatch(r.Context(), s, frame, handler)
	})
	return nil
}

func (h *Hub) unregister(s *Session) {
	h.sessions.Delete(s)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, channelID := range s.channelIDs() {
		h.leaveFeedLocked(channelID, s)
	}
	h.leaveUserFeedLocked(s)
}

// joinUserFeed subscribes s to its own events.UserTopic, sharing one
// subscription across every session the user has open, the same way
// Subscribe shares one channelFeed. Unlike a channel feed this needs no
// permission check and no resync tracking: the topic is private to the
// user by construction.
func (h *Hub) joinUserFeed(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	feed, ok := h.userFeeds.Load(s.UserID)
	if !ok {
		sub := h.bus.Subscribe(events.UserTopic(s.UserID))
		feed = &userFeed{sub: sub, sessions: xsync.NewMap[*Session, struct{}]()}
		h.userFeeds.Store(s.UserID, feed)
		go h.pumpUser(s.UserID, feed)
	}
	feed.sessions.Store(s, struct{}{})
}

func (h *Hub) leaveUserFeedLocked(s *Session) {
	feed, ok := h.userFeeds.Load(s.UserID)
	if !ok {
		return
	}
	feed.sessions.Delete(s)
	if feed.sessions.Size() == 0 {
		_ = feed.sub.Close()
		h.userFeeds.Delete(s.UserID)
	}
}

// pumpUser relays every message published to a user's topic to each of
// their local sessions, unmodified and in arrival order per session.
func (h *Hub) pumpUser(userID string, feed *userFeed) {
	for raw := range feed.sub.Channel() {
		env, err := events.Unmarshal(raw)
		if err != nil {
			slog.Warn("gateway discarding malformed user event", "user", userID, "error", err)
			continue
		}
		feed.sessions.Range(func(s *Session, _ struct{}) bool {
			s.enqueue(env.Frame)
			return true
		})
	}
}

func (h *Hub) dispatch(ctx context.Context, s *Session, frame ClientFrame, handler IntentHandler) {
	switch frame.Kind {
	case IntentSubscribe:
		var payload SubscribePayload
		if json.Unmarshal(frame.Payload, &payload) != nil {
			return
		}
		if err := h.Subscribe(ctx, s, payload.ChannelID, payload.LastSeenSeq); err != nil {
			slog.Debug("gateway subscribe denied", "user", s.UserID, "channel", payload.ChannelID, "error", err)
		}
	case IntentUnsubscribe:
		var payload SubscribePayload
		if json.Unmarshal(frame.Payload, &payload) != nil {
			return
		}
		h.Unsubscribe(s, payload.ChannelID)
	case IntentHeartbeat:
		// touch() already happened in readPump; nothing further to do.
	case IntentSendTyping:
		var payload SubscribePayload
		if json.Unmarshal(frame.Payload, &payload) != nil {
			return
		}
		_ = handler.HandleSendTyping(ctx, s.UserID, payload.ChannelID)
	case IntentSendMessage:
		var payload SubscribePayload
		if json.Unmarshal(frame.Payload, &payload) != nil {
			return
		}
		if err := handler.HandleSendMessage(ctx, s.UserID, payload.ChannelID, frame); err != nil {
			slog.Debug("gateway send_message rejected", "user", s.UserID, "error", err)
		}
	case IntentCallSignal:
		var payload SubscribePayload
		if json.Unmarshal(frame.Payload, &payload) != nil {
			return
		}
		if err := handler.HandleCallSignal(ctx, s.UserID, payload.ChannelID, frame); err != nil {
			slog.Debug("gateway call_signal rejected", "user", s.UserID, "error", err)
		}
	default:
		slog.Debug("gateway unknown intent", "kind", frame.Kind)
	}
}

// Subscribe gates on view permission for the channel, replays anything the
// session missed since lastSeenSeq (bounded by h.backlog), then joins the
// session to the channel's shared feed, lazily creating it. lastSeenSeq of
// zero means a fresh subscribe rather than a reconnect, so no replay runs.
func (h *Hub) Subscribe(ctx context.Context, s *Session, channelID string, lastSeenSeq int64) error {
	allowed, err := h.resolver.Check(ctx, s.UserID, channelID, models.PermissionViewChannel)
	if err != nil {
		return fmt.Errorf("gateway: check permission: %w", err)
	}
	if !allowed {
		return fmt.Errorf("gateway: %s may not view channel %s", s.UserID, channelID)
	}

	seq, err := models.CurrentChannelSeq(h.db, channelID)
	if err != nil {
		return fmt.Errorf("gateway: read channel sequence: %w", err)
	}

	if lastSeenSeq > 0 && lastSeenSeq < seq {
		if err := h.replay(channelID, lastSeenSeq, s); err != nil {
			return fmt.Errorf("gateway: replay missed events: %w", err)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	s.addChannel(channelID, seq)

	feed, ok := h.feeds.Load(channelID)
	if !ok {
		sub := h.bus.Subscribe(events.ChannelTopic(channelID))
		feed = &channelFeed{sub: sub, sessions: xsync.NewMap[*Session, struct{}]()}
		h.feeds.Store(channelID, feed)
		go h.pump(channelID, feed)
	}
	feed.sessions.Store(s, struct{}{})
	return nil
}

// replayCreatedPayload mirrors internal/messages.CreatedPayload's wire shape
// so a replayed message.created frame is indistinguishable from a live one.
type replayCreatedPayload struct {
	ID             string           `json:"id"`
	ChannelID      string           `json:"channel_id"`
	AuthorID       string           `json:"author_id"`
	ReplyToID      string           `json:"reply_to_id,omitempty"`
	Content        string           `json:"content"`
	Envelope       []byte           `json:"envelope,omitempty"`
	Attachments    []string         `json:"attachments,omitempty"`
	Mentions       []models.Mention `json:"mentions,omitempty"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
}

// replay fetches up to h.backlog messages since afterSeq and enqueues each
// directly to s, ahead of any live traffic the subsequent feed join delivers.
func (h *Hub) replay(channelID string, afterSeq int64, s *Session) error {
	missed, err := models.ListMessagesSince(h.db, channelID, afterSeq, h.backlog)
	if err != nil {
		return err
	}
	for _, m := range missed {
		wire, err := events.Marshal(events.KindMessageCreated, m.ChannelSeq, replayCreatedPayload{
			ID:             m.ID,
			ChannelID:      m.ChannelID,
			AuthorID:       m.AuthorID,
			ReplyToID:      m.ReplyToID,
			Content:        m.Content,
			Envelope:       m.Envelope,
			Attachments:    m.Attachments,
			Mentions:       m.Mentions,
			IdempotencyKey: m.IdempotencyKey,
		})
		if err != nil {
			return fmt.Errorf("marshal replay frame: %w", err)
		}
		s.enqueue(wire)
	}
	return nil
}

// Unsubscribe removes the session from the channel's feed, tearing the feed
// down once no local session remains on it.
func (h *Hub) Unsubscribe(s *Session, channelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s.removeChannel(channelID)
	h.leaveFeedLocked(channelID, s)
}

// leaveFeedLocked requires the caller hold h.mu, since it performs a
// check-then-delete compound sequence against h.feeds.
func (h *Hub) leaveFeedLocked(channelID string, s *Session) {
	feed, ok := h.feeds.Load(channelID)
	if !ok {
		return
	}
	feed.sessions.Delete(s)
	if feed.sessions.Size() == 0 {
		_ = feed.sub.Close()
		h.feeds.Delete(channelID)
	}
}

// pump relays every message published to a channel's topic to the local
// sessions currently subscribed to it. One goroutine per channel with at
// least one local subscriber, torn down by leaveFeedLocked.
func (h *Hub) pump(channelID string, feed *channelFeed) {
	for raw := range feed.sub.Channel() {
		env, err := events.Unmarshal(raw)
		if err != nil {
			slog.Warn("gateway discarding malformed channel event", "channel", channelID, "error", err)
			continue
		}

		feed.sessions.Range(func(s *Session, _ struct{}) bool {
			if s.bumpSeen(channelID, env.Seq) {
				h.sendResync(s, channelID)
			}
			s.enqueue(env.Frame)
			return true
		})
	}
}

func (h *Hub) sendResync(s *Session, channelID string) {
	frame, err := events.Marshal(events.KindResync, 0, SubscribePayload{ChannelID: channelID})
	if err != nil {
		return
	}
	s.enqueue(frame)
}

// Publish emits an event onto a channel's topic. internal/messages and
// internal/voice call this directly only for the
// immediate (non-durable) fan-out path; the durable path writes an
// events.Marshal-shaped OutboxRow instead and lets internal/outbox publish
// it. Either way the wire shape and topic convention come from
// internal/events, so this method is a thin, reusable convenience.
func (h *Hub) Publish(channelID string, kind string, channelSeq int64, payload any) error {
	wrapped, err := events.Marshal(kind, channelSeq, payload)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	return h.bus.Publish(events.ChannelTopic(channelID), wrapped)
}
