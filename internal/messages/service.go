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

package messages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Wolftown-io/canis/internal/config"
	"github.com/Wolftown-io/canis/internal/db/models"
	"github.com/Wolftown-io/canis/internal/events"
	"github.com/Wolftown-io/canis/internal/gateway"
	"github.com/Wolftown-io/canis/internal/ids"
	"github.com/Wolftown-io/canis/internal/permissions"
	"github.com/Wolftown-io/canis/internal/ratelimit"
	"gorm.io/gorm"
)

// maxContentLength bounds a single message body; attachments carry the
// remainder of a large payload as external URIs instead.
const maxContentLength = 4000

// idempotencyWindow is the replay window: a repeated key inside it
// returns the original message id instead of creating a duplicate.
const idempotencyWindow = 60 * time.Second

var (
	// ErrNotAuthor is returned by Edit/Delete when the caller neither owns
	// the message nor holds ManageMessages.
	ErrNotAuthor = errors.New("messages: caller is not the author")
	// ErrTooLong is returned when content exceeds maxContentLength.
	ErrTooLong = errors.New("messages: content exceeds maximum length")
	// ErrCiphertextImmutable is returned on an edit attempt against an E2EE
	// message: ciphertext messages follow a replace-by-new-message policy.
	ErrCiphertextImmutable = errors.New("messages: ciphertext messages cannot be edited")
)

// Service implements the send/edit/delete/read-marker pipeline. It also
// implements the typing and send_message legs of gateway.IntentHandler;
// internal/http's intentHandler composes it alongside internal/voice into
// the full handler.
type Service struct {
	db       *gorm.DB
	resolver *permissions.Resolver
	limiter  *ratelimit.Limiter
	hub      *gateway.Hub
}

func New(db *gorm.DB, resolver *permissions.Resolver, limiter *ratelimit.Limiter, hub *gateway.Hub) *Service {
	return &Service{db: db, resolver: resolver, limiter: limiter, hub: hub}
}

// HandleSendTyping implements gateway.IntentHandler. Typing indicators are
// ephemeral: published directly rather than through the outbox.
func (s *Service) HandleSendTyping(ctx context.Context, userID, channelID string) error {
	allowed, err := s.resolver.Check(ctx, userID, channelID, models.PermissionSendMessages)
	if err != nil {
		return fmt.Errorf("messages: check typing permission: %w", err)
	}
	if !allowed {
		return fmt.Errorf("messages: %s may not type in %s", userID, channelID)
	}
	result, err := s.limiter.Allow(ctx, config.RateLimitCategoryPresence, userID)
	if err != nil {
		return fmt.Errorf("messages: rate check: %w", err)
	}
	if !result.Allowed {
		return fmt.Errorf("messages: %w", ratelimit.ErrRateLimited)
	}
	return s.hub.Publish(channelID, events.KindTypingStart, 0, TypingPayload{UserID: userID})
}

// HandleSendMessage implements gateway.IntentHandler, decoding frame's
// payload and delegating to Send. The assigned/replayed message id is not
// surfaced here; a WS client learns it from the message.created broadcast
// it receives back on its own subscription. Direct (non-WS) callers should
// use Send instead, which returns the message.
func (s *Service) HandleSendMessage(ctx context.Context, userID, channelID string, frame gateway.ClientFrame) error {
	var payload SendPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return fmt.Errorf("messages: decode send payload: %w", err)
	}
	_, err := s.Send(ctx, userID, channelID, payload, frame.IdempotencyKey)
	return err
}

// Send runs the full send pipeline: authorization, rate limit, mention
// parsing, persistence, then outbox emission in the same transaction as
// the write.
func (s *Service) Send(ctx context.Context, userID, channelID string, payload SendPayload, idempotencyKey string) (*models.Message, error) {
	channel, err := models.FindChannelByID(s.db, channelID)
	if err != nil {
		return nil, fmt.Errorf("messages: find channel: %w", err)
	}

	allowed, err := s.resolver.Check(ctx, userID, channelID, models.PermissionSendMessages)
	if err != nil {
		return nil, fmt.Errorf("messages: check send permission: %w", err)
	}
	if !allowed {
		return nil, fmt.Errorf("messages: %s may not send in %s", userID, channelID)
	}

	if len(payload.Content) > maxContentLength {
		return nil, ErrTooLong
	}

	result, err := s.limiter.Allow(ctx, config.RateLimitCategoryMessage, userID)
	if err != nil {
		return nil, fmt.Errorf("messages: rate check: %w", err)
	}
	if !result.Allowed {
		return nil, fmt.Errorf("messages: %w", ratelimit.ErrRateLimited)
	}

	if idempotencyKey != "" {
		since := time.Now().UTC().Add(-idempotencyWindow)
		if existing, err := models.FindMessageByIdempotencyKey(s.db, channelID, idempotencyKey, since); err == nil {
			return existing, nil
		}
	}

	var mentions []models.Mention
	if !channel.Encrypted {
		everyoneAllowed, err := s.resolver.Check(ctx, userID, channelID, models.PermissionMentionEveryone)
		if err != nil {
			return nil, fmt.Errorf("messages: check mention-everyone permission: %w", err)
		}
		mentions = resolveMentions(s.db, channel, payload.Content, everyoneAllowed)
	}

	message := &models.Message{
		ID:             ids.New().String(),
		ChannelID:      channelID,
		AuthorID:       userID,
		ReplyToID:      payload.ReplyToID,
		Content:        payload.Content,
		Envelope:       payload.Envelope,
		Attachments:    payload.Attachments,
		Mentions:       mentions,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		seq, err := models.NextChannelSeq(tx, channelID)
		if err != nil {
			return fmt.Errorf("assign channel sequence: %w", err)
		}
		message.ChannelSeq = seq

		if err := tx.Create(message).Error; err != nil {
			return fmt.Errorf("persist message: %w", err)
		}

		wire, err := events.Marshal(events.KindMessageCreated, seq, CreatedPayload{
			ID:             message.ID,
			ChannelID:      channelID,
			AuthorID:       userID,
			ReplyToID:      message.ReplyToID,
			Content:        message.Content,
			Envelope:       message.Envelope,
			Attachments:    message.Attachments,
			Mentions:       message.Mentions,
			IdempotencyKey: idempotencyKey,
		})
		if err != nil {
			return fmt.Errorf("marshal outbox event: %w", err)
		}

		row := &models.OutboxRow{
			ID:        ids.New().String(),
			Topic:     events.ChannelTopic(channelID),
			Payload:   wire,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("persist outbox row: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("messages: %w", err)
	}
	return message, nil
}

// Edit replaces a message's content. Ciphertext messages are immutable
// under the replace-by-new-message policy.
func (s *Service) Edit(ctx context.Context, userID, messageID, content string) error {
	message, err := models.FindMessageByID(s.db, messageID)
	if err != nil {
		return fmt.Errorf("messages: find message: %w", err)
	}
	if len(message.Envelope) > 0 {
		return ErrCiphertextImmutable
	}
	if message.Deleted {
		return fmt.Errorf("messages: message %s is deleted", messageID)
	}
	if err := s.authorOrManage(ctx, userID, message); err != nil {
		return err
	}
	if len(content) > maxContentLength {
		return ErrTooLong
	}
	if err := models.EditMessage(s.db, messageID, content); err != nil {
		return fmt.Errorf("messages: edit: %w", err)
	}
	return s.hub.Publish(message.ChannelID, events.KindMessageEdited, 0, EditedPayload{ID: messageID, Content: content})
}

// Delete clears a message's content and marks it deleted, a monotonic
// transition.
func (s *Service) Delete(ctx context.Context, userID, messageID string) error {
	message, err := models.FindMessageByID(s.db, messageID)
	if err != nil {
		return fmt.Errorf("messages: find message: %w", err)
	}
	if err := s.authorOrManage(ctx, userID, message); err != nil {
		return err
	}
	if err := models.DeleteMessage(s.db, messageID); err != nil {
		return fmt.Errorf("messages: delete: %w", err)
	}
	return s.hub.Publish(message.ChannelID, events.KindMessageDeleted, 0, DeletedPayload{ID: messageID})
}

func (s *Service) authorOrManage(ctx context.Context, userID string, message *models.Message) error {
	if message.AuthorID == userID {
		return nil
	}
	allowed, err := s.resolver.Check(ctx, userID, message.ChannelID, models.PermissionManageMessages)
	if err != nil {
		return fmt.Errorf("messages: check manage permission: %w", err)
	}
	if !allowed {
		return ErrNotAuthor
	}
	return nil
}

// MarkAsRead advances userID's read marker for channelID if messageSeq is
// at least the stored value, then broadcasts the update.
func (s *Service) MarkAsRead(ctx context.Context, userID, channelID string, messageSeq int64) error {
	if err := models.MarkAsRead(s.db, userID, channelID, messageSeq); err != nil {
		return fmt.Errorf("messages: mark as read: %w", err)
	}
	return s.hub.Publish(channelID, events.KindReadUpdate, 0, ReadUpdatePayload{UserID: userID, LastSeenSeq: messageSeq})
}

// UnreadCount derives the unread count for (channelID, viewerID) excluding
// the viewer's own messages and any blocked author's messages.
func (s *Service) UnreadCount(ctx context.Context, channelID, viewerID string) (int64, error) {
	marker, err := models.FindReadMarker(s.db, viewerID, channelID)
	var lastSeen int64
	if err == nil {
		lastSeen = marker.LastSeenSeq
	}
	blocked, err := models.ListBlockedBy(s.db, viewerID)
	if err != nil {
		return 0, fmt.Errorf("messages: list blocked: %w", err)
	}
	count, err := models.CountUnread(s.db, channelID, viewerID, lastSeen, blocked)
	if err != nil {
		return 0, fmt.Errorf("messages: count unread: %w", err)
	}
	return count, nil
}
