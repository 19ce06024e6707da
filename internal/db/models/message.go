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

package models

import (
	"time"

	"gorm.io/gorm"
)

// MentionKind distinguishes the three things a mention can resolve to.
type MentionKind string

const (
	MentionKindUser      MentionKind = "user"
	MentionKindRole      MentionKind = "role"
	MentionKindEveryone  MentionKind = "everyone"
)

// Mention is one resolved mention on a Message.
type Mention struct {
	Kind MentionKind `json:"kind"`
	ID   string      `json:"id,omitempty"`
}

// Message is immutable except for the edited_at/deleted transitions. For
// E2EE channels, Content holds the opaque ciphertext blob and Envelope holds
// the per-recipient header; the server never inspects either.
type Message struct {
	ID             string `gorm:"primaryKey"`
	ChannelID      string `gorm:"index"`
	AuthorID       string `gorm:"index"`
	ReplyToID      string
	Content        string
	Envelope       []byte `gorm:"type:bytes"`
	Attachments    []string `gorm:"serializer:json"`
	Mentions       []Mention `gorm:"serializer:json"`
	ChannelSeq     int64  `gorm:"index"`
	IdempotencyKey string `gorm:"index"`
	EditedAt       *time.Time
	Deleted        bool `gorm:"index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

func (Message) TableName() string {
	return "messages"
}

func FindMessageByID(db *gorm.DB, id string) (*Message, error) {
	var m Message
	if err := db.First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// FindMessageByIdempotencyKey supports the send-pipeline replay window: a
// duplicate key within the window returns the previously assigned id
// without re-emission.
func FindMessageByIdempotencyKey(db *gorm.DB, channelID, key string, since time.Time) (*Message, error) {
	var m Message
	err := db.Where("channel_id = ? AND idempotency_key = ? AND created_at >= ?", channelID, key, since).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func NextChannelSeq(db *gorm.DB, channelID string) (int64, error) {
	maxSeq, err := CurrentChannelSeq(db, channelID)
	if err != nil {
		return 0, err
	}
	return maxSeq + 1, nil
}

// CurrentChannelSeq returns the channel's high-watermark sequence without
// reserving the next one, used by the gateway when a session subscribes.
func CurrentChannelSeq(db *gorm.DB, channelID string) (int64, error) {
	var maxSeq int64
	err := db.Model(&Message{}).Where("channel_id = ?", channelID).
		Select("COALESCE(MAX(channel_seq), 0)").Scan(&maxSeq).Error
	if err != nil {
		return 0, err
	}
	return maxSeq, nil
}

func ListMessagesSince(db *gorm.DB, channelID string, afterSeq int64, limit int) ([]Message, error) {
	var messages []Message
	err := db.Where("channel_id = ? AND channel_seq > ?", channelID, afterSeq).
		Order("channel_seq asc").Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// EditMessage replaces body and stamps edited_at. Callers must have already
// verified ownership/ManageMessages and that the message is not deleted or
// ciphertext (replace-by-new-message policy for E2EE).
func EditMessage(db *gorm.DB, id, content string) error {
	now := time.Now().UTC()
	return db.Model(&Message{}).Where("id = ? AND deleted = ?", id, false).
		Updates(map[string]any{"content": content, "edited_at": &now}).Error
}

// DeleteMessage clears content and marks deleted, a monotonic transition.
func DeleteMessage(db *gorm.DB, id string) error {
	return db.Model(&Message{}).Where("id = ? AND deleted = ?", id, false).
		Updates(map[string]any{"content": "", "deleted": true}).Error
}

func CountUnread(db *gorm.DB, channelID, viewerID string, marker int64, blockedAuthors []string) (int64, error) {
	q := db.Model(&Message{}).
		Where("channel_id = ? AND channel_seq > ? AND author_id <> ? AND deleted = ?", channelID, marker, viewerID, false)
	if len(blockedAuthors) > 0 {
		q = q.Where("author_id NOT IN ?", blockedAuthors)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
