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

// Package messages implements the send/edit/delete/read-marker pipeline:
// permission check, rate limit, mention parsing, persistence and bus
// emission, for both plaintext and opaque E2EE channels.
package messages

import "github.com/Wolftown-io/canis/internal/db/models"

// SendPayload is the client-supplied body of a send_message intent.
type SendPayload struct {
	ReplyToID   string        `json:"reply_to_id,omitempty"`
	Content     string        `json:"content"`
	Attachments []string      `json:"attachments,omitempty"`
	Envelope    []byte        `json:"envelope,omitempty"`
}

// CreatedPayload is what's broadcast on message.created.
type CreatedPayload struct {
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

// EditedPayload is broadcast on message.edited.
type EditedPayload struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// DeletedPayload is broadcast on message.deleted.
type DeletedPayload struct {
	ID string `json:"id"`
}

// TypingPayload is broadcast on typing.start.
type TypingPayload struct {
	UserID string `json:"user_id"`
}

// ReadUpdatePayload is broadcast on read.update.
type ReadUpdatePayload struct {
	UserID      string `json:"user_id"`
	LastSeenSeq int64  `json:"last_seen_seq"`
}
