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

// ReadMarker is (user, channel) -> last seen channel_seq.
type ReadMarker struct {
	UserID      string `gorm:"primaryKey"`
	ChannelID   string `gorm:"primaryKey;index"`
	LastSeenSeq int64
	UpdatedAt   time.Time
}

func (ReadMarker) TableName() string {
	return "read_markers"
}

func FindReadMarker(db *gorm.DB, userID, channelID string) (*ReadMarker, error) {
	var marker ReadMarker
	err := db.First(&marker, "user_id = ? AND channel_id = ?", userID, channelID).Error
	if err != nil {
		return nil, err
	}
	return &marker, nil
}

// MarkAsRead updates the marker only if seq is >= the stored one,
// preserving monotonicity in a single statement.
func MarkAsRead(db *gorm.DB, userID, channelID string, seq int64) error {
	result := db.Exec(`
		INSERT INTO read_markers (user_id, channel_id, last_seen_seq, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, channel_id) DO UPDATE SET
			last_seen_seq = excluded.last_seen_seq,
			updated_at = excluded.updated_at
		WHERE read_markers.last_seen_seq <= excluded.last_seen_seq`,
		userID, channelID, seq, time.Now().UTC())
	return result.Error
}
