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

// ChannelKind is the channel variant.
type ChannelKind string

const (
	ChannelKindText     ChannelKind = "text"
	ChannelKindVoice    ChannelKind = "voice"
	ChannelKindDM       ChannelKind = "dm"
	ChannelKindGroupDM  ChannelKind = "group_dm"
)

// Channel belongs to exactly one Guild except dm/group_dm, which belong to
// none (GuildID is empty for those kinds).
type Channel struct {
	ID        string      `gorm:"primaryKey"`
	GuildID   string      `gorm:"index"`
	Kind      ChannelKind `gorm:"index"`
	Name      string
	Position  int
	Encrypted bool
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (Channel) TableName() string {
	return "channels"
}

func FindChannelByID(db *gorm.DB, id string) (*Channel, error) {
	var channel Channel
	if err := db.First(&channel, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &channel, nil
}

func ListChannelsForGuild(db *gorm.DB, guildID string) ([]Channel, error) {
	var channels []Channel
	if err := db.Where("guild_id = ?", guildID).Order("position asc").Find(&channels).Error; err != nil {
		return nil, err
	}
	return channels, nil
}

// FindDMChannel returns the existing dm/group_dm channel whose member set is
// exactly participantIDs, if one exists.
func FindDMChannel(db *gorm.DB, participantIDs []string) (*Channel, error) {
	kind := ChannelKindDM
	if len(participantIDs) > 2 {
		kind = ChannelKindGroupDM
	}
	var candidates []Channel
	if err := db.Where("kind = ?", kind).Find(&candidates).Error; err != nil {
		return nil, err
	}
	for _, c := range candidates {
		var members []ChannelParticipant
		if err := db.Where("channel_id = ?", c.ID).Find(&members).Error; err != nil {
			return nil, err
		}
		if sameParticipantSet(members, participantIDs) {
			channel := c
			return &channel, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func sameParticipantSet(members []ChannelParticipant, ids []string) bool {
	if len(members) != len(ids) {
		return false
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for _, m := range members {
		if _, ok := set[m.UserID]; !ok {
			return false
		}
	}
	return true
}

// ChannelParticipant records membership in a dm/group_dm channel (distinct
// from guild Membership, which governs text/voice channels via roles).
type ChannelParticipant struct {
	ChannelID string `gorm:"primaryKey"`
	UserID    string `gorm:"primaryKey;index"`
	JoinedAt  time.Time
}

func (ChannelParticipant) TableName() string {
	return "channel_participants"
}
