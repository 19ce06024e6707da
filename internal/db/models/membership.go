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

// Membership is a (user, guild) pair with a set of assigned roles.
type Membership struct {
	UserID    string `gorm:"primaryKey"`
	GuildID   string `gorm:"primaryKey;index"`
	RoleIDs   []string `gorm:"serializer:json"`
	Nickname  string
	JoinedAt  time.Time
	UpdatedAt time.Time
}

func (Membership) TableName() string {
	return "memberships"
}

func FindMembership(db *gorm.DB, userID, guildID string) (*Membership, error) {
	var m Membership
	if err := db.First(&m, "user_id = ? AND guild_id = ?", userID, guildID).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func ListMembershipsForGuild(db *gorm.DB, guildID string) ([]Membership, error) {
	var members []Membership
	if err := db.Where("guild_id = ?", guildID).Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func AddRoleToMembership(db *gorm.DB, userID, guildID, roleID string) error {
	m, err := FindMembership(db, userID, guildID)
	if err != nil {
		return err
	}
	for _, id := range m.RoleIDs {
		if id == roleID {
			return nil
		}
	}
	m.RoleIDs = append(m.RoleIDs, roleID)
	return db.Save(m).Error
}

func RemoveRoleFromMembership(db *gorm.DB, userID, guildID, roleID string) error {
	m, err := FindMembership(db, userID, guildID)
	if err != nil {
		return err
	}
	kept := m.RoleIDs[:0]
	for _, id := range m.RoleIDs {
		if id != roleID {
			kept = append(kept, id)
		}
	}
	m.RoleIDs = kept
	return db.Save(m).Error
}
