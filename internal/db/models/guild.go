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

// Guild is owned by exactly one user at any moment (transferable), and owns
// an ordered set of Channels and Roles.
type Guild struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	OwnerID   string         `gorm:"index"`
	Channels  []Channel      `gorm:"foreignKey:GuildID"`
	Roles     []Role         `gorm:"foreignKey:GuildID"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (Guild) TableName() string {
	return "guilds"
}

func FindGuildByID(db *gorm.DB, id string) (*Guild, error) {
	var guild Guild
	if err := db.First(&guild, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &guild, nil
}

// TransferOwnership moves ownership to newOwnerID. The caller is responsible
// for verifying newOwnerID holds a Membership in the guild.
func TransferOwnership(db *gorm.DB, guildID, newOwnerID string) error {
	return db.Model(&Guild{}).Where("id = ?", guildID).Update("owner_id", newOwnerID).Error
}

func ListGuildsForUser(db *gorm.DB, userID string) ([]Guild, error) {
	var guilds []Guild
	err := db.Joins("JOIN memberships ON memberships.guild_id = guilds.id").
		Where("memberships.user_id = ?", userID).
		Find(&guilds).Error
	if err != nil {
		return nil, err
	}
	return guilds, nil
}
