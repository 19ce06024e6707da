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
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrEveryoneForbiddenPermission is returned when a write would grant
// @everyone a permission it may never hold.
var ErrEveryoneForbiddenPermission = errors.New("models: @everyone role cannot hold this permission")

// EveryoneRoleName is the distinguished role every Guild must contain.
const EveryoneRoleName = "@everyone"

// Role is a bitset of permissions plus display metadata. Rank breaks
// precedence ties; @everyone always holds the lowest rank in its guild.
type Role struct {
	ID          string `gorm:"primaryKey"`
	GuildID     string `gorm:"index"`
	Name        string
	Color       uint32
	Rank        int
	Permissions Permission
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (Role) TableName() string {
	return "roles"
}

func (r *Role) IsEveryone() bool {
	return r.Name == EveryoneRoleName
}

// BeforeSave enforces the @everyone forbidden-permission invariant at the
// model layer so no write path can bypass it.
func (r *Role) BeforeSave(_ *gorm.DB) error {
	if r.IsEveryone() && r.Permissions.ForbiddenForEveryone() {
		return ErrEveryoneForbiddenPermission
	}
	return nil
}

func FindEveryoneRole(db *gorm.DB, guildID string) (*Role, error) {
	var role Role
	if err := db.First(&role, "guild_id = ? AND name = ?", guildID, EveryoneRoleName).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func ListRolesForGuild(db *gorm.DB, guildID string) ([]Role, error) {
	var roles []Role
	if err := db.Where("guild_id = ?", guildID).Order("rank asc").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

func FindRoleByID(db *gorm.DB, id string) (*Role, error) {
	var role Role
	if err := db.First(&role, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &role, nil
}
