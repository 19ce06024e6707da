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

// Invite is a redeemable code granting Membership in a Guild.
type Invite struct {
	Code      string `gorm:"primaryKey"`
	GuildID   string `gorm:"index"`
	CreatedBy string
	MaxUses   int
	Uses      int
	ExpiresAt *time.Time
	CreatedAt time.Time
}

func (Invite) TableName() string {
	return "invites"
}

func FindInviteByCode(db *gorm.DB, code string) (*Invite, error) {
	var invite Invite
	if err := db.First(&invite, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &invite, nil
}

func (i *Invite) Exhausted() bool {
	return i.MaxUses > 0 && i.Uses >= i.MaxUses
}

func (i *Invite) Expired() bool {
	return i.ExpiresAt != nil && i.ExpiresAt.Before(time.Now().UTC())
}

// RedeemInvite atomically increments Uses, refusing if the invite is already
// exhausted.
func RedeemInvite(db *gorm.DB, code string) error {
	result := db.Model(&Invite{}).
		Where("code = ? AND (max_uses = 0 OR uses < max_uses)", code).
		Update("uses", gorm.Expr("uses + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
