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

// ErrOverrideNotDisjoint is returned when allow and deny share a bit.
var ErrOverrideNotDisjoint = errors.New("models: permission override allow and deny bits are not disjoint")

// OverrideSubjectKind distinguishes the two subject types a PermissionOverride
// can target.
type OverrideSubjectKind string

const (
	OverrideSubjectRole   OverrideSubjectKind = "role"
	OverrideSubjectMember OverrideSubjectKind = "member"
)

// PermissionOverride is (channel, subject) holding disjoint allow/deny bitsets.
type PermissionOverride struct {
	ID          string `gorm:"primaryKey"`
	ChannelID   string `gorm:"index"`
	SubjectKind OverrideSubjectKind
	SubjectID   string `gorm:"index"`
	Allow       Permission
	Deny        Permission
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (PermissionOverride) TableName() string {
	return "permission_overrides"
}

func (o *PermissionOverride) BeforeSave(_ *gorm.DB) error {
	if o.Allow&o.Deny != 0 {
		return ErrOverrideNotDisjoint
	}
	return nil
}

func ListOverridesForChannel(db *gorm.DB, channelID string) ([]PermissionOverride, error) {
	var overrides []PermissionOverride
	if err := db.Where("channel_id = ?", channelID).Find(&overrides).Error; err != nil {
		return nil, err
	}
	return overrides, nil
}
