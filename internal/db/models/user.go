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

// Status is a user's presence-adjacent, slow-changing status.
type Status string

const (
	StatusOnline    Status = "online"
	StatusAway      Status = "away"
	StatusDND       Status = "dnd"
	StatusInvisible Status = "invisible"
	StatusOffline   Status = "offline"
)

// User is an identity. Credential verification happens in an external
// collaborator (internal/auth only verifies presented tokens); CredentialHash
// is opaque to the core and stored only so it can be rotated without a second
// system of record.
type User struct {
	ID             string `gorm:"primaryKey"`
	DisplayName    string
	CredentialHash string         `json:"-"`
	Status         Status         `gorm:"default:offline"`
	CustomStatus   string
	LastSeenAt     time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

func (User) TableName() string {
	return "users"
}

func FindUserByID(db *gorm.DB, id string) (*User, error) {
	var user User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func UserExists(db *gorm.DB, id string) bool {
	var count int64
	db.Model(&User{}).Where("id = ?", id).Limit(1).Count(&count)
	return count > 0
}

func UpdateUserStatus(db *gorm.DB, id string, status Status, customStatus string) error {
	return db.Model(&User{}).Where("id = ?", id).Updates(map[string]any{
		"status":        status,
		"custom_status": customStatus,
		"last_seen_at":  time.Now().UTC(),
	}).Error
}
