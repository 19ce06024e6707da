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

// E2EEBackup holds the client-encrypted recovery blob for a user. The
// server stores ciphertext only; loss of the client-derived recovery code
// means permanent loss.
type E2EEBackup struct {
	UserID     string `gorm:"primaryKey"`
	Ciphertext []byte `gorm:"type:bytes"`
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (E2EEBackup) TableName() string {
	return "e2ee_backups"
}

func FindE2EEBackup(db *gorm.DB, userID string) (*E2EEBackup, error) {
	var backup E2EEBackup
	if err := db.First(&backup, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &backup, nil
}

// UpsertE2EEBackup replaces userID's backup, bumping version. The client is
// responsible for choosing a version that monotonically increases.
func UpsertE2EEBackup(db *gorm.DB, userID string, ciphertext []byte, version int) error {
	now := time.Now().UTC()
	return db.Exec(`
		INSERT INTO e2ee_backups (user_id, ciphertext, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			ciphertext = excluded.ciphertext, version = excluded.version, updated_at = excluded.updated_at`,
		userID, ciphertext, version, now, now).Error
}
