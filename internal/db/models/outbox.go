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

// OutboxRow is written in the same transaction as the row it announces.
// A background shipper publishes Payload to Topic then deletes the
// row; on crash, undelivered rows are replayed by CreatedAt order.
type OutboxRow struct {
	ID        string `gorm:"primaryKey"`
	Topic     string `gorm:"index"`
	Payload   []byte `gorm:"type:bytes"`
	CreatedAt time.Time
}

func (OutboxRow) TableName() string {
	return "outbox"
}

// ClaimOutboxBatch returns up to limit undelivered rows in insertion order,
// locked for the duration of the caller's transaction.
func ClaimOutboxBatch(tx *gorm.DB, limit int) ([]OutboxRow, error) {
	var rows []OutboxRow
	err := tx.Order("created_at asc").Limit(limit).Clauses(lockingClause()).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func DeleteOutboxRow(db *gorm.DB, id string) error {
	return db.Delete(&OutboxRow{}, "id = ?", id).Error
}
