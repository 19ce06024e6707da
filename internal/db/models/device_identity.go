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

// DeviceIdentity is (user, device) -> long-term identity public keys. The
// server never inspects the keys beyond storing and returning them opaque.
type DeviceIdentity struct {
	UserID          string `gorm:"primaryKey"`
	DeviceID        string `gorm:"primaryKey"`
	IdentityKey     []byte `gorm:"type:bytes"`
	SignedPrekey    []byte `gorm:"type:bytes"`
	SignedPrekeySig []byte `gorm:"type:bytes"`
	RegisteredAt    time.Time
	UpdatedAt       time.Time
}

func (DeviceIdentity) TableName() string {
	return "device_identities"
}

// Prekey is a single-use one-time prekey. The server deletes it the first
// time it is handed out.
type Prekey struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"index"`
	DeviceID  string `gorm:"index"`
	KeyID     uint32
	PublicKey []byte `gorm:"type:bytes"`
	CreatedAt time.Time
}

func (Prekey) TableName() string {
	return "prekeys"
}

// RegisterDeviceIdentity creates or replaces (userID, deviceID)'s long-term
// keys, e.g. on first app install or a signed-prekey rotation.
func RegisterDeviceIdentity(db *gorm.DB, identity *DeviceIdentity) error {
	now := time.Now().UTC()
	identity.RegisteredAt = now
	identity.UpdatedAt = now
	return db.Exec(`
		INSERT INTO device_identities (user_id, device_id, identity_key, signed_prekey, signed_prekey_sig, registered_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, device_id) DO UPDATE SET
			identity_key = excluded.identity_key,
			signed_prekey = excluded.signed_prekey,
			signed_prekey_sig = excluded.signed_prekey_sig,
			updated_at = excluded.updated_at`,
		identity.UserID, identity.DeviceID, identity.IdentityKey, identity.SignedPrekey, identity.SignedPrekeySig,
		identity.RegisteredAt, identity.UpdatedAt).Error
}

// UploadPrekeys appends a batch of one-time prekeys for (userID, deviceID),
// topping up the queue a client manages from its own key counter.
func UploadPrekeys(db *gorm.DB, prekeys []Prekey) error {
	if len(prekeys) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range prekeys {
		prekeys[i].CreatedAt = now
	}
	return db.Create(&prekeys).Error
}

func FindDeviceIdentity(db *gorm.DB, userID, deviceID string) (*DeviceIdentity, error) {
	var identity DeviceIdentity
	if err := db.First(&identity, "user_id = ? AND device_id = ?", userID, deviceID).Error; err != nil {
		return nil, err
	}
	return &identity, nil
}

// ClaimPrekey atomically returns and deletes the oldest unclaimed prekey for
// (userID, deviceID), enforcing the single-use invariant.
func ClaimPrekey(db *gorm.DB, userID, deviceID string) (*Prekey, error) {
	var claimed *Prekey
	err := db.Transaction(func(tx *gorm.DB) error {
		var prekey Prekey
		err := tx.Where("user_id = ? AND device_id = ?", userID, deviceID).
			Order("created_at asc").Limit(1).
			Clauses(lockingClause()).
			First(&prekey).Error
		if err != nil {
			return err
		}
		if err := tx.Delete(&Prekey{}, "id = ?", prekey.ID).Error; err != nil {
			return err
		}
		claimed = &prekey
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func CountRemainingPrekeys(db *gorm.DB, userID, deviceID string) (int64, error) {
	var count int64
	err := db.Model(&Prekey{}).Where("user_id = ? AND device_id = ?", userID, deviceID).Count(&count).Error
	return count, err
}
