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

// Package e2ee is the session-establishment store backing encrypted channels:
// per-device identity keys, a single-use prekey queue, and the
// client-encrypted recovery backup. The server never derives, decrypts, or
// otherwise inspects any key or ciphertext that passes through it.
package e2ee

import (
	"context"
	"errors"
	"fmt"

	"github.com/Wolftown-io/canis/internal/db/models"
	"gorm.io/gorm"
)

// ErrNoPrekeys is returned when a device's one-time prekey queue is empty.
// The caller must ask the owning device to upload more.
var ErrNoPrekeys = errors.New("e2ee: prekey queue is empty")

type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service {
	return &Service{db: db}
}

// RegisterDevice publishes or rotates (userID, deviceID)'s long-term identity
// and signed prekey. The server stores the keys and signature opaque.
func (s *Service) RegisterDevice(ctx context.Context, identity *models.DeviceIdentity) error {
	if err := models.RegisterDeviceIdentity(s.db.WithContext(ctx), identity); err != nil {
		return fmt.Errorf("e2ee: register device: %w", err)
	}
	return nil
}

func (s *Service) Identity(ctx context.Context, userID, deviceID string) (*models.DeviceIdentity, error) {
	identity, err := models.FindDeviceIdentity(s.db.WithContext(ctx), userID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("e2ee: identity: %w", err)
	}
	return identity, nil
}

// UploadPrekeys tops up (userID, deviceID)'s one-time prekey queue. The
// caller assigns key IDs; the server never reuses one after it is claimed.
func (s *Service) UploadPrekeys(ctx context.Context, userID, deviceID string, keys []models.Prekey) error {
	for i := range keys {
		keys[i].UserID = userID
		keys[i].DeviceID = deviceID
	}
	if err := models.UploadPrekeys(s.db.WithContext(ctx), keys); err != nil {
		return fmt.Errorf("e2ee: upload prekeys: %w", err)
	}
	return nil
}

// ClaimPrekey hands out and deletes one unclaimed prekey so a session-
// initiation bundle can be assembled for (userID, deviceID).
func (s *Service) ClaimPrekey(ctx context.Context, userID, deviceID string) (*models.Prekey, error) {
	prekey, err := models.ClaimPrekey(s.db.WithContext(ctx), userID, deviceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoPrekeys
		}
		return nil, fmt.Errorf("e2ee: claim prekey: %w", err)
	}
	return prekey, nil
}

func (s *Service) RemainingPrekeys(ctx context.Context, userID, deviceID string) (int64, error) {
	count, err := models.CountRemainingPrekeys(s.db.WithContext(ctx), userID, deviceID)
	if err != nil {
		return 0, fmt.Errorf("e2ee: remaining prekeys: %w", err)
	}
	return count, nil
}

// Backup returns userID's stored recovery blob, if any.
func (s *Service) Backup(ctx context.Context, userID string) (*models.E2EEBackup, error) {
	backup, err := models.FindE2EEBackup(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, fmt.Errorf("e2ee: backup: %w", err)
	}
	return backup, nil
}

// SetBackup replaces userID's recovery blob. The server stores ciphertext
// only; losing the client-derived recovery code means permanent loss.
func (s *Service) SetBackup(ctx context.Context, userID string, ciphertext []byte, version int) error {
	if err := models.UpsertE2EEBackup(s.db.WithContext(ctx), userID, ciphertext, version); err != nil {
		return fmt.Errorf("e2ee: set backup: %w", err)
	}
	return nil
}
