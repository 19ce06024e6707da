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

//nolint:golint,wrapcheck
package migration

import (
	"fmt"

	"github.com/Wolftown-io/canis/internal/db/models"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Migrate runs every schema migration in order, creating tables that do not
// exist yet and leaving existing data alone.
func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		initialSchema_202607300000(),
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("gormigrate: %w", err)
	}

	return nil
}

func initialSchema_202607300000() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "202607300000",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.User{},
				&models.Guild{},
				&models.Channel{},
				&models.ChannelParticipant{},
				&models.Role{},
				&models.Membership{},
				&models.PermissionOverride{},
				&models.Message{},
				&models.ReadMarker{},
				&models.Call{},
				&models.CallParticipant{},
				&models.DeviceIdentity{},
				&models.Prekey{},
				&models.Friendship{},
				&models.Invite{},
				&models.OutboxRow{},
				&models.E2EEBackup{},
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				"outbox", "invites", "friendships", "prekeys", "device_identities",
				"call_participants", "calls", "read_markers", "messages",
				"permission_overrides", "memberships", "roles",
				"channel_participants", "channels", "guilds", "users", "e2ee_backups",
			)
		},
	}
}
