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

package e2ee_test

import (
	"context"
	"testing"

	"github.com/Wolftown-io/canis/internal/config"
	"github.com/Wolftown-io/canis/internal/db"
	"github.com/Wolftown-io/canis/internal/db/models"
	"github.com/Wolftown-io/canis/internal/e2ee"
	"github.com/USA-RedDragon/configulator"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*e2ee.Service, *gorm.DB) {
	t.Helper()
	cfg, err := configulator.New[config.Config]().Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Database.Database = ""
	cfg.Database.ExtraParameters = nil
	database, err := db.MakeDB(&cfg)
	if err != nil {
		t.Fatalf("make db: %v", err)
	}
	return e2ee.New(database), database
}

func TestRegisterDeviceThenFindIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	identity := &models.DeviceIdentity{
		UserID:          "user-a",
		DeviceID:        "device-1",
		IdentityKey:     []byte("identity-key"),
		SignedPrekey:    []byte("signed-prekey"),
		SignedPrekeySig: []byte("signature"),
	}
	if err := svc.RegisterDevice(ctx, identity); err != nil {
		t.Fatalf("register device: %v", err)
	}

	found, err := svc.Identity(ctx, "user-a", "device-1")
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if string(found.IdentityKey) != "identity-key" {
		t.Fatalf("expected identity key round-trip, got %q", found.IdentityKey)
	}
}

func TestRegisterDeviceRotatesSignedPrekey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	base := &models.DeviceIdentity{UserID: "user-a", DeviceID: "device-1", IdentityKey: []byte("k1"), SignedPrekey: []byte("sp1")}
	if err := svc.RegisterDevice(ctx, base); err != nil {
		t.Fatalf("register device: %v", err)
	}
	rotated := &models.DeviceIdentity{UserID: "user-a", DeviceID: "device-1", IdentityKey: []byte("k1"), SignedPrekey: []byte("sp2")}
	if err := svc.RegisterDevice(ctx, rotated); err != nil {
		t.Fatalf("rotate device: %v", err)
	}

	found, err := svc.Identity(ctx, "user-a", "device-1")
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if string(found.SignedPrekey) != "sp2" {
		t.Fatalf("expected rotated signed prekey, got %q", found.SignedPrekey)
	}
}

func TestClaimPrekeyIsSingleUse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	err := svc.UploadPrekeys(ctx, "user-a", "device-1", []models.Prekey{
		{ID: "prekey-1", KeyID: 1, PublicKey: []byte("pk1")},
		{ID: "prekey-2", KeyID: 2, PublicKey: []byte("pk2")},
	})
	if err != nil {
		t.Fatalf("upload prekeys: %v", err)
	}

	remaining, err := svc.RemainingPrekeys(ctx, "user-a", "device-1")
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("expected 2 remaining prekeys, got %d", remaining)
	}

	first, err := svc.ClaimPrekey(ctx, "user-a", "device-1")
	if err != nil {
		t.Fatalf("claim prekey: %v", err)
	}
	second, err := svc.ClaimPrekey(ctx, "user-a", "device-1")
	if err != nil {
		t.Fatalf("claim second prekey: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("expected distinct prekeys, got the same one twice")
	}

	remaining, err = svc.RemainingPrekeys(ctx, "user-a", "device-1")
	if err != nil {
		t.Fatalf("remaining after claims: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected 0 remaining prekeys after claiming both, got %d", remaining)
	}

	if _, err := svc.ClaimPrekey(ctx, "user-a", "device-1"); err != e2ee.ErrNoPrekeys {
		t.Fatalf("expected ErrNoPrekeys on an empty queue, got %v", err)
	}
}

func TestBackupRoundTripsAndVersionsBump(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	if err := svc.SetBackup(ctx, "user-a", []byte("blob-v1"), 1); err != nil {
		t.Fatalf("set backup: %v", err)
	}
	backup, err := svc.Backup(ctx, "user-a")
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if string(backup.Ciphertext) != "blob-v1" || backup.Version != 1 {
		t.Fatalf("unexpected backup state: %+v", backup)
	}

	if err := svc.SetBackup(ctx, "user-a", []byte("blob-v2"), 2); err != nil {
		t.Fatalf("set backup v2: %v", err)
	}
	backup, err = svc.Backup(ctx, "user-a")
	if err != nil {
		t.Fatalf("backup after update: %v", err)
	}
	if string(backup.Ciphertext) != "blob-v2" || backup.Version != 2 {
		t.Fatalf("expected backup to be replaced in place, got %+v", backup)
	}
}
