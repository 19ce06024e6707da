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

package social_test

import (
	"context"
	"testing"

	"github.com/Wolftown-io/canis/internal/config"
	"github.com/Wolftown-io/canis/internal/db"
	"github.com/Wolftown-io/canis/internal/db/models"
	"github.com/Wolftown-io/canis/internal/social"
	"github.com/USA-RedDragon/configulator"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*social.Service, *gorm.DB) {
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
	return social.New(database), database
}

func TestSendAcceptCreatesReciprocalFriendship(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	if err := svc.SendRequest(ctx, "user-a", "user-b"); err != nil {
		t.Fatalf("send request: %v", err)
	}
	if err := svc.Accept(ctx, "user-a", "user-b"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	ok, err := svc.AreFriends(ctx, "user-a", "user-b")
	if err != nil {
		t.Fatalf("are friends: %v", err)
	}
	if !ok {
		t.Fatalf("expected user-a -> user-b friendship")
	}
	ok, err = svc.AreFriends(ctx, "user-b", "user-a")
	if err != nil {
		t.Fatalf("are friends reciprocal: %v", err)
	}
	if !ok {
		t.Fatalf("expected reciprocal user-b -> user-a friendship")
	}
}

func TestBlockPreventsNewRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	if err := svc.Block(ctx, "user-b", "user-a"); err != nil {
		t.Fatalf("block: %v", err)
	}
	if err := svc.SendRequest(ctx, "user-a", "user-b"); err != models.ErrAlreadyBlocked {
		t.Fatalf("expected ErrAlreadyBlocked, got %v", err)
	}
}

func TestBlockDropsExistingFriendship(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	if err := svc.SendRequest(ctx, "user-a", "user-b"); err != nil {
		t.Fatalf("send request: %v", err)
	}
	if err := svc.Accept(ctx, "user-a", "user-b"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := svc.Block(ctx, "user-b", "user-a"); err != nil {
		t.Fatalf("block: %v", err)
	}

	ok, err := svc.AreFriends(ctx, "user-b", "user-a")
	if err != nil {
		t.Fatalf("are friends: %v", err)
	}
	if ok {
		t.Fatalf("expected blocking to drop the blocker's own friendship edge")
	}

	blocked, err := svc.ListBlocked(ctx, "user-b")
	if err != nil {
		t.Fatalf("list blocked: %v", err)
	}
	if len(blocked) != 1 || blocked[0] != "user-a" {
		t.Fatalf("expected user-a in user-b's block list, got %v", blocked)
	}
}
