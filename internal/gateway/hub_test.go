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

package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Wolftown-io/canis/internal/config"
	"github.com/Wolftown-io/canis/internal/db"
	"github.com/Wolftown-io/canis/internal/db/models"
	"github.com/Wolftown-io/canis/internal/events"
	"github.com/Wolftown-io/canis/internal/ids"
	"github.com/Wolftown-io/canis/internal/kv"
	"github.com/Wolftown-io/canis/internal/permissions"
	"github.com/Wolftown-io/canis/internal/pubsub"
	"github.com/USA-RedDragon/configulator"
	"gorm.io/gorm"
)

func newTestHub(t *testing.T, backlog int) (*Hub, *gorm.DB) {
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
	store, err := kv.MakeKV(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("make kv: %v", err)
	}
	bus, err := pubsub.MakePubSub(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("make pubsub: %v", err)
	}
	t.Cleanup(func() { _ = bus.Close() })

	resolver := permissions.NewResolver(database, store)
	return NewHub(database, resolver, bus, nil, backlog), database
}

func newTestSession(userID string, backlog int) *Session {
	return &Session{
		ID:          ids.New(),
		UserID:      userID,
		channels:    make(map[string]struct{}),
		lastSeenSeq: make(map[string]int64),
		send:        make(chan []byte, backlog),
		closed:      make(chan struct{}),
	}
}

func seedDMMessage(t *testing.T, database *gorm.DB, channelID, authorID string, seq int64) *models.Message {
	t.Helper()
	m := &models.Message{
		ID:         ids.New().String(),
		ChannelID:  channelID,
		AuthorID:   authorID,
		Content:    "hello",
		ChannelSeq: seq,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := database.Create(m).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return m
}

func TestSubscribeReplaysMissedMessagesSinceLastSeen(t *testing.T) {
	t.Parallel()
	hub, database := newTestHub(t, 16)

	dm := &models.Channel{ID: "dm-1", Kind: models.ChannelKindDM}
	if err := database.Create(dm).Error; err != nil {
		t.Fatalf("seed dm channel: %v", err)
	}
	participant := &models.ChannelParticipant{ChannelID: dm.ID, UserID: "user-a"}
	if err := database.Create(participant).Error; err != nil {
		t.Fatalf("seed participant: %v", err)
	}

	seedDMMessage(t, database, dm.ID, "user-b", 1)
	missed := seedDMMessage(t, database, dm.ID, "user-b", 2)
	seedDMMessage(t, database, dm.ID, "user-b", 3)

	s := newTestSession("user-a", 16)
	if err := hub.Subscribe(context.Background(), s, dm.ID, 1); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if len(s.send) != 2 {
		t.Fatalf("expected 2 replayed frames queued, got %d", len(s.send))
	}

	wire := <-s.send
	env, err := events.Unmarshal(wire)
	if err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Seq != missed.ChannelSeq {
		t.Fatalf("expected first replayed frame to carry seq %d, got %d", missed.ChannelSeq, env.Seq)
	}
	var frame events.Frame
	if err := json.Unmarshal(env.Frame, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if frame.Kind != events.KindMessageCreated {
		t.Fatalf("expected message.created, got %s", frame.Kind)
	}

	if !s.Subscribed(dm.ID) {
		t.Fatal("expected subscribe to join the channel after replay")
	}
}

func TestSubscribeFreshJoinSkipsReplay(t *testing.T) {
	t.Parallel()
	hub, database := newTestHub(t, 16)

	dm := &models.Channel{ID: "dm-2", Kind: models.ChannelKindDM}
	if err := database.Create(dm).Error; err != nil {
		t.Fatalf("seed dm channel: %v", err)
	}
	participant := &models.ChannelParticipant{ChannelID: dm.ID, UserID: "user-a"}
	if err := database.Create(participant).Error; err != nil {
		t.Fatalf("seed participant: %v", err)
	}
	seedDMMessage(t, database, dm.ID, "user-b", 1)

	s := newTestSession("user-a", 16)
	if err := hub.Subscribe(context.Background(), s, dm.ID, 0); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if len(s.send) != 0 {
		t.Fatalf("expected no replay frames on a fresh subscribe, got %d", len(s.send))
	}
}

func TestSubscribeDeniesNonParticipant(t *testing.T) {
	t.Parallel()
	hub, database := newTestHub(t, 16)

	dm := &models.Channel{ID: "dm-3", Kind: models.ChannelKindDM}
	if err := database.Create(dm).Error; err != nil {
		t.Fatalf("seed dm channel: %v", err)
	}

	s := newTestSession("intruder", 16)
	if err := hub.Subscribe(context.Background(), s, dm.ID, 0); err == nil {
		t.Fatal("expected a non-participant subscribe to be denied")
	}
}
