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

package voice_test

import (
	"context"
	"testing"

	"github.com/Wolftown-io/canis/internal/config"
	"github.com/Wolftown-io/canis/internal/db"
	"github.com/Wolftown-io/canis/internal/db/models"
	"github.com/Wolftown-io/canis/internal/gateway"
	"github.com/Wolftown-io/canis/internal/kv"
	"github.com/Wolftown-io/canis/internal/permissions"
	"github.com/Wolftown-io/canis/internal/pubsub"
	"github.com/Wolftown-io/canis/internal/voice"
	"github.com/USA-RedDragon/configulator"
	"gorm.io/gorm"
)

func newTestManager(t *testing.T) (*voice.Manager, *gorm.DB) {
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

	resolver := permissions.NewResolver(database, store)
	hub := gateway.NewHub(database, resolver, bus, nil, 16)
	return voice.NewManager(database, resolver, hub, cfg.Voice), database
}

func seedDMChannel(t *testing.T, database *gorm.DB, id string) {
	t.Helper()
	if err := database.Create(&models.Channel{ID: id, Kind: models.ChannelKindDM}).Error; err != nil {
		t.Fatalf("seed dm channel: %v", err)
	}
	for _, userID := range []string{"user-a", "user-b"} {
		if err := database.Create(&models.ChannelParticipant{ChannelID: id, UserID: userID}).Error; err != nil {
			t.Fatalf("seed dm participant: %v", err)
		}
	}
}

func seedVoiceChannel(t *testing.T, database *gorm.DB, id, guildID string) {
	t.Helper()
	if err := database.Create(&models.Guild{ID: guildID, Name: "test guild", OwnerID: "user-a"}).Error; err != nil {
		t.Fatalf("seed guild: %v", err)
	}
	if err := database.Create(&models.Channel{ID: id, GuildID: guildID, Kind: models.ChannelKindVoice}).Error; err != nil {
		t.Fatalf("seed voice channel: %v", err)
	}
}

func TestGuildVoiceChannelSkipsRinging(t *testing.T) {
	t.Parallel()
	mgr, database := newTestManager(t)
	seedVoiceChannel(t, database, "voice-1", "guild-1")

	state, err := mgr.Join(context.Background(), "user-a", "device-1", "voice-1")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if state != voice.StateActive {
		t.Fatalf("expected guild voice channel to enter active immediately, got %s", state)
	}
}

func TestDMCallRingsUntilSecondJoin(t *testing.T) {
	t.Parallel()
	mgr, database := newTestManager(t)
	seedDMChannel(t, database, "dm-1")

	state, err := mgr.Join(context.Background(), "user-a", "device-1", "dm-1")
	if err != nil {
		t.Fatalf("first join: %v", err)
	}
	if state != voice.StateRinging {
		t.Fatalf("expected a solo DM join to ring, got %s", state)
	}

	state, err = mgr.Join(context.Background(), "user-b", "device-1", "dm-1")
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if state != voice.StateActive {
		t.Fatalf("expected the second participant to move the call to active, got %s", state)
	}
}

func TestDeclineAllParticipantsEndsAllDeclined(t *testing.T) {
	t.Parallel()
	mgr, database := newTestManager(t)
	seedDMChannel(t, database, "dm-1")

	if _, err := mgr.Join(context.Background(), "user-a", "device-1", "dm-1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := mgr.Decline(context.Background(), "user-a", "dm-1"); err != nil {
		t.Fatalf("decline: %v", err)
	}

	if _, err := mgr.Join(context.Background(), "user-a", "device-1", "dm-1"); err != nil {
		t.Fatalf("rejoin after decline should start a fresh call: %v", err)
	}
}

func TestCancelOnlyInitiatorBeforeAnyoneAnswered(t *testing.T) {
	t.Parallel()
	mgr, database := newTestManager(t)
	seedDMChannel(t, database, "dm-1")

	if _, err := mgr.Join(context.Background(), "user-a", "device-1", "dm-1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := mgr.Cancel(context.Background(), "user-b", "dm-1"); err == nil {
		t.Fatalf("expected non-initiator cancel to fail")
	}
	if err := mgr.Cancel(context.Background(), "user-a", "dm-1"); err != nil {
		t.Fatalf("expected initiator cancel to succeed: %v", err)
	}
}

func TestSecondDeviceJoinDisplacesPublishRights(t *testing.T) {
	t.Parallel()
	mgr, database := newTestManager(t)
	seedVoiceChannel(t, database, "voice-1", "guild-1")

	if _, err := mgr.Join(context.Background(), "user-a", "device-1", "voice-1"); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if _, err := mgr.Join(context.Background(), "user-a", "device-2", "voice-1"); err != nil {
		t.Fatalf("displacing join: %v", err)
	}
	// The manager tracks one Participant per user; the most recent join
	// wins the slot and publish rights, displacing the earlier device.
}

func TestLastParticipantLeavingEndsActiveCall(t *testing.T) {
	t.Parallel()
	mgr, database := newTestManager(t)
	seedVoiceChannel(t, database, "voice-1", "guild-1")

	if _, err := mgr.Join(context.Background(), "user-a", "device-1", "voice-1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := mgr.Leave(context.Background(), "user-a", "voice-1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := mgr.Leave(context.Background(), "user-a", "voice-1"); err != voice.ErrCallEnded {
		t.Fatalf("expected ErrCallEnded once the call has ended, got %v", err)
	}
}

func TestMuteGatesRouterWithoutLeavingCall(t *testing.T) {
	t.Parallel()
	mgr, database := newTestManager(t)
	seedVoiceChannel(t, database, "voice-1", "guild-1")

	if _, err := mgr.Join(context.Background(), "user-a", "device-1", "voice-1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := mgr.SetMuted(context.Background(), "user-a", "voice-1", true); err != nil {
		t.Fatalf("mute: %v", err)
	}
	if err := mgr.Leave(context.Background(), "user-a", "voice-1"); err != nil {
		t.Fatalf("leave after mute: %v", err)
	}
}
