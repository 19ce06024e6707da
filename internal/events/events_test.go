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

package events_test

import (
	"encoding/json"
	"testing"

	"github.com/Wolftown-io/canis/internal/events"
)

type testPayload struct {
	Text string `json:"text"`
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	t.Parallel()
	wire, err := events.Marshal(events.KindMessageCreated, 42, testPayload{Text: "hi"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	env, err := events.Unmarshal(wire)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Seq != 42 {
		t.Fatalf("expected seq 42, got %d", env.Seq)
	}

	var frame events.Frame
	if err := json.Unmarshal(env.Frame, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if frame.Kind != events.KindMessageCreated {
		t.Fatalf("expected kind %s, got %s", events.KindMessageCreated, frame.Kind)
	}
	if frame.ChannelSeq != 42 {
		t.Fatalf("expected frame channel seq 42, got %d", frame.ChannelSeq)
	}

	var payload testPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Text != "hi" {
		t.Fatalf("expected payload text %q, got %q", "hi", payload.Text)
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	t.Parallel()
	if _, err := events.Unmarshal([]byte("not json")); err == nil {
		t.Fatal("expected Unmarshal to reject malformed input")
	}
}

func TestTopicsAreNamespacedBySubject(t *testing.T) {
	t.Parallel()
	if got, want := events.ChannelTopic("c1"), "gateway:channel:c1"; got != want {
		t.Fatalf("ChannelTopic: got %q, want %q", got, want)
	}
	if got, want := events.GuildTopic("g1"), "gateway:guild:g1"; got != want {
		t.Fatalf("GuildTopic: got %q, want %q", got, want)
	}
	if got, want := events.UserTopic("u1"), "gateway:user:u1"; got != want {
		t.Fatalf("UserTopic: got %q, want %q", got, want)
	}
}
