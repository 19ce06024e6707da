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

package sfu

import (
	"testing"
	"time"
)

func TestRouteForwardsToEveryOtherParticipant(t *testing.T) {
	t.Parallel()
	r := NewRouter()
	r.AddParticipant("alice")
	r.AddParticipant("bob")
	r.AddParticipant("carol")
	r.StartPublishing("alice", TrackAudio)

	dests := r.Route("alice", TrackAudio, 10, time.Now().UTC())
	if len(dests) != 2 {
		t.Fatalf("expected 2 destinations, got %d: %+v", len(dests), dests)
	}
	seen := map[string]bool{}
	for _, d := range dests {
		seen[d.SubscriberID] = true
	}
	if !seen["bob"] || !seen["carol"] {
		t.Fatalf("expected bob and carol as destinations, got %+v", dests)
	}
	if seen["alice"] {
		t.Fatalf("publisher must not be its own subscriber")
	}
}

func TestRouteSuppressesMutedUpstream(t *testing.T) {
	t.Parallel()
	r := NewRouter()
	r.AddParticipant("alice")
	r.AddParticipant("bob")
	r.StartPublishing("alice", TrackAudio)

	r.SetMuted("alice", true)
	dests := r.Route("alice", TrackAudio, 10, time.Now().UTC())
	if len(dests) != 0 {
		t.Fatalf("expected muted upstream to forward nothing, got %+v", dests)
	}

	r.SetMuted("alice", false)
	dests = r.Route("alice", TrackAudio, 10, time.Now().UTC())
	if len(dests) != 1 {
		t.Fatalf("expected unmuted upstream to forward again, got %+v", dests)
	}
}

func TestRouteAdmissionControlGatesUnrampedSubscriber(t *testing.T) {
	t.Parallel()
	r := NewRouter()
	r.AddParticipant("alice")
	r.AddParticipant("bob")
	r.StartPublishing("alice", TrackVideo)

	now := time.Now().UTC()
	admitted := 0
	for i := 0; i < 10; i++ {
		dests := r.Route("alice", TrackVideo, slowStartInitialBudget, now)
		admitted += len(dests)
	}
	if admitted == 0 {
		t.Fatalf("expected at least the initial burst to be admitted")
	}
	if admitted >= 10 {
		t.Fatalf("expected admission control to gate a burst exceeding the initial budget, admitted %d/10", admitted)
	}

	// After the budget has had time to grow, more packets get through.
	later := now.Add(5 * slowStartGrowthTick)
	dests := r.Route("alice", TrackVideo, slowStartInitialBudget, later)
	if len(dests) != 1 {
		t.Fatalf("expected budget to have grown enough to admit one more packet, got %+v", dests)
	}
}

func TestRemoveParticipantClearsSubscriptionsAndPublishes(t *testing.T) {
	t.Parallel()
	r := NewRouter()
	r.AddParticipant("alice")
	r.AddParticipant("bob")
	r.StartPublishing("alice", TrackAudio)
	r.Route("alice", TrackAudio, 1, time.Now().UTC())

	r.RemoveParticipant("alice")
	dests := r.Route("alice", TrackAudio, 1, time.Now().UTC())
	if len(dests) != 0 {
		t.Fatalf("expected no destinations once the publisher left, got %+v", dests)
	}
}

func TestObserveAudioLevelDebouncesTransitions(t *testing.T) {
	t.Parallel()
	r := NewRouter()
	start := time.Now().UTC()

	if events := r.ObserveAudioLevel("alice", true, start); events != nil {
		t.Fatalf("expected no event on the first reading, got %+v", events)
	}
	// Within the debounce window: still pending, no event yet.
	if events := r.ObserveAudioLevel("alice", true, start.Add(50*time.Millisecond)); events != nil {
		t.Fatalf("expected no event before the debounce window elapses, got %+v", events)
	}
	// Past the debounce window: transition to speaking fires.
	events := r.ObserveAudioLevel("alice", true, start.Add(250*time.Millisecond))
	if len(events) != 1 || !events[0].Speaking {
		t.Fatalf("expected a speaking=true event, got %+v", events)
	}
	// A brief dip that reverses before the debounce window elapses should
	// not flap the emitted state.
	flicker := start.Add(260 * time.Millisecond)
	if events := r.ObserveAudioLevel("alice", false, flicker); events != nil {
		t.Fatalf("expected no event on a just-started dip, got %+v", events)
	}
	if events := r.ObserveAudioLevel("alice", true, flicker.Add(10*time.Millisecond)); events != nil {
		t.Fatalf("expected the flicker to be absorbed without emitting, got %+v", events)
	}
}
