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
	"net/http/httptest"
	"testing"
)

func TestBumpSeenDetectsGap(t *testing.T) {
	t.Parallel()
	s := &Session{lastSeenSeq: make(map[string]int64)}

	if gap := s.bumpSeen("chan-1", 1); gap {
		t.Fatal("first event should never report a gap")
	}
	if gap := s.bumpSeen("chan-1", 2); gap {
		t.Fatal("consecutive sequence should not report a gap")
	}
	if gap := s.bumpSeen("chan-1", 5); !gap {
		t.Fatal("expected a skipped sequence to report a gap")
	}
}

func TestAddRemoveChannel(t *testing.T) {
	t.Parallel()
	s := &Session{channels: make(map[string]struct{}), lastSeenSeq: make(map[string]int64)}

	s.addChannel("chan-1", 10)
	if !s.Subscribed("chan-1") {
		t.Fatal("expected channel to be subscribed after addChannel")
	}
	ids := s.channelIDs()
	if len(ids) != 1 || ids[0] != "chan-1" {
		t.Fatalf("expected [chan-1], got %v", ids)
	}

	s.removeChannel("chan-1")
	if s.Subscribed("chan-1") {
		t.Fatal("expected channel to be unsubscribed after removeChannel")
	}
}

func TestCheckOriginAllowlist(t *testing.T) {
	t.Parallel()
	check := checkOrigin([]string{"https://app.example.com"})

	cases := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://app.example.com", true},
		{"https://evil.example.com", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/ws", nil)
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		if got := check(req); got != tc.want {
			t.Errorf("origin %q: want %v, got %v", tc.origin, tc.want, got)
		}
	}
}
