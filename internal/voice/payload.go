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

package voice

import "encoding/json"

// signalTargetSFU addresses the server's own media router rather than
// another participant, per the (call_id, from_user, to_user or sfu) routing
// key.
const signalTargetSFU = "sfu"

// SignalPayload is the call_signal intent's payload: an opaque envelope the
// server routes without interpreting its SDP/ICE contents, except to tell
// "sfu" negotiation apart from a peer-directed relay.
type SignalPayload struct {
	CallID    string          `json:"call_id"`
	Target    string          `json:"target"` // "sfu" or a user ID
	Type      string          `json:"type"`   // "offer", "answer", "ice-candidate"
	SDP       string          `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// RelayedSignalPayload is what a peer-directed signal looks like once it
// reaches the other end, tagged with who it came from.
type RelayedSignalPayload struct {
	CallID    string          `json:"call_id"`
	FromUser  string          `json:"from_user"`
	Type      string          `json:"type"`
	SDP       string          `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}
