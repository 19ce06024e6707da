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

import (
	"encoding/json"
	"fmt"

	"github.com/Wolftown-io/canis/internal/voice/sfu"
	"github.com/pion/webrtc/v4"
)

// answerOffer applies the client's SDP offer to the server-side peer and
// returns the resulting answer SDP. It sends nothing itself; the caller
// relays the answer back to the offering user as a signal event.
func answerOffer(peer *sfu.Peer, sdp string) (string, error) {
	if sdp == "" {
		return "", fmt.Errorf("voice: offer missing sdp")
	}
	answer, err := peer.SetRemoteOffer(sdp)
	if err != nil {
		return "", fmt.Errorf("voice: set remote offer: %w", err)
	}
	return answer, nil
}

func addICECandidate(peer *sfu.Peer, raw json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &init); err != nil {
		return fmt.Errorf("voice: decode ice candidate: %w", err)
	}
	return peer.AddICECandidate(init)
}
