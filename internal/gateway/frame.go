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

// Package gateway is the session hub and event bus: it accepts authenticated
// duplex sessions over gorilla/websocket, maintains per-session subscription
// state, and fans out channel events with per-channel total ordering.
package gateway

import "encoding/json"

// ClientFrame is one frame received from a client. v is the protocol
// version; payload is kind-specific.
type ClientFrame struct {
	V              int             `json:"v"`
	Seq            int64           `json:"seq"`
	Kind           string          `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// Client intent kinds.
const (
	IntentSubscribe   = "subscribe"
	IntentUnsubscribe = "unsubscribe"
	IntentSendTyping  = "send_typing"
	IntentSendMessage = "send_message"
	IntentCallSignal  = "call_signal"
	IntentHeartbeat   = "heartbeat"
)

// SubscribePayload is the payload of a subscribe/unsubscribe intent.
// LastSeenSeq, when set on a subscribe, lets a reconnecting client report
// the channel sequence it last processed so the hub can replay what it
// missed instead of resuming only from the current tip.
type SubscribePayload struct {
	ChannelID   string `json:"channel_id"`
	LastSeenSeq int64  `json:"last_seen_seq,omitempty"`
}

func decodeFrame(data []byte, frame *ClientFrame) error {
	return json.Unmarshal(data, frame)
}
