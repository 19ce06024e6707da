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

package http

import (
	"context"

	"github.com/Wolftown-io/canis/internal/gateway"
	"github.com/Wolftown-io/canis/internal/messages"
	"github.com/Wolftown-io/canis/internal/voice"
)

// intentHandler satisfies gateway.IntentHandler by routing each intent to
// the service that owns it: typing/send go to internal/messages, call
// signaling to internal/voice. Neither service needs to know about the
// other or about the gateway's session bookkeeping.
type intentHandler struct {
	messages *messages.Service
	voice    *voice.Service
}

// newIntentHandler builds the adapter applyRoutes passes to gateway.Hub.Accept.
func newIntentHandler(messagesSvc *messages.Service, voiceSvc *voice.Service) gateway.IntentHandler {
	return &intentHandler{messages: messagesSvc, voice: voiceSvc}
}

func (h *intentHandler) HandleSendTyping(ctx context.Context, userID, channelID string) error {
	return h.messages.HandleSendTyping(ctx, userID, channelID)
}

func (h *intentHandler) HandleSendMessage(ctx context.Context, userID, channelID string, frame gateway.ClientFrame) error {
	return h.messages.HandleSendMessage(ctx, userID, channelID, frame)
}

func (h *intentHandler) HandleCallSignal(ctx context.Context, userID, channelID string, frame gateway.ClientFrame) error {
	return h.voice.HandleCallSignal(ctx, userID, channelID, frame)
}
