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
	"log/slog"
	"sync"
	"time"

	"github.com/Wolftown-io/canis/internal/ids"
	"github.com/gorilla/websocket"
)

const (
	heartbeatInterval = 30 * time.Second
	heartbeatTimeout  = 60 * time.Second
	writeWait         = 10 * time.Second
)

// Session is one authenticated duplex connection: a user+device pair, its
// subscribed channels, and the per-channel high-watermark used to detect a
// dropped event and request a resync.
type Session struct {
	ID       ids.ID
	UserID   string
	DeviceID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu          sync.Mutex
	channels    map[string]struct{}
	lastSeenSeq map[string]int64
	deadline    time.Time
	closeOnce   sync.Once
	closed      chan struct{}
}

func newSession(hub *Hub, conn *websocket.Conn, userID, deviceID string, backlog int) *Session {
	return &Session{
		ID:          ids.New(),
		UserID:      userID,
		DeviceID:    deviceID,
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, backlog),
		channels:    make(map[string]struct{}),
		lastSeenSeq: make(map[string]int64),
		deadline:    time.Now().Add(heartbeatTimeout),
		closed:      make(chan struct{}),
	}
}

// Subscribed reports whether the session currently subscribes to channelID.
func (s *Session) Subscribed(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.channels[channelID]
	return ok
}

func (s *Session) addChannel(channelID string, seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channelID] = struct{}{}
	s.lastSeenSeq[channelID] = seq
}

// channelIDs returns a snapshot of the session's subscribed channel ids.
func (s *Session) channelIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.channels))
	for id := range s.channels {
		out = append(out, id)
	}
	return out
}

func (s *Session) removeChannel(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, channelID)
	delete(s.lastSeenSeq, channelID)
}

func (s *Session) bumpSeen(channelID string, seq int64) (gap bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= 0 {
		// unsequenced event (typing, edit, call state): leaves the mark alone
		return false
	}
	prev, ok := s.lastSeenSeq[channelID]
	if ok && seq > prev+1 {
		gap = true
	}
	s.lastSeenSeq[channelID] = seq
	return gap
}

func (s *Session) touch() {
	s.mu.Lock()
	s.deadline = time.Now().Add(heartbeatTimeout)
	s.mu.Unlock()
}

func (s *Session) expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().After(s.deadline)
}

// enqueue drops the frame and requests disconnect if the session's outbound
// queue is full, rather than blocking the fan-out goroutine on one slow
// reader.
func (s *Session) enqueue(frame []byte) {
	select {
	case s.send <- frame:
	default:
		slog.Warn("gateway session outbound queue full, closing", "session", s.ID, "user", s.UserID)
		s.Close()
	}
}

// Close is safe to call multiple times and from multiple goroutines.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
		s.hub.unregister(s)
	})
}

func (s *Session) writePump() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	defer s.Close()

	for {
		select {
		case <-s.closed:
			return
		case msg, ok := <-s.send:
			if !ok {
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if s.expired() {
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) readPump(handle func(*Session, ClientFrame)) {
	defer s.Close()

	s.conn.SetPongHandler(func(string) error {
		s.touch()
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.touch()

		var frame ClientFrame
		if err := decodeFrame(data, &frame); err != nil {
			slog.Debug("gateway dropped malformed frame", "session", s.ID, "error", err)
			continue
		}
		handle(s, frame)
	}
}
