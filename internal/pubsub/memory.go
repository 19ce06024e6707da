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

package pubsub

import (
	"sync"

	"github.com/Wolftown-io/canis/internal/config"
)

const inMemorySubscriberBuffer = 64

func makeInMemoryPubSub(_ *config.Config) (PubSub, error) {
	return &inMemoryPubSub{
		subscribers: make(map[string]map[*inMemorySubscription]struct{}),
	}, nil
}

type inMemoryPubSub struct {
	mu          sync.Mutex
	subscribers map[string]map[*inMemorySubscription]struct{}
}

func (ps *inMemoryPubSub) Publish(topic string, message []byte) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for sub := range ps.subscribers[topic] {
		select {
		case sub.ch <- message:
		default:
			// Slow subscriber; drop rather than block the publisher.
		}
	}
	return nil
}

func (ps *inMemoryPubSub) Subscribe(topic string) Subscription {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	sub := &inMemorySubscription{
		ps:    ps,
		topic: topic,
		ch:    make(chan []byte, inMemorySubscriberBuffer),
	}
	if ps.subscribers[topic] == nil {
		ps.subscribers[topic] = make(map[*inMemorySubscription]struct{})
	}
	ps.subscribers[topic][sub] = struct{}{}
	return sub
}

func (ps *inMemoryPubSub) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, subs := range ps.subscribers {
		for sub := range subs {
			close(sub.ch)
		}
	}
	ps.subscribers = make(map[string]map[*inMemorySubscription]struct{})
	return nil
}

type inMemorySubscription struct {
	ps     *inMemoryPubSub
	topic  string
	ch     chan []byte
	closed bool
}

func (s *inMemorySubscription) Close() error {
	s.ps.mu.Lock()
	defer s.ps.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	delete(s.ps.subscribers[s.topic], s)
	close(s.ch)
	return nil
}

func (s *inMemorySubscription) Channel() <-chan []byte {
	return s.ch
}
