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

// Package social is the friend-request/block service backing the unread-
// count filter and the presence friend fan-out. It is a thin
// layer over internal/db/models's Friendship queries; no permission check
// applies since friendship is a relation between users, not a guild/channel
// grant.
package social

import (
	"context"
	"fmt"

	"github.com/Wolftown-io/canis/internal/db/models"
	"gorm.io/gorm"
)

type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) SendRequest(ctx context.Context, requesterID, addresseeID string) error {
	if err := models.SendFriendRequest(s.db, requesterID, addresseeID); err != nil {
		return fmt.Errorf("social: send request: %w", err)
	}
	return nil
}

func (s *Service) Accept(ctx context.Context, requesterID, addresseeID string) error {
	if err := models.AcceptFriendRequest(s.db, requesterID, addresseeID); err != nil {
		return fmt.Errorf("social: accept: %w", err)
	}
	return nil
}

// Decline removes a pending request without creating a block.
func (s *Service) Decline(ctx context.Context, requesterID, addresseeID string) error {
	if err := models.RemoveFriend(s.db, requesterID, addresseeID); err != nil {
		return fmt.Errorf("social: decline: %w", err)
	}
	return nil
}

func (s *Service) Remove(ctx context.Context, userA, userB string) error {
	if err := models.RemoveFriend(s.db, userA, userB); err != nil {
		return fmt.Errorf("social: remove: %w", err)
	}
	return nil
}

func (s *Service) Block(ctx context.Context, requesterID, addresseeID string) error {
	if err := models.BlockUser(s.db, requesterID, addresseeID); err != nil {
		return fmt.Errorf("social: block: %w", err)
	}
	return nil
}

func (s *Service) Unblock(ctx context.Context, requesterID, addresseeID string) error {
	if err := models.UnblockUser(s.db, requesterID, addresseeID); err != nil {
		return fmt.Errorf("social: unblock: %w", err)
	}
	return nil
}

func (s *Service) ListFriends(ctx context.Context, userID string) ([]string, error) {
	friends, err := models.ListFriends(s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("social: list friends: %w", err)
	}
	return friends, nil
}

func (s *Service) ListBlocked(ctx context.Context, userID string) ([]string, error) {
	blocked, err := models.ListBlockedBy(s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("social: list blocked: %w", err)
	}
	return blocked, nil
}

func (s *Service) AreFriends(ctx context.Context, userA, userB string) (bool, error) {
	ok, err := models.AreFriends(s.db, userA, userB)
	if err != nil {
		return false, fmt.Errorf("social: are friends: %w", err)
	}
	return ok, nil
}
