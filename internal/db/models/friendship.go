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

package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrAlreadyBlocked is returned when a friend request targets a user who has
// blocked the requester.
var ErrAlreadyBlocked = errors.New("models: addressee has blocked requester")

// FriendshipStatus is the state of a (requester, addressee) edge.
type FriendshipStatus string

const (
	FriendshipStatusPending  FriendshipStatus = "pending"
	FriendshipStatusAccepted FriendshipStatus = "accepted"
	FriendshipStatusBlocked  FriendshipStatus = "blocked"
)

// Friendship is a directed edge; an accepted friendship exists as a pair of
// rows (one per direction) so each side can independently block.
type Friendship struct {
	RequesterID string `gorm:"primaryKey"`
	AddresseeID string `gorm:"primaryKey;index"`
	Status      FriendshipStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Friendship) TableName() string {
	return "friendships"
}

func FindFriendship(db *gorm.DB, requesterID, addresseeID string) (*Friendship, error) {
	var f Friendship
	err := db.First(&f, "requester_id = ? AND addressee_id = ?", requesterID, addresseeID).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func ListBlockedBy(db *gorm.DB, userID string) ([]string, error) {
	var blocked []string
	err := db.Model(&Friendship{}).
		Where("requester_id = ? AND status = ?", userID, FriendshipStatusBlocked).
		Pluck("addressee_id", &blocked).Error
	return blocked, err
}

// ListFriends returns the ids of userID's accepted friends.
func ListFriends(db *gorm.DB, userID string) ([]string, error) {
	var friends []string
	err := db.Model(&Friendship{}).
		Where("requester_id = ? AND status = ?", userID, FriendshipStatusAccepted).
		Pluck("addressee_id", &friends).Error
	return friends, err
}

func AreFriends(db *gorm.DB, userA, userB string) (bool, error) {
	var count int64
	err := db.Model(&Friendship{}).
		Where("requester_id = ? AND addressee_id = ? AND status = ?", userA, userB, FriendshipStatusAccepted).
		Count(&count).Error
	return count > 0, err
}

// SendFriendRequest creates a pending edge from requesterID to addresseeID.
// Refuses if addresseeID has blocked requesterID.
func SendFriendRequest(db *gorm.DB, requesterID, addresseeID string) error {
	blocked, err := FindFriendship(db, addresseeID, requesterID)
	if err == nil && blocked.Status == FriendshipStatusBlocked {
		return ErrAlreadyBlocked
	}
	now := time.Now().UTC()
	return db.Exec(`
		INSERT INTO friendships (requester_id, addressee_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (requester_id, addressee_id) DO UPDATE SET
			status = excluded.status, updated_at = excluded.updated_at`,
		requesterID, addresseeID, FriendshipStatusPending, now, now).Error
}

// AcceptFriendRequest flips the pending requester->addressee edge to
// accepted and creates the reciprocal addressee->requester edge, so each
// side has an independent row to block through later.
func AcceptFriendRequest(db *gorm.DB, requesterID, addresseeID string) error {
	now := time.Now().UTC()
	return db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Friendship{}).
			Where("requester_id = ? AND addressee_id = ? AND status = ?", requesterID, addresseeID, FriendshipStatusPending).
			Updates(map[string]any{"status": FriendshipStatusAccepted, "updated_at": now})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Exec(`
			INSERT INTO friendships (requester_id, addressee_id, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (requester_id, addressee_id) DO UPDATE SET
				status = excluded.status, updated_at = excluded.updated_at`,
			addresseeID, requesterID, FriendshipStatusAccepted, now, now).Error
	})
}

// RemoveFriend deletes both directions of an accepted friendship, or a
// pending request in either direction.
func RemoveFriend(db *gorm.DB, userA, userB string) error {
	return db.Where("(requester_id = ? AND addressee_id = ?) OR (requester_id = ? AND addressee_id = ?)",
		userA, userB, userB, userA).Delete(&Friendship{}).Error
}

// BlockUser sets (or creates) the requester->addressee edge to blocked, and
// drops any edge the addressee held in the other direction so a blocked
// user cannot keep an accepted friendship alive on their side.
func BlockUser(db *gorm.DB, requesterID, addresseeID string) error {
	now := time.Now().UTC()
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`
			INSERT INTO friendships (requester_id, addressee_id, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (requester_id, addressee_id) DO UPDATE SET
				status = excluded.status, updated_at = excluded.updated_at`,
			requesterID, addresseeID, FriendshipStatusBlocked, now, now).Error; err != nil {
			return err
		}
		return tx.Where("requester_id = ? AND addressee_id = ?", addresseeID, requesterID).Delete(&Friendship{}).Error
	})
}

// UnblockUser removes a blocked edge.
func UnblockUser(db *gorm.DB, requesterID, addresseeID string) error {
	return db.Where("requester_id = ? AND addressee_id = ? AND status = ?", requesterID, addresseeID, FriendshipStatusBlocked).
		Delete(&Friendship{}).Error
}
