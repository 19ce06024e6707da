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
	"time"

	"gorm.io/gorm"
)

// CallStatus is the coarse state of the call state machine.
type CallStatus string

const (
	CallStatusRinging CallStatus = "ringing"
	CallStatusActive  CallStatus = "active"
	CallStatusEnded   CallStatus = "ended"
)

// CallEndReason is set only once Status == ended.
type CallEndReason string

const (
	CallEndReasonCancelled    CallEndReason = "cancelled"
	CallEndReasonAllDeclined  CallEndReason = "all_declined"
	CallEndReasonNoAnswer     CallEndReason = "no_answer"
	CallEndReasonLastLeft     CallEndReason = "last_left"
)

// Call is the one active call for a Channel.
type Call struct {
	ID         string `gorm:"primaryKey"`
	ChannelID  string `gorm:"uniqueIndex:idx_one_active_call_per_channel,where:status<>'ended'"`
	InitiatorID string
	Status     CallStatus `gorm:"index"`
	EndReason  CallEndReason
	StartedAt  time.Time
	EndedAt    *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Call) TableName() string {
	return "calls"
}

// CallParticipant is a row in a Call's participant map. Declined tracks the
// ringing/all_declined transition independent of CallStatus.
type CallParticipant struct {
	CallID    string `gorm:"primaryKey"`
	UserID    string `gorm:"primaryKey"`
	JoinedAt  *time.Time
	Mute      bool
	Deafen    bool
	Speaking  bool
	Declined  bool
}

func (CallParticipant) TableName() string {
	return "call_participants"
}

func FindActiveCallForChannel(db *gorm.DB, channelID string) (*Call, error) {
	var call Call
	err := db.Where("channel_id = ? AND status <> ?", channelID, CallStatusEnded).First(&call).Error
	if err != nil {
		return nil, err
	}
	return &call, nil
}

func ListCallParticipants(db *gorm.DB, callID string) ([]CallParticipant, error) {
	var participants []CallParticipant
	if err := db.Where("call_id = ?", callID).Find(&participants).Error; err != nil {
		return nil, err
	}
	return participants, nil
}

func EndCall(db *gorm.DB, callID string, reason CallEndReason) error {
	now := time.Now().UTC()
	return db.Model(&Call{}).Where("id = ?", callID).Updates(map[string]any{
		"status":     CallStatusEnded,
		"end_reason": reason,
		"ended_at":   &now,
	}).Error
}
