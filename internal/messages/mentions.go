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

package messages

import (
	"regexp"
	"strings"

	"github.com/Wolftown-io/canis/internal/db/models"
	"gorm.io/gorm"
)

var mentionPattern = regexp.MustCompile(`<@(user|role):([0-9a-fA-F-]+)>`)

const everyoneMarkup = "@everyone"

// resolveMentions scans content for mention markup and resolves each
// against the channel's actual roles/membership, dropping anything that
// doesn't resolve: an unknown mention is silently dropped. everyoneAllowed
// gates whether a literal "@everyone" is honored; the caller has already
// checked the author holds MentionEveryone before passing true.
func resolveMentions(db *gorm.DB, channel *models.Channel, content string, everyoneAllowed bool) []models.Mention {
	var mentions []models.Mention

	if everyoneAllowed && strings.Contains(content, everyoneMarkup) {
		mentions = append(mentions, models.Mention{Kind: models.MentionKindEveryone})
	}

	for _, match := range mentionPattern.FindAllStringSubmatch(content, -1) {
		kind, id := match[1], match[2]
		switch kind {
		case "role":
			if channel.GuildID == "" {
				continue
			}
			if role, err := models.FindRoleByID(db, id); err != nil || role.GuildID != channel.GuildID {
				continue
			}
			mentions = append(mentions, models.Mention{Kind: models.MentionKindRole, ID: id})
		case "user":
			if !userInChannel(db, channel, id) {
				continue
			}
			mentions = append(mentions, models.Mention{Kind: models.MentionKindUser, ID: id})
		}
	}
	return mentions
}

func userInChannel(db *gorm.DB, channel *models.Channel, userID string) bool {
	if channel.GuildID != "" {
		_, err := models.FindMembership(db, userID, channel.GuildID)
		return err == nil
	}
	var count int64
	err := db.Model(&models.ChannelParticipant{}).
		Where("channel_id = ? AND user_id = ?", channel.ID, userID).Count(&count).Error
	return err == nil && count > 0
}
