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

// Package permissions resolves the effective permission bitset for a
// (user, channel) pair per the layered role/override algorithm, and is the only
// authoritative gate consulted by the gateway, message pipeline, and voice
// signaling. No subsystem reads role/override rows directly.
package permissions

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Wolftown-io/canis/internal/db/models"
	"github.com/Wolftown-io/canis/internal/kv"
	"github.com/mitchellh/hashstructure/v2"
	"gorm.io/gorm"
)

const cacheTTL = 5 * time.Minute

// Resolver computes and caches effective permissions.
type Resolver struct {
	db *gorm.DB
	kv kv.KV
}

func NewResolver(db *gorm.DB, store kv.KV) *Resolver {
	return &Resolver{db: db, kv: store}
}

type cacheEntry struct {
	Bits    models.Permission
	Version uint64
}

// Check is the single gate every caller uses: does (user, channel) hold bit?
func (r *Resolver) Check(ctx context.Context, userID, channelID string, bit models.Permission) (bool, error) {
	bits, err := r.Effective(ctx, userID, channelID)
	if err != nil {
		return false, err
	}
	return bits.Has(bit), nil
}

// Effective computes the effective bitset for (user, channel), consulting
// the version-stamped cache first.
func (r *Resolver) Effective(ctx context.Context, userID, channelID string) (models.Permission, error) {
	channel, err := models.FindChannelByID(r.db, channelID)
	if err != nil {
		return 0, fmt.Errorf("permissions: find channel: %w", err)
	}

	if channel.GuildID == "" {
		// dm/group_dm: a participant has full send/view rights within the
		// channel, there's no role hierarchy to resolve against, but
		// non-participants hold nothing.
		participant, err := isChannelParticipant(r.db, channel.ID, userID)
		if err != nil {
			return 0, fmt.Errorf("permissions: check channel participant: %w", err)
		}
		if !participant {
			return 0, nil
		}
		return models.PermissionAll, nil
	}

	version, err := r.currentVersion(ctx, channel.GuildID, channelID)
	if err != nil {
		return 0, err
	}

	cacheKey := fmt.Sprintf("perm:%s:%s", userID, channelID)
	if cached, ok, err := r.readCache(ctx, cacheKey); err == nil && ok && cached.Version == version {
		return cached.Bits, nil
	}

	bits, err := r.compute(userID, channel)
	if err != nil {
		return 0, err
	}

	r.writeCache(ctx, cacheKey, cacheEntry{Bits: bits, Version: version})
	return bits, nil
}

// isChannelParticipant reports whether userID is a member of a dm/group_dm
// channel, mirroring the non-guild branch of internal/messages.userInChannel.
func isChannelParticipant(db *gorm.DB, channelID, userID string) (bool, error) {
	var count int64
	err := db.Model(&models.ChannelParticipant{}).
		Where("channel_id = ? AND user_id = ?", channelID, userID).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Resolver) compute(userID string, channel *models.Channel) (models.Permission, error) {
	guild, err := models.FindGuildByID(r.db, channel.GuildID)
	if err != nil {
		return 0, fmt.Errorf("permissions: find guild: %w", err)
	}
	if guild.OwnerID == userID {
		return models.PermissionAll, nil
	}

	membership, err := models.FindMembership(r.db, userID, guild.ID)
	if err != nil {
		// No membership: only @everyone applies, with no channel overrides
		// beyond the role override (there can be no member override either).
		membership = &models.Membership{UserID: userID, GuildID: guild.ID}
	}

	roles, err := models.ListRolesForGuild(r.db, guild.ID)
	if err != nil {
		return 0, fmt.Errorf("permissions: list roles: %w", err)
	}
	roleByID := make(map[string]models.Role, len(roles))
	for _, role := range roles {
		roleByID[role.ID] = role
	}

	memberRoleIDs := make(map[string]struct{}, len(membership.RoleIDs)+1)
	for _, id := range membership.RoleIDs {
		memberRoleIDs[id] = struct{}{}
	}
	var everyone models.Role
	for _, role := range roles {
		if role.IsEveryone() {
			everyone = role
			memberRoleIDs[role.ID] = struct{}{}
			break
		}
	}

	var base models.Permission
	var memberRoles []models.Role
	for id := range memberRoleIDs {
		if role, ok := roleByID[id]; ok {
			base |= role.Permissions
			memberRoles = append(memberRoles, role)
		}
	}
	_ = everyone

	if base.Has(models.PermissionAdministrator) {
		return models.PermissionAll, nil
	}

	sort.Slice(memberRoles, func(i, j int) bool { return memberRoles[i].Rank < memberRoles[j].Rank })

	overrides, err := models.ListOverridesForChannel(r.db, channel.ID)
	if err != nil {
		return 0, fmt.Errorf("permissions: list overrides: %w", err)
	}
	overridesByRole := make(map[string]models.PermissionOverride)
	var memberOverride *models.PermissionOverride
	for i := range overrides {
		o := overrides[i]
		switch o.SubjectKind {
		case models.OverrideSubjectRole:
			overridesByRole[o.SubjectID] = o
		case models.OverrideSubjectMember:
			if o.SubjectID == userID {
				memberOverride = &o
			}
		}
	}

	for _, role := range memberRoles {
		if o, ok := overridesByRole[role.ID]; ok {
			base = (base &^ o.Deny) | o.Allow
		}
	}
	if memberOverride != nil {
		base = (base &^ memberOverride.Deny) | memberOverride.Allow
	}

	return base, nil
}

// currentVersion hashes the guild's mutable permission inputs (roles,
// membership, overrides) into a single version stamp. A write to any of
// those rows changes the hash, which is equivalent to bumping a version
// counter without having to track one explicitly per entity.
func (r *Resolver) currentVersion(ctx context.Context, guildID, channelID string) (uint64, error) {
	versionKey := fmt.Sprintf("permver:%s:%s", guildID, channelID)
	if raw, err := r.kv.Get(ctx, versionKey); err == nil && len(raw) == 8 {
		return binary.BigEndian.Uint64(raw), nil
	}

	roles, err := models.ListRolesForGuild(r.db, guildID)
	if err != nil {
		return 0, fmt.Errorf("permissions: version roles: %w", err)
	}
	overrides, err := models.ListOverridesForChannel(r.db, channelID)
	if err != nil {
		return 0, fmt.Errorf("permissions: version overrides: %w", err)
	}
	memberships, err := models.ListMembershipsForGuild(r.db, guildID)
	if err != nil {
		return 0, fmt.Errorf("permissions: version memberships: %w", err)
	}

	hash, err := hashstructure.Hash(struct {
		Roles       []models.Role
		Overrides   []models.PermissionOverride
		Memberships []models.Membership
	}{roles, overrides, memberships}, hashstructure.FormatV2, nil)
	if err != nil {
		return 0, fmt.Errorf("permissions: hash version inputs: %w", err)
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, hash)
	_ = r.kv.Set(ctx, versionKey, buf)
	_ = r.kv.Expire(ctx, versionKey, cacheTTL)
	return hash, nil
}

// Invalidate bumps the version for (guildID, channelID) so every cached
// entry keyed against the old version is treated as stale. Callers invoke
// this on any role/membership/override mutation.
func (r *Resolver) Invalidate(ctx context.Context, guildID, channelID string) error {
	return r.kv.Delete(ctx, fmt.Sprintf("permver:%s:%s", guildID, channelID))
}

func (r *Resolver) readCache(ctx context.Context, key string) (cacheEntry, bool, error) {
	raw, err := r.kv.Get(ctx, key)
	if err != nil {
		return cacheEntry{}, false, nil
	}
	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return cacheEntry{}, false, fmt.Errorf("permissions: decode cache entry: %w", err)
	}
	return entry, true, nil
}

func (r *Resolver) writeCache(ctx context.Context, key string, entry cacheEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := r.kv.Set(ctx, key, raw); err != nil {
		return
	}
	_ = r.kv.Expire(ctx, key, cacheTTL)
}
