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

package sessions

import (
	ginsessions "github.com/gin-contrib/sessions"
	"github.com/Wolftown-io/canis/internal/kv"
)

// Store is the gin-contrib/sessions contract: a gorilla/sessions.Store plus
// the Options setter gin-contrib's Sessions middleware calls to apply
// per-route cookie overrides.
type Store interface {
	ginsessions.Store
}

type store struct {
	*KVStore
}

// NewStore builds a device-session Store over store, sealed with keyPairs.
func NewStore(kvStore kv.KV, keyPairs ...[]byte) Store {
	return &store{NewKVStore(kvStore, keyPairs...)}
}

// Options satisfies gin-contrib/sessions.Store, letting a route override the
// cookie's Path/Domain/MaxAge/Secure/etc. for sessions created after the call.
func (s *store) Options(options ginsessions.Options) {
	s.setOptions(options.ToGorillaOptions())
}
