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

import "gorm.io/gorm/clause"

// lockingClause is a row lock used by claim-style reads (ClaimPrekey,
// outbox dequeue) to keep two workers from handing out the same row.
// SQLite ignores it; Postgres/MySQL honor it.
func lockingClause() clause.Locking {
	return clause.Locking{Strength: "UPDATE"}
}
