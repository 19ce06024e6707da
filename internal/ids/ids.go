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

// Package ids generates the opaque, lexicographically sortable 128-bit
// identifiers used for every entity in the data model.
package ids

import "github.com/google/uuid"

// ID is an opaque entity identifier. It is a UUIDv7 string: time-ordered,
// so two IDs minted in sequence sort the same way they were created.
type ID string

// New mints a fresh UUIDv7 ID. Falls back to a random UUIDv4 string if
// uuid.NewV7 returns an error (it fails only when reading randomness fails).
func New() ID {
	id, err := uuid.NewV7()
	if err != nil {
		return ID(uuid.NewString())
	}
	return ID(id.String())
}

// Empty reports whether id is the zero value.
func (id ID) Empty() bool {
	return id == ""
}

func (id ID) String() string {
	return string(id)
}

// Parse validates that s is a well-formed ID.
func Parse(s string) (ID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return ID(s), nil
}
