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
//
// The source code is available at <https://github.com/Wolftown-io/canis>

// Command canisd runs the gateway in a single binary: gateway websocket,
// voice signaling, and their supporting subsystems.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Wolftown-io/canis/internal/cmd"
	"github.com/Wolftown-io/canis/internal/config"
	"github.com/USA-RedDragon/configulator"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	c := configulator.New[config.Config]()
	rootCmd := cmd.NewCommand(version, commit)

	if err := rootCmd.ExecuteContext(c.Context(context.Background())); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
