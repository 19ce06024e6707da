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

// Package pprof serves net/http/pprof's debug endpoints behind their own
// listener, off by default, for profiling a running gateway instance.
package pprof

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Wolftown-io/canis/internal/config"
	ginpprof "github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
)

const readTimeout = 3 * time.Second

// CreatePProfServer blocks serving the debug profiling endpoints when
// enabled; the caller runs it in its own goroutine. A no-op when disabled.
func CreatePProfServer(cfg *config.Config) {
	if !cfg.PProf.Enabled {
		return
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	ginpprof.Register(r)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.PProf.Bind, cfg.PProf.Port),
		Handler:           r,
		ReadHeaderTimeout: readTimeout,
	}
	slog.Info("pprof server listening", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("pprof server stopped", "error", err)
	}
}
