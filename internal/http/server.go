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

// Package http assembles the gin engine carrying the gateway's client-facing
// surface: the session-exchange endpoint, the websocket upgrade, and the
// health/ready probes. Thin CRUD for guilds/channels/roles/invites is left
// to an external collaborator, so this server never embeds or serves a
// frontend bundle.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Wolftown-io/canis/internal/auth"
	"github.com/Wolftown-io/canis/internal/config"
	"github.com/Wolftown-io/canis/internal/gateway"
	httpmw "github.com/Wolftown-io/canis/internal/http/middleware"
	httpsessions "github.com/Wolftown-io/canis/internal/http/sessions"
	"github.com/Wolftown-io/canis/internal/kv"
	"github.com/Wolftown-io/canis/internal/messages"
	"github.com/Wolftown-io/canis/internal/ratelimit"
	"github.com/Wolftown-io/canis/internal/voice"
	"github.com/gin-contrib/cors"
	ginsessions "github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"
)

const defTimeout = 10 * time.Second

// Server wraps an *http.Server, tracking shutdown completion through a
// channel rather than a context so Stop can block until ListenAndServe's
// goroutine actually exits.
type Server struct {
	*http.Server
	shutdownDone chan struct{}
}

// Params carries every constructed subsystem routes.go needs. internal/cmd
// builds one after assembling the rest of the application.
type Params struct {
	Config   *config.Config
	KV       kv.KV
	Hub      *gateway.Hub
	Verifier *auth.Verifier
	Messages *messages.Service
	Voice    *voice.Service
	Limiter  *ratelimit.Limiter
	Ready    *atomic.Bool
}

// MakeServer builds the listener and its gin engine from Params.
func MakeServer(p Params) Server {
	gin.SetMode(gin.ReleaseMode)
	r := CreateRouter(p)

	addr := fmt.Sprintf("%s:%d", p.Config.HTTP.Bind, p.Config.HTTP.Port)
	slog.Info("http server listening", "addr", addr)
	s := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  defTimeout,
		WriteTimeout: defTimeout,
	}
	return Server{Server: s, shutdownDone: make(chan struct{})}
}

// CreateRouter assembles the gin engine: logging/recovery, trusted proxies,
// tracing, CORS, the device-session cookie store, readiness, then the
// routes themselves.
func CreateRouter(p Params) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	if err := r.SetTrustedProxies(p.Config.HTTP.TrustedProxies); err != nil {
		slog.Error("failed setting trusted proxies", "error", err)
	}

	if p.Config.Metrics.OTLPEndpoint != "" {
		r.Use(otelgin.Middleware("canis"))
		r.Use(httpmw.TracingProvider())
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowCredentials = true
	corsConfig.AllowOrigins = p.Config.HTTP.CORSHosts
	r.Use(cors.New(corsConfig))

	sessionStore := httpsessions.NewStore(p.KV, p.Config.GetDerivedSecret())
	r.Use(ginsessions.Sessions(httpmw.SessionCookieName, sessionStore))

	ready := p.Ready
	if ready == nil {
		ready = &atomic.Bool{}
	}
	r.Use(httpmw.ReadinessProvider(ready))

	var sessionRL gin.HandlerFunc
	if p.Limiter != nil {
		store := ratelimit.NewStore(p.Limiter, config.RateLimitCategoryAuth, uint(authRateLimit(p.Config)), authRateLimitWindow(p.Config))
		sessionRL = NewSessionRateLimiter(store)
	}

	applyRoutes(r, Deps{
		Hub:       p.Hub,
		Verifier:  p.Verifier,
		Messages:  p.Messages,
		Voice:     p.Voice,
		SessionRL: sessionRL,
		Ready:     ready,
	})
	return r
}

func authRateLimit(cfg *config.Config) int {
	if w, ok := cfg.RateLimit.Categories[config.RateLimitCategoryAuth]; ok && w.Limit > 0 {
		return w.Limit
	}
	return config.DefaultRateLimits()[config.RateLimitCategoryAuth].Limit
}

func authRateLimitWindow(cfg *config.Config) time.Duration {
	if w, ok := cfg.RateLimit.Categories[config.RateLimitCategoryAuth]; ok && w.Window > 0 {
		return w.Window
	}
	return config.DefaultRateLimits()[config.RateLimitCategoryAuth].Window
}

// Start runs the listener until Stop calls Shutdown or it fails outright.
func (s *Server) Start() error {
	g := new(errgroup.Group)
	g.Go(func() error {
		err := s.ListenAndServe()
		close(s.shutdownDone)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: listen: %w", err)
		}
		return nil
	})
	return g.Wait() //nolint:wrapcheck
}

// Stop drains in-flight requests (10s budget) then waits for Start's
// goroutine to observe the shutdown.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), defTimeout)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	<-s.shutdownDone
}
