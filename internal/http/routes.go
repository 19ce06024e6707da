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

package http

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Wolftown-io/canis/internal/apierror"
	"github.com/Wolftown-io/canis/internal/auth"
	"github.com/Wolftown-io/canis/internal/gateway"
	httpmw "github.com/Wolftown-io/canis/internal/http/middleware"
	"github.com/Wolftown-io/canis/internal/messages"
	"github.com/Wolftown-io/canis/internal/voice"
	ginratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
)

// Deps bundles what routes.go needs to wire every endpoint. internal/cmd
// constructs one of these after assembling every subsystem.
type Deps struct {
	Hub         *gateway.Hub
	Verifier    *auth.Verifier
	Messages    *messages.Service
	Voice       *voice.Service
	SessionRL   gin.HandlerFunc // rate limits the session-exchange endpoint, auth category
	Ready       *atomic.Bool
}

// applyRoutes mounts the gateway's entire client-facing surface: a
// healthcheck pair, the session-exchange endpoint that trades a verified
// access token for the device-bound cookie RequireAuth also accepts, and the
// websocket upgrade itself. Thin CRUD for guilds/channels/roles/invites is
// an external collaborator's job; this router only carries what the
// gateway core must own.
func applyRoutes(r *gin.Engine, deps Deps) {
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/readyz", func(c *gin.Context) {
		ready, _ := c.MustGet("Ready").(*atomic.Bool)
		if ready != nil && ready.Load() {
			c.Status(http.StatusOK)
			return
		}
		c.Status(http.StatusServiceUnavailable)
	})

	v1 := r.Group("/v1")

	sessions := v1.Group("/sessions")
	if deps.SessionRL != nil {
		sessions.Use(deps.SessionRL)
	}
	sessions.POST("", handleEstablishSession(deps.Verifier))

	gatewayGroup := v1.Group("/gateway")
	gatewayGroup.Use(httpmw.RequireAuth(deps.Verifier))
	handler := newIntentHandler(deps.Messages, deps.Voice)
	gatewayGroup.GET("", func(c *gin.Context) {
		userID, _ := c.MustGet(httpmw.UserIDKey).(string)
		deviceID, _ := c.MustGet(httpmw.DeviceIDKey).(string)
		if err := deps.Hub.Accept(c.Writer, c.Request, userID, deviceID, handler); err != nil {
			respondError(c, apierror.Wrap(err, ""))
		}
	})
}

// handleEstablishSession verifies a presented access token and, on success,
// mints the device-bound session cookie a browser's websocket upgrade will
// carry back (browsers cannot set Authorization headers on a ws handshake).
func handleEstablishSession(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			AccessToken string `json:"access_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, apierror.New(apierror.KindInvalidArgument, "access_token is required"))
			return
		}
		claims, err := verifier.Verify(body.AccessToken)
		if err != nil {
			respondError(c, err)
			return
		}
		if err := httpmw.EstablishSession(c, claims.Subject, claims.DeviceID); err != nil {
			respondError(c, apierror.Wrap(err, ""))
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": claims.Subject, "device_id": claims.DeviceID})
	}
}

// NewSessionRateLimiter builds the gin-rate-limit middleware guarding the
// session-exchange endpoint against credential-stuffing-style abuse, backed
// by the shared auth-category store the rest of the rate limiter uses.
func NewSessionRateLimiter(store ginratelimit.Store) gin.HandlerFunc {
	return ginratelimit.RateLimiter(store, &ginratelimit.Options{
		ErrorHandler: func(c *gin.Context, info ginratelimit.Info) {
			retryAfter := time.Until(info.ResetTime)
			if retryAfter < 0 {
				retryAfter = 0
			}
			respondError(c, apierror.New(apierror.KindRateLimited, "too many session requests").WithRetryAfter(retryAfter))
		},
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})
}
