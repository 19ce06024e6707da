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

package middleware

import (
	"net/http"
	"strings"

	"github.com/Wolftown-io/canis/internal/apierror"
	"github.com/Wolftown-io/canis/internal/auth"
	ginsessions "github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	// UserIDKey and DeviceIDKey are the gin context keys RequireAuth sets on
	// success. Route handlers read them instead of re-deriving identity.
	UserIDKey   = "auth.user_id"
	DeviceIDKey = "auth.device_id"

	// SessionCookieName is the cookie name the HTTP server must register
	// with gin-contrib/sessions for fromSession/EstablishSession to agree.
	SessionCookieName = "canis_session"

	sessionUser   = "user_id"
	sessionDevice = "device_id"
)

// RequireAuth accepts either a fresh `Authorization: Bearer <token>` header
// or the device-bound session cookie minted by the session-exchange route,
// since a websocket upgrade from a browser cannot set arbitrary headers but
// can carry a cookie. Bearer wins when both are present, so a client that
// just rotated its token isn't stuck on a stale cookie until it expires.
func RequireAuth(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, deviceID, ok := fromBearer(c, verifier); ok {
			c.Set(UserIDKey, userID)
			c.Set(DeviceIDKey, deviceID)
			c.Next()
			return
		}
		if userID, deviceID, ok := fromSession(c); ok {
			c.Set(UserIDKey, userID)
			c.Set(DeviceIDKey, deviceID)
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": apierror.KindAuthRequired, "message": "authentication required",
		})
	}
}

func fromBearer(c *gin.Context, verifier *auth.Verifier) (userID, deviceID string, ok bool) {
	header := c.GetHeader("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", "", false
	}
	claims, err := verifier.Verify(token)
	if err != nil {
		return "", "", false
	}
	return claims.Subject, claims.DeviceID, true
}

func fromSession(c *gin.Context) (userID, deviceID string, ok bool) {
	session := ginsessions.Default(c)
	uid, _ := session.Get(sessionUser).(string)
	did, _ := session.Get(sessionDevice).(string)
	if uid == "" {
		return "", "", false
	}
	return uid, did, true
}

// EstablishSession stamps the verified identity into the request's session
// and saves it, minting the cookie the websocket upgrade will later read.
func EstablishSession(c *gin.Context, userID, deviceID string) error {
	session := ginsessions.Default(c)
	session.Set(sessionUser, userID)
	session.Set(sessionDevice, deviceID)
	return session.Save() //nolint:wrapcheck // caller decides how to present the error
}
