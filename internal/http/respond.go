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

	"github.com/Wolftown-io/canis/internal/apierror"
	"github.com/Wolftown-io/canis/internal/ids"
	"github.com/gin-gonic/gin"
)

// statusForKind maps an apierror.Kind onto an HTTP status, the one place
// that mapping exists: every handler goes through respondError instead of
// picking a status itself.
func statusForKind(kind apierror.Kind) int {
	switch kind {
	case apierror.KindAuthRequired:
		return http.StatusUnauthorized
	case apierror.KindAuthInvalid:
		return http.StatusUnauthorized
	case apierror.KindPermissionDenied:
		return http.StatusForbidden
	case apierror.KindNotFound:
		return http.StatusNotFound
	case apierror.KindConflict:
		return http.StatusConflict
	case apierror.KindRateLimited:
		return http.StatusTooManyRequests
	case apierror.KindIPBlocked:
		return http.StatusForbidden
	case apierror.KindInvalidArgument:
		return http.StatusBadRequest
	case apierror.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case apierror.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a client-safe JSON body. An internal error never
// crosses the boundary as anything but an opaque correlation id.
func respondError(c *gin.Context, err error) {
	apiErr, ok := apierror.As(err)
	if !ok {
		apiErr = apierror.Wrap(err, ids.New().String())
	}

	body := gin.H{"error": apiErr.Kind, "message": apiErr.Message}
	if apiErr.Kind == apierror.KindInternal {
		if apiErr.CorrelationID == "" {
			apiErr.CorrelationID = ids.New().String()
		}
		body["correlation_id"] = apiErr.CorrelationID
		delete(body, "message")
		body["message"] = "an internal error occurred"
	}
	if apiErr.RetryAfter > 0 {
		body["retry_after"] = int(apiErr.RetryAfter.Seconds())
		c.Header("Retry-After", apiErr.RetryAfter.String())
	}
	c.AbortWithStatusJSON(statusForKind(apiErr.Kind), body)
}
