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

package ratelimit

import (
	"context"
	"log/slog"
	"time"

	ginratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/Wolftown-io/canis/internal/config"
	"github.com/gin-gonic/gin"
)

// Store adapts a Limiter category to the gin-rate-limit middleware
// contract, in the shape of a GORMStore but backed by the shared kv
// fixed-window counters instead of a row per key.
type Store struct {
	limiter  *Limiter
	category config.RateLimitCategory
	window   time.Duration
	limit    uint
}

func NewStore(limiter *Limiter, category config.RateLimitCategory, limit uint, window time.Duration) *Store {
	return &Store{limiter: limiter, category: category, window: window, limit: limit}
}

// Limit satisfies ginratelimit.Store.
func (s *Store) Limit(key string, _ *gin.Context) ginratelimit.Info {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := s.limiter.Allow(ctx, s.category, key)
	if err != nil {
		slog.Error("rate limit store check failed", "error", err)
		return ginratelimit.Info{Limit: s.limit, RemainingHits: s.limit, ResetTime: time.Now().Add(s.window)}
	}

	info := ginratelimit.Info{Limit: s.limit, ResetTime: time.Now().Add(s.window)}
	if result.Allowed {
		info.RemainingHits = s.limit
	} else {
		info.RateLimited = true
		info.RemainingHits = 0
		if result.RetryAfter > 0 {
			info.ResetTime = time.Now().Add(result.RetryAfter)
		}
	}
	return info
}
