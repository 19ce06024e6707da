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

// Package ratelimit implements a fixed-window limiter: a category-keyed
// atomic increment-and-fetch over internal/kv, identifier
// normalization, a failed-auth shield, and an allowlist with configurable
// fail-open/fail-closed behavior.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/Wolftown-io/canis/internal/config"
	"github.com/Wolftown-io/canis/internal/kv"
)

// ErrRateLimited is returned by callers that fold a denied Result into an
// error return rather than branching on Result.Allowed directly.
var ErrRateLimited = errors.New("ratelimit: request denied")

const (
	failWindow     = 5 * time.Minute
	failThreshold  = 10
	blockTTL       = 15 * time.Minute
)

// Limiter enforces per-category fixed windows plus the failed-auth shield.
type Limiter struct {
	kv        kv.KV
	cfg       config.RateLimit
	allowlist map[string]struct{}
	failOpen  bool
}

func New(store kv.KV, cfg config.RateLimit, allowlist []string, failOpen bool) *Limiter {
	set := make(map[string]struct{}, len(allowlist))
	for _, id := range allowlist {
		set[id] = struct{}{}
	}
	return &Limiter{kv: store, cfg: cfg, allowlist: set, failOpen: failOpen}
}

// Result is the outcome of a limiter check.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
	Blocked    bool
}

// NormalizeIdentifier normalizes an address for rate-limit bucketing: IPv4
// is used literally, IPv6 is truncated to its /64 prefix.
func NormalizeIdentifier(addr string) string {
	ip := net.ParseIP(addr)
	if ip == nil {
		return addr
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	mask := net.CIDRMask(64, 128)
	return ip.Mask(mask).String()
}

// Allow performs the fixed-window check for (category, identifier).
func (l *Limiter) Allow(ctx context.Context, category config.RateLimitCategory, identifier string) (Result, error) {
	if !l.cfg.Enabled {
		return Result{Allowed: true}, nil
	}
	if _, ok := l.allowlist[identifier]; ok {
		return Result{Allowed: true}, nil
	}

	if blocked, retryAfter, err := l.checkBlocked(ctx, identifier); err != nil {
		return l.onBackendError(err)
	} else if blocked {
		return Result{Allowed: false, Blocked: true, RetryAfter: retryAfter}, nil
	}

	window, ok := l.cfg.Categories[category]
	if !ok {
		defaults := config.DefaultRateLimits()
		window = defaults[category]
	}
	if window.Limit <= 0 || window.Window <= 0 {
		return Result{Allowed: true}, nil
	}

	key := fmt.Sprintf("rl:%s:%s", category, identifier)
	count, err := l.incrementWindow(ctx, key, window.Window)
	if err != nil {
		return l.onBackendError(err)
	}
	if count > int64(window.Limit) {
		return Result{Allowed: false, RetryAfter: window.Window}, nil
	}
	return Result{Allowed: true}, nil
}

// RecordAuthFailure increments the failed-auth shield counter for identifier
// and sets the block flag once the threshold is crossed.
func (l *Limiter) RecordAuthFailure(ctx context.Context, identifier string) error {
	key := fmt.Sprintf("rl:fail:%s", identifier)
	count, err := l.incrementWindow(ctx, key, failWindow)
	if err != nil {
		return err
	}
	if count >= failThreshold {
		blockKey := fmt.Sprintf("rl:blocked:%s", identifier)
		if err := l.kv.Set(ctx, blockKey, []byte("1")); err != nil {
			return err
		}
		return l.kv.Expire(ctx, blockKey, blockTTL)
	}
	return nil
}

// ClearAuthFailures resets the failure counter on a successful auth.
func (l *Limiter) ClearAuthFailures(ctx context.Context, identifier string) error {
	return l.kv.Delete(ctx, fmt.Sprintf("rl:fail:%s", identifier))
}

func (l *Limiter) checkBlocked(ctx context.Context, identifier string) (bool, time.Duration, error) {
	blockKey := fmt.Sprintf("rl:blocked:%s", identifier)
	has, err := l.kv.Has(ctx, blockKey)
	if err != nil {
		return false, 0, err
	}
	if !has {
		return false, 0, nil
	}
	return true, blockTTL, nil
}

// incrementWindow implements the atomic increment-and-fetch: RPush's return
// value is the post-push list length, which doubles as the hit count for
// the window. The window's TTL is set once, on the first hit.
func (l *Limiter) incrementWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := l.kv.RPush(ctx, key, []byte{1})
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := l.kv.Expire(ctx, key, window); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (l *Limiter) onBackendError(err error) (Result, error) {
	slog.Warn("rate limiter backend unavailable", "error", err, "fail_open", l.failOpen)
	if l.failOpen {
		return Result{Allowed: true}, nil
	}
	return Result{Allowed: false}, nil
}
