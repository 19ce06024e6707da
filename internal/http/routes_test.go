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
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Wolftown-io/canis/internal/apierror"
	"github.com/Wolftown-io/canis/internal/config"
	"github.com/Wolftown-io/canis/internal/kv"
	"github.com/USA-RedDragon/configulator"
	"github.com/gin-gonic/gin"
)

func newTestParams(t *testing.T) Params {
	t.Helper()
	cfg, err := configulator.New[config.Config]().Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	store, err := kv.MakeKV(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("make kv: %v", err)
	}
	var ready atomic.Bool
	return Params{Config: &cfg, KV: store, Ready: &ready}
}

func TestHealthzAlwaysOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	p := newTestParams(t)
	router := CreateRouter(p)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected /healthz to return 200, got %d", w.Code)
	}
}

func TestReadyzReflectsReadyFlag(t *testing.T) {
	gin.SetMode(gin.TestMode)
	p := newTestParams(t)
	router := CreateRouter(p)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected /readyz to be unavailable before ready, got %d", w.Code)
	}

	p.Ready.Store(true)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected /readyz to return 200 once ready, got %d", w.Code)
	}
}

func TestStatusForKindMapsEveryKnownKind(t *testing.T) {
	cases := []struct {
		kind apierror.Kind
		want int
	}{
		{apierror.KindAuthRequired, http.StatusUnauthorized},
		{apierror.KindAuthInvalid, http.StatusUnauthorized},
		{apierror.KindPermissionDenied, http.StatusForbidden},
		{apierror.KindNotFound, http.StatusNotFound},
		{apierror.KindConflict, http.StatusConflict},
		{apierror.KindRateLimited, http.StatusTooManyRequests},
		{apierror.KindIPBlocked, http.StatusForbidden},
		{apierror.KindInvalidArgument, http.StatusBadRequest},
		{apierror.KindPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{apierror.KindUnavailable, http.StatusServiceUnavailable},
		{apierror.KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range cases {
		if got := statusForKind(tt.kind); got != tt.want {
			t.Errorf("statusForKind(%v) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestRespondErrorHidesInternalCause(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	respondError(c, errors.New("database exploded"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected internal error to map to 500, got %d", w.Code)
	}
	if got := w.Body.String(); !strings.Contains(got, "an internal error occurred") || strings.Contains(got, "database exploded") {
		t.Fatalf("expected internal error body to hide the cause, got: %s", got)
	}
}

func TestRespondErrorSetsRetryAfterHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	respondError(c, apierror.New(apierror.KindRateLimited, "slow down").WithRetryAfter(2*time.Second))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("expected a Retry-After header on a rate-limited response")
	}
}
