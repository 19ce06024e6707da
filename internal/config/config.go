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

package config

import (
	"crypto/sha256"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// Config stores the application configuration, loaded through configulator
// from environment variables and (optionally) a config file.
type Config struct {
	LogLevel     LogLevel `default:"info"`
	Secret       string
	PasswordSalt string

	HTTP      HTTP
	Database  Database
	Redis     Redis
	Auth      Auth
	RateLimit RateLimit
	Voice     Voice
	Session   Session
	Metrics   Metrics
	PProf     PProf
}

// HTTP configures the public-facing HTTP/WebSocket listener.
type HTTP struct {
	Bind           string `default:"[::]"`
	Port           int    `default:"3005"`
	CanonicalHost  string
	CORSHosts      []string
	TrustedProxies []string
	RobotsTXT      RobotsTXT
}

// RobotsTXT controls the robots.txt response served at the HTTP root.
type RobotsTXT struct {
	Mode    RobotsTXTMode `default:"disabled"`
	Content string
}

// Database configures the GORM connection used as the system of record.
type Database struct {
	Driver          DatabaseDriver `default:"sqlite"`
	Host            string
	Port            int
	Database        string `default:"canis.db"`
	Username        string
	Password        string
	ExtraParameters []string
}

// Redis configures the shared kv/pubsub backend. When disabled, both
// internal/kv and internal/pubsub fall back to in-process implementations,
// which is only suitable for a single-instance deployment or tests.
type Redis struct {
	Enabled  bool
	Host     string
	Port     int `default:"6379"`
	Password string
}

// Auth configures verification of externally-issued access tokens. Issuance
// of tokens (login, registration, password reset) is out of scope for this
// repository; this section only governs how a presented token is checked.
type Auth struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration `default:"30s"`
}

// RateLimitWindow is a single fixed-window limit for one rate-limit category.
type RateLimitWindow struct {
	Limit  int
	Window time.Duration
}

// RateLimit configures the per-category limits enforced by internal/ratelimit.
// Categories left unset fall back to DefaultRateLimits.
type RateLimit struct {
	Enabled    bool `default:"true"`
	Categories map[RateLimitCategory]RateLimitWindow
}

// DefaultRateLimits are the category windows applied when RateLimit.Categories
// does not override a category.
func DefaultRateLimits() map[RateLimitCategory]RateLimitWindow {
	return map[RateLimitCategory]RateLimitWindow{
		RateLimitCategoryMessage:   {Limit: 10, Window: 10 * time.Second},
		RateLimitCategoryReaction:  {Limit: 20, Window: 10 * time.Second},
		RateLimitCategorySignaling: {Limit: 30, Window: 10 * time.Second},
		RateLimitCategoryPresence:  {Limit: 5, Window: 10 * time.Second},
		RateLimitCategoryAuth:      {Limit: 5, Window: time.Minute},
	}
}

// Voice configures call signaling timeouts and SFU admission. RingTimeout
// and ICERenegotiationTimeout default to the call state machine's ringing
// timeout and single renegotiation attempt before eviction; the others are
// ambient knobs left to operator judgment.
type Voice struct {
	RingTimeout             time.Duration `default:"45s"`
	ICERenegotiationTimeout time.Duration `default:"10s"`
	HeartbeatInterval       time.Duration `default:"15s"`
	HeartbeatTimeout        time.Duration `default:"45s"`
	MaxParticipantsPerSFU   int           `default:"25"`
	STUNServers             []string
}

// Session configures the per-connection outbound queue maintained by
// internal/gateway.
type Session struct {
	BacklogMax        int           `default:"256"`
	OutboundHighWater int           `default:"128"`
	SendTimeout       time.Duration `default:"5s"`
}

// Metrics configures the Prometheus exposition server.
type Metrics struct {
	Enabled      bool
	Bind         string `default:"[::]"`
	Port         int    `default:"9000"`
	OTLPEndpoint string
}

// PProf configures the debug profiling server.
type PProf struct {
	Enabled bool
	Bind    string `default:"localhost"`
	Port    int    `default:"6060"`
}

const (
	derivedSecretIterations = 4096
	derivedSecretKeyLen     = 32
)

// GetDerivedSecret derives the HMAC signing key for internal/auth from the
// configured Secret and PasswordSalt via pbkdf2.
func (c Config) GetDerivedSecret() []byte {
	return pbkdf2.Key([]byte(c.Secret), []byte(c.PasswordSalt), derivedSecretIterations, derivedSecretKeyLen, sha256.New)
}
