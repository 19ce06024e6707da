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

// Package auth verifies externally-issued access tokens. Issuance (login,
// registration, refresh) happens in an external collaborator; this package
// only checks a presented token's signature, audience, issuer, and expiry.
//
// No JWT library appears anywhere in the retrieval pack, so this verifier is
// hand-rolled against the standard library only (crypto/hmac, encoding/json,
// encoding/base64) rather than pulling in an unrelated dependency. It
// implements exactly the compact HS256 JWT subset: header.payload.signature,
// base64url without padding.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Wolftown-io/canis/internal/apierror"
	"github.com/Wolftown-io/canis/internal/config"
)

type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// Claims is the subset of JWT registered claims this verifier checks.
type Claims struct {
	Subject   string `json:"sub"`
	DeviceID  string `json:"device_id,omitempty"`
	Issuer    string `json:"iss,omitempty"`
	Audience  string `json:"aud,omitempty"`
	ExpiresAt int64  `json:"exp"`
	IssuedAt  int64  `json:"iat"`
}

// Verifier checks tokens against a derived HMAC secret and the configured
// issuer/audience/clock-skew tolerance.
type Verifier struct {
	secret    []byte
	issuer    string
	audience  string
	clockSkew time.Duration
}

func NewVerifier(cfg *config.Config) *Verifier {
	return &Verifier{
		secret:    cfg.GetDerivedSecret(),
		issuer:    cfg.Auth.Issuer,
		audience:  cfg.Auth.Audience,
		clockSkew: cfg.Auth.ClockSkew,
	}
}

// Verify validates signature, expiry, issuer, and audience, returning the
// claims on success. Every failure is apierror.KindAuthInvalid; its message
// names the check that failed.
func (v *Verifier) Verify(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, apierror.New(apierror.KindAuthInvalid, "malformed token")
	}

	signingInput := parts[0] + "." + parts[1]
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, apierror.New(apierror.KindAuthInvalid, "malformed token signature")
	}
	expected := v.sign(signingInput)
	if subtle.ConstantTimeCompare(sig, expected) != 1 {
		return nil, apierror.New(apierror.KindAuthInvalid, "invalid token signature")
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, apierror.New(apierror.KindAuthInvalid, "malformed token header")
	}
	var hdr header
	if err := json.Unmarshal(headerBytes, &hdr); err != nil {
		return nil, apierror.New(apierror.KindAuthInvalid, "malformed token header")
	}
	if hdr.Alg != "HS256" {
		return nil, apierror.New(apierror.KindAuthInvalid, "unsupported token algorithm")
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, apierror.New(apierror.KindAuthInvalid, "malformed token payload")
	}
	var claims Claims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return nil, apierror.New(apierror.KindAuthInvalid, "malformed token claims")
	}

	now := time.Now()
	if claims.ExpiresAt != 0 && now.After(time.Unix(claims.ExpiresAt, 0).Add(v.clockSkew)) {
		return nil, apierror.New(apierror.KindAuthInvalid, "token expired")
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, apierror.New(apierror.KindAuthInvalid, "unexpected token issuer")
	}
	if v.audience != "" && claims.Audience != v.audience {
		return nil, apierror.New(apierror.KindAuthInvalid, "unexpected token audience")
	}
	if claims.Subject == "" {
		return nil, apierror.New(apierror.KindAuthInvalid, "missing token subject")
	}

	return &claims, nil
}

func (v *Verifier) sign(signingInput string) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(signingInput))
	return mac.Sum(nil)
}

// Sign issues a token. Only used by tests and local tooling that need to
// mint a token without the external issuance collaborator.
func (v *Verifier) Sign(claims Claims) (string, error) {
	hdrBytes, err := json.Marshal(header{Alg: "HS256", Typ: "JWT"})
	if err != nil {
		return "", fmt.Errorf("auth: marshal header: %w", err)
	}
	payloadBytes, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("auth: marshal claims: %w", err)
	}
	signingInput := base64.RawURLEncoding.EncodeToString(hdrBytes) + "." +
		base64.RawURLEncoding.EncodeToString(payloadBytes)
	sig := v.sign(signingInput)
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}
