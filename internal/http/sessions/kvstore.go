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

// Package sessions backs the device-bound session cookie a client trades its
// externally-issued access token for, so the gateway's websocket upgrade
// (which cannot carry an Authorization header from a browser) can still
// authenticate off a cookie. It implements the gorilla/sessions.Store
// contract over a gob-serialized, securecookie-sealed session blob, backed
// by internal/kv instead of a dedicated *redis.Client, so it works unmodified
// against both the Redis and in-memory kv backends this repo already has.
package sessions

import (
	"bytes"
	"context"
	"encoding/base32"
	"encoding/gob"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Wolftown-io/canis/internal/kv"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

const (
	defaultMaxAge = 20 * time.Minute
	keyPrefix     = "http:session:"
	idKeyLength   = 32
)

// KVStore implements gorilla/sessions.Store on top of internal/kv.KV.
type KVStore struct {
	kv       kv.KV
	codecs   []securecookie.Codec
	maxAge   time.Duration
	template *sessions.Options
}

// NewKVStore builds a store sealing session ids with keyPairs the same way
// securecookie.CodecsFromPairs does for gorilla's own stores: the first key
// in each pair authenticates, the second (optional) encrypts.
func NewKVStore(store kv.KV, keyPairs ...[]byte) *KVStore {
	return &KVStore{
		kv:     store,
		codecs: securecookie.CodecsFromPairs(keyPairs...),
		maxAge: defaultMaxAge,
		template: &sessions.Options{
			Path: "/", MaxAge: int(defaultMaxAge.Seconds()), HttpOnly: true, SameSite: http.SameSiteLaxMode,
		},
	}
}

// setOptions replaces the per-session Options template, applied to every
// session New creates from then on.
func (s *KVStore) setOptions(opts *sessions.Options) {
	s.template = opts
	if opts.MaxAge > 0 {
		s.maxAge = time.Duration(opts.MaxAge) * time.Second
	}
}

// Get returns the named session, registering it so gorilla's request-scoped
// registry only loads it once per request.
func (s *KVStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New returns a session for name without adding it to the registry, loading
// existing data from internal/kv when the request carries a valid cookie.
func (s *KVStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.template
	session.Options = &opts
	session.IsNew = true

	cookie, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}
	if err := securecookie.DecodeMulti(name, cookie.Value, &session.ID, s.codecs...); err != nil {
		return session, nil
	}
	ok, err := s.load(r.Context(), session)
	if err != nil {
		return session, fmt.Errorf("sessions: load: %w", err)
	}
	session.IsNew = !ok
	return session, nil
}

// Save writes session back to internal/kv and sets or clears the cookie.
func (s *KVStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	if session.Options.MaxAge <= 0 {
		if err := s.kv.Delete(r.Context(), keyPrefix+session.ID); err != nil {
			return fmt.Errorf("sessions: delete: %w", err)
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = strings.TrimRight(base32.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(idKeyLength)), "=")
	}
	if err := s.save(r.Context(), session); err != nil {
		return fmt.Errorf("sessions: save: %w", err)
	}
	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.codecs...)
	if err != nil {
		return fmt.Errorf("sessions: encode cookie: %w", err)
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

func (s *KVStore) save(ctx context.Context, session *sessions.Session) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(session.Values); err != nil {
		return fmt.Errorf("encode session values: %w", err)
	}
	age := time.Duration(session.Options.MaxAge) * time.Second
	if age <= 0 {
		age = s.maxAge
	}
	key := keyPrefix + session.ID
	if err := s.kv.Set(ctx, key, buf.Bytes()); err != nil {
		return err
	}
	return s.kv.Expire(ctx, key, age)
}

func (s *KVStore) load(ctx context.Context, session *sessions.Session) (bool, error) {
	data, err := s.kv.Get(ctx, keyPrefix+session.ID)
	if err != nil {
		return false, nil //nolint:nilerr // a missing/expired session is not an error, just "not found"
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&session.Values); err != nil {
		return false, fmt.Errorf("decode session values: %w", err)
	}
	return true, nil
}
