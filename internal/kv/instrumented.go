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
//
// The source code is available at <https://github.com/Wolftown-io/canis>

package kv

import (
	"context"
	"time"

	"github.com/Wolftown-io/canis/internal/metrics"
)

// Instrument wraps a KV so every call records its outcome and latency
// through m, without the rest of the module needing to know the store is
// observed. internal/cmd wraps the store returned by MakeKV with this
// before handing it to any subsystem.
func Instrument(kv KV, m *metrics.Metrics) KV {
	if m == nil {
		return kv
	}
	return &instrumentedKV{kv: kv, metrics: m}
}

type instrumentedKV struct {
	kv      KV
	metrics *metrics.Metrics
}

func (i *instrumentedKV) observe(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	i.metrics.RecordKVOperation(operation, status, time.Since(start).Seconds())
}

func (i *instrumentedKV) Has(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := i.kv.Has(ctx, key)
	i.observe("has", start, err)
	return ok, err
}

func (i *instrumentedKV) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	value, err := i.kv.Get(ctx, key)
	i.observe("get", start, err)
	return value, err
}

func (i *instrumentedKV) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := i.kv.Set(ctx, key, value)
	i.observe("set", start, err)
	return err
}

func (i *instrumentedKV) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := i.kv.Delete(ctx, key)
	i.observe("delete", start, err)
	return err
}

func (i *instrumentedKV) Expire(ctx context.Context, key string, ttl time.Duration) error {
	start := time.Now()
	err := i.kv.Expire(ctx, key, ttl)
	i.observe("expire", start, err)
	return err
}

func (i *instrumentedKV) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	start := time.Now()
	keys, next, err := i.kv.Scan(ctx, cursor, match, count)
	i.observe("scan", start, err)
	return keys, next, err
}

func (i *instrumentedKV) RPush(ctx context.Context, key string, value []byte) (int64, error) {
	start := time.Now()
	length, err := i.kv.RPush(ctx, key, value)
	i.observe("rpush", start, err)
	return length, err
}

func (i *instrumentedKV) LDrain(ctx context.Context, key string) ([][]byte, error) {
	start := time.Now()
	values, err := i.kv.LDrain(ctx, key)
	i.observe("ldrain", start, err)
	return values, err
}

func (i *instrumentedKV) Close() error {
	return i.kv.Close()
}
