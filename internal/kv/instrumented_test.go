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

package kv_test

import (
	"context"
	"testing"

	"github.com/Wolftown-io/canis/internal/kv"
	"github.com/Wolftown-io/canis/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInstrumentRecordsOperations(t *testing.T) {
	store := makeTestKV(t)
	m := metrics.NewMetrics()
	instrumented := kv.Instrument(store, m)
	ctx := context.Background()

	assert.NoError(t, instrumented.Set(ctx, "testkey", []byte("testvalue")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.KVOperationsTotal.WithLabelValues("set", "ok")))

	_, err := instrumented.Get(ctx, "testkey")
	assert.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.KVOperationsTotal.WithLabelValues("get", "ok")))

	_, err = instrumented.Get(ctx, "missingkey")
	assert.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.KVOperationsTotal.WithLabelValues("get", "error")))

	assert.NoError(t, instrumented.Delete(ctx, "testkey"))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.KVOperationsTotal.WithLabelValues("delete", "ok")))
}

func TestInstrumentNilMetricsPassesThrough(t *testing.T) {
	store := makeTestKV(t)
	assert.Equal(t, store, kv.Instrument(store, nil))
}
