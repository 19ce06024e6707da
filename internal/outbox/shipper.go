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

// Package outbox ships rows written by internal/messages onto the bus and
// deletes them once published. A row
// surviving a crash between write and publish is picked up and replayed by
// the next poll; publish is therefore at-least-once from the bus's
// perspective, which the gateway's per-channel sequence makes safe to
// re-deliver (a session re-seeing a sequence it already applied is a no-op
// on the client).
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Wolftown-io/canis/internal/db/models"
	"github.com/Wolftown-io/canis/internal/pubsub"
	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

const (
	defaultPollInterval = 250 * time.Millisecond
	defaultBatchSize    = 100
)

// Shipper polls the outbox table and publishes each row to its topic.
type Shipper struct {
	db           *gorm.DB
	bus          pubsub.PubSub
	pollInterval time.Duration
	batchSize    int
}

func New(db *gorm.DB, bus pubsub.PubSub) *Shipper {
	return &Shipper{db: db, bus: bus, pollInterval: defaultPollInterval, batchSize: defaultBatchSize}
}

// Schedule registers the shipper's poll loop on scheduler, mirroring the
// teacher's periodic-job registration in internal/cmd/root.go.
func (s *Shipper) Schedule(scheduler gocron.Scheduler) error {
	_, err := scheduler.NewJob(
		gocron.DurationJob(s.pollInterval),
		gocron.NewTask(func() {
			if err := s.ShipOnce(context.Background()); err != nil {
				slog.Error("outbox ship failed", "error", err)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("outbox: schedule: %w", err)
	}
	return nil
}

// ShipOnce claims and publishes undelivered rows batch by batch. It
// loops until a batch comes back short of batchSize, so a backlog drains
// within one invocation rather than trickling out one poll interval at a
// time.
func (s *Shipper) ShipOnce(ctx context.Context) error {
	for {
		n, err := s.shipBatch(ctx)
		if err != nil {
			return err
		}
		if n < s.batchSize {
			return nil
		}
	}
}

func (s *Shipper) shipBatch(ctx context.Context) (int, error) {
	var rows []models.OutboxRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := models.ClaimOutboxBatch(tx, s.batchSize)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		rows = claimed

		for _, row := range rows {
			if err := s.bus.Publish(row.Topic, row.Payload); err != nil {
				return fmt.Errorf("publish %s: %w", row.ID, err)
			}
			if err := models.DeleteOutboxRow(tx, row.ID); err != nil {
				return fmt.Errorf("delete %s: %w", row.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("outbox: %w", err)
	}
	return len(rows), nil
}
