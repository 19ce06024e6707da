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

package db

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/Wolftown-io/canis/internal/config"
	"github.com/Wolftown-io/canis/internal/db/migration"
	"github.com/glebarez/sqlite"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	connsPerCPU = 10
	maxIdleTime = 10 * time.Minute
)

// MakeDB opens the system-of-record database for the configured driver,
// wires tracing when enabled, and runs the gormigrate migration chain.
func MakeDB(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := dialectorFor(&cfg.Database)
	if err != nil {
		return nil, err
	}

	database, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Metrics.OTLPEndpoint != "" {
		if err := database.Use(otelgorm.NewPlugin()); err != nil {
			return nil, fmt.Errorf("failed to trace database: %w", err)
		}
	}

	if err := migration.Migrate(database); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(runtime.GOMAXPROCS(0))
	sqlDB.SetMaxOpenConns(runtime.GOMAXPROCS(0) * connsPerCPU)
	sqlDB.SetConnMaxIdleTime(maxIdleTime)

	return database, nil
}

func dialectorFor(cfg *config.Database) (gorm.Dialector, error) {
	switch cfg.Driver {
	case config.DatabaseDriverSQLite:
		return sqlite.Open(cfg.Database), nil
	case config.DatabaseDriverPostgres:
		dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s",
			cfg.Host, cfg.Port, cfg.Database, cfg.Username, cfg.Password)
		if len(cfg.ExtraParameters) > 0 {
			dsn += " " + strings.Join(cfg.ExtraParameters, " ")
		}
		return postgres.Open(dsn), nil
	case config.DatabaseDriverMySQL:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
		if len(cfg.ExtraParameters) > 0 {
			dsn += "&" + strings.Join(cfg.ExtraParameters, "&")
		}
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}
