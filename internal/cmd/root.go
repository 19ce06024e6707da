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

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Wolftown-io/canis/internal/auth"
	"github.com/Wolftown-io/canis/internal/config"
	"github.com/Wolftown-io/canis/internal/db"
	"github.com/Wolftown-io/canis/internal/e2ee"
	"github.com/Wolftown-io/canis/internal/gateway"
	ourhttp "github.com/Wolftown-io/canis/internal/http"
	"github.com/Wolftown-io/canis/internal/kv"
	"github.com/Wolftown-io/canis/internal/messages"
	"github.com/Wolftown-io/canis/internal/metrics"
	"github.com/Wolftown-io/canis/internal/outbox"
	"github.com/Wolftown-io/canis/internal/permissions"
	"github.com/Wolftown-io/canis/internal/pprof"
	"github.com/Wolftown-io/canis/internal/presence"
	"github.com/Wolftown-io/canis/internal/pubsub"
	"github.com/Wolftown-io/canis/internal/ratelimit"
	"github.com/Wolftown-io/canis/internal/social"
	"github.com/Wolftown-io/canis/internal/voice"
	"github.com/USA-RedDragon/configulator"
	"github.com/go-co-op/gocron/v2"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/ztrue/shutdown"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func NewCommand(version, commit string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "canisd",
		Version: fmt.Sprintf("%s - %s", version, commit),
		Annotations: map[string]string{
			"version": version,
			"commit":  commit,
		},
		RunE:              runRoot,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}
	return cmd
}

func runRoot(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	fmt.Printf("canis - %s (%s)\n", cmd.Annotations["version"], cmd.Annotations["commit"])

	c, err := configulator.FromContext[config.Config](ctx)
	if err != nil {
		return fmt.Errorf("failed to get config from context: %w", err)
	}

	cfg, err := c.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var logger *slog.Logger
	switch cfg.LogLevel {
	case config.LogLevelDebug:
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelDebug}))
	case config.LogLevelInfo:
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelInfo}))
	case config.LogLevelWarn:
		logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelWarn}))
	case config.LogLevelError:
		logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelError}))
	}
	slog.SetDefault(logger)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	var cleanup func(context.Context) error
	if cfg.Metrics.OTLPEndpoint != "" {
		cleanup = initTracer(cfg)
		defer func() {
			if err := cleanup(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}
	go func() {
		if err := metrics.CreateMetricsServer(cfg); err != nil {
			slog.Error("metrics server stopped", "error", err)
		}
	}()
	go pprof.CreatePProfServer(cfg)

	database, err := db.MakeDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	store, err := kv.MakeKV(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to key-value store: %w", err)
	}
	store = kv.Instrument(store, metrics.NewMetrics())

	bus, err := pubsub.MakePubSub(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to pubsub: %w", err)
	}

	resolver := permissions.NewResolver(database, store)
	verifier := auth.NewVerifier(cfg)
	limiter := ratelimit.New(store, cfg.RateLimit, nil, false)

	hub := gateway.NewHub(database, resolver, bus, cfg.HTTP.CORSHosts, cfg.Session.BacklogMax)
	messagesSvc := messages.New(database, resolver, limiter, hub)
	voiceSvc := voice.NewService(database, resolver, hub, bus, cfg.Voice, cfg.Voice.STUNServers)
	presenceSvc := presence.New(database, store, bus)
	socialSvc := social.New(database)
	e2eeSvc := e2ee.New(database)
	// socialSvc and e2eeSvc are wired for the external collaborator's CRUD
	// handlers to call into; this gateway binary doesn't expose routes
	// for them directly, so both are kept ready but otherwise idle here.
	// presenceSvc is likewise not handed to the gateway: sessions do not
	// call its Connect, Disconnect or Heartbeat.
	_, _, _ = socialSvc, e2eeSvc, presenceSvc

	shipper := outbox.New(database, bus)
	if err := shipper.Schedule(scheduler); err != nil {
		return fmt.Errorf("failed to schedule outbox shipper: %w", err)
	}
	scheduler.Start()

	var ready atomic.Bool
	server := ourhttp.MakeServer(ourhttp.Params{
		Config:   cfg,
		KV:       store,
		Hub:      hub,
		Verifier: verifier,
		Messages: messagesSvc,
		Voice:    voiceSvc,
		Limiter:  limiter,
		Ready:    &ready,
	})
	go func() {
		if err := server.Start(); err != nil {
			slog.Error("http server exited", "error", err)
		}
	}()
	ready.Store(true)

	stop := func(sig os.Signal) {
		slog.Warn("shutting down due to signal", "signal", sig)
		ready.Store(false)
		wg := new(sync.WaitGroup)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := scheduler.StopJobs(); err != nil {
				slog.Error("failed to stop scheduler jobs", "error", err)
			}
			if err := scheduler.Shutdown(); err != nil {
				slog.Error("failed to stop scheduler", "error", err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := shipper.ShipOnce(context.Background()); err != nil {
				slog.Error("failed final outbox drain", "error", err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			server.Stop()
		}()

		if cfg.Metrics.OTLPEndpoint != "" {
			wg.Add(1)
			go func() {
				defer wg.Done()
				const timeout = 5 * time.Second
				tctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				if err := cleanup(tctx); err != nil {
					slog.Error("failed to shutdown tracer", "error", err)
				}
			}()
		}

		const drainTimeout = 10 * time.Second
		done := make(chan struct{})
		go func() {
			defer close(done)
			wg.Wait()
		}()
		select {
		case <-done:
			if err := bus.Close(); err != nil {
				slog.Error("failed to close pubsub", "error", err)
			}
			if err := store.Close(); err != nil {
				slog.Error("failed to close key-value store", "error", err)
			}
			slog.Info("shutdown completed")
			os.Exit(0)
		case <-time.After(drainTimeout):
			slog.Error("shutdown timed out")
			os.Exit(1)
		}
	}

	shutdown.AddWithParam(stop)
	shutdown.Listen(syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)

	return nil
}

func initTracer(cfg *config.Config) func(context.Context) error {
	exporter, err := otlptrace.New(
		context.Background(),
		otlptracegrpc.NewClient(
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithEndpoint(cfg.Metrics.OTLPEndpoint),
		),
	)
	if err != nil {
		slog.Error("failed tracing app", "error", err)
	}
	resources, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", "canis"),
			attribute.String("library.language", "go"),
		),
	)
	if err != nil {
		slog.Error("could not set resources", "error", err)
	}

	otel.SetTracerProvider(
		sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(resources),
		),
	)
	return exporter.Shutdown
}
