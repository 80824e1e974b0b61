// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/liveconfig/config"
	"github.com/cardinalhq/liveconfig/internal/adminapi"
	"github.com/cardinalhq/liveconfig/internal/healthcheck"
	"github.com/cardinalhq/liveconfig/internal/redisstore"
)

var adminListen string

func init() {
	adminAPICmd := &cobra.Command{
		Use:   "admin-api",
		Short: "Admin API services",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the admin HTTP server",
		Long:  `Starts an HTTP server for listing, creating and updating configuration records.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if adminListen != "" {
				cfg.Admin.Listen = adminListen
			}

			addlAttrs := attribute.NewSet(attribute.String("keyPrefix", cfg.Redis.KeyPrefix))
			ctx, doneFx, err := setupTelemetry(config.ServiceTypeAdminAPI, &addlAttrs)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}
			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()

			return runAdminAPI(ctx, cfg)
		},
	}
	serveCmd.Flags().StringVar(&adminListen, "listen", "", "Listen address, overrides admin.listen")
	adminAPICmd.AddCommand(serveCmd)

	rootCmd.AddCommand(adminAPICmd)
}

func runAdminAPI(ctx context.Context, cfg *config.Config) error {
	healthServer := healthcheck.NewServer(healthcheck.GetConfigFromEnv())

	store, err := redisstore.New(cfg.Redis.Endpoint, storeOptions(cfg, slog.Default())...)
	if err != nil {
		return fmt.Errorf("failed to create redis store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close redis store", slog.Any("error", err))
		}
	}()
	healthServer.AddCheck("redis", store.Ping)

	if err := store.Ping(ctx); err != nil {
		// keep serving; /readyz reports the outage until Redis answers
		slog.Warn("Redis not reachable at startup", slog.String("endpoint", store.Endpoint()), slog.Any("error", err))
	}

	service := adminapi.NewService(store)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return healthServer.Start(gctx)
	})
	g.Go(func() error {
		return service.Run(gctx, cfg.Admin.Listen)
	})
	healthServer.SetStatus(healthcheck.StatusHealthy)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("Admin API stopped")
	return nil
}
