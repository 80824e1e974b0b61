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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/liveconfig/config"
	"github.com/cardinalhq/liveconfig/internal/configreader"
	"github.com/cardinalhq/liveconfig/internal/record"
	"github.com/cardinalhq/liveconfig/internal/redisstore"
)

const (
	sampleInterval    = 3 * time.Second
	sampleEndpointKey = "Redis"
	sampleProbeApp    = "SERVICE-C"
)

var sampleApplication string

func init() {
	sampleCmd := &cobra.Command{
		Use:   "sample",
		Short: "Run a sample consumer that follows its own Redis endpoint setting",
		Long: `Reads configuration for one application and, every few seconds, looks up
its "Redis" setting. When the setting names a different endpoint the consumer
moves its writes there, pings it and writes a probe record for SERVICE-C.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if sampleApplication != "" {
				cfg.Reader.Application = sampleApplication
			}

			addlAttrs := attribute.NewSet(attribute.String("application", cfg.Reader.Application))
			ctx, doneFx, err := setupTelemetry(config.ServiceTypeSample, &addlAttrs)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}
			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()

			return runSample(ctx, cfg)
		},
	}
	sampleCmd.Flags().StringVar(&sampleApplication, "app", "", "Application to read, overrides reader.application")
	rootCmd.AddCommand(sampleCmd)
}

func runSample(ctx context.Context, cfg *config.Config) error {
	ll := slog.Default().With("component", "sample")

	reader, err := configreader.Open(ctx, cfg.Reader.Application, cfg.Redis.Endpoint,
		cfg.Reader.RefreshInterval, storeOptions(cfg, ll), configreader.WithLogger(ll))
	if err != nil {
		return fmt.Errorf("failed to open config reader: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			ll.Warn("Failed to close config reader", slog.Any("error", err))
		}
	}()

	pool := redisstore.NewPool(cfg.Redis.PoolIdle, storeOptions(cfg, ll)...)
	defer pool.Close()

	s := newSampler(reader, pool, cfg.Redis.Endpoint, ll)
	if err := s.bootstrap(ctx); err != nil {
		ll.Error("Bootstrap write failed", slog.Any("error", err))
	}

	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			ll.Info("Sample consumer stopping")
			return nil
		case <-ticker.C:
		}
		s.iterate(ctx)
	}
}

// sampler follows the endpoint named by its own configuration.
type sampler struct {
	reader   *configreader.Reader
	pool     *redisstore.Pool
	endpoint string
	now      func() time.Time
	ll       *slog.Logger
}

func newSampler(reader *configreader.Reader, pool *redisstore.Pool, endpoint string, ll *slog.Logger) *sampler {
	return &sampler{
		reader:   reader,
		pool:     pool,
		endpoint: strings.TrimSpace(endpoint),
		now:      time.Now,
		ll:       ll,
	}
}

// bootstrap writes a marker record for the reader's own application.
func (s *sampler) bootstrap(ctx context.Context) error {
	store, err := s.pool.Get(s.endpoint)
	if err != nil {
		return err
	}
	return store.Upsert(ctx, record.Record{
		Name:            "sample.started",
		Type:            "string",
		Value:           fmt.Sprintf("instance %d at %s", myInstanceID, s.now().UTC().Format(time.RFC3339)),
		IsActive:        true,
		ApplicationName: s.reader.Application(),
	})
}

func (s *sampler) iterate(ctx context.Context) {
	outcome := "unchanged"
	switched, err := s.step(ctx)
	switch {
	case err != nil:
		outcome = "error"
		s.ll.Error("Sample iteration failed", slog.Any("error", err))
	case switched:
		outcome = "switched"
	default:
		s.ll.Debug("Redis endpoint unchanged", slog.String("endpoint", s.endpoint))
	}
	sampleIterationCounter.Add(ctx, 1, metric.WithAttributeSet(commonAttributes),
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// step reads the endpoint setting and, when it changed, moves writes to the
// new endpoint and proves it works with a ping and a probe write.
func (s *sampler) step(ctx context.Context) (bool, error) {
	next, err := configreader.GetValue[string](s.reader, sampleEndpointKey)
	if err != nil {
		return false, err
	}
	next = strings.TrimSpace(next)
	if next == "" || next == s.endpoint {
		return false, nil
	}

	store, err := s.pool.Get(next)
	if err != nil {
		return false, fmt.Errorf("connecting to %s: %w", next, err)
	}
	if err := store.Ping(ctx); err != nil {
		return false, fmt.Errorf("pinging %s: %w", next, err)
	}

	prev := s.endpoint
	s.endpoint = next
	s.pool.Release(prev)
	endpointSwitchCounter.Add(ctx, 1, metric.WithAttributeSet(commonAttributes))
	s.ll.Info("Redis endpoint changed", slog.String("from", prev), slog.String("to", next))

	probe := record.Record{
		Name:            "sample.probe",
		Type:            "string",
		Value:           s.now().UTC().Format(time.RFC3339Nano),
		IsActive:        true,
		ApplicationName: sampleProbeApp,
	}
	if err := store.Upsert(ctx, probe); err != nil {
		return true, fmt.Errorf("writing probe to %s: %w", next, err)
	}
	return true, nil
}
