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
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/liveconfig/config"
	"github.com/cardinalhq/liveconfig/internal/redisstore"
)

var (
	redisEndpointFlag string
	keyPrefixFlag     string
	verboseFlag       bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "liveconfig",
	Short: "Live, Redis-backed application configuration",
	Long: `Serve and manage named configuration values kept in Redis. Services read
them through a self-refreshing cache that keeps serving the last good values
while Redis is unreachable.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&redisEndpointFlag, "redis", "", "Redis endpoint, overrides redis.endpoint")
	rootCmd.PersistentFlags().StringVar(&keyPrefixFlag, "key-prefix", "", "Redis key prefix, overrides redis.key_prefix")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log progress to stderr")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// handleSignals returns a context cancelled on SIGINT or SIGTERM so ^C and
// k8s both shut the process down gracefully.
func handleSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// loadConfig loads configuration and applies the persistent flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(redisEndpointFlag); v != "" {
		cfg.Redis.Endpoint = v
	}
	if keyPrefixFlag != "" {
		cfg.Redis.KeyPrefix = keyPrefixFlag
	}
	return cfg, nil
}

func storeOptions(cfg *config.Config, ll *slog.Logger) []redisstore.Option {
	return []redisstore.Option{
		redisstore.WithKeyPrefix(cfg.Redis.KeyPrefix),
		redisstore.WithLogger(ll),
	}
}

// setupCLI prepares logging and signal handling for the short-lived commands.
// Output goes to stdout; logs go to stderr.
func setupCLI() (context.Context, context.CancelFunc) {
	level := slog.LevelWarn
	if verboseFlag {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return handleSignals(context.Background())
}
