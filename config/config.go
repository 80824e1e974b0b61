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

package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates configuration for the liveconfig binaries.
type Config struct {
	Redis  RedisConfig  `mapstructure:"redis"`
	Reader ReaderConfig `mapstructure:"reader"`
	Admin  AdminConfig  `mapstructure:"admin"`
}

type RedisConfig struct {
	// Endpoint is either a redis:// URL or "host:port,password=...,ssl=true".
	Endpoint  string `mapstructure:"endpoint"`
	KeyPrefix string `mapstructure:"key_prefix"`
	// PoolIdle is how long an unused pooled connection is kept open.
	PoolIdle time.Duration `mapstructure:"pool_idle"`
}

type ReaderConfig struct {
	Application     string        `mapstructure:"application"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type AdminConfig struct {
	Listen string `mapstructure:"listen"`
}

func DefaultConfig() *Config {
	return &Config{
		Redis: RedisConfig{
			Endpoint:  DefaultRedisEndpoint,
			KeyPrefix: DefaultKeyPrefix,
			PoolIdle:  5 * time.Minute,
		},
		Reader: ReaderConfig{
			Application:     DefaultApplication,
			RefreshInterval: 2 * time.Second,
		},
		Admin: AdminConfig{
			Listen: ":8080",
		},
	}
}

// Load reads configuration from an optional config.yaml and environment
// variables. Environment variables use the prefix "LIVECONFIG" and the dot
// character in keys is replaced by an underscore, so "redis.endpoint" becomes
// "LIVECONFIG_REDIS_ENDPOINT". REDIS_CONNECTION is accepted as a fallback for
// the endpoint.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("LIVECONFIG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.BindEnv("redis.endpoint", "LIVECONFIG_REDIS_ENDPOINT", "REDIS_CONNECTION")
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Redis.Endpoint) == "" {
		return fmt.Errorf("redis.endpoint is required")
	}
	if strings.TrimSpace(c.Reader.Application) == "" {
		return fmt.Errorf("reader.application is required")
	}
	if c.Reader.RefreshInterval <= 0 {
		return fmt.Errorf("reader.refresh_interval must be positive, got %s", c.Reader.RefreshInterval)
	}
	return nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
