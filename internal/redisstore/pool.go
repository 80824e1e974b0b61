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

package redisstore

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Pool shares stores between callers that address Redis by endpoint string.
// A store that has not been asked for within the idle period is evicted and
// its client closed.
type Pool struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, *Store]
	opts  []Option
}

// NewPool creates a pool whose stores are built with opts.
func NewPool(idle time.Duration, opts ...Option) *Pool {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *Store](idle),
	)
	cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Store]) {
		if err := item.Value().Close(); err != nil {
			slog.Warn("Failed to close evicted redis store",
				slog.String("endpoint", item.Key()),
				slog.Any("error", err))
			return
		}
		slog.Debug("Closed evicted redis store",
			slog.String("endpoint", item.Key()),
			slog.Int("reason", int(reason)))
	})
	go cache.Start()

	return &Pool{
		cache: cache,
		opts:  opts,
	}
}

// Get returns the store for endpoint, connecting on first use.
func (p *Pool) Get(endpoint string) (*Store, error) {
	endpoint = strings.TrimSpace(endpoint)

	p.mu.Lock()
	defer p.mu.Unlock()

	if item := p.cache.Get(endpoint); item != nil {
		return item.Value(), nil
	}

	s, err := New(endpoint, p.opts...)
	if err != nil {
		return nil, err
	}
	// an expired entry may still be held until the expiry loop runs; Set would
	// overwrite it without firing eviction, so drop it first
	p.cache.Delete(endpoint)
	p.cache.Set(endpoint, s, ttlcache.DefaultTTL)
	return s, nil
}

// Release drops the store for endpoint from the pool and closes it.
func (p *Pool) Release(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Delete(strings.TrimSpace(endpoint))
}

// Len returns the number of pooled stores.
func (p *Pool) Len() int {
	return p.cache.Len()
}

// Close closes every pooled store and stops the expiry loop.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.DeleteAll()
	p.cache.Stop()
}
