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

package configreader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/liveconfig/internal/heartbeat"
	"github.com/cardinalhq/liveconfig/internal/record"
	"github.com/cardinalhq/liveconfig/internal/redisstore"
)

// MinRefreshInterval is the shortest refresh period a Reader will use.
const MinRefreshInterval = 250 * time.Millisecond

// snapshot maps folded record names to records. Never modified once published.
type snapshot map[string]record.Record

// generation is the unit of publication: both snapshots are swapped together.
type generation struct {
	active   snapshot
	lastGood snapshot
	// digest fingerprints the active snapshot's content.
	digest uint64
}

// digest hashes records in key order so equal content gives equal digests
// regardless of store response order.
func (s snapshot) digest() uint64 {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	d := xxhash.New()
	for _, k := range keys {
		rec := s[k]
		for _, part := range []string{k, rec.ID, rec.Name, rec.Type, rec.Value} {
			_, _ = d.WriteString(part)
			_, _ = d.Write([]byte{0})
		}
	}
	return d.Sum64()
}

// Reader serves typed configuration values for one application from
// snapshots refreshed in the background.
type Reader struct {
	application string
	store       record.Store
	ownsStore   bool
	interval    time.Duration
	gen         atomic.Pointer[generation]
	ll          *slog.Logger

	stop      func()
	closeOnce sync.Once
	closeErr  error
}

type Option func(*Reader)

func WithLogger(ll *slog.Logger) Option {
	return func(r *Reader) {
		r.ll = ll
	}
}

// WithBorrowedStore leaves the store open when the Reader is closed; the
// caller keeps responsibility for it.
func WithBorrowedStore() Option {
	return func(r *Reader) {
		r.ownsStore = false
	}
}

// New creates a Reader, performs one refresh before returning and then keeps
// refreshing every interval until Close. Intervals under MinRefreshInterval
// are raised to it. A failed first refresh is not an error: the Reader
// starts empty and catches up on a later tick.
//
// Unless WithBorrowedStore is given the Reader owns store and closes it, if
// it is an io.Closer, when the Reader is closed.
func New(ctx context.Context, application string, store record.Store, interval time.Duration, opts ...Option) (*Reader, error) {
	if strings.TrimSpace(application) == "" {
		return nil, fmt.Errorf("%w: application name is required", record.ErrValidation)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", record.ErrValidation)
	}

	r := &Reader{
		application: application,
		store:       store,
		ownsStore:   true,
		interval:    max(interval, MinRefreshInterval),
		ll:          slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.ll = r.ll.With("component", "configreader", slog.String("application", application))
	r.gen.Store(&generation{digest: snapshot(nil).digest()})

	if err := r.refresh(ctx); err != nil {
		r.ll.Warn("Initial config refresh failed; starting empty", slog.Any("error", err))
	}

	hb := heartbeat.New(r.refresh, r.interval, r.ll, heartbeat.WithoutInitialBeat())
	r.stop = hb.Start(context.WithoutCancel(ctx))
	return r, nil
}

// Open creates a Reader backed by a Redis store at endpoint. The Reader owns
// the store.
func Open(ctx context.Context, application, endpoint string, interval time.Duration, storeOpts []redisstore.Option, opts ...Option) (*Reader, error) {
	store, err := redisstore.New(endpoint, storeOpts...)
	if err != nil {
		return nil, err
	}
	r, err := New(ctx, application, store, interval, opts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return r, nil
}

// refresh fetches the application's records and publishes a new generation.
// On any error, including shutdown arriving mid-cycle, nothing is published.
func (r *Reader) refresh(ctx context.Context) error {
	records, err := r.store.GetAll(ctx, r.application)
	if err != nil {
		refreshCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failure")))
		return fmt.Errorf("refreshing %s: %w", r.application, err)
	}

	next := make(snapshot, len(records))
	for _, rec := range records {
		if !rec.IsActive {
			continue
		}
		key := rec.Key()
		if prev, dup := next[key]; dup {
			// which entry survives depends on the store's response order
			r.ll.Warn("Duplicate active config name; later entry replaces earlier",
				slog.String("name", rec.Name),
				slog.String("replacedID", prev.ID),
				slog.String("keptID", rec.ID))
		}
		next[key] = rec
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	prev := r.gen.Load()
	gen := &generation{active: next, lastGood: prev.lastGood, digest: next.digest()}
	if len(next) > 0 {
		gen.lastGood = next
	}
	r.gen.Store(gen)

	refreshCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "success")))
	recordsGauge.Record(ctx, int64(len(next)), metric.WithAttributes(attribute.String("application", r.application)))
	if gen.digest != prev.digest {
		r.ll.Info("Config changed", slog.Int("records", len(next)))
	} else {
		r.ll.Debug("Refreshed config, no changes", slog.Int("records", len(next)))
	}
	return nil
}

// Lookup finds the record currently served for key: the active snapshot
// first, then last-good. Names match case-insensitively.
func (r *Reader) Lookup(key string) (record.Record, bool) {
	rec, source := r.lookup(key)
	lookupCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("source", source)))
	return rec, source != sourceMiss
}

const (
	sourceActive   = "active"
	sourceLastGood = "last_good"
	sourceMiss     = "miss"
)

func (r *Reader) lookup(key string) (record.Record, string) {
	k := record.FoldName(key)
	gen := r.gen.Load()
	if rec, ok := gen.active[k]; ok && rec.IsActive {
		return rec, sourceActive
	}
	if rec, ok := gen.lastGood[k]; ok && rec.IsActive {
		return rec, sourceLastGood
	}
	return record.Record{}, sourceMiss
}

// ActiveValues returns name -> raw value for the active snapshot.
func (r *Reader) ActiveValues() map[string]string {
	gen := r.gen.Load()
	out := make(map[string]string, len(gen.active))
	for _, rec := range gen.active {
		out[rec.Name] = rec.Value
	}
	return out
}

// Ready reports whether a refresh has ever produced records to serve.
func (r *Reader) Ready() bool {
	return len(r.gen.Load().lastGood) > 0
}

// Application returns the application the Reader serves.
func (r *Reader) Application() string {
	return r.application
}

// Interval returns the effective refresh period.
func (r *Reader) Interval() time.Duration {
	return r.interval
}

// Close stops the refresh loop, waits for it to exit and then closes the
// store if the Reader owns it. Later calls return the first call's result.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.stop()
		if !r.ownsStore {
			return
		}
		if c, ok := r.store.(io.Closer); ok {
			r.closeErr = c.Close()
		}
	})
	return r.closeErr
}
