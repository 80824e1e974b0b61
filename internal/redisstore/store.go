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

// Package redisstore keeps configuration records in Redis.
//
// # Layout
//
// Each application owns one hash, "<prefix><application>", whose fields are
// trimmed record names and whose values are JSON-encoded records. A string
// key "<prefix><application>:ver" holds the epoch milliseconds of the most
// recent write to that application.
//
// # Consistency
//
// Writes are last-writer-wins per (application, name). Upsert reads the hash
// to resolve renames by identity and then writes without a WATCH, so two
// concurrent upserts of the same name or identity can interleave and either
// may end up stored.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/liveconfig/internal/idgen"
	"github.com/cardinalhq/liveconfig/internal/record"
)

// DefaultKeyPrefix namespaces every key written by the store.
const DefaultKeyPrefix = "cfg:"

// Store implements record.Store on top of a Redis client.
type Store struct {
	client   redis.UniversalClient
	prefix   string
	now      func() time.Time
	newID    idgen.IdentityFunc
	tracer   trace.Tracer
	ll       *slog.Logger
	endpoint string
}

var _ record.Store = (*Store)(nil)

type Option func(*Store)

// WithKeyPrefix replaces DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithClock overrides the clock used for the version marker.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIdentityFunc overrides how identities are generated for new records.
func WithIdentityFunc(f idgen.IdentityFunc) Option {
	return func(s *Store) {
		s.newID = f
	}
}

func WithLogger(ll *slog.Logger) Option {
	return func(s *Store) {
		s.ll = ll
	}
}

// New connects to the Redis server described by endpoint. See ParseEndpoint
// for the accepted forms. No round trip is made; use Ping to verify the
// server is reachable.
func New(endpoint string, opts ...Option) (*Store, error) {
	ropts, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	s := NewFromClient(redis.NewClient(ropts), opts...)
	s.endpoint = endpoint
	return s, nil
}

// NewFromClient wraps an existing client. Close closes the client.
func NewFromClient(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultKeyPrefix,
		now:    time.Now,
		newID:  idgen.NewIdentity,
		tracer: otel.Tracer("github.com/cardinalhq/liveconfig/internal/redisstore"),
		ll:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ll = s.ll.With("component", "redisstore")
	return s
}

func (s *Store) appKey(application string) string {
	return s.prefix + application
}

func (s *Store) versionKey(application string) string {
	return s.appKey(application) + ":ver"
}

// GetAll returns the active records of an application.
func (s *Store) GetAll(ctx context.Context, application string) ([]record.Record, error) {
	ctx, span := s.tracer.Start(ctx, "redisstore.get_all",
		trace.WithAttributes(attribute.String("application", application)))
	defer span.End()

	all, err := s.list(ctx, application)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get_all failed")
		return nil, err
	}

	active := make([]record.Record, 0, len(all))
	for _, rec := range all {
		if rec.IsActive {
			active = append(active, rec)
		}
	}
	span.SetAttributes(attribute.Int("records", len(active)))
	return active, nil
}

// List returns every stored record of an application, inactive ones included.
func (s *Store) List(ctx context.Context, application string) ([]record.Record, error) {
	return s.list(ctx, application)
}

func (s *Store) list(ctx context.Context, application string) ([]record.Record, error) {
	entries, err := s.client.HGetAll(ctx, s.appKey(application)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", record.ErrTransport, s.appKey(application), err)
	}

	records := make([]record.Record, 0, len(entries))
	for field, raw := range entries {
		rec, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q of %s: %v", record.ErrDecode, field, s.appKey(application), err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Upsert creates or updates a record. A record without an identity gets a
// new one. When a stored record with the same identity sits under a
// different name, that entry is removed so a rename never leaves a duplicate.
func (s *Store) Upsert(ctx context.Context, rec record.Record) error {
	ctx, span := s.tracer.Start(ctx, "redisstore.upsert",
		trace.WithAttributes(attribute.String("application", rec.ApplicationName)))
	defer span.End()

	if err := s.upsert(ctx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert failed")
		return err
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, rec record.Record) error {
	if !rec.HasID() {
		rec.ID = s.newID()
	}
	newField := record.NormalizeName(rec.Name)
	rec.Name = newField
	appKey := s.appKey(rec.ApplicationName)

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record %q: %w", newField, err)
	}

	entries, err := s.client.HGetAll(ctx, appKey).Result()
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", record.ErrTransport, appKey, err)
	}
	oldField, found := fieldForID(entries, rec.ID)
	// raw comparison so a field stored with surrounding spaces is replaced
	renamed := found && oldField != newField

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if renamed {
			pipe.HDel(ctx, appKey, oldField)
		}
		pipe.HSet(ctx, appKey, newField, payload)
		pipe.Set(ctx, s.versionKey(rec.ApplicationName), s.now().UnixMilli(), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: writing %s: %v", record.ErrTransport, appKey, err)
	}

	if renamed {
		s.ll.Info("Renamed config record",
			slog.String("application", rec.ApplicationName),
			slog.String("from", oldField),
			slog.String("to", newField))
	}
	return nil
}

// fieldForID finds the hash field currently holding the record with the
// given identity. Entries that do not decode are skipped.
func fieldForID(entries map[string]string, id string) (string, bool) {
	for field, raw := range entries {
		rec, err := decode(raw)
		if err != nil {
			continue
		}
		if rec.ID == id {
			return field, true
		}
	}
	return "", false
}

// Version returns the epoch milliseconds of the last write to an
// application, or 0 if it has never been written.
func (s *Store) Version(ctx context.Context, application string) (int64, error) {
	raw, err := s.client.Get(ctx, s.versionKey(application)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: reading %s: %v", record.ErrTransport, s.versionKey(application), err)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: version marker %q: %v", record.ErrDecode, raw, err)
	}
	return v, nil
}

// Ping checks that the server answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", record.ErrTransport, err)
	}
	return nil
}

// Endpoint returns the endpoint the store was created from, if any.
func (s *Store) Endpoint() string {
	return s.endpoint
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func decode(raw string) (record.Record, error) {
	var rec record.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return record.Record{}, err
	}
	return rec, nil
}
