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

// Package adminapi exposes list, create and update of configuration records
// over HTTP for operators.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cardinalhq/liveconfig/internal/idgen"
	"github.com/cardinalhq/liveconfig/internal/record"
)

const (
	maxBodyBytes = 1 << 20
	storeTimeout = 10 * time.Second
)

// Store is what the admin surface needs from the backing store.
type Store interface {
	record.Store
	// List returns every record of an application, inactive ones included.
	List(ctx context.Context, application string) ([]record.Record, error)
	// Version returns the epoch-millisecond stamp of the application's last write.
	Version(ctx context.Context, application string) (int64, error)
}

type Service struct {
	store Store
	newID idgen.IdentityFunc
	ll    *slog.Logger
}

type Option func(*Service)

func WithLogger(ll *slog.Logger) Option {
	return func(s *Service) {
		s.ll = ll
	}
}

func WithIdentityFunc(fn idgen.IdentityFunc) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		newID: idgen.NewIdentity,
		ll:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ll = s.ll.With("component", "adminapi")
	return s
}

type versionResponse struct {
	ApplicationName string `json:"applicationName"`
	Version         int64  `json:"version"`
}

// Handler returns the routed, instrumented API.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/config", s.handleList)
	mux.HandleFunc("POST /api/config", s.handleCreate)
	mux.HandleFunc("GET /api/config/version", s.handleVersion)
	mux.HandleFunc("PUT /api/config/{name}", s.handleUpdate)
	return otelhttp.NewHandler(mux, "adminapi")
}

// Run serves on addr until doneCtx is cancelled.
func (s *Service) Run(doneCtx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.ll.Info("Starting admin API", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return fmt.Errorf("admin API: %w", err)
		}
		return nil
	case <-doneCtx.Done():
	}

	s.ll.Info("Shutting down admin API")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown admin API: %w", err)
	}
	return nil
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	app := strings.TrimSpace(r.URL.Query().Get("appName"))
	if app == "" {
		http.Error(w, "missing appName", http.StatusBadRequest)
		return
	}
	includeInactive := false
	if v := r.URL.Query().Get("includeInactive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "invalid includeInactive: "+err.Error(), http.StatusBadRequest)
			return
		}
		includeInactive = b
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	var (
		records []record.Record
		err     error
	)
	if includeInactive {
		records, err = s.store.List(ctx, app)
	} else {
		records, err = s.store.GetAll(ctx, app)
	}
	if err != nil {
		s.writeError(w, "list", err)
		return
	}

	SortByName(records)
	if records == nil {
		records = []record.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Service) handleCreate(w http.ResponseWriter, r *http.Request) {
	rec, ok := readRecord(w, r)
	if !ok {
		return
	}
	s.save(w, r, rec)
}

func (s *Service) handleUpdate(w http.ResponseWriter, r *http.Request) {
	rec, ok := readRecord(w, r)
	if !ok {
		return
	}
	rec.Name = r.PathValue("name")
	if app := r.URL.Query().Get("appName"); strings.TrimSpace(app) != "" {
		rec.ApplicationName = app
	}
	s.save(w, r, rec)
}

func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	app := strings.TrimSpace(r.URL.Query().Get("appName"))
	if app == "" {
		http.Error(w, "missing appName", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	v, err := s.store.Version(ctx, app)
	if err != nil {
		s.writeError(w, "version", err)
		return
	}
	writeJSON(w, http.StatusOK, versionResponse{ApplicationName: app, Version: v})
}

func (s *Service) save(w http.ResponseWriter, r *http.Request, rec record.Record) {
	rec.Name = record.NormalizeName(rec.Name)
	rec.ApplicationName = strings.TrimSpace(rec.ApplicationName)
	if err := Validate(rec); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !rec.HasID() {
		rec.ID = s.newID()
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	if err := s.store.Upsert(ctx, rec); err != nil {
		s.writeError(w, "upsert", err)
		return
	}
	s.ll.Info("Saved config record",
		slog.String("application", rec.ApplicationName),
		slog.String("name", rec.Name),
		slog.String("id", rec.ID),
		slog.Bool("active", rec.IsActive))
	writeJSON(w, http.StatusOK, rec)
}

// Validate reports every problem with rec, not just the first.
func Validate(rec record.Record) error {
	var result *multierror.Error
	if record.NormalizeName(rec.Name) == "" {
		result = multierror.Append(result, fmt.Errorf("%w: name is required", record.ErrValidation))
	}
	if strings.TrimSpace(rec.ApplicationName) == "" {
		result = multierror.Append(result, fmt.Errorf("%w: application name is required", record.ErrValidation))
	}
	if !record.IsSupportedTag(rec.Type) {
		result = multierror.Append(result, fmt.Errorf("%w: type %q must be one of %s",
			record.ErrUnsupportedType, rec.Type, strings.Join(record.SupportedTags(), ", ")))
	} else if _, err := record.Coerce(rec.Type, rec.Value); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// SortByName orders records by name ignoring case, with exact name breaking ties.
func SortByName(records []record.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := record.FoldName(records[i].Name), record.FoldName(records[j].Name)
		if a != b {
			return a < b
		}
		return records[i].Name < records[j].Name
	})
}

func readRecord(w http.ResponseWriter, r *http.Request) (record.Record, bool) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		http.Error(w, "unsupported content type", http.StatusBadRequest)
		return record.Record{}, false
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	defer r.Body.Close()
	if err != nil {
		http.Error(w, "failed to read body: "+err.Error(), http.StatusBadRequest)
		return record.Record{}, false
	}

	var rec record.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return record.Record{}, false
	}
	return rec, true
}

func (s *Service) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, record.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, record.ErrTransport):
		s.ll.Warn("Store unavailable", slog.String("op", op), slog.Any("error", err))
		http.Error(w, "config store unavailable", http.StatusBadGateway)
	default:
		s.ll.Error("Store request failed", slog.String("op", op), slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
