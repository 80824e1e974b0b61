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

package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/liveconfig/internal/record"
	"github.com/cardinalhq/liveconfig/internal/redisstore"
)

type mockStore struct {
	mu       sync.Mutex
	records  []record.Record
	upserted []record.Record
	version  int64
	err      error
}

func (m *mockStore) GetAll(ctx context.Context, application string) ([]record.Record, error) {
	all, err := m.List(ctx, application)
	if err != nil {
		return nil, err
	}
	var out []record.Record
	for _, rec := range all {
		if rec.IsActive {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockStore) List(ctx context.Context, application string) ([]record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []record.Record
	for _, rec := range m.records {
		if rec.ApplicationName == application {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockStore) Upsert(ctx context.Context, rec record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.upserted = append(m.upserted, rec)
	return nil
}

func (m *mockStore) Version(ctx context.Context, application string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version, m.err
}

func newTestService(store Store) http.Handler {
	return NewService(store, WithIdentityFunc(func() string { return "new-id" })).Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestList_SortedByName(t *testing.T) {
	store := &mockStore{records: []record.Record{
		{ID: "1", Name: "zeta", Type: "string", Value: "z", IsActive: true, ApplicationName: "app"},
		{ID: "2", Name: "Alpha", Type: "string", Value: "a", IsActive: true, ApplicationName: "app"},
		{ID: "3", Name: "alpha", Type: "string", Value: "a2", IsActive: true, ApplicationName: "app"},
		{ID: "4", Name: "Beta", Type: "string", Value: "b", IsActive: false, ApplicationName: "app"},
		{ID: "5", Name: "Other", Type: "string", Value: "o", IsActive: true, ApplicationName: "other"},
	}}
	h := newTestService(store)

	rr := do(t, h, http.MethodGet, "/api/config?appName=app", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var got []record.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	names := make([]string, len(got))
	for i, rec := range got {
		names[i] = rec.Name
	}
	assert.Equal(t, []string{"Alpha", "alpha", "zeta"}, names)

	rr = do(t, h, http.MethodGet, "/api/config?appName=app&includeInactive=true", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Len(t, got, 4)
	assert.Equal(t, "Beta", got[2].Name)
}

func TestList_EmptyIsArray(t *testing.T) {
	rr := do(t, newTestService(&mockStore{}), http.MethodGet, "/api/config?appName=none", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestList_BadRequests(t *testing.T) {
	h := newTestService(&mockStore{})
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/config", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/config?appName=a&includeInactive=maybe", "").Code)
}

func TestCreate_TrimsAndAssignsIdentity(t *testing.T) {
	store := &mockStore{}
	h := newTestService(store)

	rr := do(t, h, http.MethodPost, "/api/config",
		`{"Name":"  MaxItemCount ","Type":"int","Value":"50","IsActive":true,"ApplicationName":"SERVICE-B"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	require.Len(t, store.upserted, 1)
	saved := store.upserted[0]
	assert.Equal(t, "MaxItemCount", saved.Name)
	assert.Equal(t, "new-id", saved.ID)
	assert.Equal(t, "SERVICE-B", saved.ApplicationName)

	var echoed record.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &echoed))
	assert.Equal(t, saved, echoed)
}

func TestCreate_KeepsGivenIdentity(t *testing.T) {
	store := &mockStore{}
	rr := do(t, newTestService(store), http.MethodPost, "/api/config",
		`{"Id":"existing","Name":"Key","Type":"string","Value":"v","IsActive":true,"ApplicationName":"app"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "existing", store.upserted[0].ID)
}

func TestCreate_ValidationReportsEveryProblem(t *testing.T) {
	store := &mockStore{}
	rr := do(t, newTestService(store), http.MethodPost, "/api/config",
		`{"Name":"  ","Type":"array","Value":"[]","ApplicationName":""}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	body := rr.Body.String()
	assert.Contains(t, body, "3 errors occurred")
	assert.Contains(t, body, "name is required")
	assert.Contains(t, body, "application name is required")
	assert.Contains(t, body, "bool, boolean, double, int, integer, string")
	assert.Empty(t, store.upserted)
}

func TestCreate_MalformedBody(t *testing.T) {
	h := newTestService(&mockStore{})
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/config", `{"Name":`).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/config", strings.NewReader("Name=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdate_PathAndQueryOverrideBody(t *testing.T) {
	store := &mockStore{}
	rr := do(t, newTestService(store), http.MethodPut, "/api/config/Renamed?appName=SERVICE-B",
		`{"Id":"abc","Name":"Original","Type":"bool","Value":"1","IsActive":true,"ApplicationName":"SERVICE-A"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	require.Len(t, store.upserted, 1)
	assert.Equal(t, "Renamed", store.upserted[0].Name)
	assert.Equal(t, "SERVICE-B", store.upserted[0].ApplicationName)
	assert.Equal(t, "abc", store.upserted[0].ID)
}

func TestVersion(t *testing.T) {
	h := newTestService(&mockStore{version: 1773500966000})

	rr := do(t, h, http.MethodGet, "/api/config/version?appName=app", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"applicationName":"app","version":1773500966000}`, rr.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/config/version", "").Code)
}

func TestStoreErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: dial tcp", record.ErrTransport), http.StatusBadGateway},
		{fmt.Errorf("%w: bad", record.ErrValidation), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		h := newTestService(&mockStore{err: tt.err})
		assert.Equal(t, tt.want, do(t, h, http.MethodGet, "/api/config?appName=app", "").Code, tt.err.Error())
		assert.Equal(t, tt.want, do(t, h, http.MethodPost, "/api/config",
			`{"Name":"k","Type":"string","Value":"v","ApplicationName":"app"}`).Code, tt.err.Error())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestService(&mockStore{})
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodDelete, "/api/config", "").Code)
}

func TestValidate(t *testing.T) {
	ok := record.Record{Name: "k", Type: "double", Value: "1.5", ApplicationName: "app"}
	assert.NoError(t, Validate(ok))

	bad := ok
	bad.Value = "one and a half"
	err := Validate(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, record.ErrFormat)
}

func TestAgainstRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := redisstore.New(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	h := NewService(store).Handler()

	rr := do(t, h, http.MethodPost, "/api/config",
		`{"Name":"SiteName","Type":"string","Value":"example.com","IsActive":true,"ApplicationName":"SERVICE-A"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var created record.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.True(t, created.HasID())

	// rename through PUT, carrying the identity
	body := fmt.Sprintf(`{"Id":%q,"Type":"string","Value":"example.org","IsActive":true}`, created.ID)
	rr = do(t, h, http.MethodPut, "/api/config/PublicSiteName?appName=SERVICE-A", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/api/config?appName=SERVICE-A", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var got []record.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "PublicSiteName", got[0].Name)
	assert.Equal(t, created.ID, got[0].ID)

	rr = do(t, h, http.MethodGet, "/api/config/version?appName=SERVICE-A", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var v versionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	assert.Positive(t, v.Version)

	mr.SetError("ERR simulated outage")
	assert.Equal(t, http.StatusBadGateway, do(t, h, http.MethodGet, "/api/config?appName=SERVICE-A", "").Code)
}
