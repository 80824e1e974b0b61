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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/liveconfig/internal/record"
	"github.com/cardinalhq/liveconfig/internal/redisstore"
)

// mockStore is a test double for record.Store.
type mockStore struct {
	mu       sync.Mutex
	records  []record.Record
	getErr   error
	getCalls atomic.Int32
	closed   atomic.Int32
}

func newMockStore(records ...record.Record) *mockStore {
	return &mockStore{records: records}
}

func (m *mockStore) GetAll(ctx context.Context, application string) ([]record.Record, error) {
	m.getCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
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
	m.records = append(m.records, rec)
	return nil
}

func (m *mockStore) Close() error {
	m.closed.Add(1)
	return nil
}

func (m *mockStore) set(records ...record.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = records
	m.getErr = nil
}

func (m *mockStore) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
}

func rec(name, typ, value string) record.Record {
	return record.Record{
		ID:              "id-" + name,
		Name:            name,
		Type:            typ,
		Value:           value,
		IsActive:        true,
		ApplicationName: "SERVICE-A",
	}
}

// newTestReader builds a reader whose background loop will not tick during the test.
func newTestReader(t *testing.T, store record.Store, opts ...Option) *Reader {
	t.Helper()
	r, err := New(context.Background(), "SERVICE-A", store, time.Hour, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), "  ", newMockStore(), time.Second)
	assert.ErrorIs(t, err, record.ErrValidation)

	_, err = New(context.Background(), "SERVICE-A", nil, time.Second)
	assert.ErrorIs(t, err, record.ErrValidation)
}

func TestNew_ClampsInterval(t *testing.T) {
	tests := []struct {
		requested time.Duration
		want      time.Duration
	}{
		{50 * time.Millisecond, 250 * time.Millisecond},
		{0, 250 * time.Millisecond},
		{-time.Second, 250 * time.Millisecond},
		{250 * time.Millisecond, 250 * time.Millisecond},
		{2 * time.Second, 2 * time.Second},
	}
	for _, tt := range tests {
		r, err := New(context.Background(), "SERVICE-A", newMockStore(), tt.requested)
		require.NoError(t, err)
		assert.Equal(t, tt.want, r.Interval(), "requested %v", tt.requested)
		require.NoError(t, r.Close())
	}
}

func TestNew_RefreshesBeforeReturning(t *testing.T) {
	store := newMockStore(rec("MaxItems", "int", "50"))
	r := newTestReader(t, store)

	v, err := GetValue[int](r, "MaxItems")
	require.NoError(t, err)
	assert.Equal(t, 50, v)
	assert.Equal(t, int32(1), store.getCalls.Load())
	assert.True(t, r.Ready())
	assert.Equal(t, "SERVICE-A", r.Application())
}

func TestNew_FirstRefreshFailureStartsEmpty(t *testing.T) {
	store := newMockStore(rec("MaxItems", "int", "50"))
	store.fail(errors.New("connection refused"))

	r := newTestReader(t, store)
	assert.False(t, r.Ready())

	_, err := GetValue[int](r, "MaxItems")
	assert.ErrorIs(t, err, record.ErrKeyNotFound)

	// catches up on the next cycle
	store.set(rec("MaxItems", "int", "50"))
	require.NoError(t, r.refresh(context.Background()))
	v, err := GetValue[int](r, "MaxItems")
	require.NoError(t, err)
	assert.Equal(t, 50, v)
}

func TestReader_CaseInsensitiveLookup(t *testing.T) {
	r := newTestReader(t, newMockStore(rec("SiteName", "string", "example.com")))

	for _, key := range []string{"SiteName", "sitename", "SITENAME", " siteName "} {
		v, err := GetValue[string](r, key)
		require.NoError(t, err, key)
		assert.Equal(t, "example.com", v)
	}
}

func TestReader_OnlyServesOwnApplication(t *testing.T) {
	other := rec("Foreign", "string", "x")
	other.ApplicationName = "SERVICE-B"
	r := newTestReader(t, newMockStore(rec("Mine", "string", "y"), other))

	_, err := GetValue[string](r, "Foreign")
	assert.ErrorIs(t, err, record.ErrKeyNotFound)
}

func TestReader_InactiveRecordsAreFilteredOnRefresh(t *testing.T) {
	inactive := rec("Disabled", "bool", "1")
	inactive.IsActive = false
	r := newTestReader(t, newMockStore(rec("Enabled", "bool", "1"), inactive))

	_, err := GetValue[bool](r, "Disabled")
	assert.ErrorIs(t, err, record.ErrKeyNotFound)
	assert.Equal(t, map[string]string{"Enabled": "1"}, r.ActiveValues())
}

func TestReader_EmptyRefreshKeepsLastGood(t *testing.T) {
	ctx := context.Background()
	store := newMockStore(rec("MaxItems", "int", "50"), rec("SiteName", "string", "example.com"))
	r := newTestReader(t, store)

	// everything deactivated
	store.set()
	require.NoError(t, r.refresh(ctx))

	assert.Empty(t, r.ActiveValues())
	v, err := GetValue[int](r, "MaxItems")
	require.NoError(t, err)
	assert.Equal(t, 50, v)
	assert.True(t, r.Ready())

	got, ok := r.Lookup("SiteName")
	require.True(t, ok)
	assert.Equal(t, "example.com", got.Value)
}

func TestReader_NonEmptyRefreshReplacesLastGood(t *testing.T) {
	ctx := context.Background()
	store := newMockStore(rec("A", "int", "1"), rec("B", "int", "2"))
	r := newTestReader(t, store)

	store.set(rec("A", "int", "10"))
	require.NoError(t, r.refresh(ctx))

	a, err := GetValue[int](r, "A")
	require.NoError(t, err)
	assert.Equal(t, 10, a)

	_, err = GetValue[int](r, "B")
	assert.ErrorIs(t, err, record.ErrKeyNotFound)
}

func TestReader_FallsBackWhenActiveEntryInactive(t *testing.T) {
	r := newTestReader(t, newMockStore())

	stale := rec("Mode", "string", "active-copy")
	stale.IsActive = false
	good := rec("Mode", "string", "last-good-copy")
	r.gen.Store(&generation{
		active:   snapshot{"mode": stale},
		lastGood: snapshot{"mode": good},
	})

	v, err := GetValue[string](r, "mode")
	require.NoError(t, err)
	assert.Equal(t, "last-good-copy", v)
}

func TestReader_FailedRefreshLeavesSnapshotsUntouched(t *testing.T) {
	ctx := context.Background()
	store := newMockStore(rec("MaxItems", "int", "50"))
	r := newTestReader(t, store)

	before := r.gen.Load()
	store.fail(record.ErrTransport)

	err := r.refresh(ctx)
	require.ErrorIs(t, err, record.ErrTransport)
	assert.Same(t, before, r.gen.Load())

	v, err := GetValue[int](r, "MaxItems")
	require.NoError(t, err)
	assert.Equal(t, 50, v)
}

func TestReader_CancelledRefreshPublishesNothing(t *testing.T) {
	store := newMockStore(rec("MaxItems", "int", "50"))
	r := newTestReader(t, store)

	before := r.gen.Load()
	store.set(rec("MaxItems", "int", "99"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.refresh(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Same(t, before, r.gen.Load())
}

func TestReader_DuplicateNamesLastInResponseWins(t *testing.T) {
	first := rec("Key", "string", "first")
	second := rec("KEY", "string", "second")
	second.ID = "another-id"
	r := newTestReader(t, newMockStore(first, second))

	v, err := GetValue[string](r, "key")
	require.NoError(t, err)
	assert.Equal(t, "second", v)
}

func TestReader_BackgroundRefreshPicksUpWrites(t *testing.T) {
	store := newMockStore(rec("MaxItems", "int", "50"))
	r, err := New(context.Background(), "SERVICE-A", store, 10*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	require.NoError(t, store.Upsert(context.Background(), rec("NewKey", "string", "hello")))

	require.Eventually(t, func() bool {
		v, err := GetValue[string](r, "NewKey")
		return err == nil && v == "hello"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestReader_ConcurrentReadsDuringRefresh(t *testing.T) {
	ctx := context.Background()
	store := newMockStore(rec("Counter", "int", "1"))
	r := newTestReader(t, store)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	var readErrs atomic.Int32
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if _, err := GetValue[int](r, "Counter"); err != nil {
					readErrs.Add(1)
				}
			}
		}()
	}

	for i := range 50 {
		if i%2 == 0 {
			store.set()
		} else {
			store.set(rec("Counter", "int", "2"))
		}
		require.NoError(t, r.refresh(ctx))
	}
	close(stop)
	wg.Wait()

	assert.Zero(t, readErrs.Load())
}

func TestReader_CloseStopsLoopAndClosesStoreOnce(t *testing.T) {
	store := newMockStore(rec("MaxItems", "int", "50"))
	r, err := New(context.Background(), "SERVICE-A", store, 10*time.Millisecond)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return store.getCalls.Load() > 1 }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, int32(1), store.closed.Load())

	calls := store.getCalls.Load()
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, calls, store.getCalls.Load(), "no refresh after Close")

	// the last published values remain readable
	v, err := GetValue[int](r, "MaxItems")
	require.NoError(t, err)
	assert.Equal(t, 50, v)
}

func TestReader_BorrowedStoreIsNotClosed(t *testing.T) {
	store := newMockStore()
	r, err := New(context.Background(), "SERVICE-A", store, time.Hour, WithBorrowedStore())
	require.NoError(t, err)

	require.NoError(t, r.Close())
	assert.Zero(t, store.closed.Load())
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, "SERVICE-A", "", time.Second, nil)
	assert.ErrorIs(t, err, record.ErrValidation)

	mr := miniredis.RunT(t)
	writer, err := redisstore.New(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })

	require.NoError(t, writer.Upsert(ctx, record.Record{
		Name: "IsBasketEnabled", Type: "bool", Value: "1", IsActive: true, ApplicationName: "SERVICE-B",
	}))

	r, err := Open(ctx, "SERVICE-B", mr.Addr(), 10*time.Millisecond, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	enabled, err := GetValue[bool](r, "isbasketenabled")
	require.NoError(t, err)
	assert.True(t, enabled)

	require.NoError(t, writer.Upsert(ctx, record.Record{
		Name: "MaxItemCount", Type: "int", Value: "50", IsActive: true, ApplicationName: "SERVICE-B",
	}))
	require.Eventually(t, func() bool {
		v, err := GetValue[int](r, "MaxItemCount")
		return err == nil && v == 50
	}, 3*time.Second, 20*time.Millisecond)

	// an outage leaves the values in place
	mr.SetError("ERR simulated outage")
	time.Sleep(300 * time.Millisecond)
	v, err := GetValue[int](r, "MaxItemCount")
	require.NoError(t, err)
	assert.Equal(t, 50, v)
}

func TestReader_DigestTracksContentNotOrder(t *testing.T) {
	ctx := context.Background()
	a, b := rec("A", "int", "1"), rec("B", "int", "2")
	store := newMockStore(a, b)
	r := newTestReader(t, store)
	first := r.gen.Load()

	store.set(b, a)
	require.NoError(t, r.refresh(ctx))
	second := r.gen.Load()
	assert.NotSame(t, first, second, "every successful refresh publishes a new generation")
	assert.Equal(t, first.digest, second.digest)

	store.set(a, rec("B", "int", "3"))
	require.NoError(t, r.refresh(ctx))
	assert.NotEqual(t, second.digest, r.gen.Load().digest)

	assert.Equal(t, snapshot(nil).digest(), snapshot{}.digest())
}
