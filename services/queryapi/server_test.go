package queryapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"fydai/native/fixedpoint"
	"fydai/services/execution"
	"fydai/services/series"
)

type fakeSnapshot struct {
	mu        sync.Mutex
	entries   map[int64]series.Series
	active    int64
	state     series.State
	refreshed [][]int64
	err       error
}

func newFakeSnapshot(maturities ...int64) *fakeSnapshot {
	f := &fakeSnapshot{entries: make(map[int64]series.Series), state: series.Ready}
	for _, m := range maturities {
		f.entries[m] = series.Series{Maturity: m, QuotePrice: fixedpoint.MustWad("0.98")}
	}
	if len(maturities) > 0 {
		f.active = maturities[0]
	}
	return f
}

func (f *fakeSnapshot) List() []series.Series {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]series.Series, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out
}

func (f *fakeSnapshot) Get(m int64) (series.Series, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[m]
	return e, ok
}

func (f *fakeSnapshot) Active() (series.Series, bool) {
	return f.Get(f.active)
}

func (f *fakeSnapshot) State() series.State { return f.state }

func (f *fakeSnapshot) Refresh(_ context.Context, maturities ...int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, maturities)
	for _, m := range maturities {
		if _, ok := f.entries[m]; !ok {
			return fmt.Errorf("%w: %d", series.ErrUnknownSeries, m)
		}
	}
	return f.err
}

type fakeActions []execution.PendingAction

func (f fakeActions) Pending() []execution.PendingAction { return f }

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	h.ServeHTTP(rec, req)
	return rec
}

func TestSeriesEndpoints(t *testing.T) {
	snap := newFakeSnapshot(1000, 2000)
	h := New(snap, Config{RateLimit: 100, Burst: 100}).Handler()

	rec := serve(h, http.MethodGet, "/series")
	require.Equal(t, http.StatusOK, rec.Code)
	var list listResponse
	decode(t, rec, &list)
	require.Len(t, list.Series, 2)
	require.Equal(t, "ready", list.State)
	require.False(t, list.Loading)

	rec = serve(h, http.MethodGet, "/series/active")
	require.Equal(t, http.StatusOK, rec.Code)
	var one seriesResponse
	decode(t, rec, &one)
	require.Equal(t, int64(1000), one.Series.Maturity)
	require.Equal(t, "0.98", one.Series.QuotePrice.String())

	rec = serve(h, http.MethodGet, "/series/2000")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/series/3000").Code)
	require.Equal(t, http.StatusBadRequest, serve(h, http.MethodGet, "/series/soon").Code)
}

func TestLoadingFlagReportsStaleSnapshot(t *testing.T) {
	snap := newFakeSnapshot(1000)
	snap.state = series.Loading
	h := New(snap, Config{RateLimit: 100, Burst: 100}).Handler()

	var list listResponse
	decode(t, serve(h, http.MethodGet, "/series"), &list)
	require.True(t, list.Loading)
	require.Equal(t, "loading", list.State)
}

func TestStatusIncludesPendingActions(t *testing.T) {
	snap := newFakeSnapshot(1000)
	actions := fakeActions{{Verb: execution.VerbSell, State: execution.Broadcasting}}
	h := New(snap, Config{RateLimit: 100, Burst: 100}, WithActions(actions)).Handler()

	rec := serve(h, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var raw map[string]any
	decode(t, rec, &raw)
	require.Equal(t, float64(1000), raw["active"])
	pending := raw["pending"].([]any)
	require.Len(t, pending, 1)
	require.Equal(t, "broadcasting", pending[0].(map[string]any)["state"])
}

func TestRefreshTrigger(t *testing.T) {
	snap := newFakeSnapshot(1000, 2000)
	h := New(snap, Config{RateLimit: 100, Burst: 100}).Handler()

	require.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/refresh").Code)
	require.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/refresh?maturity=2000").Code)
	require.Equal(t, http.StatusNotFound, serve(h, http.MethodPost, "/refresh?maturity=42").Code)
	require.Equal(t, http.StatusBadRequest, serve(h, http.MethodPost, "/refresh?maturity=x").Code)
	require.Equal(t, [][]int64{nil, {2000}, {42}}, snap.refreshed)

	snap.err = errors.New("rpc unavailable")
	require.Equal(t, http.StatusBadGateway, serve(h, http.MethodPost, "/refresh").Code)
}

func TestRateLimitPerClient(t *testing.T) {
	snap := newFakeSnapshot(1000)
	h := New(snap, Config{RateLimit: 0.001, Burst: 2}).Handler()

	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/series").Code)
	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/series").Code)
	require.Equal(t, http.StatusTooManyRequests, serve(h, http.MethodGet, "/series").Code)

	other := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/series", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	h.ServeHTTP(other, req)
	require.Equal(t, http.StatusOK, other.Code)

	// Health and metrics bypass the limiter.
	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/healthz").Code)
	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/metrics").Code)
}
