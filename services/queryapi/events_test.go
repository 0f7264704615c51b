package queryapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"fydai/services/series"
)

type fakeEvents struct {
	ch         chan series.Event
	subscribed chan struct{}
}

func (f *fakeEvents) Subscribe() (<-chan series.Event, func()) {
	close(f.subscribed)
	return f.ch, func() {}
}

func TestEventsStreamRefreshes(t *testing.T) {
	events := &fakeEvents{ch: make(chan series.Event, 2), subscribed: make(chan struct{})}
	srv := httptest.NewServer(New(newFakeSnapshot(1000), Config{RateLimit: 100, Burst: 100}, WithEvents(events)).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	select {
	case <-events.subscribed:
	case <-ctx.Done():
		t.Fatal("server never subscribed")
	}
	events.ch <- series.Event{Maturities: []int64{1000}, Active: 1000}
	events.ch <- series.Event{Err: errors.New("rpc down")}

	var first, second eventPayload
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &first))
	require.Equal(t, []int64{1000}, first.Maturities)
	require.Equal(t, int64(1000), first.Active)
	require.Equal(t, "ready", first.State)

	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &second))
	require.Equal(t, "rpc down", second.Error)
	require.Empty(t, second.Maturities)
}
