package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/robotalks/spc.go/pkg/msgs"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	conn, err := websocket.Dial(url, "", srv.URL)
	require.NoError(t, err)
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	for i := 0; i < 100; i++ {
		if h.Clients() == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expect %d clients, got %d", n, h.Clients())
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	all := dial(t, srv, "")
	defer all.Close()
	indicator := dial(t, srv, "?gauge=indicator")
	defer indicator.Close()
	waitClients(t, hub, 2)

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, &msgs.Reading{Gauge: "caliper", Value: 12.5, Unit: "mm"}))
	require.NoError(t, hub.Publish(ctx, &msgs.Reading{Gauge: "indicator", Value: -0.01, Unit: "in"}))

	var r msgs.Reading
	require.NoError(t, websocket.JSON.Receive(all, &r))
	require.Equal(t, "caliper", r.Gauge)
	require.Equal(t, 12.5, r.Value)
	require.NoError(t, websocket.JSON.Receive(all, &r))
	require.Equal(t, "indicator", r.Gauge)

	require.NoError(t, websocket.JSON.Receive(indicator, &r))
	require.Equal(t, "indicator", r.Gauge)
	require.Equal(t, "in", r.Unit)

	all.Close()
	waitClients(t, hub, 1)
}
