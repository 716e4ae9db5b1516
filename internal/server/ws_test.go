package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphlens/internal/graph"
)

func dialWS(t *testing.T, httpURL string) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(httpURL, "http://", "ws://", 1) + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocket_ReceivesGraphChangedFrames(t *testing.T) {
	srv, sess := newTestServer(t, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts.URL)

	// Wait for the hub to register the connection before mutating the graph.
	require.Eventually(t, func() bool {
		return srv.Hub().ClientCount() == 1
	}, time.Second, 5*time.Millisecond)

	sess.MergeFragment(&graph.Graph{Nodes: []graph.Node{
		{ID: "n1", Labels: []string{"Customer"}},
	}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Type          string `json:"type"`
		Nodes         int    `json:"nodes"`
		Relationships int    `json:"relationships"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "graph_changed", frame.Type)
	assert.Equal(t, 1, frame.Nodes)
}

func TestWebSocket_BroadcastReachesAllClients(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	first := dialWS(t, ts.URL)
	second := dialWS(t, ts.URL)

	require.Eventually(t, func() bool {
		return srv.Hub().ClientCount() == 2
	}, time.Second, 5*time.Millisecond)

	srv.Hub().Broadcast(map[string]string{"type": "ping"})

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame map[string]string
		require.NoError(t, conn.ReadJSON(&frame))
		assert.Equal(t, "ping", frame["type"])
	}
}

func TestWebSocket_DisconnectRemovesClient(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts.URL)
	require.Eventually(t, func() bool {
		return srv.Hub().ClientCount() == 1
	}, time.Second, 5*time.Millisecond)

	conn.Close()

	assert.Eventually(t, func() bool {
		return srv.Hub().ClientCount() == 0
	}, time.Second, 5*time.Millisecond)
}
