package api

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"simple-server/internal/events"
	"simple-server/internal/logger"
	"simple-server/internal/worker"
)

func TestMain(m *testing.M) {
	flag.Parse()
	if !testing.Verbose() {
		logger.SetDefault(logger.New(io.Discard, logger.LevelError))
	}
	os.Exit(m.Run())
}

func newTestPool(t *testing.T, size int) *worker.Pool {
	t.Helper()
	pool, err := worker.New(size)
	require.NoError(t, err)
	t.Cleanup(pool.Shutdown)
	return pool
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHandleStatus(t *testing.T) {
	pool := newTestPool(t, 3)
	ts := httptest.NewServer(NewServer("", pool, nil, nil).Handler())
	defer ts.Close()

	var status StatusResponse
	getJSON(t, ts.URL+"/api/status", &status)

	assert.Equal(t, 3, status.Size)
	assert.Equal(t, int64(3), status.LiveWorkers)
	assert.False(t, status.Closed)
	require.Len(t, status.Workers, 3)
	for i, w := range status.Workers {
		assert.Equal(t, i, w.ID)
		assert.Equal(t, "Running", w.State)
	}

	pool.Shutdown()
	getJSON(t, ts.URL+"/api/status", &status)
	assert.True(t, status.Closed)
	assert.Equal(t, int64(0), status.LiveWorkers)
	for _, w := range status.Workers {
		assert.Equal(t, "Stopped", w.State)
	}
}

func TestHandleMetrics(t *testing.T) {
	pool := newTestPool(t, 2)
	ts := httptest.NewServer(NewServer("", pool, nil, nil).Handler())
	defer ts.Close()

	done := make(chan struct{}, 3)
	for range 3 {
		require.NoError(t, pool.Submit(func() { done <- struct{}{} }))
	}
	require.NoError(t, pool.Submit(func() { panic("boom") }))
	for range 3 {
		<-done
	}
	assert.Eventually(t, func() bool {
		return pool.Metrics().Finished() == 4
	}, time.Second, time.Millisecond)

	var resp MetricsResponse
	getJSON(t, ts.URL+"/api/metrics", &resp)

	assert.Equal(t, uint64(4), resp.Submitted)
	assert.Equal(t, uint64(3), resp.Completed)
	assert.Equal(t, uint64(1), resp.Panicked)
	assert.GreaterOrEqual(t, resp.AvgLatencyMs, 0.0)
}

func TestMethodNotAllowed(t *testing.T) {
	pool := newTestPool(t, 1)
	ts := httptest.NewServer(NewServer("", pool, nil, nil).Handler())
	defer ts.Close()

	for _, path := range []string{"/api/status", "/api/metrics"} {
		resp, err := http.Post(ts.URL+path, "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, path)
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	pool := newTestPool(t, 2)
	reg := prometheus.NewRegistry()
	require.NoError(t, pool.RegisterMetrics(reg))

	ts := httptest.NewServer(NewServer("", pool, nil, reg).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "simple_server_pool_jobs_submitted_total")
	assert.Contains(t, string(body), "simple_server_pool_live_workers 2")
}

func TestPrometheusEndpointDisabled(t *testing.T) {
	pool := newTestPool(t, 1)
	ts := httptest.NewServer(NewServer("", pool, nil, nil).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, err := websocket.Dial(url, "", ts.URL)
	require.NoError(t, err)
	return ws
}

func receive(t *testing.T, ws *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var raw string
	require.NoError(t, websocket.Message.Receive(ws, &raw))

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	return msg
}

func TestWebSocketEvents(t *testing.T) {
	pool := newTestPool(t, 1)
	bus := events.NewBus()
	defer bus.Close()

	s := NewServer("", pool, bus, nil, WithStatusInterval(time.Hour))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.broadcastLoop(ctx)

	ws := dialWS(t, ts)
	defer ws.Close()

	assert.Eventually(t, func() bool {
		return s.ClientCount() == 1 && bus.SubscriberCount() == 1
	}, time.Second, time.Millisecond)

	bus.Publish(events.NewJobPanickedEvent(0, "boom"))

	msg := receive(t, ws)
	assert.Equal(t, "event", msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, events.EventJobPanicked, msg.Event.Type)
	assert.Equal(t, 0, msg.Event.WorkerID)
	assert.Equal(t, "boom", msg.Event.Data.Error)
}

func TestWebSocketStatus(t *testing.T) {
	pool := newTestPool(t, 2)

	s := NewServer("", pool, nil, nil, WithStatusInterval(10*time.Millisecond))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.broadcastLoop(ctx)

	ws := dialWS(t, ts)
	defer ws.Close()

	msg := receive(t, ws)
	assert.Equal(t, "status", msg.Type)
	require.NotNil(t, msg.Status)
	assert.Equal(t, 2, msg.Status.Size)

	ws.Close()
	assert.Eventually(t, func() bool { return s.ClientCount() == 0 }, time.Second, time.Millisecond)
}

func TestWithStatusInterval(t *testing.T) {
	pool := newTestPool(t, 1)

	assert.Equal(t, time.Second, NewServer("", pool, nil, nil).statusInterval)
	assert.Equal(t, 50*time.Millisecond,
		NewServer("", pool, nil, nil, WithStatusInterval(50*time.Millisecond)).statusInterval)
	assert.Equal(t, time.Second,
		NewServer("", pool, nil, nil, WithStatusInterval(0)).statusInterval)
}

func TestServeShutdownOnCancel(t *testing.T) {
	pool := newTestPool(t, 1)
	s := NewServer("", pool, nil, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	var status StatusResponse
	getJSON(t, "http://"+ln.Addr().String()+"/api/status", &status)
	assert.Equal(t, 1, status.Size)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestStartInvalidAddr(t *testing.T) {
	pool := newTestPool(t, 1)
	s := NewServer("bad-addr", pool, nil, nil)
	assert.Error(t, s.Start(context.Background()))
}
