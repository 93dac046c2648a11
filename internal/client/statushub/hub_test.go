package statushub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/dmitrijs2005/notesync/internal/client/syncer"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startHub(t *testing.T, health *Health) (*Hub, *httptest.Server) {
	t.Helper()
	h := NewHub(logging.NewNop(), health)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Run(ctx)
	}()
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	require.Eventually(t, running(h), time.Second, time.Millisecond)
	return h, srv
}

func running(h *Hub) func() bool {
	return func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return h.runCtx != nil && !h.stopped
	}
}

func dial(t *testing.T, srv *httptest.Server) (*websocket.Conn, Message) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	var hello Message
	require.NoError(t, wsjson.Read(ctx, conn, &hello))
	return conn, hello
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var m Message
	require.NoError(t, wsjson.Read(ctx, conn, &m))
	return m
}

func TestHub_BroadcastsToClients(t *testing.T) {
	h, srv := startHub(t, nil)

	c1, hello := dial(t, srv)
	assert.Equal(t, MessageHello, hello.Type)
	assert.Nil(t, hello.Status)
	c2, _ := dial(t, srv)
	assert.Equal(t, 2, h.ClientCount())

	ctx := context.Background()
	h.PublishStatus(ctx, syncer.StatusEvent{Message: "Last synced: now", Healthy: true, Time: time.Now()})
	h.PublishNotesChanged(ctx)

	for _, c := range []*websocket.Conn{c1, c2} {
		m := read(t, c)
		assert.Equal(t, MessageSyncStatus, m.Type)
		require.NotNil(t, m.Status)
		assert.Equal(t, "Last synced: now", m.Status.Message)

		m = read(t, c)
		assert.Equal(t, MessageNotesChanged, m.Type)
	}
}

func TestHub_HelloCarriesLatestStatus(t *testing.T) {
	h, srv := startHub(t, nil)
	h.PublishStatus(context.Background(), syncer.StatusEvent{Message: "Sync disabled", Healthy: true})

	_, hello := dial(t, srv)
	require.NotNil(t, hello.Status)
	assert.Equal(t, "Sync disabled", hello.Status.Message)
}

func TestHub_StatusEndpoints(t *testing.T) {
	h, srv := startHub(t, nil)

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	last := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	h.PublishStatus(context.Background(), syncer.StatusEvent{Message: "Sync warning: download issue (error_parsing)", LastSyncTime: last})

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var ev syncer.StatusEvent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ev))
	assert.Equal(t, "Sync warning: download issue (error_parsing)", ev.Message)
	assert.True(t, ev.LastSyncTime.Equal(last))

	resp2, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, false, health["healthy"])
}

func TestHub_MirrorsHealth(t *testing.T) {
	health := NewHealth(logging.NewNop())
	h := NewHub(logging.NewNop(), health)
	ctx := context.Background()

	h.PublishStatus(ctx, syncer.StatusEvent{Healthy: false})
	st, err := health.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, st)

	// progress events do not flip health
	h.PublishStatus(ctx, syncer.StatusEvent{Healthy: true, InProgress: true})
	st, _ = health.Check(ctx)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, st)

	h.PublishStatus(ctx, syncer.StatusEvent{Healthy: true})
	st, _ = health.Check(ctx)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, st)
}

func TestHub_DropsWhenQueueFull(t *testing.T) {
	h := NewHub(logging.NewNop(), nil)
	for i := 0; i < broadcastBuffer+10; i++ {
		h.PublishNotesChanged(context.Background())
	}
	assert.Len(t, h.broadcast, broadcastBuffer)
}

func TestHub_OnConnect(t *testing.T) {
	h, srv := startHub(t, nil)
	called := make(chan struct{}, 1)
	h.OnConnect(func(context.Context) { called <- struct{}{} })

	dial(t, srv)

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnect hook not called")
	}
}

func TestHub_RunWaitsForConnectHooks(t *testing.T) {
	h := NewHub(logging.NewNop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Run(ctx)
	}()
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()
	require.Eventually(t, running(h), time.Second, time.Millisecond)

	var calls atomic.Int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var hookErr error
	h.OnConnect(func(ctx context.Context) {
		calls.Add(1)
		started <- struct{}{}
		<-ctx.Done()
		hookErr = ctx.Err()
		<-release
	})

	dial(t, srv)
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnect hook not called")
	}

	cancel()
	select {
	case <-done:
		t.Fatal("Run returned while a connect hook was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	require.ErrorIs(t, hookErr, context.Canceled)

	// a stopped hub starts no more hooks
	dial(t, srv)
	assert.Equal(t, int32(1), calls.Load())
}
