// Package statushub publishes sync status to local observers: websocket
// clients, a JSON status endpoint and a gRPC health service.
package statushub

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/dmitrijs2005/notesync/internal/client/syncer"
	"github.com/dmitrijs2005/notesync/internal/logging"
)

type MessageType string

const (
	MessageHello        MessageType = "hello"
	MessageSyncStatus   MessageType = "sync_status"
	MessageNotesChanged MessageType = "notes_changed"
)

// Message is what websocket clients receive.
type Message struct {
	Type   MessageType         `json:"type"`
	Time   time.Time           `json:"time"`
	Status *syncer.StatusEvent `json:"status,omitempty"`
}

const (
	broadcastBuffer = 64
	writeTimeout    = 5 * time.Second
)

// Hub implements syncer.Publisher and fans events out to websocket
// clients. It remembers the latest status for /status and /health.
type Hub struct {
	log    logging.Logger
	health *Health

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
	latest  *syncer.StatusEvent

	broadcast chan Message
	onConnect func(ctx context.Context)

	// runCtx is Run's context; connect hooks derive from it and Run waits
	// for them before returning.
	runCtx   context.Context
	stopped  bool
	sessions sync.WaitGroup
}

// NewHub creates a hub. health may be nil.
func NewHub(log logging.Logger, health *Health) *Hub {
	return &Hub{
		log:       log.With("module", "statushub"),
		health:    health,
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan Message, broadcastBuffer),
	}
}

func (h *Hub) PublishStatus(ctx context.Context, ev syncer.StatusEvent) {
	h.mu.Lock()
	h.latest = &ev
	h.mu.Unlock()

	if h.health != nil && !ev.InProgress {
		h.health.Set(ev.Healthy)
	}
	h.enqueue(ctx, Message{Type: MessageSyncStatus, Time: ev.Time, Status: &ev})
}

func (h *Hub) PublishNotesChanged(ctx context.Context) {
	h.enqueue(ctx, Message{Type: MessageNotesChanged, Time: time.Now()})
}

func (h *Hub) enqueue(ctx context.Context, msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn(ctx, "broadcast queue full, dropping message", "type", string(msg.Type))
	}
}

// OnConnect registers fn to run, in its own goroutine, whenever a
// websocket client connects while Run is active. fn gets Run's context.
func (h *Hub) OnConnect(fn func(ctx context.Context)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onConnect = fn
}

// Latest returns the most recent status, if any was published.
func (h *Hub) Latest() (syncer.StatusEvent, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return syncer.StatusEvent{}, false
	}
	return *h.latest, true
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run delivers queued messages until ctx is done, then disconnects all
// clients and waits for connect hooks to return.
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.runCtx = ctx
	h.mu.Unlock()
	defer h.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.broadcast:
			h.send(ctx, msg)
		}
	}
}

func (h *Hub) send(ctx context.Context, msg Message) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := wsjson.Write(wctx, c, msg)
		cancel()
		if err != nil {
			h.log.Debug(ctx, "websocket write failed, dropping client", "error", err)
			h.remove(c, websocket.StatusGoingAway)
		}
	}
}

func (h *Hub) remove(c *websocket.Conn, code websocket.StatusCode) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		_ = c.Close(code, "")
	}
}

func (h *Hub) stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	h.closeAll()
	h.sessions.Wait()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	conns := h.clients
	h.clients = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()
	for c := range conns {
		_ = c.Close(websocket.StatusGoingAway, "shutting down")
	}
}

// Handler serves /ws, /status and /health.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", h.handleWS)
	mux.HandleFunc("GET /status", h.handleStatus)
	mux.HandleFunc("GET /health", h.handleHealth)
	return mux
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	hello := Message{Type: MessageHello, Time: time.Now(), Status: h.latest}
	if h.onConnect != nil && h.runCtx != nil && !h.stopped {
		// Add under mu so stop never waits while a hook is being started
		h.sessions.Add(1)
		go func(fn func(context.Context), ctx context.Context) {
			defer h.sessions.Done()
			fn(ctx)
		}(h.onConnect, h.runCtx)
	}
	h.mu.Unlock()

	wctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	err = wsjson.Write(wctx, conn, hello)
	cancel()
	if err != nil {
		h.remove(conn, websocket.StatusInternalError)
		return
	}

	// clients only listen; block until they go away
	<-conn.CloseRead(r.Context()).Done()
	h.remove(conn, websocket.StatusNormalClosure)
}

func (h *Hub) handleStatus(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy := true
	if ev, ok := h.Latest(); ok {
		healthy = ev.Healthy
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"healthy": healthy,
		"clients": h.ClientCount(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve runs the HTTP endpoints on addr until ctx is done.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: h.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	h.log.Info(ctx, "status endpoint listening", "address", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
