package server

import (
	"bufio"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/blogsmith/blogsmith/internal/metrics"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 30 * time.Second

// Hub manages SSE clients for build-change broadcasts.
type Hub struct {
	mu        sync.RWMutex
	nextID    int
	clients   map[int]*hubClient
	recorder  metrics.Recorder
	closed    bool
	lastToken string
}

type hubClient struct {
	id   int
	ch   chan string
	done chan struct{}
}

// NewHub creates a live-reload hub.
func NewHub(recorder metrics.Recorder) *Hub {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Hub{clients: map[int]*hubClient{}, recorder: recorder}
}

// ServeHTTP implements the SSE endpoint at /livereload.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	client := &hubClient{ch: make(chan string, 8), done: make(chan struct{})}
	h.mu.Lock()
	client.id = h.nextID
	h.nextID++
	h.clients[client.id] = client
	current := h.lastToken
	count := len(h.clients)
	h.mu.Unlock()
	h.recorder.SetLiveReloadClients(count)

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(": connected\n\n"); err != nil {
		h.removeClient(client.id)
		return
	}
	if current != "" {
		if _, err := bw.WriteString("data: {\"token\":\"" + current + "\"}\n\n"); err != nil {
			h.removeClient(client.id)
			return
		}
	}
	if err := bw.Flush(); err == nil {
		flusher.Flush()
	}

	hb := time.NewTicker(heartbeatInterval)
	defer hb.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.removeClient(client.id)
			return
		case <-client.done:
			h.removeClient(client.id)
			return
		case <-hb.C:
			if _, err := bw.WriteString(": ping\n\n"); err != nil {
				h.removeClient(client.id)
				return
			}
			if err := bw.Flush(); err != nil {
				h.removeClient(client.id)
				return
			}
			flusher.Flush()
		case token := <-client.ch:
			if _, err := bw.WriteString("data: {\"token\":\"" + token + "\"}\n\n"); err != nil {
				h.removeClient(client.id)
				return
			}
			if err := bw.Flush(); err != nil {
				h.removeClient(client.id)
				return
			}
			flusher.Flush()
		}
	}
}

// Broadcast notifies all clients that a new build is published.
func (h *Hub) Broadcast(token string) {
	h.mu.Lock()
	if h.closed || token == h.lastToken {
		h.mu.Unlock()
		return
	}
	h.lastToken = token
	clients := make([]*hubClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		select {
		case c.ch <- token:
		default:
			slog.Debug("Dropping live-reload event for slow client", "client", c.id)
		}
	}
}

// Close disconnects all clients and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*hubClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		close(c.done)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) removeClient(id int) {
	h.mu.Lock()
	delete(h.clients, id)
	count := len(h.clients)
	h.mu.Unlock()
	h.recorder.SetLiveReloadClients(count)
}
