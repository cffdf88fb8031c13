// Package web exposes the HTTP API and the live event stream.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const subscriberBuffer = 16

// Hub fans live events out to websocket subscribers. Slow subscribers
// drop events rather than block publishers.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[chan []byte]struct{}),
	}
}

// Publish sends an event to every connected subscriber.
func (h *Hub) Publish(kind string, payload map[string]any) {
	msg, err := json.Marshal(map[string]any{
		"type": kind,
		"data": payload,
		"at":   time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("failed to encode event", "type", kind, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) subscribe() chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// HandleEvents upgrades the request to a websocket and streams events
// until the client disconnects.
func (h *Hub) HandleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	// The client never sends application messages; CloseRead watches
	// for disconnects.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case msg := <-ch:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
