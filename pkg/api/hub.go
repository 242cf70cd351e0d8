// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luxfi/dax/pkg/auction"
	"github.com/luxfi/dax/pkg/log"
)

const (
	// subscriberBuffer is the per-subscriber backlog. A subscriber that
	// falls further behind than this is evicted.
	subscriberBuffer = 16

	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans auction lifecycle events out to websocket subscribers. It
// plugs into the registry as an event sink; each event is marshaled once
// and broadcast to every subscriber.
type Hub struct {
	mu   sync.Mutex
	next int
	subs map[int]chan []byte
	log  log.Logger
}

var _ auction.Sink = (*Hub)(nil)

// NewHub builds an empty hub.
func NewHub(logger log.Logger) *Hub {
	if logger == nil {
		logger = log.NoLog
	}
	return &Hub{
		subs: make(map[int]chan []byte),
		log:  logger,
	}
}

// OnEvent implements auction.Sink.
func (h *Hub) OnEvent(e auction.Event) {
	msg, err := json.Marshal(e)
	if err != nil {
		h.log.Error("marshaling event", "type", e.Base().Type, "error", err)
		return
	}
	h.broadcast(msg)
}

// broadcast never blocks; slow subscribers are evicted so one stalled
// connection cannot hold up settlement.
func (h *Hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- msg:
		default:
			close(ch)
			delete(h.subs, id)
			h.log.Warn("evicting slow event subscriber", "subscriber", id)
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func is safe
// to call after the subscriber has been evicted.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan []byte, subscriberBuffer)
	h.subs[id] = ch
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			close(sub)
			delete(h.subs, id)
		}
	}
	return ch, cancel
}

// SubscriberCount reports the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeWS upgrades the request and streams events until the peer
// disconnects or the subscriber is evicted.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := h.Subscribe()
	defer cancel()

	// Writer owns the connection teardown so a write failure or an
	// eviction also unblocks the read loop below.
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer func() {
			ticker.Stop()
			conn.Close()
		}()
		for {
			select {
			case msg, ok := <-events:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Read loop exists to detect peer close; inbound frames are ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
