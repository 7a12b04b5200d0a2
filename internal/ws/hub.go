// Package ws pushes consensus updates to subscribed clients. Clients connect
// per chat and only listen; all state changes go through the HTTP API.
package ws

import (
	"encoding/json"
	"sync"

	"github.com/sim31/fractalgram/internal/events"
)

type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Connection]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Connection]struct{})}
}

func (h *Hub) Register(chatID string, c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[chatID]; !ok {
		h.rooms[chatID] = make(map[*Connection]struct{})
	}
	h.rooms[chatID][c] = struct{}{}
}

// Unregister removes the connection and closes its send channel. Closing
// under the write lock keeps broadcasts from racing the close.
func (h *Hub) Unregister(chatID string, c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.rooms[chatID]
	if !ok {
		return
	}
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.rooms, chatID)
	}
	close(c.send)
}

// BroadcastUpdate fans an update out to the chat's subscribers. Slow clients
// have the frame dropped rather than stalling the hub.
func (h *Hub) BroadcastUpdate(u events.Update) {
	b, err := json.Marshal(u)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[u.ChatID] {
		select {
		case c.send <- b:
		default:
		}
	}
}
