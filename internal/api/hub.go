package api

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mltiles/tilebridge/internal/infrastructure/config"
	"github.com/mltiles/tilebridge/internal/infrastructure/logging"
	"github.com/mltiles/tilebridge/internal/tile"
)

// Hub manages websocket clients and their tile subscriptions.
//
// Two kinds of subscription exist: discovery (tile-list additions and
// removals) and state (change notifications for named tiles). A client
// appears at most once in each set; all removal paths are idempotent.
//
// Lock ordering: the hub lock is released before any delivery. Delivery
// goes through the client's buffered send channel with a non-blocking
// send, so a slow client drops messages instead of stalling fan-out.
type Hub struct {
	cfg      config.WebSocketConfig
	logger   *logging.Logger
	registry *tile.Registry

	clients   map[*WSClient]struct{}
	discovery map[*WSClient]struct{}
	state     map[string]map[*WSClient]struct{}
	mu        sync.RWMutex
}

// NewHub creates a websocket hub over the given registry.
func NewHub(cfg config.WebSocketConfig, registry *tile.Registry, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		clients:   make(map[*WSClient]struct{}),
		discovery: make(map[*WSClient]struct{}),
		state:     make(map[string]map[*WSClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects all clients.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a newly connected client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "client_id", client.id, "clients", h.ClientCount())
}

// Unregister removes a client from the hub and every subscriber set.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
// Safe to call more than once per client.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	delete(h.discovery, client)
	for _, subscribers := range h.state {
		delete(subscribers, client)
	}
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "client_id", client.id, "clients", h.ClientCount())
}

// SubscribeDiscovery adds a client to the discovery set, delivering the
// full current tile list first. Re-subscribing is a no-op.
func (h *Hub) SubscribeDiscovery(client *WSClient) {
	h.mu.Lock()
	if _, already := h.discovery[client]; already {
		h.mu.Unlock()
		h.logger.Debug("discovery re-subscribe ignored", "client_id", client.id)
		return
	}
	h.discovery[client] = struct{}{}
	h.mu.Unlock()

	h.deliver(client, newTilesMessage(TileListSnapshot, h.registry.Names()))
	h.logger.Info("client subscribed to discovery", "client_id", client.id)
}

// UnsubscribeDiscovery removes a client from the discovery set.
func (h *Hub) UnsubscribeDiscovery(client *WSClient) {
	h.mu.Lock()
	delete(h.discovery, client)
	h.mu.Unlock()
}

// SubscribeState adds a client to the subscriber set of each named tile
// that exists, delivering a full-state snapshot per tile first. Unknown
// names are skipped silently; re-subscribing is a no-op.
func (h *Hub) SubscribeState(client *WSClient, tileNames []string) {
	for _, name := range tileNames {
		t, err := h.registry.Get(name)
		if err != nil {
			h.logger.Debug("state subscribe for unknown tile skipped",
				"client_id", client.id,
				"tile", name)
			continue
		}

		h.mu.Lock()
		subscribers := h.state[name]
		if subscribers == nil {
			subscribers = make(map[*WSClient]struct{})
			h.state[name] = subscribers
		}
		_, already := subscribers[client]
		subscribers[client] = struct{}{}
		h.mu.Unlock()

		if already {
			continue
		}

		h.deliver(client, newStateMessage(StateFull, name, t.Full()))
		h.logger.Info("client subscribed to tile state", "client_id", client.id, "tile", name)
	}
}

// UnsubscribeState removes a client from the named tiles' subscriber
// sets. Names the client never subscribed to are no-ops.
func (h *Hub) UnsubscribeState(client *WSClient, tileNames []string) {
	h.mu.Lock()
	for _, name := range tileNames {
		if subscribers := h.state[name]; subscribers != nil {
			delete(subscribers, client)
		}
	}
	h.mu.Unlock()
}

// NotifyTileAdded announces a new tile to every discovery subscriber and
// initialises its subscriber set.
func (h *Hub) NotifyTileAdded(name string) {
	h.mu.Lock()
	if h.state[name] == nil {
		h.state[name] = make(map[*WSClient]struct{})
	}
	targets := h.discoverySnapshot()
	h.mu.Unlock()

	msg := newTilesMessage(TileListAdd, []string{name})
	for _, client := range targets {
		h.deliver(client, msg)
	}
}

// NotifyStateChanged delivers an updated sub-domain snapshot to every
// subscriber of the named tile.
func (h *Hub) NotifyStateChanged(name string, domain tile.Domain, state any) {
	h.mu.RLock()
	subscribers := make([]*WSClient, 0, len(h.state[name]))
	for client := range h.state[name] {
		subscribers = append(subscribers, client)
	}
	h.mu.RUnlock()

	if len(subscribers) == 0 {
		return
	}

	msg := newStateMessage(string(domain), name, state)
	for _, client := range subscribers {
		h.deliver(client, msg)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// discoverySnapshot copies the discovery set. Callers must hold h.mu.
func (h *Hub) discoverySnapshot() []*WSClient {
	targets := make([]*WSClient, 0, len(h.discovery))
	for client := range h.discovery {
		targets = append(targets, client)
	}
	return targets
}

// deliver marshals a message and hands it to one client, fire-and-forget.
// A failed or dropped delivery never affects other subscribers.
func (h *Hub) deliver(client *WSClient, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal hub message", "error", err)
		return
	}
	client.trySend(data)
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
	h.discovery = make(map[*WSClient]struct{})
	h.state = make(map[string]map[*WSClient]struct{})
}
