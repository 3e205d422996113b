package api

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mltiles/tilebridge/internal/bridge"
	"github.com/mltiles/tilebridge/internal/infrastructure/config"
	"github.com/mltiles/tilebridge/internal/tile"
)

// wsSendBufferSize is the per-client outbound message buffer size.
const wsSendBufferSize = 256

// CommandSender routes validated client commands onto the bus.
// This interface is satisfied by *bridge.Bridge.
type CommandSender interface {
	SendCommand(domain tile.Domain, names []string, args json.RawMessage) ([]bridge.CommandResult, error)
}

// WSClient represents one connected websocket client.
type WSClient struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	router CommandSender
}

// readPump reads messages from the websocket connection. It runs for
// the connection's lifetime and unregisters the client exactly once on
// exit, which also clears every subscription.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "client_id", c.id, "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "client_id", c.id, "error", err)
			}
			return
		}
		// Any client message resets the read deadline (keeps connection alive
		// even if the client doesn't respond to protocol-level pings).
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes messages to the websocket connection.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes one inbound client envelope. Malformed or
// unknown requests are logged and ignored; the connection stays open.
func (c *WSClient) handleMessage(data []byte) {
	var req ClientRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.hub.logger.Warn("malformed client request ignored", "client_id", c.id, "error", err)
		return
	}

	switch req.Action {
	case ActionSubscribe:
		c.handleSubscribe(req)
	case ActionUnsubscribe:
		c.handleUnsubscribe(req)
	case ActionCommand:
		c.handleCommand(req)
	default:
		c.hub.logger.Warn("unknown client action ignored",
			"client_id", c.id,
			"action", req.Action)
	}
}

// handleSubscribe routes a subscribe request to the hub.
func (c *WSClient) handleSubscribe(req ClientRequest) {
	switch req.Type {
	case TypeTiles:
		c.hub.SubscribeDiscovery(c)
	case TypeState:
		c.hub.SubscribeState(c, req.Tiles)
	default:
		c.hub.logger.Warn("unknown subscribe type ignored",
			"client_id", c.id,
			"type", req.Type)
	}
}

// handleUnsubscribe routes an unsubscribe request to the hub.
func (c *WSClient) handleUnsubscribe(req ClientRequest) {
	switch req.Type {
	case TypeTiles:
		c.hub.UnsubscribeDiscovery(c)
	case TypeState:
		c.hub.UnsubscribeState(c, req.Tiles)
	default:
		c.hub.logger.Warn("unknown unsubscribe type ignored",
			"client_id", c.id,
			"type", req.Type)
	}
}

// handleCommand forwards a command request to the bridge's router.
// Per-tile skips are expected (unknown or offline tiles); anything else
// is logged at error level.
func (c *WSClient) handleCommand(req ClientRequest) {
	if c.router == nil {
		c.hub.logger.Warn("command refused, no router configured", "client_id", c.id)
		return
	}

	results, err := c.router.SendCommand(tile.Domain(req.Type), req.Tiles, req.Args)
	if err != nil {
		c.hub.logger.Warn("command request rejected",
			"client_id", c.id,
			"type", req.Type,
			"error", err.Error())
		return
	}

	for _, r := range bridge.FailedResults(results) {
		if bridge.IsSkip(r.Err) {
			c.hub.logger.Warn("command skipped",
				"client_id", c.id,
				"tile", r.Tile,
				"reason", r.Err.Error())
		} else {
			c.hub.logger.Error("command failed",
				"client_id", c.id,
				"tile", r.Tile,
				"error", r.Err)
		}
	}
}

// trySend attempts to send data to the client's send channel.
// It silently handles closed channels (client disconnected during
// fan-out) and full buffers (slow client).
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		// Client buffer full, skip
	}
}
