// Package api implements the HTTP and WebSocket server for the Tile Bridge.
//
// This package provides:
//   - REST endpoints for reading tile state and history
//   - WebSocket subscription hub for real-time state fan-out
//   - The client envelope protocol (subscribe/unsubscribe/command)
//   - Middleware stack (request ID, logging, recovery, body limits)
//   - TLS support for production deployments
//
// # Architecture
//
// The server sits between websocket clients and the tile registry + MQTT
// bus. Commands flow from clients through the bridge's command router
// onto the bus; state changes flow back from the bus through the bridge
// into the hub, which fans them out to subscribed clients.
//
// # Subscriptions
//
// Clients hold two kinds of subscription: discovery (additions and
// removals of tiles) and state (change notifications for named tiles).
// Subscribing delivers an immediate snapshot, after which only deltas
// flow. Delivery is fire-and-forget per client; a slow or closed client
// never blocks the update path.
//
// # Graceful Degradation
//
// The server operates without a command router — reads and state
// subscriptions work, only commands are refused. This enables testing
// and partial operation.
package api
