// Package bridge connects the tile registry to the MQTT bus.
//
// It owns the inbound side of the data flow: announcement and state
// messages arriving from tiles are parsed, applied to the registry,
// and fanned out to websocket subscribers via a Notifier. It also owns
// the outbound side: the command router validates client-issued
// commands, fills omitted fields from the tile's last known state, and
// publishes the result to the tile's command sub-topic.
//
// # Data Flow
//
//	bus message -> parse topic -> apply to tile -> notify hub -> history/metrics
//	client command -> SendCommand -> build payload -> publish to bus
//
// State changes only on confirmed feedback from the bus; publishing a
// command never mutates the registry.
//
// # Discovery
//
// Tiles are created lazily on first announcement. Creation subscribes
// the bridge to that tile's state sub-topics and schedules a one-shot
// reconciliation probe that queries the device for any domains still at
// defaults, in case the tile was already online before the bridge
// started. The probe is cancelled if the tile goes offline first.
//
// # Error Handling
//
// Nothing on the inbound path is fatal: malformed payloads are dropped
// with the tile's previous state intact, unknown topics are ignored,
// and per-name command failures never abort the rest of the batch.
package bridge
