// Package mqtt provides MQTT client connectivity for the tile bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// MQTT is the message bus between the bridge and the tile fleet. Tiles
// announce themselves on retained self topics, publish per-domain state,
// and accept per-domain commands. The broker decouples the bridge from
// individual tile firmware.
//
//	Tile Bridge ↔ MQTT Broker ↔ Tiles
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all tile announcements
//	err = client.Subscribe(client.Topics().AllTileAnnouncements(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish command
//	topic := client.Topics().TileCommand("tile-01", "light")
//	client.Publish(topic, []byte(`{"brightness":128}`), 1, false)
package mqtt
