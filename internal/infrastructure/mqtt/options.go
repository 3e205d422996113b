package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mltiles/tilebridge/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// StatusAnnouncement describes a client's presence topic.
//
// The Offline payload doubles as the Last Will and Testament: the broker
// publishes it if the client disconnects unexpectedly, and Close publishes
// it on graceful shutdown. The Online payload is published (retained) each
// time the connection is established.
type StatusAnnouncement struct {
	Topic   string
	Online  []byte
	Offline []byte
}

// bridgeStatusAnnouncement returns the default announcement for the bridge
// process itself, published on <root>/bridge/status.
func bridgeStatusAnnouncement(cfg config.MQTTConfig) StatusAnnouncement {
	topics := NewTopics(cfg.RootTopic)
	return StatusAnnouncement{
		Topic:   topics.BridgeStatus(),
		Online:  buildStatusPayload("online", cfg.Broker.ClientID),
		Offline: buildStatusPayload("offline", cfg.Broker.ClientID),
	}
}

// buildStatusPayload creates the JSON payload for bridge status messages.
func buildStatusPayload(status, clientID string) []byte {
	return []byte(fmt.Sprintf(
		`{"status":"%s","client_id":"%s","timestamp":"%s"}`,
		status,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	))
}

// buildClientOptions creates paho MQTT options from tile bridge config.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID for identification
//   - Authentication credentials (if provided)
//   - Auto-reconnect with exponential backoff
//   - TLS configuration (if enabled)
//   - Clean session mode
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	// Broker URL
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	brokerURL := fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
	opts.AddBroker(brokerURL)

	// Client identification
	opts.SetClientID(cfg.Broker.ClientID)

	// Authentication (if credentials provided)
	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Clean session - start fresh on connect (no persistent session on broker)
	opts.SetCleanSession(true)

	// Auto-reconnect with exponential backoff
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	// Connection timeout
	opts.SetConnectTimeout(defaultConnectTimeout)

	// Keepalive - broker sends PINGs to detect dead connections
	opts.SetKeepAlive(defaultKeepAlive)

	// TLS configuration if enabled
	if cfg.Broker.TLS {
		tlsConfig := &tls.Config{
			MinVersion: tlsMinVersion,
		}
		opts.SetTLSConfig(tlsConfig)
	}

	return opts
}

// configureLWT sets up Last Will and Testament for offline detection.
//
// The LWT message is published by the broker if the client disconnects
// unexpectedly (crash, network failure, etc.). This allows subscribers
// to detect when the client goes offline. The will is retained so new
// subscribers see the last known status.
func configureLWT(opts *pahomqtt.ClientOptions, status StatusAnnouncement) {
	opts.SetBinaryWill(status.Topic, status.Offline, 1, true)
}
