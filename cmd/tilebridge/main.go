// Tile Bridge - tile registry and state synchronization
//
// This is the main entry point for the tile bridge. The bridge mirrors
// every tile device it sights on the MQTT bus into an in-memory registry
// and fans state changes out to websocket clients, routing their commands
// back onto the bus.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mltiles/tilebridge/internal/api"
	"github.com/mltiles/tilebridge/internal/bridge"
	"github.com/mltiles/tilebridge/internal/infrastructure/config"
	"github.com/mltiles/tilebridge/internal/infrastructure/database"
	"github.com/mltiles/tilebridge/internal/infrastructure/influxdb"
	"github.com/mltiles/tilebridge/internal/infrastructure/logging"
	"github.com/mltiles/tilebridge/internal/infrastructure/mqtt"
	"github.com/mltiles/tilebridge/internal/tile"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Tile Bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open state-history database (optional)
	var history tile.HistoryRepository
	var db *database.DB
	if cfg.History.Enabled {
		db, err = database.Open(database.Config{
			Path:        cfg.History.Path,
			WALMode:     cfg.History.WALMode,
			BusyTimeout: cfg.History.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening history database: %w", err)
		}
		defer func() {
			log.Info("closing history database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing history database", "error", closeErr)
			}
		}()

		history, err = tile.NewSQLiteHistoryRepository(db.DB)
		if err != nil {
			return fmt.Errorf("initialising state history: %w", err)
		}
		log.Info("state history enabled", "path", cfg.History.Path)
	} else {
		log.Info("state history disabled")
	}

	// Connect to MQTT broker. The client announces the bridge itself as
	// online (retained, with an offline LWT) on <root>/bridge/status.
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// The registry starts empty; tiles appear as the bus announces them.
	registry := tile.NewRegistry()
	registry.SetLogger(log)

	// API server first: the bridge needs its hub for state fan-out.
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log,
		Registry: registry,
		History:  history,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Bridge wires the bus to the registry and the hub.
	tileBridge, err := bridge.New(bridge.Options{
		Config:   cfg,
		Bus:      mqttClient,
		Registry: registry,
		Notifier: server.Hub(),
		History:  history,
		Metrics:  metricsWriter(influxClient),
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	// Websocket commands route back through the bridge.
	server.SetRouter(tileBridge)

	if err := tileBridge.Start(); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		tileBridge.Stop()
	}()
	log.Info("bridge started", "root_topic", cfg.MQTT.RootTopic)

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (disconnects websocket clients)
	// 2. Bridge (cancels pending probes)
	// 3. InfluxDB (if enabled)
	// 4. MQTT (publishes retained offline status)
	// 5. History database (if enabled)

	log.Info("Tile Bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses TILEBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TILEBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// metricsWriter converts a possibly-nil influx client to the bridge's
// metrics interface without producing a typed nil.
func metricsWriter(c *influxdb.Client) bridge.MetricsWriter {
	if c == nil {
		return nil
	}
	return c
}

// healthCheck verifies all infrastructure connections are healthy.
// db and influxClient may be nil when the corresponding feature is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, server *api.Server) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}
