// Tile Emulator - a fleet of software tiles
//
// Runs N emulated tile devices against a real MQTT broker, each with its
// own connection, retained ONLINE/OFFLINE announcement, command topics,
// and 1 Hz state loop. Useful for developing and demonstrating the bridge
// without hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mltiles/tilebridge/internal/emulator"
	"github.com/mltiles/tilebridge/internal/infrastructure/config"
	"github.com/mltiles/tilebridge/internal/infrastructure/logging"
	"github.com/mltiles/tilebridge/internal/infrastructure/mqtt"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tile-emulator", flag.ContinueOnError)
	var (
		count     = fs.Int("count", 1, "number of tiles to emulate")
		host      = fs.String("host", "127.0.0.1", "MQTT broker host")
		port      = fs.Int("port", 1883, "MQTT broker port")
		username  = fs.String("username", "", "MQTT username")
		password  = fs.String("password", "", "MQTT password")
		rootTopic = fs.String("root", mqtt.DefaultRootTopic, "topic hierarchy root")
		qos       = fs.Int("qos", 1, "MQTT QoS level")
		namePfx   = fs.String("prefix", "TILE", "device name prefix (names are PREFIX1..PREFIXn)")
		presence  = fs.Int("presence", 0, "toggle the presence sensor every N seconds (0 disables)")
		logLevel  = fs.String("log-level", "info", "log level (debug, info, warn, error)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *count < 1 {
		return fmt.Errorf("count must be at least 1")
	}
	if *qos < 0 || *qos > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2")
	}

	log := logging.New(config.LoggingConfig{Level: *logLevel, Format: "text", Output: "stdout"}, "emulator")
	log.Info("starting tile emulator fleet",
		"count", *count,
		"broker", fmt.Sprintf("%s:%d", *host, *port),
		"root_topic", *rootTopic,
	)

	g, ctx := errgroup.WithContext(ctx)
	for i := 1; i <= *count; i++ {
		name := fmt.Sprintf("%s%d", *namePfx, i)
		g.Go(func() error {
			return runTile(ctx, tileSettings{
				name:      name,
				host:      *host,
				port:      *port,
				username:  *username,
				password:  *password,
				rootTopic: *rootTopic,
				qos:       byte(*qos),
				presence:  *presence,
			}, log.With("tile", name))
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("emulator fleet: %w", err)
	}
	log.Info("tile emulator fleet stopped")
	return nil
}

type tileSettings struct {
	name      string
	host      string
	port      int
	username  string
	password  string
	rootTopic string
	qos       byte
	presence  int
}

// runTile connects one device to the broker and runs it until the context
// is cancelled. The broker-side LWT covers crash detection; the device
// publishes its own retained OFFLINE on graceful shutdown.
func runTile(ctx context.Context, settings tileSettings, log *logging.Logger) error {
	mqttCfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     settings.host,
			Port:     settings.port,
			ClientID: settings.name + "-emulator",
		},
		Auth: config.MQTTAuthConfig{
			Username: settings.username,
			Password: settings.password,
		},
		QoS:       int(settings.qos),
		RootTopic: settings.rootTopic,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     30,
		},
	}

	topics := mqtt.NewTopics(settings.rootTopic)
	client, err := mqtt.ConnectWithStatus(mqttCfg, mqtt.StatusAnnouncement{
		Topic:   topics.TileAnnouncement(settings.name),
		Online:  []byte("ONLINE"),
		Offline: []byte("OFFLINE"),
	})
	if err != nil {
		return fmt.Errorf("%s: connecting to MQTT: %w", settings.name, err)
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	client.SetLogger(log)

	device, err := emulator.New(emulator.Options{
		Name:                settings.name,
		Bus:                 client,
		RootTopic:           settings.rootTopic,
		QoS:                 settings.qos,
		PresenceToggleTicks: settings.presence,
		Logger:              log,
	})
	if err != nil {
		return fmt.Errorf("%s: creating device: %w", settings.name, err)
	}

	return device.Run(ctx)
}
