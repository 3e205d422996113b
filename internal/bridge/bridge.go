package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mltiles/tilebridge/internal/infrastructure/config"
	"github.com/mltiles/tilebridge/internal/infrastructure/mqtt"
	"github.com/mltiles/tilebridge/internal/tile"
)

// Bridge mirrors tile state between the MQTT bus and the in-memory
// registry, and routes client commands back onto the bus.
//
// Thread Safety: All methods are safe for concurrent use. Inbound bus
// messages and client commands may arrive on different goroutines; the
// per-tile mutex inside tile.Tile serializes updates so a state update
// and its fan-out snapshot are atomic with respect to concurrent
// commands for the same tile.
type Bridge struct {
	cfg      *config.Config
	bus      BusClient
	topics   mqtt.Topics
	registry *tile.Registry
	notifier Notifier
	history  tile.HistoryRepository
	metrics  MetricsWriter
	qos      byte

	// Pending reconciliation probes, one per newly created tile.
	probes  map[string]*time.Timer
	probeMu sync.Mutex

	// Shutdown coordination
	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// BusClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type BusClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Notifier receives fan-out events for websocket delivery.
// This interface is satisfied by *api.Hub. It is optional - if nil,
// the bridge operates without client fan-out.
type Notifier interface {
	// NotifyTileAdded announces a newly discovered tile to discovery
	// subscribers.
	NotifyTileAdded(name string)

	// NotifyStateChanged delivers an updated sub-domain snapshot to
	// the tile's state subscribers.
	NotifyStateChanged(name string, domain tile.Domain, state any)
}

// MetricsWriter records numeric tile telemetry.
// This interface is satisfied by *influxdb.Client. It is optional -
// if nil, the bridge operates without telemetry.
type MetricsWriter interface {
	WriteTileMetric(tileName string, measurement string, value float64)
	WritePresenceEvent(tileName string, detected bool)
	WritePlaybackEvent(tileName string, state int, sound string)
}

// Logger is a minimal logging interface for the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options holds configuration for creating a bridge.
type Options struct {
	// Config is the loaded bridge configuration.
	Config *config.Config

	// Bus is the MQTT client implementation.
	Bus BusClient

	// Registry is the shared tile registry.
	Registry *tile.Registry

	// Notifier is optional websocket fan-out.
	Notifier Notifier

	// History is optional state-history persistence.
	// If nil, tile.NoopHistory is used.
	History tile.HistoryRepository

	// Metrics is optional telemetry.
	Metrics MetricsWriter

	// Logger is optional structured logger.
	Logger Logger
}

// New creates a new bridge instance.
// Call Start() to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Bus == nil {
		return nil, fmt.Errorf("bus client is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}

	history := opts.History
	if history == nil {
		history = tile.NoopHistory{}
	}

	// Bridge-level context aborts pending probes on Stop()
	ctx, ctxCancel := context.WithCancel(context.Background())

	// QoS validated by config.Validate to 0-2
	// #nosec G115
	qos := byte(opts.Config.MQTT.QoS)

	return &Bridge{
		cfg:       opts.Config,
		bus:       opts.Bus,
		topics:    mqtt.NewTopics(opts.Config.MQTT.RootTopic),
		registry:  opts.Registry,
		notifier:  opts.Notifier,
		history:   history,
		metrics:   opts.Metrics,
		qos:       qos,
		probes:    make(map[string]*time.Timer),
		ctx:       ctx,
		ctxCancel: ctxCancel,
		logger:    opts.Logger,
	}, nil
}

// Start begins bridge operation by subscribing to tile announcements.
// Per-tile state subscriptions are added lazily as tiles are discovered.
func (b *Bridge) Start() error {
	announceTopic := b.topics.AllTileAnnouncements()
	if err := b.bus.Subscribe(announceTopic, b.qos, b.handleAnnouncement); err != nil {
		return fmt.Errorf("subscribe to announcements: %w", err)
	}
	b.logInfo("subscribed to tile announcements", "topic", announceTopic)

	return nil
}

// Stop cancels pending reconciliation probes and releases the bridge
// context. The MQTT connection itself is owned by the caller.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()

		b.probeMu.Lock()
		for name, timer := range b.probes {
			timer.Stop()
			delete(b.probes, name)
		}
		b.probeMu.Unlock()

		b.logInfo("bridge stopped")
	})
}

// handleAnnouncement processes an ONLINE/OFFLINE message on <root>/<name>/self.
func (b *Bridge) handleAnnouncement(topic string, payload []byte) error {
	name, ok := b.topics.ParseAnnouncement(topic)
	if !ok {
		b.logDebug("ignoring non-announcement topic", "topic", topic)
		return nil
	}

	t, created := b.registry.GetOrCreate(name)
	if created {
		b.onTileCreated(name)
	}

	changed, err := t.UpdateOnline(payload)
	if err != nil {
		// Unknown announcement payloads are discarded, not errors.
		b.logDebug("ignoring announcement payload",
			"tile", name,
			"payload", string(payload))
		return nil
	}

	online := t.Online()
	if !online {
		b.cancelProbe(name)
	}

	if changed || created {
		b.notifyState(name, tile.DomainOnline, tile.OnlineState{Online: online})
		b.recordHistory(name, tile.DomainOnline, string(payload), tile.HistorySourceBus)
		b.logInfo("tile announcement", "tile", name, "online", online)
	}

	return nil
}

// onTileCreated wires up a newly discovered tile: subscribe to its
// state sub-topics, announce it to discovery subscribers, and schedule
// the reconciliation probe.
func (b *Bridge) onTileCreated(name string) {
	stateTopic := b.topics.TileStates(name)
	if err := b.bus.Subscribe(stateTopic, b.qos, b.handleState); err != nil {
		b.logError("failed to subscribe to tile states", err, "tile", name)
	}

	if b.notifier != nil {
		b.notifier.NotifyTileAdded(name)
	}

	b.scheduleProbe(name)

	b.logInfo("tile discovered", "tile", name)
}

// handleState processes a state message on <root>/<name>/self/state/<domain>.
func (b *Bridge) handleState(topic string, payload []byte) error {
	name, domainStr, ok := b.topics.ParseState(topic)
	if !ok {
		b.logDebug("ignoring non-state topic", "topic", topic)
		return nil
	}

	domain := tile.Domain(domainStr)
	if !tile.ValidStateDomain(domain) {
		b.logWarn("unknown state domain", "tile", name, "domain", domainStr)
		return nil
	}

	t, err := b.registry.Get(name)
	if err != nil {
		// State for a tile we never saw announce. Possible with retained
		// messages surviving a device that lost its LWT; create it so
		// the state is not lost.
		var created bool
		t, created = b.registry.GetOrCreate(name)
		if created {
			b.onTileCreated(name)
		}
	}

	snapshot, err := t.ApplyState(domain, payload)
	if err != nil {
		b.logWarn("invalid state payload",
			"tile", name,
			"domain", string(domain),
			"error", err.Error())
		return nil
	}

	b.notifyState(name, domain, snapshot)
	b.recordHistory(name, domain, string(payload), tile.HistorySourceBus)
	b.writeMetrics(name, snapshot)

	return nil
}

// notifyState fans a sub-domain snapshot out to subscribed clients.
func (b *Bridge) notifyState(name string, domain tile.Domain, state any) {
	if b.notifier == nil {
		return
	}
	b.notifier.NotifyStateChanged(name, domain, state)
}

// recordHistory appends a state snapshot to the audit trail.
func (b *Bridge) recordHistory(name string, domain tile.Domain, payload, source string) {
	if err := b.history.RecordStateChange(b.ctx, name, domain, payload, source); err != nil {
		b.logDebug("history record skipped",
			"tile", name,
			"domain", string(domain),
			"reason", err.Error())
	}
}

// writeMetrics records numeric telemetry for a valid state update.
func (b *Bridge) writeMetrics(name string, state any) {
	if b.metrics == nil {
		return
	}

	switch s := state.(type) {
	case tile.SystemState:
		b.metrics.WriteTileMetric(name, "uptime", float64(s.Uptime))
	case tile.AudioState:
		b.metrics.WriteTileMetric(name, "volume", float64(s.Volume))
		b.metrics.WritePlaybackEvent(name, int(s.State), s.Sound)
	case tile.LightState:
		b.metrics.WriteTileMetric(name, "brightness", float64(s.Brightness))
	case tile.PresenceState:
		b.metrics.WritePresenceEvent(name, s.Detected)
	}
}

// scheduleProbe arms the one-shot reconciliation probe for a new tile.
// The delay gives the device time to publish its retained state before
// the bridge starts querying for it.
func (b *Bridge) scheduleProbe(name string) {
	delay := b.cfg.GetReconcileDelay()

	b.probeMu.Lock()
	defer b.probeMu.Unlock()

	if _, exists := b.probes[name]; exists {
		return
	}
	b.probes[name] = time.AfterFunc(delay, func() {
		b.runProbe(name)
	})
}

// cancelProbe stops a pending probe, if any. Called when the tile goes
// offline before the probe fires.
func (b *Bridge) cancelProbe(name string) {
	b.probeMu.Lock()
	timer, ok := b.probes[name]
	if ok {
		delete(b.probes, name)
	}
	b.probeMu.Unlock()

	if ok && timer.Stop() {
		b.logDebug("reconciliation probe cancelled", "tile", name)
	}
}

// runProbe queries a tile for any state domains still at their defaults.
// Tiles that announced before the bridge started carry retained ONLINE
// but no retained state; sending a benign command prompts the device to
// republish the domain.
func (b *Bridge) runProbe(name string) {
	b.probeMu.Lock()
	delete(b.probes, name)
	b.probeMu.Unlock()

	select {
	case <-b.ctx.Done():
		return
	default:
	}

	t, err := b.registry.Get(name)
	if err != nil || !t.Online() {
		return
	}

	probed := 0

	sys := t.System()
	if sys.Firmware == "" || sys.Hardware == "" || len(sys.Sounds) == 0 {
		ping := true
		if b.probeCommand(t, tile.DomainSystem, func() ([]byte, error) {
			return t.BuildSystemCommand(tile.SystemCommandArgs{Ping: &ping})
		}) {
			probed++
		}
	}

	audio := t.Audio()
	if audio.Sound == "" {
		if b.probeCommand(t, tile.DomainAudio, func() ([]byte, error) {
			return t.BuildAudioCommand(tile.AudioCommandArgs{})
		}) {
			probed++
		}
	}

	light := t.Light()
	if len(light.Pixels) == 0 {
		if b.probeCommand(t, tile.DomainLight, func() ([]byte, error) {
			return t.BuildLightCommand(tile.LightCommandArgs{})
		}) {
			probed++
		}
	}

	if probed > 0 {
		b.logInfo("reconciliation probe sent", "tile", name, "domains", probed)
	}
}

// probeCommand builds and publishes one probe command. Returns true if
// the publish succeeded.
func (b *Bridge) probeCommand(t *tile.Tile, domain tile.Domain, build func() ([]byte, error)) bool {
	payload, err := build()
	if err != nil {
		b.logError("probe command build failed", err, "tile", t.Name)
		return false
	}

	topic := b.topics.TileCommand(t.Name, string(domain))
	if err := b.bus.Publish(topic, payload, b.qos, false); err != nil {
		b.logError("probe command publish failed", err, "tile", t.Name)
		return false
	}
	return true
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logDebug(msg string, args ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, args...)
	}
}

func (b *Bridge) logInfo(msg string, args ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, args...)
	}
}

func (b *Bridge) logWarn(msg string, args ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, args...)
	}
}

func (b *Bridge) logError(msg string, err error, args ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, append([]any{"error", err}, args...)...)
	}
}
