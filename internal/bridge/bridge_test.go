package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/mltiles/tilebridge/internal/infrastructure/config"
	"github.com/mltiles/tilebridge/internal/infrastructure/mqtt"
	"github.com/mltiles/tilebridge/internal/tile"
)

// MockBusClient implements BusClient for testing.
type MockBusClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []mockSubscription
	connected     bool
	handlers      map[string]mqtt.MessageHandler
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type mockSubscription struct {
	Topic string
	QoS   byte
}

func NewMockBusClient() *MockBusClient {
	return &MockBusClient{
		connected: true,
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (m *MockBusClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockBusClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, mockSubscription{Topic: topic, QoS: qos})
	m.handlers[topic] = handler
	return nil
}

func (m *MockBusClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockBusClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

func (m *MockBusClient) GetSubscriptions() []mockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockSubscription(nil), m.subscriptions...)
}

func (m *MockBusClient) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

// MockNotifier implements Notifier for testing.
type MockNotifier struct {
	mu      sync.Mutex
	added   []string
	changes []stateChange
}

type stateChange struct {
	Tile   string
	Domain tile.Domain
	State  any
}

func (n *MockNotifier) NotifyTileAdded(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.added = append(n.added, name)
}

func (n *MockNotifier) NotifyStateChanged(name string, domain tile.Domain, state any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, stateChange{Tile: name, Domain: domain, State: state})
}

func (n *MockNotifier) Added() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.added...)
}

func (n *MockNotifier) Changes() []stateChange {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]stateChange(nil), n.changes...)
}

// MockHistory implements tile.HistoryRepository for testing.
type MockHistory struct {
	mu      sync.Mutex
	records []historyRecord
}

type historyRecord struct {
	Tile    string
	Domain  tile.Domain
	Payload string
	Source  string
}

func (h *MockHistory) RecordStateChange(_ context.Context, tileName string, domain tile.Domain, payload string, source string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, historyRecord{Tile: tileName, Domain: domain, Payload: payload, Source: source})
	return nil
}

func (h *MockHistory) GetHistory(_ context.Context, _ string, _ int) ([]tile.HistoryEntry, error) {
	return nil, nil
}

func (h *MockHistory) Records() []historyRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]historyRecord(nil), h.records...)
}

func testConfig() *config.Config {
	return &config.Config{
		MQTT: config.MQTTConfig{
			QoS:       1,
			RootTopic: "PM/MLT",
		},
		Bridge: config.BridgeConfig{
			ReconcileDelay: 5,
		},
	}
}

// testBridge builds a bridge wired to mocks and starts it.
func testBridge(t *testing.T) (*Bridge, *MockBusClient, *MockNotifier, *MockHistory) {
	t.Helper()

	bus := NewMockBusClient()
	notifier := &MockNotifier{}
	history := &MockHistory{}

	b, err := New(Options{
		Config:   testConfig(),
		Bus:      bus,
		Registry: tile.NewRegistry(),
		Notifier: notifier,
		History:  history,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(b.Stop)

	return b, bus, notifier, history
}

// announce delivers an announcement payload through the bridge handler.
func announce(t *testing.T, b *Bridge, name, payload string) {
	t.Helper()
	topic := b.topics.TileAnnouncement(name)
	if err := b.handleAnnouncement(topic, []byte(payload)); err != nil {
		t.Fatalf("handleAnnouncement(%s) error = %v", payload, err)
	}
}

// deliverState delivers a state payload through the bridge handler.
func deliverState(t *testing.T, b *Bridge, name, domain, payload string) {
	t.Helper()
	topic := b.topics.TileState(name, domain)
	if err := b.handleState(topic, []byte(payload)); err != nil {
		t.Fatalf("handleState(%s/%s) error = %v", name, domain, err)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	valid := Options{
		Config:   testConfig(),
		Bus:      NewMockBusClient(),
		Registry: tile.NewRegistry(),
	}

	tests := []struct {
		name   string
		mutate func(o *Options)
	}{
		{"missing config", func(o *Options) { o.Config = nil }},
		{"missing bus", func(o *Options) { o.Bus = nil }},
		{"missing registry", func(o *Options) { o.Registry = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid
			tt.mutate(&opts)
			if _, err := New(opts); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

func TestStart_SubscribesToAnnouncements(t *testing.T) {
	b, bus, _, _ := testBridge(t)

	subs := bus.GetSubscriptions()
	if len(subs) != 1 {
		t.Fatalf("subscriptions = %d, want 1", len(subs))
	}
	if subs[0].Topic != b.topics.AllTileAnnouncements() {
		t.Errorf("subscribed to %q, want %q", subs[0].Topic, b.topics.AllTileAnnouncements())
	}
}

func TestAnnouncement_CreatesTile(t *testing.T) {
	b, bus, notifier, history := testBridge(t)

	announce(t, b, "tile-01", "ONLINE")

	tl, err := b.registry.Get("tile-01")
	if err != nil {
		t.Fatalf("tile not created: %v", err)
	}
	if !tl.Online() {
		t.Error("tile should be online")
	}

	// Creation subscribes to the tile's state sub-topics
	subs := bus.GetSubscriptions()
	if len(subs) != 2 {
		t.Fatalf("subscriptions = %d, want 2", len(subs))
	}
	if subs[1].Topic != b.topics.TileStates("tile-01") {
		t.Errorf("state subscription = %q, want %q", subs[1].Topic, b.topics.TileStates("tile-01"))
	}

	// Discovery fan-out fires exactly once
	if added := notifier.Added(); len(added) != 1 || added[0] != "tile-01" {
		t.Errorf("added = %v, want [tile-01]", added)
	}

	// Online change is fanned out and recorded
	changes := notifier.Changes()
	if len(changes) != 1 || changes[0].Domain != tile.DomainOnline {
		t.Fatalf("changes = %+v, want one online change", changes)
	}
	records := history.Records()
	if len(records) != 1 || records[0].Source != tile.HistorySourceBus {
		t.Errorf("history = %+v, want one bus record", records)
	}
}

func TestAnnouncement_RepeatIsNoOp(t *testing.T) {
	b, _, notifier, _ := testBridge(t)

	announce(t, b, "tile-01", "ONLINE")
	announce(t, b, "tile-01", "ONLINE")

	if added := notifier.Added(); len(added) != 1 {
		t.Errorf("added events = %d, want 1", len(added))
	}
	// Second identical announcement produces no second online change
	if changes := notifier.Changes(); len(changes) != 1 {
		t.Errorf("state changes = %d, want 1", len(changes))
	}
}

func TestAnnouncement_UnknownPayloadDiscarded(t *testing.T) {
	b, _, notifier, _ := testBridge(t)

	announce(t, b, "tile-01", "ONLINE")
	announce(t, b, "tile-01", "REBOOTING")

	tl, _ := b.registry.Get("tile-01")
	if !tl.Online() {
		t.Error("unknown payload should not change online state")
	}
	if changes := notifier.Changes(); len(changes) != 1 {
		t.Errorf("state changes = %d, want 1", len(changes))
	}
}

func TestAnnouncement_OfflineCancelsProbe(t *testing.T) {
	b, bus, _, _ := testBridge(t)

	announce(t, b, "tile-01", "ONLINE")

	b.probeMu.Lock()
	_, pending := b.probes["tile-01"]
	b.probeMu.Unlock()
	if !pending {
		t.Fatal("probe should be scheduled on creation")
	}

	announce(t, b, "tile-01", "OFFLINE")

	b.probeMu.Lock()
	_, pending = b.probes["tile-01"]
	b.probeMu.Unlock()
	if pending {
		t.Error("probe should be cancelled when tile goes offline")
	}

	// A cancelled probe never publishes
	if pubs := bus.GetPublished(); len(pubs) != 0 {
		t.Errorf("publishes = %d, want 0", len(pubs))
	}
}

func TestHandleState_AppliesAndNotifies(t *testing.T) {
	b, _, notifier, history := testBridge(t)

	announce(t, b, "tile-01", "ONLINE")
	deliverState(t, b, "tile-01", "light", `{"brightness":50,"pixels":[{"r":255,"g":0,"b":0,"w":0}]}`)

	tl, _ := b.registry.Get("tile-01")
	light := tl.Light()
	if light.Brightness != 50 || len(light.Pixels) != 1 {
		t.Errorf("light = %+v, want brightness 50 and 1 pixel", light)
	}

	// Fan-out delivers exactly the changed domain, not a full snapshot
	changes := notifier.Changes()
	last := changes[len(changes)-1]
	if last.Domain != tile.DomainLight {
		t.Errorf("fanned-out domain = %s, want light", last.Domain)
	}
	if _, ok := last.State.(tile.LightState); !ok {
		t.Errorf("fanned-out state type = %T, want tile.LightState", last.State)
	}

	records := history.Records()
	last2 := records[len(records)-1]
	if last2.Domain != tile.DomainLight || last2.Source != tile.HistorySourceBus {
		t.Errorf("history record = %+v", last2)
	}
}

func TestHandleState_MalformedPayloadRecovered(t *testing.T) {
	b, _, notifier, _ := testBridge(t)

	announce(t, b, "tile-01", "ONLINE")
	deliverState(t, b, "tile-01", "audio", `{"state":1,"looping":false,"sound":"a.wav","volume":70}`)

	before := len(notifier.Changes())

	// Missing required key
	deliverState(t, b, "tile-01", "audio", `{"state":1}`)

	tl, _ := b.registry.Get("tile-01")
	if audio := tl.Audio(); audio.Sound != "a.wav" || audio.Volume != 70 {
		t.Errorf("audio = %+v, prior state should be untouched", audio)
	}
	if after := len(notifier.Changes()); after != before {
		t.Errorf("malformed payload triggered fan-out: %d -> %d", before, after)
	}
}

func TestHandleState_UnknownDomainIgnored(t *testing.T) {
	b, _, notifier, _ := testBridge(t)

	announce(t, b, "tile-01", "ONLINE")
	before := len(notifier.Changes())

	deliverState(t, b, "tile-01", "climate", `{"temp":20}`)

	if after := len(notifier.Changes()); after != before {
		t.Error("unknown domain should not fan out")
	}
}

func TestHandleState_CreatesTileForRetainedState(t *testing.T) {
	b, _, notifier, _ := testBridge(t)

	// State arrives before any announcement (retained message replay)
	deliverState(t, b, "tile-02", "presence", `{"detected":true}`)

	tl, err := b.registry.Get("tile-02")
	if err != nil {
		t.Fatalf("tile not created from state message: %v", err)
	}
	if !tl.Presence().Detected {
		t.Error("presence not applied")
	}
	if added := notifier.Added(); len(added) != 1 {
		t.Errorf("added events = %d, want 1", len(added))
	}
}

func TestRunProbe_QueriesDefaultDomains(t *testing.T) {
	b, bus, _, _ := testBridge(t)

	announce(t, b, "tile-01", "ONLINE")
	bus.ClearPublished()

	b.runProbe("tile-01")

	pubs := bus.GetPublished()
	if len(pubs) != 3 {
		t.Fatalf("probe publishes = %d, want 3 (system, audio, light)", len(pubs))
	}

	want := map[string]bool{
		b.topics.TileCommand("tile-01", "system"): false,
		b.topics.TileCommand("tile-01", "audio"):  false,
		b.topics.TileCommand("tile-01", "light"):  false,
	}
	for _, p := range pubs {
		if _, ok := want[p.Topic]; !ok {
			t.Errorf("unexpected probe topic %q", p.Topic)
		}
		want[p.Topic] = true
		if p.Retained {
			t.Errorf("probe to %q should not be retained", p.Topic)
		}
	}
	for topic, seen := range want {
		if !seen {
			t.Errorf("no probe sent to %q", topic)
		}
	}

	// The system probe requests pinging so the tile starts publishing
	var sysCmd struct {
		Reboot bool `json:"reboot"`
		Ping   bool `json:"ping"`
	}
	for _, p := range pubs {
		if p.Topic == b.topics.TileCommand("tile-01", "system") {
			if err := json.Unmarshal(p.Payload, &sysCmd); err != nil {
				t.Fatalf("system probe payload: %v", err)
			}
		}
	}
	if sysCmd.Reboot || !sysCmd.Ping {
		t.Errorf("system probe = %+v, want reboot=false ping=true", sysCmd)
	}
}

func TestRunProbe_SkipsKnownDomains(t *testing.T) {
	b, bus, _, _ := testBridge(t)

	announce(t, b, "tile-01", "ONLINE")
	deliverState(t, b, "tile-01", "system",
		`{"firmware":"1.2","hardware":"rev3","ping":true,"uptime":42,"sounds":["a.wav"]}`)
	deliverState(t, b, "tile-01", "audio",
		`{"state":0,"looping":false,"sound":"a.wav","volume":50}`)
	deliverState(t, b, "tile-01", "light",
		`{"brightness":10,"pixels":[{"r":0,"g":0,"b":0,"w":0}]}`)
	bus.ClearPublished()

	b.runProbe("tile-01")

	if pubs := bus.GetPublished(); len(pubs) != 0 {
		t.Errorf("probe publishes = %d, want 0 for fully known tile", len(pubs))
	}
}

func TestRunProbe_SkipsOfflineTile(t *testing.T) {
	b, bus, _, _ := testBridge(t)

	announce(t, b, "tile-01", "ONLINE")
	announce(t, b, "tile-01", "OFFLINE")
	bus.ClearPublished()

	b.runProbe("tile-01")

	if pubs := bus.GetPublished(); len(pubs) != 0 {
		t.Errorf("probe publishes = %d, want 0 for offline tile", len(pubs))
	}
}

func TestStop_Idempotent(t *testing.T) {
	b, _, _, _ := testBridge(t)

	announce(t, b, "tile-01", "ONLINE")

	b.Stop()
	b.Stop()

	b.probeMu.Lock()
	pending := len(b.probes)
	b.probeMu.Unlock()
	if pending != 0 {
		t.Errorf("pending probes after Stop = %d, want 0", pending)
	}
}
