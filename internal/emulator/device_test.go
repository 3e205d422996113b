package emulator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mltiles/tilebridge/internal/infrastructure/mqtt"
	"github.com/mltiles/tilebridge/internal/tile"
)

type mockPublish struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// MockBus records publishes and subscriptions for assertions.
type MockBus struct {
	mu        sync.Mutex
	published []mockPublish
	subs      []string
}

func (m *MockBus) Publish(topic string, payload []byte, _ byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, Retained: retained})
	return nil
}

func (m *MockBus) Subscribe(topic string, _ byte, _ mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, topic)
	return nil
}

func (m *MockBus) Published() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

func (m *MockBus) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

// onTopic returns the publishes made to one topic.
func (m *MockBus) onTopic(topic string) []mockPublish {
	var out []mockPublish
	for _, p := range m.Published() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func testDevice(t *testing.T) (*Device, *MockBus) {
	t.Helper()

	bus := &MockBus{}
	d, err := New(Options{
		Name:         "TILE1",
		Bus:          bus,
		RootTopic:    "PM/MLT",
		TickInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, bus
}

func decodePayload[T any](t *testing.T, payload []byte) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		t.Fatalf("unmarshal %s: %v", payload, err)
	}
	return v
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{Bus: &MockBus{}}); err == nil {
		t.Error("expected error without name")
	}
	if _, err := New(Options{Name: "TILE1"}); err == nil {
		t.Error("expected error without bus")
	}
}

func TestNew_Defaults(t *testing.T) {
	d, _ := testDevice(t)

	if len(d.light.Pixels) != DefaultPixelCount {
		t.Errorf("expected %d pixels, got %d", DefaultPixelCount, len(d.light.Pixels))
	}
	if !d.ping {
		t.Error("expected pinging enabled at power-on")
	}
	if d.engine.Sound != DefaultSounds[0] {
		t.Errorf("expected first catalogue sound, got %q", d.engine.Sound)
	}
}

func TestRun_AnnounceLifecycle(t *testing.T) {
	d, bus := testDevice(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	// Wait for the initial announce and state publishes
	deadline := time.Now().Add(2 * time.Second)
	for len(bus.Published()) < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	announce := bus.onTopic("PM/MLT/TILE1/self")
	if len(announce) < 2 {
		t.Fatalf("expected ONLINE and OFFLINE announcements, got %d", len(announce))
	}
	if string(announce[0].Payload) != "ONLINE" || !announce[0].Retained {
		t.Errorf("expected retained ONLINE first, got %+v", announce[0])
	}
	last := announce[len(announce)-1]
	if string(last.Payload) != "OFFLINE" || !last.Retained {
		t.Errorf("expected retained OFFLINE last, got %+v", last)
	}

	for _, domain := range []string{"system", "audio", "light", "presence"} {
		if len(bus.onTopic("PM/MLT/TILE1/self/state/"+domain)) == 0 {
			t.Errorf("expected initial %s state publish", domain)
		}
	}

	bus.mu.Lock()
	subCount := len(bus.subs)
	bus.mu.Unlock()
	if subCount != 3 {
		t.Errorf("expected 3 command subscriptions, got %d", subCount)
	}
}

func TestTick_PublishesSystemWhilePinging(t *testing.T) {
	d, bus := testDevice(t)

	d.tick()
	d.tick()

	states := bus.onTopic("PM/MLT/TILE1/self/state/system")
	if len(states) != 2 {
		t.Fatalf("expected 2 system publishes, got %d", len(states))
	}
	sys := decodePayload[tile.SystemState](t, states[1].Payload)
	if sys.Uptime != 2 || !sys.Pinging {
		t.Errorf("unexpected system state: %+v", sys)
	}
	if sys.Firmware != DefaultFirmware || len(sys.Sounds) == 0 {
		t.Errorf("expected firmware and sound catalogue, got %+v", sys)
	}
}

func TestTick_PingOffPublishesFlipOnce(t *testing.T) {
	d, bus := testDevice(t)

	if err := d.handleSystemCommand("", []byte(`{"reboot":false,"ping":false}`)); err != nil {
		t.Fatalf("handleSystemCommand: %v", err)
	}

	d.tick() // publishes the flip
	d.tick() // silent
	d.tick() // silent

	states := bus.onTopic("PM/MLT/TILE1/self/state/system")
	if len(states) != 1 {
		t.Fatalf("expected 1 system publish after ping-off, got %d", len(states))
	}
	sys := decodePayload[tile.SystemState](t, states[0].Payload)
	if sys.Pinging {
		t.Error("expected published state to carry ping=false")
	}

	// Uptime still advances silently
	d.mu.Lock()
	uptime := d.uptime
	d.mu.Unlock()
	if uptime != 3 {
		t.Errorf("expected uptime 3, got %d", uptime)
	}
}

func TestAudioCommand_PlayThenAutoStop(t *testing.T) {
	d, bus := testDevice(t)

	if err := d.handleAudioCommand("", []byte(`{"mode":1,"loop":false,"sound":"Mario coin","volume":55}`)); err != nil {
		t.Fatalf("handleAudioCommand: %v", err)
	}

	d.tick()
	states := bus.onTopic("PM/MLT/TILE1/self/state/audio")
	if len(states) != 1 {
		t.Fatalf("expected audio publish after play, got %d", len(states))
	}
	audio := decodePayload[tile.AudioState](t, states[0].Payload)
	if audio.State != tile.PlaybackPlaying || audio.Sound != "Mario coin" || audio.Volume != 55 {
		t.Errorf("unexpected audio state: %+v", audio)
	}

	// The sound finishes after AutoStopTicks of uptime
	for i := 0; i < tile.AutoStopTicks; i++ {
		d.tick()
	}
	states = bus.onTopic("PM/MLT/TILE1/self/state/audio")
	if len(states) != 2 {
		t.Fatalf("expected auto-stop publish, got %d audio publishes", len(states))
	}
	audio = decodePayload[tile.AudioState](t, states[1].Payload)
	if audio.State != tile.PlaybackIdle {
		t.Errorf("expected idle after auto-stop, got %+v", audio)
	}
}

func TestAudioCommand_LoopingNeverAutoStops(t *testing.T) {
	d, bus := testDevice(t)

	if err := d.handleAudioCommand("", []byte(`{"mode":1,"loop":true,"sound":"Crickets","volume":20}`)); err != nil {
		t.Fatalf("handleAudioCommand: %v", err)
	}

	for i := 0; i < tile.AutoStopTicks*3; i++ {
		d.tick()
	}

	states := bus.onTopic("PM/MLT/TILE1/self/state/audio")
	if len(states) != 1 {
		t.Fatalf("expected only the initial play publish, got %d", len(states))
	}
	audio := decodePayload[tile.AudioState](t, states[0].Payload)
	if audio.State != tile.PlaybackPlaying || !audio.Looping {
		t.Errorf("expected looping playback, got %+v", audio)
	}
}

func TestLightCommand_AppliedOnNextTick(t *testing.T) {
	d, bus := testDevice(t)

	payload := `{"brightness":75,"pixels":[{"r":255,"g":0,"b":0,"w":0},{"r":0,"g":255,"b":0,"w":0}]}`
	if err := d.handleLightCommand("", []byte(payload)); err != nil {
		t.Fatalf("handleLightCommand: %v", err)
	}

	d.tick()
	d.tick()

	states := bus.onTopic("PM/MLT/TILE1/self/state/light")
	if len(states) != 1 {
		t.Fatalf("expected 1 light publish, got %d", len(states))
	}
	light := decodePayload[tile.LightState](t, states[0].Payload)
	if light.Brightness != 75 {
		t.Errorf("expected brightness 75, got %d", light.Brightness)
	}
	// The strip keeps its fixed length; unaddressed pixels stay unlit
	if len(light.Pixels) != DefaultPixelCount {
		t.Fatalf("expected %d pixels, got %d", DefaultPixelCount, len(light.Pixels))
	}
	if light.Pixels[0].R != 255 || light.Pixels[1].G != 255 || light.Pixels[2] != (tile.Pixel{}) {
		t.Errorf("unexpected pixels: %+v", light.Pixels[:3])
	}
}

func TestLightCommand_ExtraPixelsIgnored(t *testing.T) {
	bus := &MockBus{}
	d, err := New(Options{Name: "TILE1", Bus: bus, PixelCount: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	payload := `{"brightness":10,"pixels":[{"r":1,"g":1,"b":1,"w":0},{"r":2,"g":2,"b":2,"w":0}]}`
	if err := d.handleLightCommand("", []byte(payload)); err != nil {
		t.Fatalf("handleLightCommand: %v", err)
	}

	d.tick()
	states := bus.onTopic("PM/MLT/TILE1/self/state/light")
	light := decodePayload[tile.LightState](t, states[0].Payload)
	if len(light.Pixels) != 1 || light.Pixels[0].R != 1 {
		t.Errorf("expected single pixel from command, got %+v", light.Pixels)
	}
}

func TestInvalidCommandsDiscarded(t *testing.T) {
	d, bus := testDevice(t)

	payloads := map[string]func(string, []byte) error{
		`{not json`:                         d.handleSystemCommand,
		`{"reboot":true}`:                   d.handleSystemCommand, // missing ping
		`{"mode":9,"loop":false,"sound":"x","volume":1}`: d.handleAudioCommand,
		`{"mode":1}`:                        d.handleAudioCommand,
		`{"brightness":50}`:                 d.handleLightCommand, // missing pixels
	}
	for payload, handler := range payloads {
		if err := handler("", []byte(payload)); err != nil {
			t.Errorf("handler returned error for %q: %v", payload, err)
		}
	}

	d.tick()

	// Only the pinging system publish; nothing was accepted
	if got := len(bus.Published()); got != 1 {
		t.Errorf("expected 1 publish (system tick), got %d", got)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reboot || !d.ping || d.light.Brightness != 0 {
		t.Error("invalid commands must not change device state")
	}
}

func TestReboot_ResetsToDefaults(t *testing.T) {
	d, bus := testDevice(t)

	// Change some state first
	if err := d.handleAudioCommand("", []byte(`{"mode":1,"loop":true,"sound":"Applause","volume":90}`)); err != nil {
		t.Fatalf("handleAudioCommand: %v", err)
	}
	if err := d.handleLightCommand("", []byte(`{"brightness":100,"pixels":[{"r":9,"g":9,"b":9,"w":9}]}`)); err != nil {
		t.Fatalf("handleLightCommand: %v", err)
	}
	d.tick()
	bus.Clear()

	if err := d.handleSystemCommand("", []byte(`{"reboot":true,"ping":false}`)); err != nil {
		t.Fatalf("handleSystemCommand: %v", err)
	}
	d.tick()

	announce := bus.onTopic("PM/MLT/TILE1/self")
	if len(announce) != 2 ||
		string(announce[0].Payload) != "OFFLINE" ||
		string(announce[1].Payload) != "ONLINE" {
		t.Fatalf("expected OFFLINE then ONLINE, got %+v", announce)
	}

	sys := bus.onTopic("PM/MLT/TILE1/self/state/system")
	if len(sys) != 1 {
		t.Fatalf("expected initial system publish after reboot, got %d", len(sys))
	}
	state := decodePayload[tile.SystemState](t, sys[0].Payload)
	if state.Uptime != 0 || !state.Pinging {
		t.Errorf("expected power-on system defaults, got %+v", state)
	}

	audio := bus.onTopic("PM/MLT/TILE1/self/state/audio")
	audioState := decodePayload[tile.AudioState](t, audio[0].Payload)
	if audioState.State != tile.PlaybackIdle || audioState.Volume != 0 {
		t.Errorf("expected idle audio defaults, got %+v", audioState)
	}

	light := bus.onTopic("PM/MLT/TILE1/self/state/light")
	lightState := decodePayload[tile.LightState](t, light[0].Payload)
	if lightState.Brightness != 0 || len(lightState.Pixels) != DefaultPixelCount {
		t.Errorf("expected unlit strip defaults, got %+v", lightState)
	}
}

func TestPresenceSimulation(t *testing.T) {
	bus := &MockBus{}
	d, err := New(Options{Name: "TILE1", Bus: bus, PresenceToggleTicks: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	d.tick()
	if len(bus.onTopic("PM/MLT/TILE1/self/state/presence")) != 0 {
		t.Fatal("expected no presence publish before toggle tick")
	}

	d.tick()
	states := bus.onTopic("PM/MLT/TILE1/self/state/presence")
	if len(states) != 1 {
		t.Fatalf("expected presence publish on toggle tick, got %d", len(states))
	}
	p := decodePayload[tile.PresenceState](t, states[0].Payload)
	if !p.Detected {
		t.Error("expected presence detected after first toggle")
	}
}

func TestSetPresence(t *testing.T) {
	d, bus := testDevice(t)

	d.SetPresence(true)
	d.SetPresence(true) // repeat is a no-op
	d.tick()

	states := bus.onTopic("PM/MLT/TILE1/self/state/presence")
	if len(states) != 1 {
		t.Fatalf("expected 1 presence publish, got %d", len(states))
	}
	p := decodePayload[tile.PresenceState](t, states[0].Payload)
	if !p.Detected {
		t.Error("expected detected=true")
	}
}
