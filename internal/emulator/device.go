package emulator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mltiles/tilebridge/internal/infrastructure/mqtt"
	"github.com/mltiles/tilebridge/internal/tile"
)

// Power-on defaults, matching real tile firmware.
const (
	DefaultPixelCount = 12
	DefaultFirmware   = "0.0.6"
	DefaultHardware   = "0.0.2"
)

// DefaultSounds is the firmware sound catalogue subset the emulator ships.
var DefaultSounds = []string{
	"A cat meowing",
	"A dog barking",
	"A duck quacking",
	"Minecraft villager",
	"Mario coin",
	"Sad violin",
	"Windows XP startup",
	"Piano C note",
	"Applause",
	"Crickets",
}

// BusClient is the narrow MQTT surface a device needs.
// This interface is satisfied by *mqtt.Client.
type BusClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger is the logging interface used by the device.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Device.
type Options struct {
	// Name is the device name used in the topic hierarchy. Required.
	Name string

	// Bus is the broker connection. Required.
	Bus BusClient

	// RootTopic overrides the topic hierarchy root. Defaults to the
	// standard root when empty.
	RootTopic string

	// QoS for every publish and subscribe.
	QoS byte

	// PixelCount is the size of the light strip. Defaults to 12.
	PixelCount int

	// Sounds is the reported sound catalogue. Defaults to DefaultSounds.
	Sounds []string

	// TickInterval is the uptime tick period. Defaults to one second;
	// tests shorten it.
	TickInterval time.Duration

	// PresenceToggleTicks flips the presence sensor every N ticks to
	// simulate people walking by. Zero disables the simulation.
	PresenceToggleTicks int

	// Logger is optional.
	Logger Logger
}

// Device is one emulated tile.
//
// All mutable state is guarded by mu: command handlers run on the MQTT
// client's goroutines while the tick loop runs in Run.
type Device struct {
	opts   Options
	bus    BusClient
	topics mqtt.Topics

	mu            sync.Mutex
	reboot        bool
	ping          bool
	prevPing      bool
	uptime        int
	engine        *tile.AudioEngine
	light         tile.LightState
	lightDirty    bool
	presence      bool
	presenceDirty bool
}

// New creates a device with power-on defaults. It does not touch the bus
// until Run is called.
func New(opts Options) (*Device, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("device name is required")
	}
	if opts.Bus == nil {
		return nil, fmt.Errorf("bus client is required")
	}
	if opts.RootTopic == "" {
		opts.RootTopic = mqtt.DefaultRootTopic
	}
	if opts.PixelCount <= 0 {
		opts.PixelCount = DefaultPixelCount
	}
	if len(opts.Sounds) == 0 {
		opts.Sounds = DefaultSounds
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}

	d := &Device{
		opts:   opts,
		bus:    opts.Bus,
		topics: mqtt.NewTopics(opts.RootTopic),
	}
	d.resetLocked()
	return d, nil
}

// resetLocked restores every value to its power-on default.
func (d *Device) resetLocked() {
	d.reboot = false
	d.ping = true
	d.prevPing = true
	d.uptime = 0
	d.presence = false
	d.presenceDirty = false
	d.engine = tile.NewAudioEngine()
	d.engine.Sound = d.opts.Sounds[0]
	d.light = tile.LightState{
		Brightness: 0,
		Pixels:     make([]tile.Pixel, d.opts.PixelCount),
	}
	d.lightDirty = false
}

// Run announces the device, publishes its initial state, subscribes to its
// command topics, and ticks until the context is cancelled. On exit it
// publishes a retained OFFLINE announcement.
func (d *Device) Run(ctx context.Context) error {
	if err := d.subscribeCommands(); err != nil {
		return fmt.Errorf("subscribing to command topics: %w", err)
	}
	if err := d.announce(true); err != nil {
		return fmt.Errorf("announcing device: %w", err)
	}
	d.publishAllStates()
	d.logInfo("tile emulator running", "name", d.opts.Name)

	ticker := time.NewTicker(d.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := d.announce(false); err != nil {
				d.logError("publishing offline announcement", "error", err)
			}
			return nil
		case <-ticker.C:
			d.tick()
		}
	}
}

// SetPresence drives the simulated presence sensor. The change is
// published on the next tick.
func (d *Device) SetPresence(detected bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.presence != detected {
		d.presence = detected
		d.presenceDirty = true
	}
}

func (d *Device) subscribeCommands() error {
	name := d.opts.Name
	subs := map[string]mqtt.MessageHandler{
		d.topics.TileCommand(name, string(tile.DomainSystem)): d.handleSystemCommand,
		d.topics.TileCommand(name, string(tile.DomainAudio)):  d.handleAudioCommand,
		d.topics.TileCommand(name, string(tile.DomainLight)):  d.handleLightCommand,
	}
	for topic, handler := range subs {
		if err := d.bus.Subscribe(topic, d.opts.QoS, handler); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) announce(online bool) error {
	payload := []byte("OFFLINE")
	if online {
		payload = []byte("ONLINE")
	}
	return d.bus.Publish(d.topics.TileAnnouncement(d.opts.Name), payload, d.opts.QoS, true)
}

// Inbound command wire shapes. Every field is required; a missing key or
// wrong type discards the whole command, like real firmware does.
type systemCommand struct {
	Reboot *bool `json:"reboot"`
	Ping   *bool `json:"ping"`
}

type audioCommand struct {
	Mode   *tile.PlaybackMode `json:"mode"`
	Loop   *bool              `json:"loop"`
	Sound  *string            `json:"sound"`
	Volume *int               `json:"volume"`
}

type lightCommand struct {
	Brightness *int          `json:"brightness"`
	Pixels     *[]tile.Pixel `json:"pixels"`
}

func (d *Device) handleSystemCommand(_ string, payload []byte) error {
	var cmd systemCommand
	if err := json.Unmarshal(payload, &cmd); err != nil || cmd.Reboot == nil || cmd.Ping == nil {
		d.logDebug("discarding invalid system command", "payload", string(payload))
		return nil
	}

	d.mu.Lock()
	d.reboot = *cmd.Reboot
	d.ping = *cmd.Ping
	d.mu.Unlock()
	return nil
}

func (d *Device) handleAudioCommand(_ string, payload []byte) error {
	var cmd audioCommand
	if err := json.Unmarshal(payload, &cmd); err != nil ||
		cmd.Mode == nil || cmd.Loop == nil || cmd.Sound == nil || cmd.Volume == nil {
		d.logDebug("discarding invalid audio command", "payload", string(payload))
		return nil
	}
	if !tile.ValidMode(*cmd.Mode) {
		d.logDebug("discarding audio command with unknown mode", "mode", int(*cmd.Mode))
		return nil
	}

	d.mu.Lock()
	d.engine.SetCommand(*cmd.Mode, *cmd.Loop, *cmd.Sound, *cmd.Volume)
	d.mu.Unlock()
	return nil
}

func (d *Device) handleLightCommand(_ string, payload []byte) error {
	var cmd lightCommand
	if err := json.Unmarshal(payload, &cmd); err != nil || cmd.Brightness == nil || cmd.Pixels == nil {
		d.logDebug("discarding invalid light command", "payload", string(payload))
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.light.Brightness = *cmd.Brightness
	// The strip has a fixed length; extra command pixels are ignored,
	// missing ones keep their current colour.
	for i, p := range *cmd.Pixels {
		if i >= len(d.light.Pixels) {
			break
		}
		d.light.Pixels[i] = p
	}
	d.lightDirty = true
	return nil
}

// tick advances the device clock by one uptime second and publishes
// whatever changed.
func (d *Device) tick() {
	d.mu.Lock()

	if d.reboot {
		d.mu.Unlock()
		d.performReboot()
		return
	}

	d.uptime++

	// System state goes out every tick while pinging; a ping flip is
	// published once so the bridge sees the final value.
	publishSystem := d.ping || d.prevPing != d.ping
	d.prevPing = d.ping

	publishAudio := d.engine.Step(d.uptime)
	if d.engine.AutoStop(d.uptime) {
		publishAudio = true
	}

	publishLight := d.lightDirty
	d.lightDirty = false

	if d.opts.PresenceToggleTicks > 0 && d.uptime%d.opts.PresenceToggleTicks == 0 {
		d.presence = !d.presence
		d.presenceDirty = true
	}
	publishPresence := d.presenceDirty
	d.presenceDirty = false

	system := d.systemStateLocked()
	audio := d.engine.StateSnapshot()
	light := d.lightStateLocked()
	presence := tile.PresenceState{Detected: d.presence}
	d.mu.Unlock()

	if publishSystem {
		d.publishState(tile.DomainSystem, system)
	}
	if publishAudio {
		d.publishState(tile.DomainAudio, audio)
	}
	if publishLight {
		d.publishState(tile.DomainLight, light)
	}
	if publishPresence {
		d.publishState(tile.DomainPresence, presence)
	}
}

// performReboot replays the power cycle: retained OFFLINE, defaults,
// retained ONLINE, initial state publish.
func (d *Device) performReboot() {
	d.logInfo("tile emulator rebooting", "name", d.opts.Name)

	if err := d.announce(false); err != nil {
		d.logError("publishing offline announcement", "error", err)
	}

	d.mu.Lock()
	d.resetLocked()
	d.mu.Unlock()

	if err := d.announce(true); err != nil {
		d.logError("publishing online announcement", "error", err)
	}
	d.publishAllStates()
}

func (d *Device) publishAllStates() {
	d.mu.Lock()
	system := d.systemStateLocked()
	audio := d.engine.StateSnapshot()
	light := d.lightStateLocked()
	presence := tile.PresenceState{Detected: d.presence}
	d.mu.Unlock()

	d.publishState(tile.DomainSystem, system)
	d.publishState(tile.DomainAudio, audio)
	d.publishState(tile.DomainLight, light)
	d.publishState(tile.DomainPresence, presence)
}

func (d *Device) systemStateLocked() tile.SystemState {
	return tile.SystemState{
		Firmware: DefaultFirmware,
		Hardware: DefaultHardware,
		Pinging:  d.ping,
		Uptime:   d.uptime,
		Sounds:   d.opts.Sounds,
	}
}

func (d *Device) lightStateLocked() tile.LightState {
	pixels := make([]tile.Pixel, len(d.light.Pixels))
	copy(pixels, d.light.Pixels)
	return tile.LightState{Brightness: d.light.Brightness, Pixels: pixels}
}

func (d *Device) publishState(domain tile.Domain, state any) {
	payload, err := json.Marshal(state)
	if err != nil {
		d.logError("marshalling state", "domain", string(domain), "error", err)
		return
	}

	topic := d.topics.TileState(d.opts.Name, string(domain))
	if err := d.bus.Publish(topic, payload, d.opts.QoS, false); err != nil {
		d.logError("publishing state", "domain", string(domain), "error", err)
	}
}

func (d *Device) logDebug(msg string, args ...any) {
	if d.opts.Logger != nil {
		d.opts.Logger.Debug(msg, args...)
	}
}

func (d *Device) logInfo(msg string, args ...any) {
	if d.opts.Logger != nil {
		d.opts.Logger.Info(msg, args...)
	}
}

func (d *Device) logError(msg string, args ...any) {
	if d.opts.Logger != nil {
		d.opts.Logger.Error(msg, args...)
	}
}
