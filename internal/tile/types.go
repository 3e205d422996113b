package tile

import "sync"

// Domain identifies one independently updatable slice of a tile's state.
type Domain string

// State domains carried on the bus. Online is the retained announcement
// domain; Full is a synthetic domain used for client snapshots only.
const (
	DomainOnline   Domain = "online"
	DomainSystem   Domain = "system"
	DomainAudio    Domain = "audio"
	DomainLight    Domain = "light"
	DomainPresence Domain = "presence"
	DomainFull     Domain = "full"
)

// StateDomains lists the bus state domains every tile publishes.
var StateDomains = []Domain{DomainSystem, DomainAudio, DomainLight, DomainPresence}

// CommandDomains lists the domains that accept commands.
var CommandDomains = []Domain{DomainSystem, DomainAudio, DomainLight}

// ValidStateDomain reports whether d names a parseable bus state domain.
func ValidStateDomain(d Domain) bool {
	switch d {
	case DomainSystem, DomainAudio, DomainLight, DomainPresence:
		return true
	}
	return false
}

// PlaybackState is the audio engine's current state.
type PlaybackState int

const (
	PlaybackIdle    PlaybackState = 0
	PlaybackPlaying PlaybackState = 1
	PlaybackPaused  PlaybackState = 2
)

// PlaybackMode is an audio mode command as carried on the wire.
type PlaybackMode int

const (
	ModePlay   PlaybackMode = 1
	ModePause  PlaybackMode = 2
	ModeResume PlaybackMode = 3
	ModeStop   PlaybackMode = 4
)

// ValidMode reports whether m is a recognised playback mode.
func ValidMode(m PlaybackMode) bool {
	return m >= ModePlay && m <= ModeStop
}

// SystemState mirrors a tile's system domain.
type SystemState struct {
	Firmware string   `json:"firmware"`
	Hardware string   `json:"hardware"`
	Pinging  bool     `json:"ping"`
	Uptime   int      `json:"uptime"`
	Sounds   []string `json:"sounds"`
}

// AudioState mirrors a tile's audio domain.
type AudioState struct {
	State   PlaybackState `json:"state"`
	Looping bool          `json:"looping"`
	Sound   string        `json:"sound"`
	Volume  int           `json:"volume"`
}

// LightState mirrors a tile's light domain. Brightness is a percentage.
type LightState struct {
	Brightness int     `json:"brightness"`
	Pixels     []Pixel `json:"pixels"`
}

// PresenceState mirrors a tile's presence domain.
type PresenceState struct {
	Detected bool `json:"detected"`
}

// OnlineState carries the online flag for client snapshots.
type OnlineState struct {
	Online bool `json:"online"`
}

// FullState is the complete snapshot of a tile delivered on subscription.
type FullState struct {
	Online   bool          `json:"online"`
	System   SystemState   `json:"system"`
	Audio    AudioState    `json:"audio"`
	Light    LightState    `json:"light"`
	Presence PresenceState `json:"presence"`
}

// Tile is the in-memory mirror of one device.
//
// A tile is created lazily on first bus sighting and lives for the
// registry's lifetime; going offline only clears the online flag, the
// last-known state is kept.
//
// All exported methods are safe for concurrent use. Each method holds the
// tile's mutex for its full duration, so an update and the snapshot it
// returns are atomic with respect to concurrent commands.
type Tile struct {
	// Name is the device name from the topic hierarchy. Immutable.
	Name string

	mu       sync.Mutex
	online   bool
	system   SystemState
	audio    AudioState
	light    LightState
	presence PresenceState
}

// New creates a tile with documented defaults: offline, not pinging,
// uptime 0, no sounds, no pixels, nothing detected.
func New(name string) *Tile {
	return &Tile{Name: name}
}

// Online reports the tile's last observed announcement state.
func (t *Tile) Online() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online
}

// System returns a copy of the system domain state.
func (t *Tile) System() SystemState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.systemLocked()
}

// Audio returns a copy of the audio domain state.
func (t *Tile) Audio() AudioState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.audio
}

// Light returns a copy of the light domain state.
func (t *Tile) Light() LightState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lightLocked()
}

// Presence returns a copy of the presence domain state.
func (t *Tile) Presence() PresenceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.presence
}

// Full returns the complete snapshot of the tile.
func (t *Tile) Full() FullState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fullLocked()
}

// Snapshot returns the current value of one domain, including the
// synthetic online and full domains. Returns ErrInvalidDomain for
// anything else.
func (t *Tile) Snapshot(domain Domain) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch domain {
	case DomainOnline:
		return OnlineState{Online: t.online}, nil
	case DomainSystem:
		return t.systemLocked(), nil
	case DomainAudio:
		return t.audio, nil
	case DomainLight:
		return t.lightLocked(), nil
	case DomainPresence:
		return t.presence, nil
	case DomainFull:
		return t.fullLocked(), nil
	default:
		return nil, ErrInvalidDomain
	}
}

// systemLocked copies the system state. Callers must hold t.mu.
func (t *Tile) systemLocked() SystemState {
	s := t.system
	if s.Sounds != nil {
		s.Sounds = append([]string(nil), s.Sounds...)
	}
	return s
}

// lightLocked copies the light state. Callers must hold t.mu.
func (t *Tile) lightLocked() LightState {
	l := t.light
	if l.Pixels != nil {
		l.Pixels = append([]Pixel(nil), l.Pixels...)
	}
	return l
}

// fullLocked builds the full snapshot. Callers must hold t.mu.
func (t *Tile) fullLocked() FullState {
	return FullState{
		Online:   t.online,
		System:   t.systemLocked(),
		Audio:    t.audio,
		Light:    t.lightLocked(),
		Presence: t.presence,
	}
}
