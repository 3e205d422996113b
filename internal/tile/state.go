package tile

import (
	"encoding/json"
	"fmt"
)

// Wire payload shapes for inbound state updates.
//
// Every field is a pointer so a missing key is distinguishable from a zero
// value; a missing key or a wrong type fails the whole update. Numeric
// fields parse as float64 because device firmware publishes derived
// percentages as floats.
type systemPayload struct {
	Firmware *string   `json:"firmware"`
	Hardware *string   `json:"hardware"`
	Ping     *bool     `json:"ping"`
	Uptime   *float64  `json:"uptime"`
	Sounds   *[]string `json:"sounds"`
}

type audioPayload struct {
	State   *float64 `json:"state"`
	Looping *bool    `json:"looping"`
	Sound   *string  `json:"sound"`
	Volume  *float64 `json:"volume"`
}

type lightPayload struct {
	Brightness *float64      `json:"brightness"`
	Pixels     *[]PixelPatch `json:"pixels"`
}

type presencePayload struct {
	Detected *bool `json:"detected"`
}

// Announcement payloads on the online domain.
const (
	announceOnline  = "ONLINE"
	announceOffline = "OFFLINE"
)

// UpdateOnline applies a retained announcement payload.
//
// Exact payloads ONLINE and OFFLINE flip the online flag; anything else
// returns ErrInvalidState and changes nothing. The returned changed flag
// is false when the announcement repeats the current state.
func (t *Tile) UpdateOnline(payload []byte) (changed bool, err error) {
	var online bool
	switch string(payload) {
	case announceOnline:
		online = true
	case announceOffline:
		online = false
	default:
		return false, fmt.Errorf("%w: online announcement %q", ErrInvalidState, payload)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	changed = t.online != online
	t.online = online
	return changed, nil
}

// ApplyState parses a raw bus payload for one domain and applies it.
//
// On success it returns a snapshot of the updated domain, taken under the
// same lock as the update. On any parse or validation failure the tile's
// previous state for the domain is completely unmodified and the error
// wraps ErrInvalidState (or ErrInvalidDomain for an unknown domain).
func (t *Tile) ApplyState(domain Domain, payload []byte) (any, error) {
	switch domain {
	case DomainSystem:
		return t.applySystem(payload)
	case DomainAudio:
		return t.applyAudio(payload)
	case DomainLight:
		return t.applyLight(payload)
	case DomainPresence:
		return t.applyPresence(payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
}

func (t *Tile) applySystem(payload []byte) (any, error) {
	var p systemPayload
	if err := unmarshalStrict(payload, &p); err != nil {
		return nil, err
	}
	if p.Firmware == nil || p.Hardware == nil || p.Ping == nil || p.Uptime == nil || p.Sounds == nil {
		return nil, fmt.Errorf("%w: system payload missing required field", ErrInvalidState)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.system = SystemState{
		Firmware: *p.Firmware,
		Hardware: *p.Hardware,
		Pinging:  *p.Ping,
		Uptime:   int(*p.Uptime),
		Sounds:   append([]string(nil), (*p.Sounds)...),
	}
	return t.systemLocked(), nil
}

func (t *Tile) applyAudio(payload []byte) (any, error) {
	var p audioPayload
	if err := unmarshalStrict(payload, &p); err != nil {
		return nil, err
	}
	if p.State == nil || p.Looping == nil || p.Sound == nil || p.Volume == nil {
		return nil, fmt.Errorf("%w: audio payload missing required field", ErrInvalidState)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.audio = AudioState{
		State:   PlaybackState(*p.State),
		Looping: *p.Looping,
		Sound:   *p.Sound,
		Volume:  int(*p.Volume),
	}
	return t.audio, nil
}

func (t *Tile) applyLight(payload []byte) (any, error) {
	var p lightPayload
	if err := unmarshalStrict(payload, &p); err != nil {
		return nil, err
	}
	if p.Brightness == nil || p.Pixels == nil {
		return nil, fmt.Errorf("%w: light payload missing required field", ErrInvalidState)
	}

	// Validate the whole payload before mutating anything.
	for i, patch := range *p.Pixels {
		if err := patch.Validate(); err != nil {
			return nil, fmt.Errorf("%w: pixel %d: %w", ErrInvalidState, i, err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Pixel entries are partial patches merged onto the existing list. The
	// stored list grows with unlit pixels or shrinks to match the payload
	// length, never keeping stale trailing entries.
	pixels := make([]Pixel, len(*p.Pixels))
	for i := range *p.Pixels {
		if i < len(t.light.Pixels) {
			pixels[i] = t.light.Pixels[i]
		}
		(*p.Pixels)[i].applyTo(&pixels[i])
	}

	t.light = LightState{
		Brightness: int(*p.Brightness),
		Pixels:     pixels,
	}
	return t.lightLocked(), nil
}

func (t *Tile) applyPresence(payload []byte) (any, error) {
	var p presencePayload
	if err := unmarshalStrict(payload, &p); err != nil {
		return nil, err
	}
	if p.Detected == nil {
		return nil, fmt.Errorf("%w: presence payload missing required field", ErrInvalidState)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.presence = PresenceState{Detected: *p.Detected}
	return t.presence, nil
}

// unmarshalStrict parses a JSON payload, mapping any decode failure
// (malformed JSON, wrong field type) to ErrInvalidState.
func unmarshalStrict(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return nil
}
