package tile

import (
	"encoding/json"
	"fmt"
)

// Command argument structs. Nil fields default from the tile's last known
// state when the command is built; building never mutates that state.

// SystemCommandArgs are caller-supplied fields for a system command.
type SystemCommandArgs struct {
	Reboot *bool `json:"reboot"`
	Ping   *bool `json:"ping"`
}

// AudioCommandArgs are caller-supplied fields for an audio command.
type AudioCommandArgs struct {
	Mode    *PlaybackMode `json:"mode"`
	Looping *bool         `json:"loop"`
	Sound   *string       `json:"sound"`
	Volume  *int          `json:"volume"`
}

// LightCommandArgs are caller-supplied fields for a light command.
//
// Pixels, when present, fully determines the outbound pixel list length;
// each entry is a partial patch over the tile's current pixel at that
// index (unlit beyond the current list).
type LightCommandArgs struct {
	Brightness *int          `json:"brightness"`
	Pixels     *[]PixelPatch `json:"pixels"`
}

// Outbound wire shapes, mirroring the device's command schemas.
type systemCommand struct {
	Reboot bool `json:"reboot"`
	Ping   bool `json:"ping"`
}

type audioCommand struct {
	Mode   PlaybackMode `json:"mode"`
	Loop   bool         `json:"loop"`
	Sound  string       `json:"sound"`
	Volume int          `json:"volume"`
}

type lightCommand struct {
	Brightness int     `json:"brightness"`
	Pixels     []Pixel `json:"pixels"`
}

// BuildSystemCommand produces a complete system command payload.
//
// Reboot defaults to false, ping to the tile's current pinging state.
func (t *Tile) BuildSystemCommand(args SystemCommandArgs) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cmd := systemCommand{
		Reboot: false,
		Ping:   t.system.Pinging,
	}
	if args.Reboot != nil {
		cmd.Reboot = *args.Reboot
	}
	if args.Ping != nil {
		cmd.Ping = *args.Ping
	}

	return json.Marshal(cmd)
}

// BuildAudioCommand produces a complete audio command payload.
//
// Loop, sound, and volume default from the tile's current audio state.
// Mode has no current-value concept and defaults to Stop when omitted.
func (t *Tile) BuildAudioCommand(args AudioCommandArgs) ([]byte, error) {
	if args.Mode != nil && !ValidMode(*args.Mode) {
		return nil, fmt.Errorf("%w: mode %d", ErrInvalidCommand, *args.Mode)
	}
	if args.Volume != nil && (*args.Volume < 0 || *args.Volume > 100) {
		return nil, fmt.Errorf("%w: volume %d", ErrInvalidCommand, *args.Volume)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cmd := audioCommand{
		Mode:   ModeStop,
		Loop:   t.audio.Looping,
		Sound:  t.audio.Sound,
		Volume: t.audio.Volume,
	}
	if args.Mode != nil {
		cmd.Mode = *args.Mode
	}
	if args.Looping != nil {
		cmd.Loop = *args.Looping
	}
	if args.Sound != nil {
		cmd.Sound = *args.Sound
	}
	if args.Volume != nil {
		cmd.Volume = *args.Volume
	}

	return json.Marshal(cmd)
}

// BuildLightCommand produces a complete light command payload.
//
// Brightness defaults from current state; an omitted pixel list sends the
// tile's current pixels unchanged.
func (t *Tile) BuildLightCommand(args LightCommandArgs) ([]byte, error) {
	if args.Brightness != nil && (*args.Brightness < 0 || *args.Brightness > 100) {
		return nil, fmt.Errorf("%w: brightness %d", ErrInvalidCommand, *args.Brightness)
	}
	if args.Pixels != nil {
		for i, patch := range *args.Pixels {
			if err := patch.Validate(); err != nil {
				return nil, fmt.Errorf("%w: pixel %d: %w", ErrInvalidCommand, i, err)
			}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cmd := lightCommand{
		Brightness: t.light.Brightness,
		Pixels:     t.lightLocked().Pixels,
	}
	if cmd.Pixels == nil {
		cmd.Pixels = []Pixel{}
	}
	if args.Brightness != nil {
		cmd.Brightness = *args.Brightness
	}
	if args.Pixels != nil {
		pixels := make([]Pixel, len(*args.Pixels))
		for i := range *args.Pixels {
			if i < len(t.light.Pixels) {
				pixels[i] = t.light.Pixels[i]
			}
			(*args.Pixels)[i].applyTo(&pixels[i])
		}
		cmd.Pixels = pixels
	}

	return json.Marshal(cmd)
}
