package tile

// AutoStopTicks is how many uptime ticks a non-looping sound plays before
// the engine stops it autonomously. One tick is one second of device uptime.
const AutoStopTicks = 10

// AudioEngine is the device-side audio playback state machine.
//
// It decides how a stream of mode commands maps to an actual
// playing/paused/idle state over time, using the device's monotonically
// increasing uptime counter as its clock. The tile emulator drives one
// engine per device; the same transition rules govern the audio state the
// bridge mirrors back from real tiles.
//
// The engine is not safe for concurrent use; the emulator owns it from a
// single goroutine.
type AudioEngine struct {
	State   PlaybackState
	Mode    PlaybackMode
	Looping bool
	Sound   string
	Volume  int

	// PlayStart and PauseTime are uptime bookmarks for the current sound.
	PlayStart int
	PauseTime int

	// Last applied command tuple. A transition is only recomputed when the
	// incoming mode, sound, volume, or loop flag differs from it.
	prevMode    PlaybackMode
	prevLooping bool
	prevSound   string
	prevVolume  int
}

// NewAudioEngine returns an idle engine with mode Stop.
func NewAudioEngine() *AudioEngine {
	return &AudioEngine{
		State:    PlaybackIdle,
		Mode:     ModeStop,
		prevMode: ModeStop,
	}
}

// SetCommand stages an incoming audio command. The transition itself
// happens on the next Step call.
func (e *AudioEngine) SetCommand(mode PlaybackMode, looping bool, sound string, volume int) {
	e.Mode = mode
	e.Looping = looping
	e.Sound = sound
	e.Volume = volume
}

// Step applies the staged command at the given uptime.
//
// It returns true when the audio state changed and must be published.
// A command identical to the last applied one is a no-op, as is any
// (state, mode) pair outside the transition table.
func (e *AudioEngine) Step(uptime int) bool {
	if e.Mode == e.prevMode && e.Sound == e.prevSound && e.Volume == e.prevVolume && e.Looping == e.prevLooping {
		return false
	}

	switch {
	case e.Mode == ModePlay:
		// Play restarts from any state.
		e.State = PlaybackPlaying
		e.PlayStart = uptime
		e.PauseTime = 0

	case e.State == PlaybackPlaying && e.Mode == ModePause:
		e.State = PlaybackPaused
		if e.PauseTime == 0 {
			e.PauseTime = uptime
		}

	case (e.State == PlaybackPlaying || e.State == PlaybackPaused) && e.Mode == ModeStop:
		e.State = PlaybackIdle
		e.PlayStart = 0
		e.PauseTime = 0

	case e.State == PlaybackPaused && e.Mode == ModeResume:
		// Shift the effective start time forward by the paused duration so
		// elapsed played time excludes the pause.
		e.State = PlaybackPlaying
		e.PlayStart = uptime - (e.PauseTime - e.PlayStart)
		e.PauseTime = 0

	default:
		// No transition for this (state, mode) pair.
	}

	e.prevMode = e.Mode
	e.prevLooping = e.Looping
	e.prevSound = e.Sound
	e.prevVolume = e.Volume
	return true
}

// AutoStop stops a finished non-looping sound.
//
// Independent of explicit commands: when playing, not looping, and the
// sound has run for AutoStopTicks of uptime, the engine goes idle and
// resets its mode to Stop. Returns true when that happened. Must be
// evaluated every scheduling tick.
func (e *AudioEngine) AutoStop(uptime int) bool {
	if e.State != PlaybackPlaying || e.Looping {
		return false
	}
	if uptime-e.PlayStart < AutoStopTicks {
		return false
	}

	e.State = PlaybackIdle
	e.Mode = ModeStop
	e.prevMode = ModeStop
	e.PlayStart = 0
	e.PauseTime = 0
	return true
}

// StateSnapshot returns the engine's state in wire form.
func (e *AudioEngine) StateSnapshot() AudioState {
	return AudioState{
		State:   e.State,
		Looping: e.Looping,
		Sound:   e.Sound,
		Volume:  e.Volume,
	}
}
