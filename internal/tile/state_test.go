package tile

import (
	"errors"
	"testing"
)

func TestTile_UpdateOnline(t *testing.T) {
	tl := New("tile-01")

	if tl.Online() {
		t.Fatal("new tile should start offline")
	}

	changed, err := tl.UpdateOnline([]byte("ONLINE"))
	if err != nil {
		t.Fatalf("UpdateOnline(ONLINE) error = %v", err)
	}
	if !changed || !tl.Online() {
		t.Error("ONLINE announcement should flip the flag")
	}

	// Repeated announcement is not a change
	changed, err = tl.UpdateOnline([]byte("ONLINE"))
	if err != nil {
		t.Fatalf("UpdateOnline(ONLINE) error = %v", err)
	}
	if changed {
		t.Error("repeated ONLINE should not report a change")
	}

	changed, err = tl.UpdateOnline([]byte("OFFLINE"))
	if err != nil {
		t.Fatalf("UpdateOnline(OFFLINE) error = %v", err)
	}
	if !changed || tl.Online() {
		t.Error("OFFLINE announcement should clear the flag")
	}
}

func TestTile_UpdateOnline_InvalidPayload(t *testing.T) {
	tl := New("tile-01")
	tl.UpdateOnline([]byte("ONLINE"))

	for _, payload := range []string{"online", "Online", "UP", "", `{"online":true}`} {
		changed, err := tl.UpdateOnline([]byte(payload))
		if !errors.Is(err, ErrInvalidState) {
			t.Errorf("UpdateOnline(%q) error = %v, want ErrInvalidState", payload, err)
		}
		if changed {
			t.Errorf("UpdateOnline(%q) reported a change", payload)
		}
	}

	if !tl.Online() {
		t.Error("invalid announcements must not touch the online flag")
	}
}

func TestTile_ApplySystemState(t *testing.T) {
	tl := New("tile-01")

	payload := []byte(`{"firmware":"0.0.6","hardware":"0.0.2","ping":true,"uptime":42,"sounds":["a","b"]}`)
	snap, err := tl.ApplyState(DomainSystem, payload)
	if err != nil {
		t.Fatalf("ApplyState(system) error = %v", err)
	}

	sys, ok := snap.(SystemState)
	if !ok {
		t.Fatalf("snapshot type = %T, want SystemState", snap)
	}
	if sys.Firmware != "0.0.6" || sys.Hardware != "0.0.2" || !sys.Pinging || sys.Uptime != 42 {
		t.Errorf("system snapshot = %+v", sys)
	}
	if len(sys.Sounds) != 2 || sys.Sounds[0] != "a" {
		t.Errorf("sounds = %v", sys.Sounds)
	}
}

func TestTile_ApplyAudioState(t *testing.T) {
	tl := New("tile-01")

	payload := []byte(`{"state":1,"looping":true,"sound":"sound-x","volume":66.6}`)
	snap, err := tl.ApplyState(DomainAudio, payload)
	if err != nil {
		t.Fatalf("ApplyState(audio) error = %v", err)
	}

	audio := snap.(AudioState)
	if audio.State != PlaybackPlaying || !audio.Looping || audio.Sound != "sound-x" {
		t.Errorf("audio snapshot = %+v", audio)
	}
	// Device firmware publishes derived percentages as floats; they truncate
	if audio.Volume != 66 {
		t.Errorf("volume = %d, want 66", audio.Volume)
	}
}

func TestTile_ApplyLightState(t *testing.T) {
	tl := New("tile-01")

	payload := []byte(`{"brightness":50.2,"pixels":[{"r":255,"g":0,"b":0,"w":0},{"r":0,"g":255,"b":0,"w":0}]}`)
	snap, err := tl.ApplyState(DomainLight, payload)
	if err != nil {
		t.Fatalf("ApplyState(light) error = %v", err)
	}

	light := snap.(LightState)
	if light.Brightness != 50 {
		t.Errorf("brightness = %d, want 50", light.Brightness)
	}
	if len(light.Pixels) != 2 || light.Pixels[0].R != 255 || light.Pixels[1].G != 255 {
		t.Errorf("pixels = %+v", light.Pixels)
	}
}

func TestTile_ApplyLightState_PartialPixelsMerge(t *testing.T) {
	tl := New("tile-01")

	full := []byte(`{"brightness":100,"pixels":[{"r":10,"g":20,"b":30,"w":40},{"r":1,"g":2,"b":3,"w":4}]}`)
	if _, err := tl.ApplyState(DomainLight, full); err != nil {
		t.Fatalf("ApplyState(light) error = %v", err)
	}

	// Second update patches only the red channel of pixel 0
	patch := []byte(`{"brightness":100,"pixels":[{"r":99},{}]}`)
	snap, err := tl.ApplyState(DomainLight, patch)
	if err != nil {
		t.Fatalf("ApplyState(light patch) error = %v", err)
	}

	light := snap.(LightState)
	want0 := Pixel{R: 99, G: 20, B: 30, W: 40}
	want1 := Pixel{R: 1, G: 2, B: 3, W: 4}
	if light.Pixels[0] != want0 {
		t.Errorf("pixel 0 = %+v, want %+v", light.Pixels[0], want0)
	}
	if light.Pixels[1] != want1 {
		t.Errorf("pixel 1 = %+v, want %+v", light.Pixels[1], want1)
	}
}

func TestTile_ApplyLightState_GrowAndShrink(t *testing.T) {
	tl := New("tile-01")

	two := []byte(`{"brightness":10,"pixels":[{"r":1},{"r":2}]}`)
	if _, err := tl.ApplyState(DomainLight, two); err != nil {
		t.Fatalf("ApplyState error = %v", err)
	}

	// Growing pads with unlit pixels before applying patches
	three := []byte(`{"brightness":10,"pixels":[{},{},{"g":7}]}`)
	snap, err := tl.ApplyState(DomainLight, three)
	if err != nil {
		t.Fatalf("ApplyState error = %v", err)
	}
	light := snap.(LightState)
	if len(light.Pixels) != 3 {
		t.Fatalf("pixel count = %d, want 3", len(light.Pixels))
	}
	if light.Pixels[0].R != 1 || light.Pixels[2].G != 7 || light.Pixels[2].R != 0 {
		t.Errorf("pixels after grow = %+v", light.Pixels)
	}

	// Shrinking drops stale trailing entries
	one := []byte(`{"brightness":10,"pixels":[{}]}`)
	snap, err = tl.ApplyState(DomainLight, one)
	if err != nil {
		t.Fatalf("ApplyState error = %v", err)
	}
	light = snap.(LightState)
	if len(light.Pixels) != 1 {
		t.Errorf("pixel count after shrink = %d, want 1", len(light.Pixels))
	}
}

func TestTile_ApplyPresenceState(t *testing.T) {
	tl := New("tile-01")

	snap, err := tl.ApplyState(DomainPresence, []byte(`{"detected":true}`))
	if err != nil {
		t.Fatalf("ApplyState(presence) error = %v", err)
	}
	if !snap.(PresenceState).Detected {
		t.Error("detected = false, want true")
	}
}

func TestTile_ApplyState_MalformedLeavesStateUntouched(t *testing.T) {
	tl := New("tile-01")

	good := []byte(`{"state":2,"looping":false,"sound":"keep-me","volume":30}`)
	if _, err := tl.ApplyState(DomainAudio, good); err != nil {
		t.Fatalf("ApplyState error = %v", err)
	}

	bad := [][]byte{
		[]byte(`not json`),
		[]byte(`{}`),
		[]byte(`{"state":1,"looping":false,"sound":"x"}`),          // missing volume
		[]byte(`{"state":"one","looping":false,"sound":"x","volume":1}`), // wrong type
		[]byte(`{"state":1,"looping":"yes","sound":"x","volume":1}`),     // wrong type
	}

	for _, payload := range bad {
		if _, err := tl.ApplyState(DomainAudio, payload); !errors.Is(err, ErrInvalidState) {
			t.Errorf("ApplyState(%s) error = %v, want ErrInvalidState", payload, err)
		}
	}

	audio := tl.Audio()
	if audio.State != PlaybackPaused || audio.Sound != "keep-me" || audio.Volume != 30 {
		t.Errorf("audio state corrupted by malformed payloads: %+v", audio)
	}
}

func TestTile_ApplyLightState_OutOfRangePixelRejected(t *testing.T) {
	tl := New("tile-01")

	good := []byte(`{"brightness":20,"pixels":[{"r":5}]}`)
	if _, err := tl.ApplyState(DomainLight, good); err != nil {
		t.Fatalf("ApplyState error = %v", err)
	}

	// One bad channel invalidates the entire payload
	bad := []byte(`{"brightness":30,"pixels":[{"r":10},{"g":999}]}`)
	_, err := tl.ApplyState(DomainLight, bad)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("ApplyState error = %v, want ErrInvalidState", err)
	}
	if !errors.Is(err, ErrInvalidPixel) {
		t.Errorf("ApplyState error = %v, want ErrInvalidPixel in chain", err)
	}

	light := tl.Light()
	if light.Brightness != 20 || len(light.Pixels) != 1 || light.Pixels[0].R != 5 {
		t.Errorf("light state corrupted by rejected payload: %+v", light)
	}
}

func TestTile_ApplyState_UnknownDomain(t *testing.T) {
	tl := New("tile-01")

	_, err := tl.ApplyState(Domain("thermal"), []byte(`{}`))
	if !errors.Is(err, ErrInvalidDomain) {
		t.Errorf("ApplyState error = %v, want ErrInvalidDomain", err)
	}
}

func TestTile_Snapshot(t *testing.T) {
	tl := New("tile-01")
	tl.UpdateOnline([]byte("ONLINE"))
	tl.ApplyState(DomainPresence, []byte(`{"detected":true}`))

	snap, err := tl.Snapshot(DomainOnline)
	if err != nil {
		t.Fatalf("Snapshot(online) error = %v", err)
	}
	if !snap.(OnlineState).Online {
		t.Error("online snapshot = false")
	}

	snap, err = tl.Snapshot(DomainFull)
	if err != nil {
		t.Fatalf("Snapshot(full) error = %v", err)
	}
	full := snap.(FullState)
	if !full.Online || !full.Presence.Detected {
		t.Errorf("full snapshot = %+v", full)
	}

	if _, err := tl.Snapshot(Domain("nope")); !errors.Is(err, ErrInvalidDomain) {
		t.Errorf("Snapshot(nope) error = %v, want ErrInvalidDomain", err)
	}
}

func TestTile_SnapshotCopiesAreIndependent(t *testing.T) {
	tl := New("tile-01")
	tl.ApplyState(DomainLight, []byte(`{"brightness":10,"pixels":[{"r":1}]}`))

	light := tl.Light()
	light.Pixels[0].R = 200

	if tl.Light().Pixels[0].R != 1 {
		t.Error("mutating a snapshot leaked into the stored state")
	}
}
