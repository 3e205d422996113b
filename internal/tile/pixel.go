package tile

import "fmt"

// Pixel channel bounds.
const (
	// MaxChannel is the maximum value of a single pixel channel.
	MaxChannel = 255
)

// Pixel is one RGBW LED in a tile's light ring.
//
// Channels are 0-255. The zero value is an unlit pixel.
type Pixel struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
	W int `json:"w"`
}

// Validate checks that all channels are within 0-255.
func (p Pixel) Validate() error {
	for _, ch := range []struct {
		name  string
		value int
	}{
		{"r", p.R},
		{"g", p.G},
		{"b", p.B},
		{"w", p.W},
	} {
		if ch.value < 0 || ch.value > MaxChannel {
			return fmt.Errorf("%w: %s=%d", ErrInvalidPixel, ch.name, ch.value)
		}
	}
	return nil
}

// PixelPatch is a partial pixel update from a light payload.
//
// Wire payloads may carry any subset of the four channels; absent channels
// keep the pixel's current value.
type PixelPatch struct {
	R *int `json:"r"`
	G *int `json:"g"`
	B *int `json:"b"`
	W *int `json:"w"`
}

// Validate checks that every present channel is within 0-255.
func (p PixelPatch) Validate() error {
	for _, ch := range []struct {
		name  string
		value *int
	}{
		{"r", p.R},
		{"g", p.G},
		{"b", p.B},
		{"w", p.W},
	} {
		if ch.value != nil && (*ch.value < 0 || *ch.value > MaxChannel) {
			return fmt.Errorf("%w: %s=%d", ErrInvalidPixel, ch.name, *ch.value)
		}
	}
	return nil
}

// applyTo merges the patch onto an existing pixel.
func (p PixelPatch) applyTo(px *Pixel) {
	if p.R != nil {
		px.R = *p.R
	}
	if p.G != nil {
		px.G = *p.G
	}
	if p.B != nil {
		px.B = *p.B
	}
	if p.W != nil {
		px.W = *p.W
	}
}
