package tile

import (
	"errors"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestPixel_Validate(t *testing.T) {
	tests := []struct {
		name    string
		pixel   Pixel
		wantErr bool
	}{
		{"zero value", Pixel{}, false},
		{"full white", Pixel{R: 255, G: 255, B: 255, W: 255}, false},
		{"red too high", Pixel{R: 256}, true},
		{"green negative", Pixel{G: -1}, true},
		{"blue too high", Pixel{B: 300}, true},
		{"white negative", Pixel{W: -10}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pixel.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPixel) {
				t.Errorf("Validate() error = %v, want ErrInvalidPixel", err)
			}
		})
	}
}

func TestPixelPatch_Validate(t *testing.T) {
	if err := (PixelPatch{}).Validate(); err != nil {
		t.Errorf("empty patch should validate, got %v", err)
	}

	if err := (PixelPatch{R: intPtr(128)}).Validate(); err != nil {
		t.Errorf("in-range patch should validate, got %v", err)
	}

	err := (PixelPatch{B: intPtr(999)}).Validate()
	if !errors.Is(err, ErrInvalidPixel) {
		t.Errorf("out-of-range patch error = %v, want ErrInvalidPixel", err)
	}
}

func TestPixelPatch_ApplyTo(t *testing.T) {
	px := Pixel{R: 10, G: 20, B: 30, W: 40}

	patch := PixelPatch{G: intPtr(200), W: intPtr(0)}
	patch.applyTo(&px)

	want := Pixel{R: 10, G: 200, B: 30, W: 0}
	if px != want {
		t.Errorf("applyTo result = %+v, want %+v", px, want)
	}

	// Empty patch leaves the pixel untouched
	(PixelPatch{}).applyTo(&px)
	if px != want {
		t.Errorf("empty patch changed pixel to %+v", px)
	}
}
