package imaging

import (
	"bytes"
	"errors"
	"image/color"
	"testing"

	"github.com/ironsheep/rastercodec/internal/codecerr"
)

func TestCrop(t *testing.T) {
	img := createPatternImage(100, 100)

	if err := img.Crop(0, 0, 50, 50); err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	if img.Width() != 50 || img.Height() != 50 {
		t.Errorf("dimensions: got %dx%d, want 50x50", img.Width(), img.Height())
	}
	if len(img.Pix()) != 50*50*4 {
		t.Errorf("buffer length %d, want %d", len(img.Pix()), 50*50*4)
	}
}

func TestCrop_VerifyContent(t *testing.T) {
	img := createPatternImage(100, 100)

	// Straddle the center so every quadrant contributes.
	if err := img.Crop(40, 45, 20, 10); err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	tests := []struct {
		x, y int
		want color.RGBA
	}{
		{0, 0, color.RGBA{255, 0, 0, 255}},
		{19, 0, color.RGBA{0, 255, 0, 255}},
		{0, 9, color.RGBA{0, 0, 255, 255}},
		{19, 9, color.RGBA{255, 255, 255, 255}},
		{9, 4, color.RGBA{255, 0, 0, 255}},
		{10, 5, color.RGBA{255, 255, 255, 255}},
	}
	for _, tt := range tests {
		if got := pixelAt(t, img, tt.x, tt.y); got != tt.want {
			t.Errorf("(%d,%d): got %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestCrop_FullImage(t *testing.T) {
	img := createPatternImage(100, 100)
	before := img.Pix()

	if err := img.Crop(0, 0, 100, 100); err != nil {
		t.Fatalf("Crop full image failed: %v", err)
	}
	if !bytes.Equal(img.Pix(), before) {
		t.Error("cropping to the full image changed pixels")
	}
}

func TestCrop_RejectsWithoutMutation(t *testing.T) {
	tests := []struct {
		name       string
		x, y, w, h int
	}{
		{"x negative", -1, 0, 50, 50},
		{"y negative", 0, -1, 50, 50},
		{"too wide", 0, 0, 101, 50},
		{"too tall", 0, 0, 50, 101},
		{"right edge overflow", 60, 0, 50, 50},
		{"bottom edge overflow", 0, 60, 50, 50},
		{"all out of bounds", -1, -1, 200, 200},
		{"zero width", 10, 10, 0, 5},
		{"zero height", 10, 10, 5, 0},
		{"negative size", 50, 50, -10, -10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := createPatternImage(100, 100)
			before := img.Pix()

			err := img.Crop(tt.x, tt.y, tt.w, tt.h)
			if !errors.Is(err, codecerr.ErrInvalidArg) {
				t.Fatalf("got %v, want an invalid argument error", err)
			}
			if img.Width() != 100 || img.Height() != 100 || !bytes.Equal(img.Pix(), before) {
				t.Error("failed crop modified the image")
			}
		})
	}
}

func TestCropRegion(t *testing.T) {
	tests := []struct {
		region       string
		wantW, wantH int
		want         color.RGBA // color at the region's center
	}{
		{"top-left", 50, 50, color.RGBA{255, 0, 0, 255}},
		{"top-right", 50, 50, color.RGBA{0, 255, 0, 255}},
		{"bottom-left", 50, 50, color.RGBA{0, 0, 255, 255}},
		{"bottom-right", 50, 50, color.RGBA{255, 255, 255, 255}},
		{"top-half", 100, 50, color.RGBA{0, 255, 0, 255}},
		{"bottom-half", 100, 50, color.RGBA{255, 255, 255, 255}},
		{"left-half", 50, 100, color.RGBA{0, 0, 255, 255}},
		{"right-half", 50, 100, color.RGBA{255, 255, 255, 255}},
		{"center", 50, 50, color.RGBA{255, 255, 255, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.region, func(t *testing.T) {
			img := createPatternImage(100, 100)
			if err := img.CropRegion(tt.region); err != nil {
				t.Fatalf("CropRegion(%s) failed: %v", tt.region, err)
			}
			if img.Width() != tt.wantW || img.Height() != tt.wantH {
				t.Errorf("dimensions: got %dx%d, want %dx%d", img.Width(), img.Height(), tt.wantW, tt.wantH)
			}
			if got := pixelAt(t, img, tt.wantW/2, tt.wantH/2); got != tt.want {
				t.Errorf("center color: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCropRegion_Invalid(t *testing.T) {
	img := createPatternImage(100, 100)
	for _, name := range []string{"invalid", "", "TOP-LEFT", "middle"} {
		if err := img.CropRegion(name); !errors.Is(err, codecerr.ErrInvalidArg) {
			t.Errorf("CropRegion(%q): got %v, want an invalid argument error", name, err)
		}
	}
	if img.Width() != 100 {
		t.Error("failed CropRegion modified the image")
	}
}

func TestCropRegion_OddDimensions(t *testing.T) {
	img := createPatternImage(101, 99)
	if err := img.CropRegion("bottom-right"); err != nil {
		t.Fatalf("CropRegion failed: %v", err)
	}
	if img.Width() != 51 || img.Height() != 50 {
		t.Errorf("dimensions: got %dx%d, want 51x50", img.Width(), img.Height())
	}
}

func TestCropRegion_TinyImage(t *testing.T) {
	// A 1x1 image has empty quadrants; they are rejected, not clamped.
	img := createInMemoryImage(1, 1, color.RGBA{1, 2, 3, 255})
	if err := img.CropRegion("top-left"); !errors.Is(err, codecerr.ErrInvalidArg) {
		t.Errorf("got %v, want an invalid argument error", err)
	}
	if err := img.CropRegion("bottom-right"); err != nil {
		t.Errorf("bottom-right of 1x1: %v", err)
	}
}
