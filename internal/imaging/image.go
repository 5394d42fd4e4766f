package imaging

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/rastercodec/internal/codecerr"
)

// DefaultMaxPixels is the largest width*height an operation may produce.
const DefaultMaxPixels = 1 << 26

// Channels is the number of bytes per pixel in every Image buffer.
const Channels = 4

// Image is a decoded raster: a straight-alpha RGBA buffer, its dimensions and
// format metadata.
//
// An Image owns its buffer exclusively. Accessors return copies, and an
// operation that replaces the buffer never keeps a reference to the old one.
// Every operation validates its arguments first and leaves the image
// unchanged when it returns an error.
//
// Image is not safe for concurrent mutation.
type Image struct {
	pix    []byte
	width  int
	height int

	// Metadata holds format-specific information such as format, bit_depth,
	// color_type or orientation. The manipulation operations never read it.
	Metadata map[string]string
}

// New wraps pix as an Image and takes ownership of it.
//
// pix must hold exactly width*height*4 bytes of row-major RGBA samples.
func New(pix []byte, width, height int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, codecerr.Invalid("new", "dimensions %dx%d must be positive", width, height)
	}
	if int64(width)*int64(height) > DefaultMaxPixels {
		return nil, codecerr.Invalid("new", "%dx%d exceeds the %d pixel ceiling", width, height, DefaultMaxPixels)
	}
	if len(pix) != width*height*Channels {
		return nil, codecerr.Invalid("new", "buffer holds %d bytes, want %d for %dx%d", len(pix), width*height*Channels, width, height)
	}
	return &Image{pix: pix, width: width, height: height, Metadata: map[string]string{}}, nil
}

// FromImage converts any image.Image to an Image with straight alpha.
func FromImage(src image.Image) (*Image, error) {
	b := src.Bounds()
	if b.Empty() {
		return nil, codecerr.Invalid("from image", "empty bounds %v", b)
	}
	n := imaging.Clone(src)
	return New(n.Pix, b.Dx(), b.Dy())
}

// Width returns the width in pixels.
func (m *Image) Width() int { return m.width }

// Height returns the height in pixels.
func (m *Image) Height() int { return m.height }

// Channels returns the bytes per pixel, always 4.
func (m *Image) Channels() int { return Channels }

// Pix returns a copy of the RGBA buffer.
func (m *Image) Pix() []byte {
	return append([]byte(nil), m.pix...)
}

// At returns the RGBA samples at (x, y).
func (m *Image) At(x, y int) ([4]byte, error) {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return [4]byte{}, codecerr.Invalid("at", "coordinates (%d,%d) outside image bounds %dx%d", x, y, m.width, m.height)
	}
	i := m.offset(x, y)
	return [4]byte{m.pix[i], m.pix[i+1], m.pix[i+2], m.pix[i+3]}, nil
}

// NRGBA returns a copy of the image as an *image.NRGBA.
func (m *Image) NRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    m.Pix(),
		Stride: m.width * Channels,
		Rect:   image.Rect(0, 0, m.width, m.height),
	}
}

// Clone returns a deep copy, metadata included.
func (m *Image) Clone() *Image {
	meta := make(map[string]string, len(m.Metadata))
	for k, v := range m.Metadata {
		meta[k] = v
	}
	return &Image{pix: m.Pix(), width: m.width, height: m.height, Metadata: meta}
}

func (m *Image) offset(x, y int) int {
	return (y*m.width + x) * Channels
}

// view shares the buffer as an *image.NRGBA for read-only use by library
// routines. Callers must not retain it.
func (m *Image) view() *image.NRGBA {
	return &image.NRGBA{Pix: m.pix, Stride: m.width * Channels, Rect: image.Rect(0, 0, m.width, m.height)}
}

// replace swaps in a new buffer and dimensions in one step.
func (m *Image) replace(pix []byte, width, height int) {
	m.pix, m.width, m.height = pix, width, height
}

func clampByte(v float64) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return byte(v + 0.5)
}
