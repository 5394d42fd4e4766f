// Package jpeg decodes baseline sequential (SOF0) JPEG streams into an RGBA
// pixel buffer.
//
// The decoder works on a fully buffered input and is single pass: header
// segments are parsed as they arrive, each scan's entropy-coded data is
// decoded block by block straight into per-component sample planes, and the
// planes are upsampled and color converted once the last scan is done.
// Progressive, lossless, hierarchical and arithmetic-coded frames are
// reported as codecerr.UnsupportedFeature.
package jpeg

import (
	"github.com/ironsheep/rastercodec/internal/codecerr"
)

// DefaultMaxPixels is the allocation ceiling used when Options.MaxPixels is zero.
const DefaultMaxPixels = 1 << 26

// UpsampleMethod selects how subsampled chroma planes are brought up to
// full resolution.
type UpsampleMethod int

const (
	// UpsampleNearest replicates each chroma sample over its footprint.
	UpsampleNearest UpsampleMethod = iota
	// UpsampleBilinear interpolates between the four nearest chroma samples.
	UpsampleBilinear
)

func (m UpsampleMethod) String() string {
	switch m {
	case UpsampleNearest:
		return "nearest"
	case UpsampleBilinear:
		return "bilinear"
	default:
		return "unknown"
	}
}

// Options specifies decoding parameters. The zero value is usable.
type Options struct {
	// MaxPixels caps width*height as declared by the frame header. Frames
	// above the cap fail with ResourceLimitExceeded before any sample
	// buffer is allocated. Zero means DefaultMaxPixels.
	MaxPixels int
	// Upsample selects the chroma upsampling filter.
	Upsample UpsampleMethod
}

func (o Options) maxPixels() int {
	if o.MaxPixels <= 0 {
		return DefaultMaxPixels
	}
	return o.MaxPixels
}

// Image is a decoded JPEG.
type Image struct {
	// Pix holds RGBA samples, row-major, 4 bytes per pixel, A always 255.
	Pix    []byte
	Width  int
	Height int
	// Metadata carries format details: format, bit_depth, components,
	// color_space, subsampling, and when present orientation,
	// jfif_version, dpi_x, dpi_y, comment, exif_make, exif_model.
	Metadata map[string]string
}

// Config is the frame geometry read by DecodeConfig.
type Config struct {
	Width      int
	Height     int
	Components int
	// Baseline is false when the first frame header is not SOF0; such
	// streams report their size here but cannot be decoded.
	Baseline bool
}

// Decode decodes a complete JPEG stream.
func Decode(data []byte, opts Options) (*Image, error) {
	d := newDecoder(data, opts)
	if err := d.run(); err != nil {
		return nil, err
	}
	return d.assemble()
}

// DecodeConfig parses header segments up to the first frame header and
// returns its geometry without touching entropy-coded data.
func DecodeConfig(data []byte) (Config, error) {
	d := newDecoder(data, Options{MaxPixels: int(^uint(0) >> 1)})
	d.configOnly = true
	if err := d.run(); err != nil {
		return Config{}, err
	}
	if d.width == 0 {
		return Config{}, d.errorf(codecerr.MalformedHeader, d.r.Pos(), "", "no frame header")
	}
	return Config{
		Width:      d.width,
		Height:     d.height,
		Components: len(d.comps),
		Baseline:   d.baseline,
	}, nil
}
