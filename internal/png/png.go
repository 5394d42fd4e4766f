// Package png decodes PNG streams into an RGBA pixel buffer.
//
// All standard color type and bit depth combinations are supported,
// including palettes with tRNS transparency and Adam7 interlacing. Samples
// are expanded to 8 bits per channel: sub-byte gray is scaled to 0..255 and
// 16-bit samples keep their high byte. Alpha stays straight (not
// premultiplied). Animated PNG chunks are ignored and only the default image
// is decoded.
package png

// DefaultMaxPixels is the allocation ceiling used when Options.MaxPixels is zero.
const DefaultMaxPixels = 1 << 26

const formatName = "png"

// Options specifies decoding parameters. The zero value is usable.
type Options struct {
	// MaxPixels caps width*height as declared by IHDR. Larger images fail
	// with ResourceLimitExceeded before any pixel memory is allocated.
	// Zero means DefaultMaxPixels.
	MaxPixels int
	// SkipCRC disables CRC-32 verification of chunks and the zlib checksum.
	SkipCRC bool
}

func (o Options) maxPixels() int {
	if o.MaxPixels <= 0 {
		return DefaultMaxPixels
	}
	return o.MaxPixels
}

// Image is a decoded PNG.
type Image struct {
	// Pix holds straight-alpha RGBA samples, row-major, 4 bytes per pixel.
	Pix    []byte
	Width  int
	Height int
	// Metadata carries format, bit_depth, color_type, interlace and, when
	// present, palette_size, gamma, srgb_intent, dpi_x, dpi_y and one
	// text:<keyword> entry per text chunk.
	Metadata map[string]string
}

// Config is the header information read by DecodeConfig.
type Config struct {
	Width      int
	Height     int
	BitDepth   int
	ColorType  int
	Interlaced bool
}

// Decode decodes a complete PNG stream.
func Decode(data []byte, opts Options) (*Image, error) {
	d := newDecoder(data, opts)
	if err := d.readChunks(); err != nil {
		return nil, err
	}
	pix, err := d.decodePixels()
	if err != nil {
		return nil, err
	}
	return &Image{Pix: pix, Width: d.width, Height: d.height, Metadata: d.meta}, nil
}

// DecodeConfig validates the signature and IHDR and returns the header
// fields without inflating image data.
func DecodeConfig(data []byte) (Config, error) {
	d := newDecoder(data, Options{MaxPixels: int(^uint(0) >> 1)})
	d.configOnly = true
	if err := d.readChunks(); err != nil {
		return Config{}, err
	}
	return Config{
		Width:      d.width,
		Height:     d.height,
		BitDepth:   d.depth,
		ColorType:  d.colorType,
		Interlaced: d.interlace == 1,
	}, nil
}
