package imaging

import (
	"fmt"
	"io"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/rastercodec/internal/codecerr"
)

// Format is an output encoding.
type Format = imaging.Format

// Output formats.
const (
	JPEG = imaging.JPEG
	PNG  = imaging.PNG
	GIF  = imaging.GIF
	TIFF = imaging.TIFF
	BMP  = imaging.BMP
)

// DefaultJPEGQuality is used when EncodeOptions.Quality is zero.
const DefaultJPEGQuality = 90

// EncodeOptions tune Encode.
type EncodeOptions struct {
	// Quality is the JPEG quality, 1..100. Zero means DefaultJPEGQuality.
	Quality int
}

// ParseFormat maps a format name ("png", "jpg", "tiff" ...) or a file
// extension to a Format.
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimPrefix(name, "."))
	f, err := imaging.FormatFromExtension(name)
	if err != nil {
		return 0, codecerr.Invalid("encode", "unknown output format %q", name)
	}
	return f, nil
}

// MIMEType returns the media type of f.
func MIMEType(f Format) string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case PNG:
		return "image/png"
	case GIF:
		return "image/gif"
	case TIFF:
		return "image/tiff"
	case BMP:
		return "image/bmp"
	}
	return "application/octet-stream"
}

// Encode writes the image to w in format f.
func (m *Image) Encode(w io.Writer, f Format, opts EncodeOptions) error {
	q := opts.Quality
	if q == 0 {
		q = DefaultJPEGQuality
	}
	if q < 1 || q > 100 {
		return codecerr.Invalid("encode", "quality %d outside 1..100", q)
	}
	if err := imaging.Encode(w, m.view(), f, imaging.JPEGQuality(q)); err != nil {
		return fmt.Errorf("failed to encode %s: %w", f, err)
	}
	return nil
}
