package codec

import (
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/ironsheep/rastercodec/internal/imaging"
	"github.com/ironsheep/rastercodec/internal/jpeg"
)

// MaxPixelsEnv overrides the default pixel ceiling when set to a positive
// integer.
const MaxPixelsEnv = "RASTERCODEC_MAX_PIXELS"

// Option configures Decode.
type Option func(*options)

type options struct {
	maxPixels  int
	upsample   jpeg.UpsampleMethod
	autoOrient bool
	checkCRC   bool
}

// WithMaxPixels caps width*height of decoded images. Values above
// imaging.DefaultMaxPixels, or not positive, fall back to that ceiling.
func WithMaxPixels(n int) Option {
	return func(o *options) { o.maxPixels = n }
}

// WithUpsample selects the JPEG chroma upsampling filter.
func WithUpsample(m jpeg.UpsampleMethod) Option {
	return func(o *options) { o.upsample = m }
}

// WithAutoOrient applies the EXIF orientation tag after decoding.
func WithAutoOrient(on bool) Option {
	return func(o *options) { o.autoOrient = on }
}

// WithCRCCheck toggles PNG chunk CRC and zlib checksum verification.
func WithCRCCheck(on bool) Option {
	return func(o *options) { o.checkCRC = on }
}

func newOptions(opts []Option) options {
	o := options{
		maxPixels: envMaxPixels(),
		upsample:  jpeg.UpsampleNearest,
		checkCRC:  true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxPixels <= 0 || o.maxPixels > imaging.DefaultMaxPixels {
		o.maxPixels = imaging.DefaultMaxPixels
	}
	return o
}

func envMaxPixels() int {
	v := os.Getenv(MaxPixelsEnv)
	if v == "" {
		return imaging.DefaultMaxPixels
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.WithField("value", v).Warnf("ignoring invalid %s", MaxPixelsEnv)
		return imaging.DefaultMaxPixels
	}
	return n
}
