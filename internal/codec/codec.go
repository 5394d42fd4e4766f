// Package codec is the single entry point for turning encoded bytes into an
// imaging.Image and back.
//
// JPEG and PNG go through this module's own decoders. GIF, WebP, BMP and
// TIFF are decoded by library decoders and converted to the same straight
// RGBA representation, so callers never see which path produced an image.
// When no media type is given the format is sniffed from the magic bytes.
//
// Decoding is configured with functional options:
//
//	img, err := codec.Decode(data, "", codec.WithAutoOrient(true), codec.WithMaxPixels(1<<24))
//
// All errors are *codecerr.Error values; classify them with errors.Is
// against the codecerr sentinels.
package codec

import (
	"bytes"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/ironsheep/rastercodec/internal/codecerr"
	"github.com/ironsheep/rastercodec/internal/imaging"
	"github.com/ironsheep/rastercodec/internal/jpeg"
	"github.com/ironsheep/rastercodec/internal/png"
)

// Config is the geometry of an encoded image, read without decoding pixels.
type Config struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

// Decode decodes data of the given media type. An empty mimeType sniffs
// the format from the data.
func Decode(data []byte, mimeType string, opts ...Option) (*imaging.Image, error) {
	o := newOptions(opts)
	mimeType, err := resolve(data, mimeType)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"mime": mimeType, "bytes": len(data)}).Debug("codec: decoding")

	var img *imaging.Image
	switch mimeType {
	case MIMEJPEG:
		img, err = decodeJPEG(data, o)
	case MIMEPNG:
		img, err = decodePNG(data, o)
	default:
		img, err = decodeLibrary(data, mimeType, o)
	}
	if err != nil {
		return nil, err
	}

	if o.autoOrient {
		if err := orient(img); err != nil {
			return nil, err
		}
	}
	log.WithFields(log.Fields{
		"mime":   mimeType,
		"width":  img.Width(),
		"height": img.Height(),
	}).Debug("codec: decoded")
	return img, nil
}

// DecodeConfig reads only the header of data.
func DecodeConfig(data []byte, mimeType string) (Config, error) {
	mimeType, err := resolve(data, mimeType)
	if err != nil {
		return Config{}, err
	}
	switch mimeType {
	case MIMEJPEG:
		c, err := jpeg.DecodeConfig(data)
		if err != nil {
			return Config{}, err
		}
		return Config{Width: c.Width, Height: c.Height, Format: mimeType}, nil
	case MIMEPNG:
		c, err := png.DecodeConfig(data)
		if err != nil {
			return Config{}, err
		}
		return Config{Width: c.Width, Height: c.Height, Format: mimeType}, nil
	}
	c, err := libraryConfig(data, mimeType)
	if err != nil {
		return Config{}, err
	}
	return Config{Width: c.Width, Height: c.Height, Format: mimeType}, nil
}

// Encode serializes img as mimeType. quality applies to JPEG only; zero
// selects the default.
func Encode(img *imaging.Image, mimeType string, quality int) ([]byte, error) {
	mimeType = normalizeMIME(mimeType)
	var f imaging.Format
	switch mimeType {
	case MIMEJPEG:
		f = imaging.JPEG
	case MIMEPNG:
		f = imaging.PNG
	case MIMEGIF:
		f = imaging.GIF
	case MIMEBMP:
		f = imaging.BMP
	case MIMETIFF:
		f = imaging.TIFF
	default:
		return nil, codecerr.New(codecerr.UnsupportedFeature, "codec", codecerr.NoOffset, "encode", "no encoder for %q", mimeType)
	}
	var buf bytes.Buffer
	if err := img.Encode(&buf, f, imaging.EncodeOptions{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// resolve picks the media type for data, sniffing when mimeType is empty.
func resolve(data []byte, mimeType string) (string, error) {
	mimeType = normalizeMIME(mimeType)
	if mimeType == "" {
		if len(data) == 0 {
			return "", codecerr.New(codecerr.TruncatedStream, "codec", 0, "", "empty input")
		}
		mimeType = DetectMIME(data)
		if mimeType == "" {
			return "", codecerr.New(codecerr.UnsupportedFeature, "codec", 0, "", "unrecognized image format")
		}
	}
	switch mimeType {
	case MIMEJPEG, MIMEPNG, MIMEGIF, MIMEWebP, MIMEBMP, MIMETIFF:
		return mimeType, nil
	}
	return "", codecerr.New(codecerr.UnsupportedFeature, "codec", codecerr.NoOffset, "", "unsupported media type %q", mimeType)
}

func decodeJPEG(data []byte, o options) (*imaging.Image, error) {
	d, err := jpeg.Decode(data, jpeg.Options{MaxPixels: o.maxPixels, Upsample: o.upsample})
	if err != nil {
		return nil, err
	}
	return wrap(d.Pix, d.Width, d.Height, d.Metadata)
}

func decodePNG(data []byte, o options) (*imaging.Image, error) {
	d, err := png.Decode(data, png.Options{MaxPixels: o.maxPixels, SkipCRC: !o.checkCRC})
	if err != nil {
		return nil, err
	}
	return wrap(d.Pix, d.Width, d.Height, d.Metadata)
}

func wrap(pix []byte, w, h int, meta map[string]string) (*imaging.Image, error) {
	img, err := imaging.New(pix, w, h)
	if err != nil {
		return nil, err
	}
	for k, v := range meta {
		img.Metadata[k] = v
	}
	return img, nil
}

// orient applies and then resets the orientation tag.
func orient(img *imaging.Image) error {
	v, ok := img.Metadata["orientation"]
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 8 {
		log.WithField("orientation", v).Debug("codec: ignoring orientation tag")
		return nil
	}
	if n == 1 {
		return nil
	}
	if err := img.Orient(n); err != nil {
		return err
	}
	img.Metadata["orientation"] = "1"
	img.Metadata["oriented_from"] = v
	return nil
}
