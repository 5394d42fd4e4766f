package codec

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"io"
	"strconv"

	dimaging "github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/ironsheep/rastercodec/internal/codecerr"
	"github.com/ironsheep/rastercodec/internal/imaging"
)

// libraryFormats maps the sibling media types to their short names.
var libraryFormats = map[string]string{
	MIMEGIF:  "gif",
	MIMEWebP: "webp",
	MIMEBMP:  "bmp",
	MIMETIFF: "tiff",
}

func libraryConfig(data []byte, mimeType string) (image.Config, error) {
	name := libraryFormats[mimeType]
	r := bytes.NewReader(data)
	var (
		c   image.Config
		err error
	)
	switch mimeType {
	case MIMEGIF:
		c, err = gif.DecodeConfig(r)
	case MIMEWebP:
		c, err = webp.DecodeConfig(r)
	case MIMEBMP:
		c, err = bmp.DecodeConfig(r)
	case MIMETIFF:
		c, err = tiff.DecodeConfig(r)
	}
	if err != nil {
		return image.Config{}, classify(name, "header", err, codecerr.MalformedHeader)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return image.Config{}, codecerr.New(codecerr.MalformedHeader, name, codecerr.NoOffset, "header", "invalid dimensions %dx%d", c.Width, c.Height)
	}
	return c, nil
}

// decodeLibrary checks the declared size against the ceiling before handing
// data to the library decoder.
func decodeLibrary(data []byte, mimeType string, o options) (*imaging.Image, error) {
	name := libraryFormats[mimeType]
	c, err := libraryConfig(data, mimeType)
	if err != nil {
		return nil, err
	}
	if int64(c.Width)*int64(c.Height) > int64(o.maxPixels) {
		return nil, codecerr.New(codecerr.ResourceLimitExceeded, name, codecerr.NoOffset, "header",
			"%dx%d exceeds the %d pixel ceiling", c.Width, c.Height, o.maxPixels)
	}

	meta := map[string]string{"format": name}
	r := bytes.NewReader(data)
	var src image.Image
	switch mimeType {
	case MIMEGIF:
		var g *gif.GIF
		g, err = gif.DecodeAll(r)
		if err == nil {
			src = firstFrame(g)
			meta["frames"] = strconv.Itoa(len(g.Image))
			meta["loop_count"] = strconv.Itoa(g.LoopCount)
		}
	case MIMEWebP:
		src, err = webp.Decode(r)
	case MIMEBMP:
		src, err = bmp.Decode(r)
	case MIMETIFF:
		src, err = tiff.Decode(r)
	}
	if err != nil {
		return nil, classify(name, "image data", err, codecerr.CorruptData)
	}

	img, err := imaging.FromImage(src)
	if err != nil {
		return nil, err
	}
	for k, v := range meta {
		img.Metadata[k] = v
	}
	return img, nil
}

// firstFrame places frame 0 on a transparent canvas the size of the logical
// screen, so Decode and DecodeConfig agree on dimensions.
func firstFrame(g *gif.GIF) image.Image {
	frame := g.Image[0]
	if frame.Rect == image.Rect(0, 0, g.Config.Width, g.Config.Height) {
		return frame
	}
	canvas := dimaging.New(g.Config.Width, g.Config.Height, color.Transparent)
	return dimaging.Paste(canvas, frame, frame.Rect.Min)
}

// classify maps a library error onto a codecerr kind, defaulting to def.
func classify(format, where string, err error, def codecerr.Kind) error {
	kind := def
	var tiffUnsupported tiff.UnsupportedError
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		kind = codecerr.TruncatedStream
	case errors.Is(err, bmp.ErrUnsupported), errors.As(err, &tiffUnsupported):
		kind = codecerr.UnsupportedFeature
	}
	return codecerr.Wrap(kind, format, codecerr.NoOffset, where, err)
}
