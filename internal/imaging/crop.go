package imaging

import (
	"github.com/ironsheep/rastercodec/internal/codecerr"
)

// Crop keeps the w x h rectangle whose top-left corner is (x, y).
//
// A rectangle that is empty or reaches outside the image is rejected, never
// clamped.
func (m *Image) Crop(x, y, w, h int) error {
	if w <= 0 || h <= 0 {
		return codecerr.Invalid("crop", "region size %dx%d must be positive", w, h)
	}
	if x < 0 || y < 0 || x > m.width-w || y > m.height-h {
		return codecerr.Invalid("crop", "region (%d,%d)-(%d,%d) outside image bounds %dx%d",
			x, y, x+w, y+h, m.width, m.height)
	}
	pix := make([]byte, w*h*Channels)
	for row := 0; row < h; row++ {
		o := m.offset(x, y+row)
		copy(pix[row*w*Channels:], m.pix[o:o+w*Channels])
	}
	m.replace(pix, w, h)
	return nil
}

// RegionNames lists the names CropRegion accepts.
var RegionNames = []string{
	"top-left", "top-right", "bottom-left", "bottom-right",
	"top-half", "bottom-half", "left-half", "right-half", "center",
}

// NamedRegion resolves a region name to a rectangle of the image as
// (x1, y1) inclusive and (x2, y2) exclusive.
func (m *Image) NamedRegion(name string) (Region, error) {
	w, h := m.width, m.height
	midX, midY := w/2, h/2

	var r Region
	switch name {
	case "top-left":
		r = Region{0, 0, midX, midY}
	case "top-right":
		r = Region{midX, 0, w, midY}
	case "bottom-left":
		r = Region{0, midY, midX, h}
	case "bottom-right":
		r = Region{midX, midY, w, h}
	case "top-half":
		r = Region{0, 0, w, midY}
	case "bottom-half":
		r = Region{0, midY, w, h}
	case "left-half":
		r = Region{0, 0, midX, h}
	case "right-half":
		r = Region{midX, 0, w, h}
	case "center":
		// Center 50% of the image
		qW, qH := w/4, h/4
		r = Region{qW, qH, w - qW, h - qH}
	default:
		return Region{}, codecerr.Invalid("crop region", "unknown region %q", name)
	}
	return r, nil
}

// CropRegion crops to a named region such as "top-left" or "center".
func (m *Image) CropRegion(name string) error {
	r, err := m.NamedRegion(name)
	if err != nil {
		return err
	}
	return m.Crop(r.X1, r.Y1, r.X2-r.X1, r.Y2-r.Y1)
}
