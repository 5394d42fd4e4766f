package imaging

import (
	"fmt"
	"math"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/rastercodec/internal/codecerr"
)

// Filter selects the resampling kernel used by Resize.
type Filter int

const (
	// Nearest picks the source pixel whose center is closest.
	Nearest Filter = iota
	// Bilinear interpolates the four surrounding source pixels.
	Bilinear
	// CatmullRom is a sharp cubic kernel.
	CatmullRom
	// Lanczos is a high quality three-lobe kernel.
	Lanczos
)

func (f Filter) String() string {
	switch f {
	case Nearest:
		return "nearest"
	case Bilinear:
		return "bilinear"
	case CatmullRom:
		return "catmullrom"
	case Lanczos:
		return "lanczos"
	}
	return fmt.Sprintf("filter(%d)", int(f))
}

// ParseFilter maps a filter name, case-insensitively, to a Filter.
func ParseFilter(name string) (Filter, error) {
	for f := Nearest; f <= Lanczos; f++ {
		if strings.EqualFold(name, f.String()) {
			return f, nil
		}
	}
	return 0, codecerr.Invalid("resize", "unknown filter %q", name)
}

// Resize resamples the image to w x h.
func (m *Image) Resize(w, h int, filter Filter) error {
	if w <= 0 || h <= 0 {
		return codecerr.Invalid("resize", "target size %dx%d must be positive", w, h)
	}
	if int64(w)*int64(h) > DefaultMaxPixels {
		return codecerr.Invalid("resize", "target size %dx%d exceeds the %d pixel ceiling", w, h, DefaultMaxPixels)
	}
	var pix []byte
	switch filter {
	case Nearest:
		pix = m.resizeNearest(w, h)
	case Bilinear:
		pix = m.resizeBilinear(w, h)
	case CatmullRom:
		pix = imaging.Resize(m.view(), w, h, imaging.CatmullRom).Pix
	case Lanczos:
		pix = imaging.Resize(m.view(), w, h, imaging.Lanczos).Pix
	default:
		return codecerr.Invalid("resize", "unknown filter %v", filter)
	}
	m.replace(pix, w, h)
	return nil
}

// srcIndex maps destination index i to the source pixel whose center is
// nearest, for a dst/src ratio of n/size.
func srcIndex(i, n, size int) int {
	s := (2*i + 1) * size / (2 * n)
	if s >= size {
		s = size - 1
	}
	return s
}

func (m *Image) resizeNearest(w, h int) []byte {
	pix := make([]byte, w*h*Channels)
	xs := make([]int, w)
	for x := range xs {
		xs[x] = srcIndex(x, w, m.width)
	}
	for y := 0; y < h; y++ {
		sy := srcIndex(y, h, m.height)
		for x, sx := range xs {
			copy(pix[(y*w+x)*Channels:], m.pix[m.offset(sx, sy):m.offset(sx, sy)+Channels])
		}
	}
	return pix
}

// tap is a pair of source indices and the weight of the second one.
type tap struct {
	i0, i1 int
	f      float64
}

// taps samples at pixel centers: destination i maps to source coordinate
// (i+0.5)*size/n - 0.5, clamped to the edge.
func taps(n, size int) []tap {
	ts := make([]tap, n)
	for i := range ts {
		s := (float64(i)+0.5)*float64(size)/float64(n) - 0.5
		if s < 0 {
			s = 0
		}
		i0 := int(math.Floor(s))
		if i0 >= size-1 {
			ts[i] = tap{size - 1, size - 1, 0}
			continue
		}
		ts[i] = tap{i0, i0 + 1, s - float64(i0)}
	}
	return ts
}

func (m *Image) resizeBilinear(w, h int) []byte {
	pix := make([]byte, w*h*Channels)
	xt, yt := taps(w, m.width), taps(h, m.height)
	for y, ty := range yt {
		for x, tx := range xt {
			p00, p01 := m.offset(tx.i0, ty.i0), m.offset(tx.i1, ty.i0)
			p10, p11 := m.offset(tx.i0, ty.i1), m.offset(tx.i1, ty.i1)
			d := (y*w + x) * Channels
			for c := 0; c < Channels; c++ {
				top := float64(m.pix[p00+c])*(1-tx.f) + float64(m.pix[p01+c])*tx.f
				bottom := float64(m.pix[p10+c])*(1-tx.f) + float64(m.pix[p11+c])*tx.f
				pix[d+c] = clampByte(top*(1-ty.f) + bottom*ty.f)
			}
		}
	}
	return pix
}

// remap builds a new w x h buffer where destination (x, y) copies source
// pixel src(x, y).
func (m *Image) remap(w, h int, src func(x, y int) (int, int)) {
	pix := make([]byte, w*h*Channels)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := src(x, y)
			o := m.offset(sx, sy)
			copy(pix[(y*w+x)*Channels:], m.pix[o:o+Channels])
		}
	}
	m.replace(pix, w, h)
}

// Rotate turns the image clockwise by deg, which must be a multiple of 90.
// Negative angles rotate counter-clockwise.
func (m *Image) Rotate(deg int) error {
	if deg%90 != 0 {
		return codecerr.Invalid("rotate", "angle %d is not a multiple of 90", deg)
	}
	w, h := m.width, m.height
	switch (deg%360 + 360) % 360 {
	case 90:
		m.remap(h, w, func(x, y int) (int, int) { return y, h - 1 - x })
	case 180:
		m.remap(w, h, func(x, y int) (int, int) { return w - 1 - x, h - 1 - y })
	case 270:
		m.remap(h, w, func(x, y int) (int, int) { return w - 1 - y, x })
	}
	return nil
}

// FlipH mirrors the image left to right.
func (m *Image) FlipH() {
	w := m.width
	m.remap(w, m.height, func(x, y int) (int, int) { return w - 1 - x, y })
}

// FlipV mirrors the image top to bottom.
func (m *Image) FlipV() {
	h := m.height
	m.remap(m.width, h, func(x, y int) (int, int) { return x, h - 1 - y })
}

// Transpose mirrors the image across its main diagonal.
func (m *Image) Transpose() {
	m.remap(m.height, m.width, func(x, y int) (int, int) { return y, x })
}

// Orient applies an EXIF orientation (1..8) so the image displays upright.
func (m *Image) Orient(orientation int) error {
	switch orientation {
	case 1:
	case 2:
		m.FlipH()
	case 3:
		return m.Rotate(180)
	case 4:
		m.FlipV()
	case 5:
		m.Transpose()
	case 6:
		return m.Rotate(90)
	case 7:
		// Transverse: mirror across the anti-diagonal.
		w, h := m.width, m.height
		m.remap(h, w, func(x, y int) (int, int) { return w - 1 - y, h - 1 - x })
	case 8:
		return m.Rotate(270)
	default:
		return codecerr.Invalid("orient", "orientation %d outside 1..8", orientation)
	}
	return nil
}
