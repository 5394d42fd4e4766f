package png

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	log "github.com/sirupsen/logrus"

	"github.com/ironsheep/rastercodec/internal/codecerr"
)

// Filter types.
const (
	ftNone    = 0
	ftSub     = 1
	ftUp      = 2
	ftAverage = 3
	ftPaeth   = 4
)

// interlaceScan describes one Adam7 pass.
type interlaceScan struct {
	xFactor, yFactor, xOffset, yOffset int
}

var adam7 = [7]interlaceScan{
	{8, 8, 0, 0},
	{8, 8, 4, 0},
	{4, 8, 0, 4},
	{4, 4, 2, 0},
	{2, 4, 0, 2},
	{2, 2, 1, 0},
	{1, 2, 0, 1},
}

// pass is a sub-image of the full frame: a single pass for non-interlaced
// images, up to seven for Adam7.
type pass struct {
	scan          interlaceScan
	width, height int
}

func (d *decoder) passes() []pass {
	if d.interlace == 0 {
		return []pass{{interlaceScan{1, 1, 0, 0}, d.width, d.height}}
	}
	var ps []pass
	for _, s := range adam7 {
		w := (d.width - s.xOffset + s.xFactor - 1) / s.xFactor
		h := (d.height - s.yOffset + s.yFactor - 1) / s.yFactor
		if w <= 0 || h <= 0 {
			// Empty passes contribute no bytes, not even filter bytes.
			continue
		}
		ps = append(ps, pass{s, w, h})
	}
	return ps
}

// bitsPerPixel returns the packed sample width of one pixel.
func (d *decoder) bitsPerPixel() int {
	channels := map[int]int{ctGray: 1, ctTrueColor: 3, ctPaletted: 1, ctGrayAlpha: 2, ctTrueAlpha: 4}[d.colorType]
	return channels * d.depth
}

func (d *decoder) rowBytes(width int) int {
	return (width*d.bitsPerPixel() + 7) / 8
}

// decodePixels inflates the IDAT stream, reverses the row filters and
// expands every pass into the RGBA output.
func (d *decoder) decodePixels() ([]byte, error) {
	ps := d.passes()
	want := 0
	for _, p := range ps {
		want += p.height * (1 + d.rowBytes(p.width))
	}
	log.WithFields(log.Fields{
		"width": d.width, "height": d.height, "depth": d.depth,
		"color_type": d.colorType, "passes": len(ps), "idat_bytes": d.idatSize,
	}).Debug("png: decoding pixels")

	raw, err := d.inflate(want)
	if err != nil {
		return nil, err
	}

	pix := make([]byte, 4*d.width*d.height)
	bpp := (d.bitsPerPixel() + 7) / 8
	off := 0
	for pi, p := range ps {
		n := d.rowBytes(p.width)
		prev := make([]byte, n)
		rgba := make([]byte, 4*p.width)
		for y := 0; y < p.height; y++ {
			ft := raw[off]
			cur := raw[off+1 : off+1+n]
			off += 1 + n
			err := unfilter(ft, cur, prev, bpp)
			if err == nil {
				err = d.expand(rgba, cur, p.width)
			}
			if err != nil {
				where := fmt.Sprintf("row %d", y)
				if d.interlace == 1 {
					where = fmt.Sprintf("pass %d row %d", pi+1, y)
				}
				return nil, codecerr.Wrap(codecerr.CorruptData, formatName, codecerr.NoOffset, where, err)
			}
			oy := p.scan.yOffset + y*p.scan.yFactor
			if p.scan.xFactor == 1 {
				copy(pix[4*oy*d.width:], rgba)
			} else {
				for x := 0; x < p.width; x++ {
					ox := p.scan.xOffset + x*p.scan.xFactor
					copy(pix[4*(oy*d.width+ox):4*(oy*d.width+ox)+4], rgba[4*x:4*x+4])
				}
			}
			prev = cur
		}
	}
	return pix, nil
}

// inflate decompresses exactly want bytes from the concatenated IDAT data.
func (d *decoder) inflate(want int) ([]byte, error) {
	zr, err := zlib.NewReader(io.MultiReader(d.idat...))
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, codecerr.Wrap(codecerr.TruncatedStream, formatName, codecerr.NoOffset, "IDAT", err)
		}
		return nil, codecerr.Wrap(codecerr.CorruptData, formatName, codecerr.NoOffset, "IDAT", err)
	}
	defer zr.Close()

	raw := make([]byte, want)
	n, err := io.ReadFull(zr, raw)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, codecerr.New(codecerr.TruncatedStream, formatName, codecerr.NoOffset, "IDAT",
				"image data inflates to %d bytes, want %d", n, want)
		}
		return nil, codecerr.Wrap(codecerr.CorruptData, formatName, codecerr.NoOffset, "IDAT", err)
	}
	if !d.opts.SkipCRC {
		// Reading to the end verifies the Adler-32 trailer.
		extra, err := io.Copy(io.Discard, zr)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, codecerr.Wrap(codecerr.CorruptData, formatName, codecerr.NoOffset, "IDAT", err)
		}
		if extra > 0 {
			log.WithField("bytes", extra).Debug("png: extra inflated data after image rows")
		}
	}
	return raw, nil
}

// unfilter reverses the row filter in place. prev is the reconstructed
// previous row of the same pass, all zeros for the first row.
func unfilter(ft byte, cur, prev []byte, bpp int) error {
	switch ft {
	case ftNone:
	case ftSub:
		for i := bpp; i < len(cur); i++ {
			cur[i] += cur[i-bpp]
		}
	case ftUp:
		for i, p := range prev {
			cur[i] += p
		}
	case ftAverage:
		for i := 0; i < bpp && i < len(cur); i++ {
			cur[i] += prev[i] / 2
		}
		for i := bpp; i < len(cur); i++ {
			cur[i] += uint8((int(cur[i-bpp]) + int(prev[i])) / 2)
		}
	case ftPaeth:
		for i := 0; i < bpp && i < len(cur); i++ {
			cur[i] += prev[i]
		}
		for i := bpp; i < len(cur); i++ {
			cur[i] += paeth(cur[i-bpp], prev[i], prev[i-bpp])
		}
	default:
		return fmt.Errorf("unknown filter type %d", ft)
	}
	return nil
}

// paeth picks whichever of a (left), b (up) or c (upper left) is closest to
// a + b - c, preferring a, then b.
func paeth(a, b, c uint8) uint8 {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	} else if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// expand converts one unfiltered row of width pixels to RGBA.
func (d *decoder) expand(dst, src []byte, width int) error {
	switch d.cb {
	case cbG1, cbG2, cbG4, cbG8:
		mask := 1<<uint(d.depth) - 1
		for x := 0; x < width; x++ {
			v := d.sample(src, x)
			g := uint8(v * 255 / mask)
			a := uint8(0xff)
			if d.hasTRNS && uint16(v) == d.trns[0] {
				a = 0
			}
			dst[4*x], dst[4*x+1], dst[4*x+2], dst[4*x+3] = g, g, g, a
		}
	case cbG16:
		for x := 0; x < width; x++ {
			v := uint16(src[2*x])<<8 | uint16(src[2*x+1])
			a := uint8(0xff)
			if d.hasTRNS && v == d.trns[0] {
				a = 0
			}
			dst[4*x], dst[4*x+1], dst[4*x+2], dst[4*x+3] = src[2*x], src[2*x], src[2*x], a
		}
	case cbGA8:
		for x := 0; x < width; x++ {
			g := src[2*x]
			dst[4*x], dst[4*x+1], dst[4*x+2], dst[4*x+3] = g, g, g, src[2*x+1]
		}
	case cbGA16:
		for x := 0; x < width; x++ {
			g := src[4*x]
			dst[4*x], dst[4*x+1], dst[4*x+2], dst[4*x+3] = g, g, g, src[4*x+2]
		}
	case cbTC8:
		for x := 0; x < width; x++ {
			r, g, b := src[3*x], src[3*x+1], src[3*x+2]
			a := uint8(0xff)
			if d.hasTRNS && uint16(r) == d.trns[0] && uint16(g) == d.trns[1] && uint16(b) == d.trns[2] {
				a = 0
			}
			dst[4*x], dst[4*x+1], dst[4*x+2], dst[4*x+3] = r, g, b, a
		}
	case cbTC16:
		for x := 0; x < width; x++ {
			s := src[6*x : 6*x+6]
			a := uint8(0xff)
			if d.hasTRNS &&
				uint16(s[0])<<8|uint16(s[1]) == d.trns[0] &&
				uint16(s[2])<<8|uint16(s[3]) == d.trns[1] &&
				uint16(s[4])<<8|uint16(s[5]) == d.trns[2] {
				a = 0
			}
			dst[4*x], dst[4*x+1], dst[4*x+2], dst[4*x+3] = s[0], s[2], s[4], a
		}
	case cbTCA8:
		copy(dst, src[:4*width])
	case cbTCA16:
		for x := 0; x < width; x++ {
			s := src[8*x : 8*x+8]
			dst[4*x], dst[4*x+1], dst[4*x+2], dst[4*x+3] = s[0], s[2], s[4], s[6]
		}
	case cbP1, cbP2, cbP4, cbP8:
		entries := len(d.palette) / 4
		for x := 0; x < width; x++ {
			i := d.sample(src, x)
			if i >= entries {
				return fmt.Errorf("palette index %d out of range (%d entries)", i, entries)
			}
			copy(dst[4*x:4*x+4], d.palette[4*i:4*i+4])
		}
	}
	return nil
}

// sample extracts the x-th packed sample of a row with bit depth at most 8.
func (d *decoder) sample(src []byte, x int) int {
	if d.depth == 8 {
		return int(src[x])
	}
	bit := x * d.depth
	shift := uint(8 - d.depth - bit%8)
	return int(src[bit/8]>>shift) & (1<<uint(d.depth) - 1)
}
