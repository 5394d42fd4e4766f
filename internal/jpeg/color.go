package jpeg

import (
	"math"
	"strconv"

	"github.com/ironsheep/rastercodec/internal/codecerr"
)

// assemble upsamples the component planes and converts them to RGBA.
func (d *decoder) assemble() (*Image, error) {
	if d.scans == 0 {
		return nil, d.errorf(codecerr.TruncatedStream, d.r.Pos(), "", "no scan data")
	}
	for _, c := range d.comps {
		if !c.coded {
			return nil, d.errorf(codecerr.CorruptData, d.r.Pos(), "", "component %d has no scan data", c.id)
		}
	}

	w, h := d.width, d.height
	pix := make([]byte, w*h*4)
	switch len(d.comps) {
	case 1:
		c := &d.comps[0]
		for y := 0; y < h; y++ {
			row := c.plane[y*c.stride : y*c.stride+w]
			out := pix[y*w*4 : (y+1)*w*4]
			for x, v := range row {
				out[4*x], out[4*x+1], out[4*x+2], out[4*x+3] = v, v, v, 255
			}
		}
		d.meta["color_space"] = "gray"
	case 3:
		p0, s0 := d.fullPlane(&d.comps[0])
		p1, s1 := d.fullPlane(&d.comps[1])
		p2, s2 := d.fullPlane(&d.comps[2])
		rgb := d.isRGB()
		for y := 0; y < h; y++ {
			out := pix[y*w*4 : (y+1)*w*4]
			r0, r1, r2 := p0[y*s0:], p1[y*s1:], p2[y*s2:]
			for x := 0; x < w; x++ {
				o := out[4*x : 4*x+4 : 4*x+4]
				if rgb {
					o[0], o[1], o[2] = r0[x], r1[x], r2[x]
				} else {
					o[0], o[1], o[2] = ycbcrToRGB(r0[x], r1[x], r2[x])
				}
				o[3] = 255
			}
		}
		if rgb {
			d.meta["color_space"] = "rgb"
		} else {
			d.meta["color_space"] = "ycbcr"
		}
	}
	if d.restartInterval > 0 {
		d.meta["restart_interval"] = strconv.Itoa(d.restartInterval)
	}
	if d.scans > 1 {
		d.meta["scans"] = strconv.Itoa(d.scans)
	}
	return &Image{Pix: pix, Width: w, Height: h, Metadata: d.meta}, nil
}

// isRGB reports whether a 3-component frame stores RGB rather than YCbCr:
// an Adobe APP14 segment with transform 0, or component ids 'R','G','B'.
func (d *decoder) isRGB() bool {
	if d.adobe {
		return d.adobeTransform == 0
	}
	return d.comps[0].id == 'R' && d.comps[1].id == 'G' && d.comps[2].id == 'B'
}

// fullPlane returns the component's samples at image resolution together
// with the row stride. Full-resolution components are returned as is.
func (d *decoder) fullPlane(c *component) ([]byte, int) {
	if c.h == d.hMax && c.v == d.vMax {
		return c.plane, c.stride
	}
	if d.opts.Upsample == UpsampleBilinear {
		return d.upsampleBilinear(c), d.width
	}
	return d.upsampleNearest(c), d.width
}

func (d *decoder) upsampleNearest(c *component) []byte {
	w, h := d.width, d.height
	out := make([]byte, w*h)
	xs := make([]int, w)
	for x := range xs {
		xs[x] = x * c.h / d.hMax
	}
	for y := 0; y < h; y++ {
		src := c.plane[(y*c.v/d.vMax)*c.stride:]
		row := out[y*w : (y+1)*w]
		for x := range row {
			row[x] = src[xs[x]]
		}
	}
	return out
}

// tap is one axis of a bilinear interpolation: the two neighbouring sample
// indices and the weight of the second.
type tap struct {
	i0, i1 int
	f      float64
}

// taps places output sample i of n at source position (i+0.5)*num/den-0.5,
// sample centres aligned, clamped to the valid source range [0, size).
func taps(n, num, den, size int) []tap {
	ts := make([]tap, n)
	for i := range ts {
		s := (float64(i)+0.5)*float64(num)/float64(den) - 0.5
		if s < 0 {
			s = 0
		}
		i0 := int(s)
		if i0 > size-1 {
			i0 = size - 1
		}
		i1 := i0 + 1
		if i1 > size-1 {
			i1 = size - 1
		}
		ts[i] = tap{i0: i0, i1: i1, f: s - float64(i0)}
		if i0 == i1 {
			ts[i].f = 0
		}
	}
	return ts
}

func (d *decoder) upsampleBilinear(c *component) []byte {
	w, h := d.width, d.height
	cw := ceilDiv(w*c.h, d.hMax)
	ch := ceilDiv(h*c.v, d.vMax)
	xt := taps(w, c.h, d.hMax, cw)
	yt := taps(h, c.v, d.vMax, ch)

	out := make([]byte, w*h)
	for y, ty := range yt {
		top := c.plane[ty.i0*c.stride:]
		bot := c.plane[ty.i1*c.stride:]
		row := out[y*w : (y+1)*w]
		for x, tx := range xt {
			a := float64(top[tx.i0]) + tx.f*(float64(top[tx.i1])-float64(top[tx.i0]))
			b := float64(bot[tx.i0]) + tx.f*(float64(bot[tx.i1])-float64(bot[tx.i0]))
			row[x] = clampRound(a + ty.f*(b-a))
		}
	}
	return out
}

// ycbcrToRGB applies the JFIF conversion:
//
//	R = Y + 1.402(Cr-128)
//	G = Y - 0.344136(Cb-128) - 0.714136(Cr-128)
//	B = Y + 1.772(Cb-128)
func ycbcrToRGB(y, cb, cr byte) (byte, byte, byte) {
	yf := float64(y)
	cbf := float64(cb) - 128
	crf := float64(cr) - 128
	return clampRound(yf + 1.402*crf),
		clampRound(yf - 0.344136*cbf - 0.714136*crf),
		clampRound(yf + 1.772*cbf)
}

func clampRound(v float64) byte {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
