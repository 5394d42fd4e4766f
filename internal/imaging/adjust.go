package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/blur"

	"github.com/ironsheep/rastercodec/internal/codecerr"
)

// maxBlurRadius bounds GaussianBlur so the kernel stays a small fraction of
// any reasonable image.
const maxBlurRadius = 100

// mapRGB rewrites the color channels of every pixel through fn, leaving
// alpha alone. The result is built in a fresh buffer.
func (m *Image) mapRGB(fn func(r, g, b byte) (byte, byte, byte)) {
	pix := make([]byte, len(m.pix))
	for i := 0; i < len(m.pix); i += Channels {
		pix[i], pix[i+1], pix[i+2] = fn(m.pix[i], m.pix[i+1], m.pix[i+2])
		pix[i+3] = m.pix[i+3]
	}
	m.replace(pix, m.width, m.height)
}

// lut applies the same per-channel lookup table to R, G and B.
func (m *Image) lut(table *[256]byte) {
	m.mapRGB(func(r, g, b byte) (byte, byte, byte) {
		return table[r], table[g], table[b]
	})
}

// Brightness adds delta, in -255..255, to every color channel.
func (m *Image) Brightness(delta int) error {
	if delta < -255 || delta > 255 {
		return codecerr.Invalid("brightness", "delta %d outside -255..255", delta)
	}
	var t [256]byte
	for v := range t {
		t[v] = clampByte(float64(v + delta))
	}
	m.lut(&t)
	return nil
}

// Contrast scales every color channel around 128. pct runs from -100 (flat
// gray) to 100 (maximum contrast).
func (m *Image) Contrast(pct int) error {
	if pct < -100 || pct > 100 {
		return codecerr.Invalid("contrast", "percentage %d outside -100..100", pct)
	}
	c := float64(pct) * 255 / 100
	factor := 259 * (c + 255) / (255 * (259 - c))
	var t [256]byte
	for v := range t {
		t[v] = clampByte(factor*(float64(v)-128) + 128)
	}
	m.lut(&t)
	return nil
}

// Grayscale replaces each pixel with its BT.601 luma.
func (m *Image) Grayscale() {
	m.mapRGB(func(r, g, b byte) (byte, byte, byte) {
		y := clampByte(0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b))
		return y, y, y
	})
}

// Invert replaces every color channel v with 255-v.
func (m *Image) Invert() {
	m.mapRGB(func(r, g, b byte) (byte, byte, byte) {
		return 255 - r, 255 - g, 255 - b
	})
}

// Sepia applies the standard sepia tone matrix.
func (m *Image) Sepia() {
	m.mapRGB(func(r, g, b byte) (byte, byte, byte) {
		rf, gf, bf := float64(r), float64(g), float64(b)
		return clampByte(0.393*rf + 0.769*gf + 0.189*bf),
			clampByte(0.349*rf + 0.686*gf + 0.168*bf),
			clampByte(0.272*rf + 0.534*gf + 0.131*bf)
	})
}

// bildView hands the buffer to bild. bild reads *image.RGBA samples as they
// are, so straight alpha passes through unchanged.
func (m *Image) bildView() *image.RGBA {
	return &image.RGBA{Pix: m.pix, Stride: m.width * Channels, Rect: image.Rect(0, 0, m.width, m.height)}
}

func (m *Image) fromBild(out *image.RGBA) {
	m.replace(out.Pix, m.width, m.height)
}

// Gamma applies gamma correction; values above 1 brighten midtones.
func (m *Image) Gamma(gamma float64) error {
	if !(gamma > 0) || gamma > 10 {
		return codecerr.Invalid("gamma", "gamma %g outside (0, 10]", gamma)
	}
	m.fromBild(adjust.Gamma(m.bildView(), gamma))
	return nil
}

// Saturation changes color saturation by pct percent, -100 (gray) and up.
func (m *Image) Saturation(pct int) error {
	if pct < -100 || pct > 500 {
		return codecerr.Invalid("saturation", "percentage %d outside -100..500", pct)
	}
	m.fromBild(adjust.Saturation(m.bildView(), float64(pct)/100))
	return nil
}

// Hue rotates every pixel's hue by deg degrees. Negative shifts are
// normalised to 0..359 before reaching bild.
func (m *Image) Hue(deg int) error {
	if deg < -360 || deg > 360 {
		return codecerr.Invalid("hue", "shift %d outside -360..360", deg)
	}
	m.fromBild(adjust.Hue(m.bildView(), ((deg%360)+360)%360))
	return nil
}

// GaussianBlur blurs with a Gaussian kernel of the given radius.
func (m *Image) GaussianBlur(radius float64) error {
	if !(radius > 0) || radius > maxBlurRadius {
		return codecerr.Invalid("gaussian blur", "radius %g outside (0, %d]", radius, maxBlurRadius)
	}
	m.fromBild(blur.Gaussian(m.bildView(), radius))
	return nil
}
