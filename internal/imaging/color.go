package imaging

import (
	"fmt"
	"sort"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/rastercodec/internal/codecerr"
)

// RGBColor represents an RGB color with 8-bit components.
type RGBColor struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// RGBAColor represents an RGBA color with 8-bit components including alpha.
//
// The alpha component represents opacity:
//   - 0 = fully transparent
//   - 255 = fully opaque
type RGBAColor struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

// HSLColor represents a color in HSL (Hue, Saturation, Lightness) color space.
type HSLColor struct {
	H int `json:"h"` // Hue: 0-360 degrees (0=red, 120=green, 240=blue)
	S int `json:"s"` // Saturation: 0-100 percent (0=gray, 100=vivid)
	L int `json:"l"` // Lightness: 0-100 percent (0=black, 50=normal, 100=white)
}

// ColorResult contains a color value in multiple representations.
type ColorResult struct {
	Hex  string    `json:"hex"`  // Hex format "#RRGGBB" (no alpha)
	RGB  RGBColor  `json:"rgb"`  // RGB components
	RGBA RGBAColor `json:"rgba"` // RGBA components with alpha
	HSL  HSLColor  `json:"hsl"`  // HSL representation
}

func newColorResult(px [4]byte) *ColorResult {
	r, g, b, a := px[0], px[1], px[2], px[3]
	return &ColorResult{
		Hex:  hexColor(r, g, b),
		RGB:  RGBColor{R: r, G: g, B: b},
		RGBA: RGBAColor{R: r, G: g, B: b, A: a},
		HSL:  rgbToHSL(r, g, b),
	}
}

// SampleColor returns the color at (x, y).
//
// Coordinates are 0-based with origin at top-left. The Hex form excludes
// alpha; use RGBA.A for transparency.
func (m *Image) SampleColor(x, y int) (*ColorResult, error) {
	px, err := m.At(x, y)
	if err != nil {
		return nil, err
	}
	return newColorResult(px), nil
}

// LabeledPoint is a pixel coordinate with an optional descriptive label.
type LabeledPoint struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Label string `json:"label,omitempty"`
}

// LabeledColorResult combines a color sample with its location and optional label.
type LabeledColorResult struct {
	Label string      `json:"label,omitempty"`
	X     int         `json:"x"`
	Y     int         `json:"y"`
	Color ColorResult `json:"color"`
}

// MultiColorResult contains color samples from multiple points, in input order.
type MultiColorResult struct {
	Samples []LabeledColorResult `json:"samples"`
}

// SampleColorsMulti samples every point in order. If any point is outside
// the image no partial result is returned.
func (m *Image) SampleColorsMulti(points []LabeledPoint) (*MultiColorResult, error) {
	results := make([]LabeledColorResult, 0, len(points))
	for _, p := range points {
		c, err := m.SampleColor(p.X, p.Y)
		if err != nil {
			return nil, fmt.Errorf("failed to sample point (%d,%d): %w", p.X, p.Y, err)
		}
		results = append(results, LabeledColorResult{Label: p.Label, X: p.X, Y: p.Y, Color: *c})
	}
	return &MultiColorResult{Samples: results}, nil
}

// Region is a rectangle within an image: (X1, Y1) inclusive, (X2, Y2)
// exclusive.
type Region struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// ColorFrequency is a quantized color and the share of pixels it covers.
type ColorFrequency struct {
	Hex        string   `json:"hex"`
	Percentage float64  `json:"percentage"` // 0-100
	RGB        RGBColor `json:"rgb"`
	HSL        HSLColor `json:"hsl"`
}

// DominantColorsResult lists colors by descending frequency.
type DominantColorsResult struct {
	Colors []ColorFrequency `json:"colors"`
}

// DominantColors returns up to count of the most common colors in region,
// or in the whole image when region is nil.
//
// Each channel is quantized to a multiple of 16 before counting, so colors
// within the same 16-wide bucket per channel are grouped. Ties are ordered
// by hex value.
func (m *Image) DominantColors(count int, region *Region) (*DominantColorsResult, error) {
	if count <= 0 {
		return nil, codecerr.Invalid("dominant colors", "count %d must be positive", count)
	}
	r := Region{0, 0, m.width, m.height}
	if region != nil {
		r = *region
		if r.X1 < 0 || r.Y1 < 0 || r.X2 > m.width || r.Y2 > m.height || r.X1 >= r.X2 || r.Y1 >= r.Y2 {
			return nil, codecerr.Invalid("dominant colors", "region (%d,%d)-(%d,%d) outside image bounds %dx%d",
				r.X1, r.Y1, r.X2, r.Y2, m.width, m.height)
		}
	}

	counts := make(map[uint32]int)
	total := 0
	for y := r.Y1; y < r.Y2; y++ {
		for x := r.X1; x < r.X2; x++ {
			o := m.offset(x, y)
			key := uint32(m.pix[o]&0xF0)<<16 | uint32(m.pix[o+1]&0xF0)<<8 | uint32(m.pix[o+2]&0xF0)
			counts[key]++
			total++
		}
	}

	colors := make([]ColorFrequency, 0, len(counts))
	for key, n := range counts {
		red, green, blue := uint8(key>>16), uint8(key>>8), uint8(key)
		colors = append(colors, ColorFrequency{
			Hex:        hexColor(red, green, blue),
			Percentage: float64(n) / float64(total) * 100,
			RGB:        RGBColor{R: red, G: green, B: blue},
			HSL:        rgbToHSL(red, green, blue),
		})
	}
	sort.Slice(colors, func(i, j int) bool {
		if colors[i].Percentage != colors[j].Percentage {
			return colors[i].Percentage > colors[j].Percentage
		}
		return colors[i].Hex < colors[j].Hex
	})
	if len(colors) > count {
		colors = colors[:count]
	}
	return &DominantColorsResult{Colors: colors}, nil
}

func hexColor(r, g, b uint8) string {
	return fmt.Sprintf("#%02X%02X%02X", r, g, b)
}

// rgbToHSL converts 8-bit RGB to whole-number HSL: hue in degrees,
// saturation and lightness in percent, each truncated.
func rgbToHSL(r, g, b uint8) HSLColor {
	h, s, l := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}.Hsl()
	return HSLColor{H: int(h), S: int(s * 100), L: int(l * 100)}
}
