// Package dct holds the JPEG scan-order table and the 8x8 inverse discrete
// cosine transform.
package dct

import "math"

// BlockSize is the number of coefficients in an 8x8 block.
const BlockSize = 64

// ZigzagToNatural maps index i in zigzag scan order to its row-major position
// in the 8x8 block. It is a permutation of 0..63 and is never written.
var ZigzagToNatural = [BlockSize]int{
	0, 1, 8, 16, 9, 2, 3, 10,
	17, 24, 32, 25, 18, 11, 4, 5,
	12, 19, 26, 33, 40, 48, 41, 34,
	27, 20, 13, 6, 7, 14, 21, 28,
	35, 42, 49, 56, 57, 50, 43, 36,
	29, 22, 15, 23, 30, 37, 44, 51,
	58, 59, 52, 45, 38, 31, 39, 46,
	53, 60, 61, 54, 47, 55, 62, 63,
}

// cosTable[x*8+u] = α(u)/2 · cos((2x+1)uπ/16), with α(0)=1/√2 and α(u>0)=1.
// Filled once at init and read-only afterwards.
var cosTable [BlockSize]float64

func init() {
	for x := 0; x < 8; x++ {
		for u := 0; u < 8; u++ {
			a := 1.0
			if u == 0 {
				a = 1 / math.Sqrt2
			}
			cosTable[x*8+u] = a / 2 * math.Cos(float64(2*x+1)*float64(u)*math.Pi/16)
		}
	}
}

// Inverse transforms a block of dequantized coefficients in natural order
// into 8x8 samples, level-shifted by +128 and clamped to [0,255]. Sample
// (row r, column c) is written to dst[offset+r*stride+c].
//
// A block whose AC coefficients are all zero takes the closed form
// round(DC/8) + 128 for every sample.
func Inverse(coef *[BlockSize]int32, dst []byte, offset, stride int) {
	ac := int32(0)
	for _, c := range coef[1:] {
		ac |= c
	}
	if ac == 0 {
		v := clamp(math.Round(0.25*0.5*float64(coef[0])) + 128)
		for r := 0; r < 8; r++ {
			row := dst[offset+r*stride : offset+r*stride+8]
			for c := range row {
				row[c] = v
			}
		}
		return
	}

	// Rows first: tmp[r*8+x] = Σ_u α(u)/2 · F(r,u) · cos((2x+1)uπ/16).
	var tmp [BlockSize]float64
	for r := 0; r < 8; r++ {
		in := coef[r*8 : r*8+8]
		for x := 0; x < 8; x++ {
			basis := cosTable[x*8 : x*8+8]
			var s float64
			for u := 0; u < 8; u++ {
				if in[u] != 0 {
					s += basis[u] * float64(in[u])
				}
			}
			tmp[r*8+x] = s
		}
	}

	// Then columns.
	for c := 0; c < 8; c++ {
		for y := 0; y < 8; y++ {
			basis := cosTable[y*8 : y*8+8]
			var s float64
			for v := 0; v < 8; v++ {
				s += basis[v] * tmp[v*8+c]
			}
			dst[offset+y*stride+c] = clamp(math.Round(s) + 128)
		}
	}
}

func clamp(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
