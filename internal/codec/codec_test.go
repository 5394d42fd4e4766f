package codec

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	stdjpeg "image/jpeg"
	stdpng "image/png"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/ironsheep/rastercodec/internal/codecerr"
	"github.com/ironsheep/rastercodec/internal/imaging"
	"github.com/ironsheep/rastercodec/internal/jpeg"
)

// quadrants returns an opaque w x h image with red, green, blue and white
// quadrants.
func quadrants(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{255, 255, 255, 255}
			switch {
			case x < w/2 && y < h/2:
				c = color.NRGBA{255, 0, 0, 255}
			case y < h/2:
				c = color.NRGBA{0, 255, 0, 255}
			case x < w/2:
				c = color.NRGBA{0, 0, 255, 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func encodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := stdpng.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := stdjpeg.Encode(&buf, img, &stdjpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return buf.Bytes()
}

// withEXIF splices an APP1 segment carrying orientation o after SOI.
func withEXIF(data []byte, o byte) []byte {
	exif := []byte("Exif\x00\x00MM\x00\x2a\x00\x00\x00\x08" +
		"\x00\x01" +
		"\x01\x12\x00\x03\x00\x00\x00\x01\x00" + string([]byte{o}) + "\x00\x00" +
		"\x00\x00\x00\x00")
	n := len(exif) + 2
	seg := append([]byte{0xFF, 0xE1, byte(n >> 8), byte(n)}, exif...)
	out := append([]byte{}, data[:2]...)
	out = append(out, seg...)
	return append(out, data[2:]...)
}

func sameAs(t *testing.T, img *imaging.Image, want *image.NRGBA) {
	t.Helper()
	if img.Width() != want.Rect.Dx() || img.Height() != want.Rect.Dy() {
		t.Fatalf("dimensions: got %dx%d, want %dx%d", img.Width(), img.Height(), want.Rect.Dx(), want.Rect.Dy())
	}
	if !bytes.Equal(img.Pix(), want.Pix) {
		t.Error("pixels differ from the source image")
	}
}

func TestDetectMIME(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, MIMEJPEG},
		{"png", []byte("\x89PNG\r\n\x1a\n\x00"), MIMEPNG},
		{"gif87", []byte("GIF87a..."), MIMEGIF},
		{"gif89", []byte("GIF89a..."), MIMEGIF},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), MIMEWebP},
		{"riff but not webp", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), ""},
		{"bmp", []byte("BM\x00\x00"), MIMEBMP},
		{"tiff little endian", []byte("II*\x00\x08\x00"), MIMETIFF},
		{"tiff big endian", []byte("MM\x00*\x00\x08"), MIMETIFF},
		{"truncated jpeg magic", []byte{0xFF, 0xD8}, ""},
		{"empty", nil, ""},
		{"text", []byte("hello"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMIME(tt.data); got != tt.want {
				t.Errorf("DetectMIME = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMIMEFromPath(t *testing.T) {
	tests := map[string]string{
		"a.JPG":         MIMEJPEG,
		"dir/b.jpeg":    MIMEJPEG,
		"c.png":         MIMEPNG,
		"d.gif":         MIMEGIF,
		"e.webp":        MIMEWebP,
		"f.bmp":         MIMEBMP,
		"g.tif":         MIMETIFF,
		"h.tiff":        MIMETIFF,
		"noext":         "",
		"archive.zip":   "",
		"/tmp/x.y.jpeg": MIMEJPEG,
	}
	for path, want := range tests {
		if got := MIMEFromPath(path); got != want {
			t.Errorf("MIMEFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestDecode_PNG(t *testing.T) {
	src := quadrants(12, 8)
	src.SetNRGBA(1, 1, color.NRGBA{10, 20, 30, 40})
	data := encodePNG(t, src)

	for _, mime := range []string{"", MIMEPNG, "IMAGE/PNG; charset=binary", "image/x-png"} {
		img, err := Decode(data, mime)
		if err != nil {
			t.Fatalf("Decode(%q): %v", mime, err)
		}
		sameAs(t, img, src)
		if img.Metadata["format"] != "png" {
			t.Errorf("format metadata: got %q", img.Metadata["format"])
		}
	}
}

func TestDecode_JPEG(t *testing.T) {
	data := encodeJPEG(t, quadrants(32, 16))

	img, err := Decode(data, "image/jpg")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Width() != 32 || img.Height() != 16 {
		t.Fatalf("dimensions: got %dx%d, want 32x16", img.Width(), img.Height())
	}
	if img.Metadata["format"] != "jpeg" {
		t.Errorf("format metadata: got %q", img.Metadata["format"])
	}
	px, _ := img.At(4, 4)
	if px[0] < 200 || px[1] > 60 || px[2] > 60 || px[3] != 255 {
		t.Errorf("top-left pixel %v, want close to red", px)
	}

	bilinear, err := Decode(data, "", WithUpsample(jpeg.UpsampleBilinear))
	if err != nil {
		t.Fatalf("Decode bilinear: %v", err)
	}
	if bilinear.Width() != 32 {
		t.Error("upsample option changed dimensions")
	}
}

func TestDecode_LibraryFormats(t *testing.T) {
	src := quadrants(10, 6)

	var bmpBuf, tiffBuf, gifBuf bytes.Buffer
	if err := bmp.Encode(&bmpBuf, src); err != nil {
		t.Fatal(err)
	}
	if err := tiff.Encode(&tiffBuf, src, nil); err != nil {
		t.Fatal(err)
	}
	pal := color.Palette{
		color.NRGBA{255, 0, 0, 255}, color.NRGBA{0, 255, 0, 255},
		color.NRGBA{0, 0, 255, 255}, color.NRGBA{255, 255, 255, 255},
	}
	paletted := image.NewPaletted(src.Rect, pal)
	for y := 0; y < 6; y++ {
		for x := 0; x < 10; x++ {
			paletted.Set(x, y, src.At(x, y))
		}
	}
	if err := gif.Encode(&gifBuf, paletted, nil); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		data   []byte
		format string
	}{
		{"bmp", bmpBuf.Bytes(), "bmp"},
		{"tiff", tiffBuf.Bytes(), "tiff"},
		{"gif", gifBuf.Bytes(), "gif"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Decode(tt.data, "")
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			sameAs(t, img, src)
			if img.Metadata["format"] != tt.format {
				t.Errorf("format metadata: got %q, want %q", img.Metadata["format"], tt.format)
			}

			cfg, err := DecodeConfig(tt.data, "")
			if err != nil {
				t.Fatalf("DecodeConfig: %v", err)
			}
			if cfg.Width != 10 || cfg.Height != 6 {
				t.Errorf("DecodeConfig: got %dx%d, want 10x6", cfg.Width, cfg.Height)
			}
		})
	}

	img, err := Decode(gifBuf.Bytes(), MIMEGIF)
	if err != nil {
		t.Fatal(err)
	}
	if img.Metadata["frames"] != "1" {
		t.Errorf("frames metadata: got %q, want 1", img.Metadata["frames"])
	}
}

func TestDecode_GIFOffsetFrame(t *testing.T) {
	pal := color.Palette{color.NRGBA{0, 0, 0, 0}, color.NRGBA{255, 0, 0, 255}}
	frame := image.NewPaletted(image.Rect(10, 10, 20, 15), pal)
	for i := range frame.Pix {
		frame.Pix[i] = 1
	}
	var buf bytes.Buffer
	err := gif.EncodeAll(&buf, &gif.GIF{
		Image:  []*image.Paletted{frame},
		Delay:  []int{0},
		Config: image.Config{ColorModel: pal, Width: 40, Height: 30},
	})
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := DecodeConfig(buf.Bytes(), "")
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	img, err := Decode(buf.Bytes(), "")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Width() != cfg.Width || img.Height() != cfg.Height || cfg.Width != 40 || cfg.Height != 30 {
		t.Fatalf("DecodeConfig %dx%d, Decode %dx%d; want 40x30 for both", cfg.Width, cfg.Height, img.Width(), img.Height())
	}

	tests := []struct {
		name string
		x, y int
		want [4]byte
	}{
		{"inside frame", 12, 12, [4]byte{255, 0, 0, 255}},
		{"frame corner", 19, 14, [4]byte{255, 0, 0, 255}},
		{"screen origin", 0, 0, [4]byte{0, 0, 0, 0}},
		{"right of frame", 20, 12, [4]byte{0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := img.At(tt.x, tt.y)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("At(%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	png := encodePNG(t, quadrants(4, 4))
	tests := []struct {
		name string
		data []byte
		mime string
		want error
	}{
		{"unknown media type", png, "image/heic", codecerr.ErrUnsupported},
		{"unrecognized bytes", []byte("definitely not an image"), "", codecerr.ErrUnsupported},
		{"empty without type", nil, "", codecerr.ErrTruncated},
		{"empty png", nil, MIMEPNG, codecerr.ErrMalformed},
		{"png declared as jpeg", png, MIMEJPEG, codecerr.ErrMalformed},
		{"truncated png", png[:len(png)-20], "", codecerr.ErrTruncated},
		{"bmp garbage", []byte("BM\x01\x02\x03"), "", codecerr.ErrTruncated},
		{"webp garbage", []byte("RIFF\x04\x00\x00\x00WEBP"), "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Decode(tt.data, tt.mime)
			if err == nil {
				t.Fatal("Decode succeeded")
			}
			if img != nil {
				t.Error("Decode returned an image along with an error")
			}
			if codecerr.KindOf(err) == 0 {
				t.Errorf("error %v carries no kind", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecode_MaxPixels(t *testing.T) {
	src := quadrants(10, 10)
	var bmpBuf bytes.Buffer
	if err := bmp.Encode(&bmpBuf, src); err != nil {
		t.Fatal(err)
	}
	inputs := map[string][]byte{
		"png":  encodePNG(t, src),
		"jpeg": encodeJPEG(t, src),
		"bmp":  bmpBuf.Bytes(),
	}
	for name, data := range inputs {
		if _, err := Decode(data, "", WithMaxPixels(99)); !errors.Is(err, codecerr.ErrLimit) {
			t.Errorf("%s: got %v, want a resource limit error", name, err)
		}
		if _, err := Decode(data, "", WithMaxPixels(100)); err != nil {
			t.Errorf("%s at the ceiling: %v", name, err)
		}
	}
}

func TestDecode_MaxPixelsEnv(t *testing.T) {
	data := encodePNG(t, quadrants(10, 10))

	t.Setenv(MaxPixelsEnv, "50")
	if _, err := Decode(data, ""); !errors.Is(err, codecerr.ErrLimit) {
		t.Errorf("got %v, want a resource limit error", err)
	}
	if _, err := Decode(data, "", WithMaxPixels(1000)); err != nil {
		t.Errorf("explicit option should override the environment: %v", err)
	}

	t.Setenv(MaxPixelsEnv, "lots")
	if _, err := Decode(data, ""); err != nil {
		t.Errorf("invalid env value should be ignored: %v", err)
	}
}

func TestDecode_AutoOrient(t *testing.T) {
	data := withEXIF(encodeJPEG(t, quadrants(16, 8)), 6)

	img, err := Decode(data, "")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Width() != 16 || img.Height() != 8 || img.Metadata["orientation"] != "6" {
		t.Errorf("without auto-orient: %dx%d orientation %q", img.Width(), img.Height(), img.Metadata["orientation"])
	}

	img, err = Decode(data, "", WithAutoOrient(true))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Width() != 8 || img.Height() != 16 {
		t.Fatalf("auto-oriented: got %dx%d, want 8x16", img.Width(), img.Height())
	}
	if img.Metadata["orientation"] != "1" || img.Metadata["oriented_from"] != "6" {
		t.Errorf("orientation metadata not reset: %v", img.Metadata)
	}
	// Rotating clockwise moves the red top-left quadrant to the top-right.
	px, _ := img.At(6, 2)
	if px[0] < 200 || px[1] > 60 || px[2] > 60 {
		t.Errorf("top-right after orient: got %v, want close to red", px)
	}
}

func TestDecode_CRCCheck(t *testing.T) {
	data := encodePNG(t, quadrants(4, 4))
	data[len(data)-1] ^= 0xFF // IEND CRC

	if _, err := Decode(data, ""); !errors.Is(err, codecerr.ErrCorrupt) {
		t.Errorf("got %v, want a corrupt data error", err)
	}
	if _, err := Decode(data, "", WithCRCCheck(false)); err != nil {
		t.Errorf("with CRC checks off: %v", err)
	}
}

func TestDecodeConfig(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		mime string
	}{
		{"png", encodePNG(t, quadrants(7, 5)), MIMEPNG},
		{"jpeg", encodeJPEG(t, quadrants(7, 5)), MIMEJPEG},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := DecodeConfig(tt.data, "")
			if err != nil {
				t.Fatalf("DecodeConfig: %v", err)
			}
			if cfg != (Config{Width: 7, Height: 5, Format: tt.mime}) {
				t.Errorf("got %+v", cfg)
			}
		})
	}

	if _, err := DecodeConfig([]byte("nope"), ""); !errors.Is(err, codecerr.ErrUnsupported) {
		t.Errorf("got %v, want an unsupported error", err)
	}
}

func TestEncode(t *testing.T) {
	src := quadrants(9, 9)
	img, err := imaging.FromImage(src)
	if err != nil {
		t.Fatal(err)
	}

	for _, mime := range []string{MIMEPNG, MIMEBMP, MIMETIFF} {
		t.Run(mime, func(t *testing.T) {
			data, err := Encode(img, mime, 0)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if got := DetectMIME(data); got != mime {
				t.Errorf("output sniffs as %q", got)
			}
			back, err := Decode(data, mime)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			sameAs(t, back, src)
		})
	}

	for _, mime := range []string{MIMEJPEG, MIMEGIF} {
		data, err := Encode(img, mime, 80)
		if err != nil {
			t.Fatalf("Encode %s: %v", mime, err)
		}
		if got := DetectMIME(data); got != mime {
			t.Errorf("%s output sniffs as %q", mime, got)
		}
	}

	if _, err := Encode(img, MIMEWebP, 0); !errors.Is(err, codecerr.ErrUnsupported) {
		t.Errorf("webp: got %v, want an unsupported error", err)
	}
	if _, err := Encode(img, MIMEJPEG, 500); !errors.Is(err, codecerr.ErrInvalidArg) {
		t.Errorf("quality 500: got %v, want an invalid argument error", err)
	}
}

func BenchmarkDecodePNG(b *testing.B) {
	data := encodePNG(b, quadrants(256, 256))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Decode(data, ""); err != nil {
			b.Fatal(err)
		}
	}
}
