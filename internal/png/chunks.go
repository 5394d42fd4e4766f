package png

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"strconv"

	"github.com/klauspost/compress/zlib"
	log "github.com/sirupsen/logrus"

	"github.com/ironsheep/rastercodec/internal/bitio"
	"github.com/ironsheep/rastercodec/internal/codecerr"
)

const pngHeader = "\x89PNG\r\n\x1a\n"

// Color types as stored in IHDR.
const (
	ctGray      = 0
	ctTrueColor = 2
	ctPaletted  = 3
	ctGrayAlpha = 4
	ctTrueAlpha = 6
)

// Color type and bit depth combinations.
const (
	cbInvalid = iota
	cbG1
	cbG2
	cbG4
	cbG8
	cbGA8
	cbTC8
	cbP1
	cbP2
	cbP4
	cbP8
	cbTCA8
	cbG16
	cbGA16
	cbTC16
	cbTCA16
)

// Decoding stage. Chunks must appear in an order consistent with these.
const (
	dsStart = iota
	dsSeenIHDR
	dsSeenPLTE
	dsSeenIDAT
	dsSeenIEND
)

// maxChunkLength is the largest length the format allows.
const maxChunkLength = 0x7fffffff

var colorTypeNames = map[int]string{
	ctGray:      "gray",
	ctTrueColor: "rgb",
	ctPaletted:  "indexed",
	ctGrayAlpha: "gray_alpha",
	ctTrueAlpha: "rgba",
}

type decoder struct {
	r          *bitio.Reader
	opts       Options
	configOnly bool

	stage    int
	lastType string

	width, height int
	depth         int
	colorType     int
	cb            int
	interlace     int

	palette []byte // RGBA, 4 bytes per entry
	// Transparent sample value for gray and truecolor images, at full depth.
	trns     [3]uint16
	hasTRNS  bool
	idat     []io.Reader
	idatSize int

	meta map[string]string
}

func newDecoder(data []byte, opts Options) *decoder {
	return &decoder{
		r:    bitio.NewReader(data),
		opts: opts,
		meta: map[string]string{"format": formatName},
	}
}

func (d *decoder) errorf(kind codecerr.Kind, offset int, where, msg string, args ...interface{}) error {
	return codecerr.New(kind, formatName, offset, where, msg, args...)
}

// readChunks verifies the signature and walks the chunk stream through IEND,
// or through IHDR when configOnly is set.
func (d *decoder) readChunks() error {
	sig, err := d.r.Bytes(len(pngHeader))
	if err != nil || string(sig) != pngHeader {
		return d.errorf(codecerr.MalformedHeader, 0, "", "not a PNG stream: bad signature")
	}
	for d.stage != dsSeenIEND {
		if d.configOnly && d.stage >= dsSeenIHDR {
			return nil
		}
		if err := d.readChunk(); err != nil {
			return err
		}
	}
	if d.r.Remaining() > 0 {
		log.WithField("bytes", d.r.Remaining()).Debug("png: trailing data after IEND")
	}
	return nil
}

func (d *decoder) readChunk() error {
	at := d.r.Pos()
	if d.r.Remaining() == 0 {
		where := "IEND"
		if d.stage == dsStart {
			where = "IHDR"
		}
		return d.errorf(codecerr.TruncatedStream, at, where, "chunk stream ended before %s", where)
	}
	length, err := d.r.U32()
	if err != nil {
		return codecerr.Wrap(codecerr.TruncatedStream, formatName, at, "chunk header", err)
	}
	typ, err := d.r.Bytes(4)
	if err != nil {
		return codecerr.Wrap(codecerr.TruncatedStream, formatName, at, "chunk header", err)
	}
	name := string(typ)
	if !validChunkType(typ) {
		return d.errorf(codecerr.MalformedHeader, at, fmt.Sprintf("chunk %q", name), "invalid chunk type")
	}
	if length > maxChunkLength {
		return d.errorf(codecerr.MalformedHeader, at, name, "chunk length %d exceeds 2^31-1", length)
	}
	data, err := d.r.Bytes(int(length))
	if err != nil {
		return codecerr.Wrap(codecerr.TruncatedStream, formatName, at, name, err)
	}
	sum, err := d.r.U32()
	if err != nil {
		return codecerr.Wrap(codecerr.TruncatedStream, formatName, at, name, err)
	}
	if !d.opts.SkipCRC {
		if err := verifyChecksum(typ, data, sum); err != nil {
			return codecerr.Wrap(codecerr.CorruptData, formatName, at, name, err)
		}
	}

	if d.stage == dsStart && name != "IHDR" {
		return d.errorf(codecerr.MalformedHeader, at, name, "first chunk is %s, want IHDR", name)
	}
	log.WithFields(log.Fields{"chunk": name, "offset": at, "length": length}).Debug("png: chunk")

	defer func() { d.lastType = name }()
	switch name {
	case "IHDR":
		return d.parseIHDR(at, data)
	case "PLTE":
		return d.parsePLTE(at, data)
	case "tRNS":
		return d.parseTRNS(at, data)
	case "IDAT":
		return d.parseIDAT(at, data)
	case "IEND":
		return d.parseIEND(at, data)
	case "gAMA":
		d.parseGAMA(data)
	case "sRGB":
		if len(data) == 1 {
			d.meta["srgb_intent"] = strconv.Itoa(int(data[0]))
		}
	case "pHYs":
		d.parsePHYS(data)
	case "tEXt", "zTXt", "iTXt":
		if err := d.parseText(name, data); err != nil {
			// Text is informational; a broken text chunk does not fail the image.
			log.WithFields(log.Fields{"chunk": name, "offset": at}).WithError(err).Debug("png: skipping text chunk")
		}
	default:
		if isCritical(typ) {
			return d.errorf(codecerr.UnsupportedFeature, at, name, "unknown critical chunk")
		}
	}
	return nil
}

// validChunkType reports whether all four bytes are ASCII letters.
func validChunkType(typ []byte) bool {
	for _, c := range typ {
		if !('A' <= c && c <= 'Z' || 'a' <= c && c <= 'z') {
			return false
		}
	}
	return true
}

// isCritical reports whether the ancillary bit (bit 5 of the first byte) is clear.
func isCritical(typ []byte) bool {
	return typ[0]&0x20 == 0
}

func verifyChecksum(typ, data []byte, want uint32) error {
	crc := crc32.NewIEEE()
	crc.Write(typ)
	crc.Write(data)
	if got := crc.Sum32(); got != want {
		return fmt.Errorf("CRC mismatch: computed %08x, stored %08x", got, want)
	}
	return nil
}

func (d *decoder) parseIHDR(at int, data []byte) error {
	if d.stage != dsStart {
		return d.errorf(codecerr.MalformedHeader, at, "IHDR", "duplicate header chunk")
	}
	if len(data) != 13 {
		return d.errorf(codecerr.MalformedHeader, at, "IHDR", "length %d, want 13", len(data))
	}
	w := int64(uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3]))
	h := int64(uint32(data[4])<<24 | uint32(data[5])<<16 | uint32(data[6])<<8 | uint32(data[7]))
	if w <= 0 || h <= 0 || w > maxChunkLength || h > maxChunkLength {
		return d.errorf(codecerr.MalformedHeader, at, "IHDR", "invalid dimensions %dx%d", w, h)
	}
	depth, ct := int(data[8]), int(data[9])
	if data[10] != 0 {
		return d.errorf(codecerr.MalformedHeader, at, "IHDR", "compression method %d", data[10])
	}
	if data[11] != 0 {
		return d.errorf(codecerr.MalformedHeader, at, "IHDR", "filter method %d", data[11])
	}
	if data[12] > 1 {
		return d.errorf(codecerr.MalformedHeader, at, "IHDR", "interlace method %d", data[12])
	}

	d.cb = cbInvalid
	switch depth {
	case 1, 2, 4:
		switch ct {
		case ctGray:
			d.cb = map[int]int{1: cbG1, 2: cbG2, 4: cbG4}[depth]
		case ctPaletted:
			d.cb = map[int]int{1: cbP1, 2: cbP2, 4: cbP4}[depth]
		}
	case 8:
		switch ct {
		case ctGray:
			d.cb = cbG8
		case ctTrueColor:
			d.cb = cbTC8
		case ctPaletted:
			d.cb = cbP8
		case ctGrayAlpha:
			d.cb = cbGA8
		case ctTrueAlpha:
			d.cb = cbTCA8
		}
	case 16:
		switch ct {
		case ctGray:
			d.cb = cbG16
		case ctTrueColor:
			d.cb = cbTC16
		case ctGrayAlpha:
			d.cb = cbGA16
		case ctTrueAlpha:
			d.cb = cbTCA16
		}
	}
	if d.cb == cbInvalid {
		return d.errorf(codecerr.MalformedHeader, at, "IHDR", "bit depth %d with color type %d", depth, ct)
	}

	if w*h > int64(d.opts.maxPixels()) {
		return d.errorf(codecerr.ResourceLimitExceeded, at, "IHDR",
			"%dx%d exceeds the %d pixel ceiling", w, h, d.opts.maxPixels())
	}

	d.width, d.height = int(w), int(h)
	d.depth, d.colorType, d.interlace = depth, ct, int(data[12])
	d.stage = dsSeenIHDR

	d.meta["bit_depth"] = strconv.Itoa(depth)
	d.meta["color_type"] = colorTypeNames[ct]
	d.meta["interlace"] = "none"
	if d.interlace == 1 {
		d.meta["interlace"] = "adam7"
	}
	return nil
}

func (d *decoder) parsePLTE(at int, data []byte) error {
	if d.stage != dsSeenIHDR {
		return d.errorf(codecerr.MalformedHeader, at, "PLTE", "chunk out of order")
	}
	if d.colorType == ctGray || d.colorType == ctGrayAlpha {
		return d.errorf(codecerr.MalformedHeader, at, "PLTE", "palette not allowed for color type %d", d.colorType)
	}
	n := len(data) / 3
	if len(data)%3 != 0 || n == 0 || n > 256 {
		return d.errorf(codecerr.MalformedHeader, at, "PLTE", "invalid length %d", len(data))
	}
	d.stage = dsSeenPLTE
	if d.colorType != ctPaletted {
		// A suggested palette for truecolor images; not needed to decode.
		return nil
	}
	if n > 1<<uint(d.depth) {
		return d.errorf(codecerr.MalformedHeader, at, "PLTE", "%d entries exceed bit depth %d", n, d.depth)
	}
	d.palette = make([]byte, 4*n)
	for i := 0; i < n; i++ {
		copy(d.palette[4*i:], data[3*i:3*i+3])
		d.palette[4*i+3] = 0xff
	}
	d.meta["palette_size"] = strconv.Itoa(n)
	return nil
}

func (d *decoder) parseTRNS(at int, data []byte) error {
	if d.stage == dsSeenIDAT || d.hasTRNS {
		return d.errorf(codecerr.MalformedHeader, at, "tRNS", "chunk out of order")
	}
	switch d.colorType {
	case ctGray:
		if len(data) != 2 {
			return d.errorf(codecerr.MalformedHeader, at, "tRNS", "invalid length %d", len(data))
		}
		d.trns[0] = uint16(data[0])<<8 | uint16(data[1])
	case ctTrueColor:
		if len(data) != 6 {
			return d.errorf(codecerr.MalformedHeader, at, "tRNS", "invalid length %d", len(data))
		}
		for i := range d.trns {
			d.trns[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
		}
	case ctPaletted:
		if d.stage != dsSeenPLTE {
			return d.errorf(codecerr.MalformedHeader, at, "tRNS", "chunk before PLTE")
		}
		if len(data) > len(d.palette)/4 {
			return d.errorf(codecerr.MalformedHeader, at, "tRNS", "%d alpha values for %d palette entries", len(data), len(d.palette)/4)
		}
		for i, a := range data {
			d.palette[4*i+3] = a
		}
	default:
		return d.errorf(codecerr.MalformedHeader, at, "tRNS", "not allowed for color type %d", d.colorType)
	}
	d.hasTRNS = true
	return nil
}

func (d *decoder) parseIDAT(at int, data []byte) error {
	switch d.stage {
	case dsSeenIHDR:
		if d.colorType == ctPaletted {
			return d.errorf(codecerr.MalformedHeader, at, "IDAT", "indexed image without PLTE")
		}
	case dsSeenPLTE:
	case dsSeenIDAT:
		if d.lastType != "IDAT" {
			return d.errorf(codecerr.MalformedHeader, at, "IDAT", "IDAT chunks are not consecutive")
		}
	default:
		return d.errorf(codecerr.MalformedHeader, at, "IDAT", "chunk out of order")
	}
	d.stage = dsSeenIDAT
	d.idat = append(d.idat, bytes.NewReader(data))
	d.idatSize += len(data)
	return nil
}

func (d *decoder) parseIEND(at int, data []byte) error {
	if d.stage != dsSeenIDAT {
		return d.errorf(codecerr.MalformedHeader, at, "IEND", "no image data before IEND")
	}
	if len(data) != 0 {
		return d.errorf(codecerr.MalformedHeader, at, "IEND", "non-empty IEND chunk")
	}
	d.stage = dsSeenIEND
	return nil
}

func (d *decoder) parseGAMA(data []byte) {
	if len(data) != 4 {
		return
	}
	g := uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
	d.meta["gamma"] = strconv.FormatFloat(float64(g)/100000, 'f', 5, 64)
}

func (d *decoder) parsePHYS(data []byte) {
	if len(data) != 9 || data[8] != 1 {
		// Unit 0 is an aspect ratio only.
		return
	}
	x := uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
	y := uint32(data[4])<<24 | uint32(data[5])<<16 | uint32(data[6])<<8 | uint32(data[7])
	d.meta["dpi_x"] = strconv.Itoa(int(math.Round(float64(x) * 0.0254)))
	d.meta["dpi_y"] = strconv.Itoa(int(math.Round(float64(y) * 0.0254)))
}

var errTextChunk = errors.New("malformed text chunk")

// parseText stores tEXt, zTXt and iTXt entries as text:<keyword>.
func (d *decoder) parseText(name string, data []byte) error {
	i := bytes.IndexByte(data, 0)
	if i < 1 || i > 79 {
		return errTextChunk
	}
	keyword, rest := latin1(data[:i]), data[i+1:]
	var text string
	switch name {
	case "tEXt":
		text = latin1(rest)
	case "zTXt":
		if len(rest) < 1 || rest[0] != 0 {
			return errTextChunk
		}
		b, err := inflateText(rest[1:])
		if err != nil {
			return err
		}
		text = latin1(b)
	case "iTXt":
		if len(rest) < 2 {
			return errTextChunk
		}
		compressed, method := rest[0], rest[1]
		rest = rest[2:]
		// Skip language tag and translated keyword.
		for n := 0; n < 2; n++ {
			j := bytes.IndexByte(rest, 0)
			if j < 0 {
				return errTextChunk
			}
			rest = rest[j+1:]
		}
		if compressed == 1 {
			if method != 0 {
				return errTextChunk
			}
			b, err := inflateText(rest)
			if err != nil {
				return err
			}
			rest = b
		}
		text = string(rest)
	}
	d.meta["text:"+keyword] = text
	return nil
}

// maxTextSize bounds inflated text chunks.
const maxTextSize = 1 << 20

func inflateText(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(io.LimitReader(zr, maxTextSize))
}

func latin1(b []byte) string {
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}
