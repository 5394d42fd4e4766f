package jpeg

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ironsheep/rastercodec/internal/bitio"
	"github.com/ironsheep/rastercodec/internal/codecerr"
	"github.com/ironsheep/rastercodec/internal/dct"
)

const formatName = "jpeg"

// component is one color channel of the frame.
type component struct {
	id     byte
	h, v   int // sampling factors
	tq     int // quantization table selector
	pred   int32
	plane  []byte // decoded samples, stride x rows
	stride int
	rows   int
	coded  bool // at least one scan carried this component
}

type decoder struct {
	data       []byte
	r          *bitio.Reader
	opts       Options
	state      state
	configOnly bool

	width, height int
	baseline      bool
	comps         []component
	hMax, vMax    int
	mcusX, mcusY  int

	quant [4]*[dct.BlockSize]uint16
	huff  [2][4]*huffTable // [class][id], class 0 = DC, 1 = AC

	restartInterval int
	adobe           bool
	adobeTransform  byte
	scans           int

	meta map[string]string
}

func newDecoder(data []byte, opts Options) *decoder {
	return &decoder{
		data:  data,
		r:     bitio.NewReader(data),
		opts:  opts,
		state: stateExpectSOI,
		meta:  map[string]string{"format": formatName},
	}
}

func (d *decoder) errorf(kind codecerr.Kind, offset int, where, msg string, args ...interface{}) error {
	return codecerr.New(kind, formatName, offset, where, msg, args...)
}

// eofError converts a bitio read failure inside a segment into a
// TruncatedStream error.
func (d *decoder) eofError(err error, where string) error {
	var eof *bitio.EOFError
	if errors.As(err, &eof) {
		return codecerr.Wrap(codecerr.TruncatedStream, formatName, eof.Offset, where, err)
	}
	return codecerr.Wrap(codecerr.CorruptData, formatName, d.r.Pos(), where, err)
}

// run walks the marker stream until EOI, or until the first frame header
// when configOnly is set.
func (d *decoder) run() error {
	for d.state != stateDone {
		at := d.r.Pos()
		m, err := d.r.NextMarker()
		if err != nil {
			if d.state == stateExpectSOI {
				return d.errorf(codecerr.MalformedHeader, at, "", "not a JPEG stream: missing SOI marker")
			}
			if d.state == stateExpectEOI && d.r.Remaining() == 0 {
				// Streams cut right after the last scan decode fine; the
				// EOI marker carries no data.
				log.WithField("offset", at).Debug("jpeg: missing EOI marker")
				return nil
			}
			var eof *bitio.EOFError
			if errors.As(err, &eof) {
				return codecerr.Wrap(codecerr.TruncatedStream, formatName, at, d.state.String(), err)
			}
			return codecerr.Wrap(codecerr.CorruptData, formatName, at, d.state.String(), err)
		}

		class := classify(m)
		if class == classSOFOther {
			if d.configOnly && d.state == stateHeaders && m != markerDAC {
				return d.readFrame(at, m)
			}
			return d.errorf(codecerr.UnsupportedFeature, at, markerName(m), "only baseline sequential frames are supported")
		}
		next := transitions[d.state][class]
		if next == stateInvalid {
			switch {
			case d.state == stateExpectSOI:
				return d.errorf(codecerr.MalformedHeader, at, markerName(m), "not a JPEG stream: missing SOI marker")
			case class == classEOI:
				return d.errorf(codecerr.TruncatedStream, at, markerName(m), "end of image before any scan data")
			case class == classSOF0:
				return d.errorf(codecerr.MalformedHeader, at, markerName(m), "second frame header")
			}
			return d.errorf(codecerr.CorruptData, at, markerName(m), "unexpected in %s", d.state)
		}

		if err := d.handle(at, m, class); err != nil {
			return err
		}
		d.state = next
		if d.configOnly && class == classSOF0 {
			return nil
		}
	}
	return nil
}

// handle parses the segment introduced by marker m at offset at.
func (d *decoder) handle(at int, m byte, class markerClass) error {
	switch class {
	case classSOI, classEOI:
		return nil
	case classSOF0:
		return d.readFrame(at, m)
	case classSOS:
		return d.readScan(at)
	}

	payload, err := d.segment(m)
	if err != nil {
		return err
	}
	switch class {
	case classDQT:
		return d.parseDQT(at, payload)
	case classDHT:
		return d.parseDHT(at, payload)
	case classDRI:
		return d.parseDRI(at, payload)
	case classAPP:
		d.parseAPP(m, payload)
	case classCOM:
		d.parseCOM(payload)
	default:
		log.WithFields(log.Fields{"marker": markerName(m), "offset": at, "length": len(payload)}).Debug("jpeg: skipping segment")
	}
	return nil
}

// segment reads a length-prefixed segment body.
func (d *decoder) segment(m byte) ([]byte, error) {
	at := d.r.Pos()
	n, err := d.r.U16()
	if err != nil {
		return nil, d.eofError(err, markerName(m))
	}
	if n < 2 {
		return nil, d.errorf(codecerr.MalformedHeader, at, markerName(m), "segment length %d", n)
	}
	payload, err := d.r.Bytes(int(n) - 2)
	if err != nil {
		return nil, d.eofError(err, markerName(m))
	}
	return payload, nil
}

func (d *decoder) parseDQT(at int, payload []byte) error {
	p := bitio.NewReader(payload)
	for p.Remaining() > 0 {
		pqtq, _ := p.U8()
		pq, tq := pqtq>>4, pqtq&0x0F
		if pq > 1 || tq > 3 {
			return d.errorf(codecerr.MalformedHeader, at+4+p.Pos()-1, "DQT", "precision %d, table %d", pq, tq)
		}
		var t [dct.BlockSize]uint16
		for i := 0; i < dct.BlockSize; i++ {
			var v uint16
			var err error
			if pq == 0 {
				var b byte
				b, err = p.U8()
				v = uint16(b)
			} else {
				v, err = p.U16()
			}
			if err != nil {
				return d.errorf(codecerr.MalformedHeader, at, "DQT", "table %d is short", tq)
			}
			t[dct.ZigzagToNatural[i]] = v
		}
		d.quant[tq] = &t
		log.WithFields(log.Fields{"table": tq, "precision": 8 << pq}).Debug("jpeg: DQT")
	}
	return nil
}

func (d *decoder) parseDHT(at int, payload []byte) error {
	p := bitio.NewReader(payload)
	for p.Remaining() > 0 {
		tcth, _ := p.U8()
		tc, th := tcth>>4, tcth&0x0F
		if tc > 1 || th > 3 {
			return d.errorf(codecerr.MalformedHeader, at, "DHT", "class %d, table %d", tc, th)
		}
		counts, err := p.Bytes(16)
		if err != nil {
			return d.errorf(codecerr.MalformedHeader, at, "DHT", "table %d/%d is short", tc, th)
		}
		total := 0
		for _, c := range counts {
			total += int(c)
		}
		if total > 256 {
			return d.errorf(codecerr.MalformedHeader, at, "DHT", "table %d/%d has %d symbols", tc, th, total)
		}
		symbols, err := p.Bytes(total)
		if err != nil {
			return d.errorf(codecerr.MalformedHeader, at, "DHT", "table %d/%d is short", tc, th)
		}
		t, err := newHuffTable(counts, symbols)
		if err != nil {
			return d.errorf(codecerr.MalformedHeader, at, "DHT", "table %d/%d: %v", tc, th, err)
		}
		d.huff[tc][th] = t
		log.WithFields(log.Fields{"class": tc, "table": th, "symbols": total}).Debug("jpeg: DHT")
	}
	return nil
}

func (d *decoder) parseDRI(at int, payload []byte) error {
	if len(payload) != 2 {
		return d.errorf(codecerr.MalformedHeader, at, "DRI", "length %d", len(payload)+2)
	}
	d.restartInterval = int(payload[0])<<8 | int(payload[1])
	return nil
}

// readFrame parses a frame header. Only SOF0 frames are kept for decoding;
// other SOFn headers reach here in config mode for their geometry.
func (d *decoder) readFrame(at int, m byte) error {
	where := markerName(m)
	payload, err := d.segment(m)
	if err != nil {
		return err
	}
	if len(payload) < 6 {
		return d.errorf(codecerr.MalformedHeader, at, where, "header too short")
	}
	precision := payload[0]
	height := int(payload[1])<<8 | int(payload[2])
	width := int(payload[3])<<8 | int(payload[4])
	nf := int(payload[5])
	if len(payload) != 6+3*nf {
		return d.errorf(codecerr.MalformedHeader, at, where, "length does not match %d components", nf)
	}
	d.baseline = m == markerSOF0

	if d.baseline && precision != 8 {
		return d.errorf(codecerr.UnsupportedFeature, at, where, "%d-bit sample precision", precision)
	}
	if width == 0 {
		return d.errorf(codecerr.MalformedHeader, at, where, "zero width")
	}
	if height == 0 {
		return d.errorf(codecerr.UnsupportedFeature, at, where, "height defined by DNL marker")
	}
	switch nf {
	case 1, 3:
	case 4:
		if d.baseline {
			return d.errorf(codecerr.UnsupportedFeature, at, where, "4-component (CMYK) frames")
		}
	default:
		return d.errorf(codecerr.MalformedHeader, at, where, "%d components", nf)
	}
	if limit := d.opts.maxPixels(); width*height > limit {
		return d.errorf(codecerr.ResourceLimitExceeded, at, where, "%dx%d exceeds %d pixels", width, height, limit)
	}

	d.width, d.height = width, height
	d.comps = make([]component, nf)
	d.hMax, d.vMax = 1, 1
	for i := range d.comps {
		c := payload[6+3*i : 9+3*i]
		h, v := int(c[1]>>4), int(c[1]&0x0F)
		if h < 1 || h > 4 || v < 1 || v > 4 {
			return d.errorf(codecerr.MalformedHeader, at, where, "component %d sampling %dx%d", c[0], h, v)
		}
		if h == 3 || v == 3 {
			return d.errorf(codecerr.UnsupportedFeature, at, where, "component %d sampling %dx%d", c[0], h, v)
		}
		if c[2] > 3 {
			return d.errorf(codecerr.MalformedHeader, at, where, "component %d quantization table %d", c[0], c[2])
		}
		for j := 0; j < i; j++ {
			if d.comps[j].id == c[0] {
				return d.errorf(codecerr.MalformedHeader, at, where, "duplicate component id %d", c[0])
			}
		}
		d.comps[i] = component{id: c[0], h: h, v: v, tq: int(c[2])}
		if h > d.hMax {
			d.hMax = h
		}
		if v > d.vMax {
			d.vMax = v
		}
	}
	if nf == 1 {
		// A single-component scan is never interleaved, so its sampling
		// factors do not shape the block grid.
		d.comps[0].h, d.comps[0].v = 1, 1
		d.hMax, d.vMax = 1, 1
	}
	d.mcusX = ceilDiv(width, 8*d.hMax)
	d.mcusY = ceilDiv(height, 8*d.vMax)

	d.meta["bit_depth"] = strconv.Itoa(int(precision))
	d.meta["components"] = strconv.Itoa(nf)
	if nf == 3 {
		d.meta["subsampling"] = subsampling(d.comps)
	}
	log.WithFields(log.Fields{
		"frame":      where,
		"width":      width,
		"height":     height,
		"components": nf,
		"mcus":       fmt.Sprintf("%dx%d", d.mcusX, d.mcusY),
	}).Debug("jpeg: frame header")
	return nil
}

// allocatePlanes sizes every component plane to whole MCUs so edge blocks
// need no clipping.
func (d *decoder) allocatePlanes() {
	for i := range d.comps {
		c := &d.comps[i]
		if c.plane != nil {
			continue
		}
		c.stride = d.mcusX * c.h * 8
		c.rows = d.mcusY * c.v * 8
		c.plane = make([]byte, c.stride*c.rows)
	}
}

func (d *decoder) parseAPP(m byte, payload []byte) {
	switch {
	case m == markerAPP0 && bytes.HasPrefix(payload, []byte("JFIF\x00")) && len(payload) >= 12:
		d.meta["jfif_version"] = fmt.Sprintf("%d.%02d", payload[5], payload[6])
		units := payload[7]
		xd := int(payload[8])<<8 | int(payload[9])
		yd := int(payload[10])<<8 | int(payload[11])
		switch units {
		case 1:
			d.meta["dpi_x"], d.meta["dpi_y"] = strconv.Itoa(xd), strconv.Itoa(yd)
		case 2:
			d.meta["dpi_x"] = strconv.Itoa(int(float64(xd)*2.54 + 0.5))
			d.meta["dpi_y"] = strconv.Itoa(int(float64(yd)*2.54 + 0.5))
		}
	case m == markerAPP1 && bytes.HasPrefix(payload, []byte("Exif\x00\x00")):
		if err := parseExif(payload[6:], d.meta); err != nil {
			log.WithError(err).Debug("jpeg: ignoring unreadable Exif block")
		}
	case m == markerAPPE && bytes.HasPrefix(payload, []byte("Adobe")) && len(payload) >= 12:
		d.adobe = true
		d.adobeTransform = payload[11]
	}
}

func (d *decoder) parseCOM(payload []byte) {
	text := strings.TrimRight(string(payload), "\x00")
	if prev, ok := d.meta["comment"]; ok {
		text = prev + "\n" + text
	}
	d.meta["comment"] = text
}

func subsampling(comps []component) string {
	y, cb, cr := comps[0], comps[1], comps[2]
	if cb.h != cr.h || cb.v != cr.v {
		return fmt.Sprintf("%dx%d,%dx%d,%dx%d", y.h, y.v, cb.h, cb.v, cr.h, cr.v)
	}
	switch {
	case y.h == cb.h && y.v == cb.v:
		return "4:4:4"
	case y.h == 2*cb.h && y.v == 2*cb.v:
		return "4:2:0"
	case y.h == 2*cb.h && y.v == cb.v:
		return "4:2:2"
	case y.h == cb.h && y.v == 2*cb.v:
		return "4:4:0"
	case y.h == 4*cb.h && y.v == cb.v:
		return "4:1:1"
	}
	return fmt.Sprintf("%dx%d,%dx%d,%dx%d", y.h, y.v, cb.h, cb.v, cr.h, cr.v)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
