package jpeg

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ironsheep/rastercodec/internal/bitio"
	"github.com/ironsheep/rastercodec/internal/codecerr"
	"github.com/ironsheep/rastercodec/internal/dct"
)

// maxCoef bounds a dequantized coefficient. Conforming streams stay well
// inside it; corrupt ones saturate instead of overflowing int32.
const maxCoef = 1 << 20

// scanComponent binds a frame component to the tables selected by an SOS header.
type scanComponent struct {
	c  *component
	dc *huffTable
	ac *huffTable
	q  *[dct.BlockSize]uint16
}

// readScan parses an SOS header and decodes the entropy-coded segment that
// follows it. On return the reader is positioned at the next marker.
func (d *decoder) readScan(at int) error {
	payload, err := d.segment(markerSOS)
	if err != nil {
		return err
	}
	if len(payload) < 1 {
		return d.errorf(codecerr.MalformedHeader, at, "SOS", "empty header")
	}
	ns := int(payload[0])
	if ns < 1 || ns > len(d.comps) || len(payload) != 4+2*ns {
		return d.errorf(codecerr.MalformedHeader, at, "SOS", "%d components in a %d-byte header", ns, len(payload)+2)
	}

	scan := make([]scanComponent, ns)
	blocksPerMCU := 0
	for i := range scan {
		cs, tables := payload[1+2*i], payload[2+2*i]
		idx := -1
		for j := range d.comps {
			if d.comps[j].id == cs {
				idx = j
			}
		}
		if idx < 0 {
			return d.errorf(codecerr.MalformedHeader, at, "SOS", "unknown component selector %d", cs)
		}
		for j := 0; j < i; j++ {
			if scan[j].c == &d.comps[idx] {
				return d.errorf(codecerr.MalformedHeader, at, "SOS", "repeated component selector %d", cs)
			}
		}
		c := &d.comps[idx]
		td, ta := tables>>4, tables&0x0F
		if td > 3 || ta > 3 {
			return d.errorf(codecerr.MalformedHeader, at, "SOS", "component %d table selectors %d/%d", cs, td, ta)
		}
		sc := scanComponent{c: c, dc: d.huff[0][td], ac: d.huff[1][ta], q: d.quant[c.tq]}
		switch {
		case sc.dc == nil:
			return d.errorf(codecerr.MalformedHeader, at, "SOS", "component %d uses undefined DC table %d", cs, td)
		case sc.ac == nil:
			return d.errorf(codecerr.MalformedHeader, at, "SOS", "component %d uses undefined AC table %d", cs, ta)
		case sc.q == nil:
			return d.errorf(codecerr.MalformedHeader, at, "SOS", "component %d uses undefined quantization table %d", cs, c.tq)
		}
		scan[i] = sc
		blocksPerMCU += c.h * c.v
	}
	if ns > 1 && blocksPerMCU > 10 {
		return d.errorf(codecerr.MalformedHeader, at, "SOS", "%d blocks per MCU", blocksPerMCU)
	}
	ss, se, a := payload[1+2*ns], payload[2+2*ns], payload[3+2*ns]
	if ss != 0 || se != 63 || a != 0 {
		return d.errorf(codecerr.MalformedHeader, at, "SOS", "spectral selection %d..%d, approximation %#02x in a baseline scan", ss, se, a)
	}

	d.allocatePlanes()
	d.scans++
	log.WithFields(log.Fields{
		"components":       ns,
		"restart_interval": d.restartInterval,
		"offset":           d.r.Pos(),
	}).Debug("jpeg: SOS")

	end, err := d.decodeScan(scan, d.r.Pos())
	if err != nil {
		return err
	}
	for _, sc := range scan {
		sc.c.coded = true
	}
	return d.r.Seek(end)
}

// decodeScan decodes the MCUs of one scan starting at offset start and
// returns the offset of the marker that ends it, or the end of the data.
func (d *decoder) decodeScan(scan []scanComponent, start int) (int, error) {
	br := bitio.NewBitReader(d.data, start)

	mcusX, mcusY := d.mcusX, d.mcusY
	interleaved := len(scan) > 1
	if !interleaved {
		// A non-interleaved scan covers only the blocks inside the
		// component's own sample area, one block per MCU.
		c := scan[0].c
		mcusX = ceilDiv(ceilDiv(d.width*c.h, d.hMax), 8)
		mcusY = ceilDiv(ceilDiv(d.height*c.v, d.vMax), 8)
	}
	for _, sc := range scan {
		sc.c.pred = 0
	}

	total := mcusX * mcusY
	nextRST := 0
	for mcu := 0; mcu < total; mcu++ {
		mx, my := mcu%mcusX, mcu/mcusX
		block := 0
		for i := range scan {
			sc := &scan[i]
			c := sc.c
			if !interleaved {
				if err := sc.decodeBlock(br, c.plane, my*8*c.stride+mx*8, c.stride); err != nil {
					return 0, d.entropyError(err, br, mcu, block)
				}
				block++
				continue
			}
			for by := 0; by < c.v; by++ {
				for bx := 0; bx < c.h; bx++ {
					x := (mx*c.h + bx) * 8
					y := (my*c.v + by) * 8
					if err := sc.decodeBlock(br, c.plane, y*c.stride+x, c.stride); err != nil {
						return 0, d.entropyError(err, br, mcu, block)
					}
					block++
				}
			}
		}

		if d.restartInterval > 0 && (mcu+1)%d.restartInterval == 0 && mcu+1 < total {
			if err := d.restart(br, nextRST, mcu); err != nil {
				return 0, err
			}
			nextRST = (nextRST + 1) & 7
			for _, sc := range scan {
				sc.c.pred = 0
			}
		}
	}

	if end, ok := bitio.ScanMarker(d.data, br.Offset()); ok {
		return end, nil
	}
	return len(d.data), nil
}

// restart consumes the RSTn marker expected after an interval.
func (d *decoder) restart(br *bitio.BitReader, n, mcu int) error {
	br.Align()
	m, ok := br.Marker()
	want := byte(markerRST0 + n)
	if !ok {
		if br.End() >= len(d.data) {
			return d.errorf(codecerr.TruncatedStream, br.End(), fmt.Sprintf("MCU %d", mcu), "data ended before RST%d", n)
		}
		return d.errorf(codecerr.CorruptData, br.Offset(), fmt.Sprintf("MCU %d", mcu), "expected RST%d, found entropy data", n)
	}
	if m != want {
		return d.errorf(codecerr.CorruptData, br.End(), fmt.Sprintf("MCU %d", mcu), "expected RST%d, found %s", n, markerName(m))
	}
	br.Reset()
	return nil
}

// entropyError attaches the MCU and block position to a failure from the
// block decoder.
func (d *decoder) entropyError(err error, br *bitio.BitReader, mcu, block int) error {
	where := fmt.Sprintf("MCU %d block %d", mcu, block)
	var eof *bitio.EOFError
	if errors.As(err, &eof) {
		if m, ok := br.Marker(); ok {
			return d.errorf(codecerr.TruncatedStream, br.End(), where, "entropy data ended at %s", markerName(m))
		}
		return codecerr.Wrap(codecerr.TruncatedStream, formatName, eof.Offset, where, err)
	}
	return codecerr.Wrap(codecerr.CorruptData, formatName, br.Offset(), where, err)
}

// decodeBlock decodes, dequantizes and inverse transforms one 8x8 block
// into dst at offset with the given stride.
func (sc *scanComponent) decodeBlock(br *bitio.BitReader, dst []byte, offset, stride int) error {
	t, err := sc.dc.decode(br)
	if err != nil {
		return err
	}
	if t > 11 {
		return errDCCategory
	}
	diff, err := receiveExtend(br, t)
	if err != nil {
		return err
	}
	sc.c.pred += diff

	var zz [dct.BlockSize]int32
	zz[0] = sc.c.pred
	for k := 1; k < dct.BlockSize; {
		rs, err := sc.ac.decode(br)
		if err != nil {
			return err
		}
		run, size := int(rs>>4), rs&0x0F
		if size == 0 {
			if run != 15 {
				break // EOB
			}
			k += 16 // ZRL
			if k > dct.BlockSize {
				return errCoefOverflow
			}
			continue
		}
		k += run
		if k >= dct.BlockSize {
			return errCoefOverflow
		}
		v, err := receiveExtend(br, size)
		if err != nil {
			return err
		}
		zz[k] = v
		k++
	}

	var coef [dct.BlockSize]int32
	for i, v := range zz {
		if v != 0 {
			n := dct.ZigzagToNatural[i]
			coef[n] = dequantize(v, sc.q[n])
		}
	}
	dct.Inverse(&coef, dst, offset, stride)
	return nil
}

func dequantize(v int32, q uint16) int32 {
	p := int64(v) * int64(q)
	if p > maxCoef {
		return maxCoef
	}
	if p < -maxCoef {
		return -maxCoef
	}
	return int32(p)
}
