package bitio

// BitReader reads JPEG entropy-coded data MSB-first.
//
// A literal 0xFF in the coded stream is followed by a stuffed 0x00 which the
// reader drops. Any other byte after 0xFF is a marker: the reader stops in
// front of it and reports it through Marker. Peeking past a marker (or past
// the end of the data) yields 1-bits, which can never complete a valid
// Huffman prefix on their own; consuming them is an error.
type BitReader struct {
	data     []byte
	pos      int    // next byte to load
	acc      uint64 // bit accumulator, valid bits are the low n bits
	n        int    // number of valid bits in acc
	marker   byte   // marker code found in the stream, 0 if none yet
	markerAt int    // offset of the marker's 0xFF byte, -1 if none yet
}

// NewBitReader returns a BitReader over data, starting at offset.
func NewBitReader(data []byte, offset int) *BitReader {
	return &BitReader{data: data, pos: offset, markerAt: -1}
}

// fill loads whole bytes until at least want bits are buffered or the
// stream hits a marker or the end of data.
func (br *BitReader) fill(want int) {
	for br.n < want && br.n <= 56 {
		if br.markerAt >= 0 || br.pos >= len(br.data) {
			return
		}
		b := br.data[br.pos]
		if b == 0xFF {
			if br.pos+1 >= len(br.data) {
				// lone trailing 0xFF: treat as data
				br.pos++
			} else if next := br.data[br.pos+1]; next == 0x00 {
				br.pos += 2
			} else {
				br.marker = next
				br.markerAt = br.pos
				return
			}
		} else {
			br.pos++
		}
		br.acc = br.acc<<8 | uint64(b)
		br.n += 8
	}
}

// PeekBits returns the next n bits (n <= 16) without consuming them. Missing
// bits past a marker or the end of data are returned as 1s.
func (br *BitReader) PeekBits(n int) uint32 {
	br.fill(n)
	if br.n >= n {
		return uint32(br.acc>>(br.n-n)) & (1<<n - 1)
	}
	pad := n - br.n
	v := uint32(br.acc) & (1<<br.n - 1)
	return (v<<pad | (1<<pad - 1)) & (1<<n - 1)
}

// Available reports how many real (non-padding) bits can still be consumed
// before the next marker or the end of data, capped at want.
func (br *BitReader) Available(want int) int {
	br.fill(want)
	if br.n < want {
		return br.n
	}
	return want
}

// Skip consumes n bits that were previously peeked.
func (br *BitReader) Skip(n int) error {
	br.fill(n)
	if br.n < n {
		return &EOFError{Offset: br.Offset(), Want: n}
	}
	br.n -= n
	return nil
}

// ReadBits consumes and returns the next n bits (n <= 16).
func (br *BitReader) ReadBits(n int) (uint32, error) {
	if n == 0 {
		return 0, nil
	}
	br.fill(n)
	if br.n < n {
		return 0, &EOFError{Offset: br.Offset(), Want: n}
	}
	br.n -= n
	return uint32(br.acc>>br.n) & (1<<n - 1), nil
}

// ReadBit consumes one bit.
func (br *BitReader) ReadBit() (uint32, error) {
	return br.ReadBits(1)
}

// Align discards buffered bits up to the next byte boundary. Whole buffered
// bytes are kept.
func (br *BitReader) Align() {
	br.n -= br.n % 8
}

// Reset discards all buffered bits and clears the pending marker, moving the
// read position just past it. It is used after a restart marker.
func (br *BitReader) Reset() {
	if br.markerAt >= 0 {
		br.pos = br.markerAt + 2
	}
	br.acc, br.n = 0, 0
	br.marker, br.markerAt = 0, -1
}

// Marker returns the marker code in front of the reader and whether one has
// been reached. It only reports a marker once all data bytes before it have
// been loaded.
func (br *BitReader) Marker() (byte, bool) {
	br.fill(64)
	return br.marker, br.markerAt >= 0
}

// Offset returns the byte offset of the next unconsumed whole byte. Bits
// buffered but not consumed count as unread.
func (br *BitReader) Offset() int {
	if br.markerAt >= 0 {
		return br.markerAt - br.n/8
	}
	return br.pos - br.n/8
}

// End returns the offset just past the entropy-coded data, i.e. the offset of
// the terminating marker if one was reached, else the current load position.
func (br *BitReader) End() int {
	if br.markerAt >= 0 {
		return br.markerAt
	}
	return br.pos
}
