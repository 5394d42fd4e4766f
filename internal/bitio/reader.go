// Package bitio provides the byte cursor and entropy bit reader used by the
// JPEG and PNG decoders.
//
// Both readers wrap an immutable byte slice supplied by the caller; nothing
// here performs I/O or allocates beyond the reader itself. Reads past the end
// fail with *EOFError, which unwraps to io.ErrUnexpectedEOF.
package bitio

import (
	"fmt"
	"io"
)

// EOFError reports a read that ran past the end of the buffer.
type EOFError struct {
	Offset int // position at which the read was attempted
	Want   int // bytes (or bits, for BitReader) requested
}

func (e *EOFError) Error() string {
	return fmt.Sprintf("unexpected end of data at offset %d (wanted %d)", e.Offset, e.Want)
}

func (e *EOFError) Unwrap() error { return io.ErrUnexpectedEOF }

// Reader is a sequential big-endian cursor over a byte slice.
type Reader struct {
	data []byte
	pos  int
}

// NewReader returns a Reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Pos returns the current offset.
func (r *Reader) Pos() int { return r.pos }

// Len returns the total length of the underlying buffer.
func (r *Reader) Len() int { return len(r.data) }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

func (r *Reader) need(n int) error {
	if n < 0 || r.pos+n > len(r.data) || r.pos+n < r.pos {
		return &EOFError{Offset: r.pos, Want: n}
	}
	return nil
}

// Seek moves the cursor to an absolute offset.
func (r *Reader) Seek(offset int) error {
	if offset < 0 || offset > len(r.data) {
		return &EOFError{Offset: offset, Want: 0}
	}
	r.pos = offset
	return nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

// U8 reads one byte.
func (r *Reader) U8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// U16 reads a big-endian 16-bit value.
func (r *Reader) U16() (uint16, error) {
	v, err := r.U16At(r.pos)
	if err != nil {
		return 0, err
	}
	r.pos += 2
	return v, nil
}

// U32 reads a big-endian 32-bit value.
func (r *Reader) U32() (uint32, error) {
	v, err := r.U32At(r.pos)
	if err != nil {
		return 0, err
	}
	r.pos += 4
	return v, nil
}

// U16At reads a big-endian 16-bit value at an absolute offset without moving the cursor.
func (r *Reader) U16At(offset int) (uint16, error) {
	if offset < 0 || offset+2 > len(r.data) {
		return 0, &EOFError{Offset: offset, Want: 2}
	}
	return uint16(r.data[offset])<<8 | uint16(r.data[offset+1]), nil
}

// U32At reads a big-endian 32-bit value at an absolute offset without moving the cursor.
func (r *Reader) U32At(offset int) (uint32, error) {
	if offset < 0 || offset+4 > len(r.data) {
		return 0, &EOFError{Offset: offset, Want: 4}
	}
	d := r.data[offset : offset+4]
	return uint32(d[0])<<24 | uint32(d[1])<<16 | uint32(d[2])<<8 | uint32(d[3]), nil
}

// Bytes returns the next n bytes and advances past them. The returned slice
// aliases the underlying buffer and must not be modified.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.data[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}

// Tail returns the unread remainder without advancing.
func (r *Reader) Tail() []byte {
	return r.data[r.pos:]
}

// NextMarker consumes a JPEG marker: a 0xFF byte, any number of 0xFF fill
// bytes, then the marker code, which is returned. It fails if the cursor is
// not at a 0xFF byte.
func (r *Reader) NextMarker() (byte, error) {
	start := r.pos
	b, err := r.U8()
	if err != nil {
		return 0, err
	}
	if b != 0xFF {
		r.pos = start
		return 0, fmt.Errorf("expected marker prefix 0xFF at offset %d, found 0x%02X", start, b)
	}
	for {
		b, err = r.U8()
		if err != nil {
			return 0, err
		}
		if b != 0xFF {
			return b, nil
		}
	}
}

// ScanMarker returns the offset of the first 0xFF byte at or after from that
// starts a marker, i.e. is followed by neither 0x00 (stuffing) nor a restart
// code 0xD0-0xD7. It reports false if no marker follows.
func ScanMarker(data []byte, from int) (int, bool) {
	for i := from; i+1 < len(data); i++ {
		if data[i] != 0xFF {
			continue
		}
		next := data[i+1]
		if next == 0x00 || next == 0xFF || (next >= 0xD0 && next <= 0xD7) {
			continue
		}
		return i, true
	}
	return 0, false
}
