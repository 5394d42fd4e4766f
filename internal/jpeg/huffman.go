package jpeg

import (
	"errors"

	"github.com/ironsheep/rastercodec/internal/bitio"
)

// lookupBits is the width of the fast decode table. Codes up to this length
// resolve with one peek; longer codes fall back to the canonical walk.
const lookupBits = 8

var (
	errOversubscribed = errors.New("code lengths oversubscribe the code space")
	errInvalidCode    = errors.New("invalid Huffman code")
	errCoefOverflow   = errors.New("coefficient index beyond 63")
	errDCCategory     = errors.New("DC magnitude category above 11")
)

// huffTable decodes one DHT table.
type huffTable struct {
	// lookup[peek] is len<<8 | symbol for codes of at most lookupBits bits
	// that prefix peek, or 0 when the code is longer.
	lookup [1 << lookupBits]uint16
	// maxCode[l] is the largest code of length l, or -1 if there is none.
	maxCode [17]int32
	// valPtr[l] is the symbol index of the first code of length l minus
	// that code, so symbols[valPtr[l]+code] is the decoded value.
	valPtr  [17]int32
	symbols []byte
}

// newHuffTable builds canonical codes from the 16 per-length counts and the
// symbol list, in the order given by the DHT segment.
func newHuffTable(counts, symbols []byte) (*huffTable, error) {
	t := &huffTable{symbols: append([]byte(nil), symbols...)}
	code, k := int32(0), int32(0)
	for l := 1; l <= 16; l++ {
		n := int32(counts[l-1])
		if n == 0 {
			t.maxCode[l] = -1
			code <<= 1
			continue
		}
		t.valPtr[l] = k - code
		for i := int32(0); i < n; i++ {
			if code >= 1<<uint(l) {
				return nil, errOversubscribed
			}
			if l <= lookupBits {
				// Every peek value that starts with this code maps to it.
				shift := uint(lookupBits - l)
				first := code << shift
				for p := first; p < first+1<<shift; p++ {
					t.lookup[p] = uint16(l)<<8 | uint16(symbols[k])
				}
			}
			code++
			k++
		}
		t.maxCode[l] = code - 1
		code <<= 1
	}
	return t, nil
}

// decode reads one symbol.
func (t *huffTable) decode(br *bitio.BitReader) (byte, error) {
	if e := t.lookup[br.PeekBits(lookupBits)]; e != 0 {
		if err := br.Skip(int(e >> 8)); err != nil {
			return 0, err
		}
		return byte(e), nil
	}
	code := int32(0)
	for l := 1; l <= 16; l++ {
		bit, err := br.ReadBit()
		if err != nil {
			return 0, err
		}
		code = code<<1 | int32(bit)
		if code <= t.maxCode[l] {
			return t.symbols[t.valPtr[l]+code], nil
		}
	}
	return 0, errInvalidCode
}

// receiveExtend reads an n-bit magnitude and sign-extends it: values below
// 2^(n-1) are negative and map to v - (2^n - 1).
func receiveExtend(br *bitio.BitReader, n byte) (int32, error) {
	if n == 0 {
		return 0, nil
	}
	v, err := br.ReadBits(int(n))
	if err != nil {
		return 0, err
	}
	return extend(v, n), nil
}

func extend(v uint32, n byte) int32 {
	if v < 1<<(n-1) {
		return int32(v) - (1<<n - 1)
	}
	return int32(v)
}
