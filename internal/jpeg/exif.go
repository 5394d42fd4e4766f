package jpeg

import (
	"encoding/binary"
	"errors"
	"strconv"
	"strings"
)

// IFD0 tags copied into metadata.
const (
	tagMake        = 0x010F
	tagModel       = 0x0110
	tagOrientation = 0x0112
	tagSoftware    = 0x0131
	tagDateTime    = 0x0132
)

// TIFF field types used by those tags.
const (
	typeASCII = 2
	typeShort = 3
)

var errExif = errors.New("malformed Exif block")

// parseExif reads IFD0 of the TIFF structure inside an APP1 Exif segment
// and records orientation and camera fields in meta.
func parseExif(data []byte, meta map[string]string) error {
	if len(data) < 8 {
		return errExif
	}
	var bo binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return errExif
	}
	if bo.Uint16(data[2:]) != 42 {
		return errExif
	}
	ifd := int(bo.Uint32(data[4:]))
	if ifd < 8 || ifd+2 > len(data) {
		return errExif
	}

	n := int(bo.Uint16(data[ifd:]))
	for i := 0; i < n; i++ {
		e := ifd + 2 + 12*i
		if e+12 > len(data) {
			return errExif
		}
		tag := bo.Uint16(data[e:])
		typ := bo.Uint16(data[e+2:])
		count := int(bo.Uint32(data[e+4:]))

		switch tag {
		case tagOrientation:
			if typ == typeShort && count == 1 {
				if o := bo.Uint16(data[e+8:]); o >= 1 && o <= 8 {
					meta["orientation"] = strconv.Itoa(int(o))
				}
			}
		case tagMake, tagModel, tagSoftware, tagDateTime:
			if typ != typeASCII || count == 0 {
				continue
			}
			off := e + 8
			if count > 4 {
				off = int(bo.Uint32(data[e+8:]))
			}
			if off < 0 || off+count > len(data) {
				continue
			}
			s := strings.TrimSpace(strings.TrimRight(string(data[off:off+count]), "\x00"))
			if s != "" {
				meta[exifKey(tag)] = s
			}
		}
	}
	return nil
}

func exifKey(tag uint16) string {
	switch tag {
	case tagMake:
		return "exif_make"
	case tagModel:
		return "exif_model"
	case tagSoftware:
		return "exif_software"
	default:
		return "exif_datetime"
	}
}
