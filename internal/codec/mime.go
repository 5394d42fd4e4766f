package codec

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Media types understood by Decode.
const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEGIF  = "image/gif"
	MIMEWebP = "image/webp"
	MIMEBMP  = "image/bmp"
	MIMETIFF = "image/tiff"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// DetectMIME sniffs the media type from the leading magic bytes. It returns
// "" when nothing matches.
func DetectMIME(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return MIMEJPEG
	case bytes.HasPrefix(data, pngSignature):
		return MIMEPNG
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return MIMEGIF
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return MIMEWebP
	case bytes.HasPrefix(data, []byte("BM")):
		return MIMEBMP
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return MIMETIFF
	}
	return ""
}

// normalizeMIME lowercases, drops parameters and folds common aliases.
func normalizeMIME(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch mime {
	case "image/jpg", "image/pjpeg":
		return MIMEJPEG
	case "image/x-png":
		return MIMEPNG
	case "image/x-ms-bmp", "image/x-bmp":
		return MIMEBMP
	}
	return mime
}

// MIMEFromPath guesses the media type from a file extension. It returns ""
// for unknown extensions.
func MIMEFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".jpe", ".jfif":
		return MIMEJPEG
	case ".png":
		return MIMEPNG
	case ".gif":
		return MIMEGIF
	case ".webp":
		return MIMEWebP
	case ".bmp":
		return MIMEBMP
	case ".tif", ".tiff":
		return MIMETIFF
	}
	return ""
}
