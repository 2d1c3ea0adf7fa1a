package csvfile

import (
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Decode returns a UTF-8 reader over data and the name of the detected
// encoding. BOMs are consumed; invalid UTF-8 without a BOM is read as Latin-1.
func Decode(data []byte) (io.Reader, string) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return bytes.NewReader(data[len(bomUTF8):]), "utf-8-bom"
	case bytes.HasPrefix(data, bomUTF16LE):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		return transform.NewReader(bytes.NewReader(data), dec), "utf-16le"
	case bytes.HasPrefix(data, bomUTF16BE):
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		return transform.NewReader(bytes.NewReader(data), dec), "utf-16be"
	case utf8.Valid(data):
		return bytes.NewReader(data), "utf-8"
	default:
		return transform.NewReader(bytes.NewReader(data), charmap.ISO8859_1.NewDecoder()), "latin-1"
	}
}
