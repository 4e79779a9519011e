package tabular

import (
	"bufio"
	"bytes"
	"errors"
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

// sniffSize is how much of a stream NewDecoder inspects to choose an encoding.
const sniffSize = 64 << 10

// Decode converts raw export bytes to UTF-8 and strips any byte order mark. Inputs with a
// BOM are decoded per the BOM; other input that is not valid UTF-8 is treated as Windows-1252,
// which is what spreadsheet tools emit for "CSV" on most desktop installs.
func Decode(data []byte) ([]byte, string, error) {
	enc := sniff(data, true)
	switch enc {
	case "utf-8":
		return data, enc, nil
	case "utf-8-bom":
		return data[len(bomUTF8):], enc, nil
	}
	out, _, err := transform.Bytes(decoderFor(enc), data)
	if err != nil {
		return nil, "", err
	}
	return out, enc, nil
}

// NewDecoder wraps r so it yields UTF-8 with any byte order mark removed. The encoding is
// chosen from the BOM or, without one, from the first sniffSize bytes, so memory stays
// bounded for large exports.
func NewDecoder(r io.Reader) (io.Reader, string, error) {
	br := bufio.NewReaderSize(r, sniffSize)
	head, err := br.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, "", err
	}
	enc := sniff(head, len(head) < sniffSize)
	switch enc {
	case "utf-8":
		return br, enc, nil
	case "utf-8-bom":
		if _, err := br.Discard(len(bomUTF8)); err != nil {
			return nil, "", err
		}
		return br, enc, nil
	}
	return transform.NewReader(br, decoderFor(enc)), enc, nil
}

// sniff names the encoding of head. A rune cut off at the end of a partial head does not
// count as invalid.
func sniff(head []byte, atEOF bool) string {
	switch {
	case bytes.HasPrefix(head, bomUTF8):
		return "utf-8-bom"
	case bytes.HasPrefix(head, bomUTF16LE):
		return "utf-16le"
	case bytes.HasPrefix(head, bomUTF16BE):
		return "utf-16be"
	}
	if !atEOF {
		for i := len(head) - 1; i >= 0 && i >= len(head)-utf8.UTFMax; i-- {
			if utf8.RuneStart(head[i]) {
				if !utf8.FullRune(head[i:]) {
					head = head[:i]
				}
				break
			}
		}
	}
	if utf8.Valid(head) {
		return "utf-8"
	}
	return "windows-1252"
}

func decoderFor(enc string) transform.Transformer {
	if enc == "windows-1252" {
		return charmap.Windows1252.NewDecoder()
	}
	return unicode.BOMOverride(unicode.UTF8.NewDecoder())
}
