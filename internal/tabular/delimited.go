package tabular

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// ErrUnterminatedQuote is reported when input ends inside a quoted field.
var ErrUnterminatedQuote = errors.New("unterminated quoted field")

// delimitedReader splits delimited text into records. encoding/csv hardcodes '"' as the quote
// character, and some exports quote with a different rune, so the scanner is local.
// Quoted fields may contain the delimiter, doubled quotes and newlines; a quote that appears
// inside an unquoted field is kept literally.
type delimitedReader struct {
	r     *bufio.Reader
	delim rune
	quote rune
	line  int
}

func newDelimitedReader(r io.Reader, delim, quote rune) *delimitedReader {
	return &delimitedReader{r: bufio.NewReader(r), delim: delim, quote: quote, line: 1}
}

func (d *delimitedReader) Read() ([]string, int, error) {
	start := d.line
	var (
		record   []string
		field    strings.Builder
		inQuotes bool
		quoted   bool // current field was opened with a quote
		consumed bool
	)
	endField := func() {
		record = append(record, field.String())
		field.Reset()
		quoted = false
	}
	for {
		r, _, err := d.r.ReadRune()
		if err == io.EOF {
			if !consumed {
				return nil, start, io.EOF
			}
			endField()
			if inQuotes {
				return record, start, ErrUnterminatedQuote
			}
			return record, start, nil
		}
		if err != nil {
			return nil, start, err
		}
		consumed = true

		if inQuotes {
			switch r {
			case d.quote:
				next, _, perr := d.r.ReadRune()
				if perr == nil && next == d.quote {
					field.WriteRune(d.quote)
					continue
				}
				if perr == nil {
					_ = d.r.UnreadRune()
				}
				inQuotes = false
			case '\r':
				if d.peekNewline() {
					continue
				}
				field.WriteRune(r)
			case '\n':
				d.line++
				field.WriteRune(r)
			default:
				field.WriteRune(r)
			}
			continue
		}

		switch {
		case r == d.quote && field.Len() == 0 && !quoted:
			inQuotes = true
			quoted = true
		case r == d.delim:
			endField()
		case r == '\r':
			if d.peekNewline() {
				continue
			}
			d.line++
			endField()
			return record, start, nil
		case r == '\n':
			d.line++
			endField()
			return record, start, nil
		default:
			field.WriteRune(r)
		}
	}
}

// peekNewline reports whether the next rune is '\n' without consuming it.
func (d *delimitedReader) peekNewline() bool {
	next, _, err := d.r.ReadRune()
	if err != nil {
		return false
	}
	_ = d.r.UnreadRune()
	return next == '\n'
}

func (d *delimitedReader) Close() error { return nil }
