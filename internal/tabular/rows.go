package tabular

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrHeaderNotFound is returned by Open when Config.HeaderMarker never appears.
var ErrHeaderNotFound = errors.New("header row not found")

// Warning is a non-fatal issue found while reading an export.
type Warning struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

type recordReader interface {
	Read() ([]string, int, error)
	Close() error
}

// Row is one data record. Values keep the column order of the export.
type Row struct {
	Line   int
	Values []string

	header []string
	index  map[string]int
}

// Get returns the value of the named column. Names match case-insensitively with
// surrounding and repeated whitespace ignored; unknown columns yield "".
func (r Row) Get(name string) string {
	i, ok := r.index[headerKey(name)]
	if !ok || i >= len(r.Values) {
		return ""
	}
	return r.Values[i]
}

// Has reports whether the export has the named column.
func (r Row) Has(name string) bool {
	_, ok := r.index[headerKey(name)]
	return ok
}

// At returns the value at position i or "".
func (r Row) At(i int) string {
	if i < 0 || i >= len(r.Values) {
		return ""
	}
	return r.Values[i]
}

// Map copies the row into a header -> value map.
func (r Row) Map() map[string]string {
	out := make(map[string]string, len(r.header))
	for i, h := range r.header {
		out[h] = r.At(i)
	}
	return out
}

// Rows is a lazy cursor over the data records of one export.
//
//	rows, err := tabular.Open(f, cfg)
//	defer rows.Close()
//	for rows.Next() { row := rows.Row() ... }
//	if err := rows.Err(); err != nil { ... }
type Rows struct {
	src      recordReader
	cfg      Config
	header   []string
	index    map[string]int
	width    int
	row      Row
	err      error
	skipped  int
	warnings []Warning
	pending  []string
	pendLine int
}

// Open reads the banner and header of r and returns a cursor positioned before the first
// data record.
func Open(r io.Reader, cfg Config) (*Rows, error) {
	cfg = cfg.withDefaults()
	var src recordReader
	switch cfg.Format {
	case FormatSpreadsheet:
		sr, err := newSheetReader(r, cfg.Sheet)
		if err != nil {
			return nil, err
		}
		src = sr
	case FormatDelimited:
		decoded, _, err := NewDecoder(r)
		if err != nil {
			return nil, fmt.Errorf("decode export: %w", err)
		}
		src = newDelimitedReader(decoded, cfg.Delimiter, cfg.Quote)
	default:
		return nil, fmt.Errorf("unknown format %q", cfg.Format)
	}

	rows := &Rows{src: src, cfg: cfg}
	if err := rows.readHeader(); err != nil {
		_ = src.Close()
		return nil, err
	}
	return rows, nil
}

func (r *Rows) readHeader() error {
	for i := 0; i < r.cfg.SkipRows; i++ {
		if _, _, err := r.src.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("export ended inside %d banner rows", r.cfg.SkipRows)
			}
			if !errors.Is(err, ErrUnterminatedQuote) {
				return err
			}
		}
	}

	var first []string
	firstLine := 0
	if r.cfg.HeaderMarker != "" {
		marker := headerKey(r.cfg.HeaderMarker)
		for {
			rec, line, err := r.src.Read()
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: %q", ErrHeaderNotFound, r.cfg.HeaderMarker)
			}
			if err != nil && !errors.Is(err, ErrUnterminatedQuote) {
				return err
			}
			if containsCell(rec, marker) {
				first, firstLine = rec, line
				break
			}
		}
	}

	if r.cfg.NoHeader {
		if first != nil {
			r.pending, r.pendLine = first, firstLine
		}
		return nil
	}

	headerRecs := make([][]string, 0, r.cfg.HeaderRows)
	if first != nil {
		headerRecs = append(headerRecs, first)
	}
	for len(headerRecs) < r.cfg.HeaderRows {
		rec, _, err := r.src.Read()
		if errors.Is(err, io.EOF) {
			if len(headerRecs) == 0 {
				return fmt.Errorf("empty export: no header row found")
			}
			break
		}
		if err != nil && !errors.Is(err, ErrUnterminatedQuote) {
			return err
		}
		if len(headerRecs) == 0 && isBlank(rec) {
			continue
		}
		headerRecs = append(headerRecs, rec)
	}
	r.setHeader(mergeHeader(headerRecs))
	return nil
}

func (r *Rows) setHeader(header []string) {
	r.header = header
	r.width = len(header)
	r.index = make(map[string]int, len(header))
	for i, h := range header {
		key := headerKey(h)
		if _, dup := r.index[key]; dup || key == "" {
			continue
		}
		r.index[key] = i
	}
}

func (r *Rows) positionalHeader(width int) {
	header := make([]string, width)
	for i := range header {
		header[i] = strconv.Itoa(i)
	}
	r.setHeader(header)
}

// Next advances to the next well-formed record. Malformed records are dropped and counted.
func (r *Rows) Next() bool {
	if r.err != nil {
		return false
	}
	for {
		rec, line, err := r.nextRecord()
		if errors.Is(err, io.EOF) {
			return false
		}
		if err != nil {
			if !errors.Is(err, ErrUnterminatedQuote) {
				r.err = err
				return false
			}
			r.drop(line, err.Error())
			continue
		}
		if isBlank(rec) {
			continue
		}
		if r.header == nil {
			r.positionalHeader(len(rec))
		}
		rec, ok := r.fit(rec)
		if !ok {
			r.drop(line, fmt.Sprintf("row has %d columns, expected %d", len(rec), r.width))
			continue
		}
		r.row = Row{Line: line, Values: rec, header: r.header, index: r.index}
		return true
	}
}

func (r *Rows) nextRecord() ([]string, int, error) {
	if r.pending != nil {
		rec, line := r.pending, r.pendLine
		r.pending = nil
		return rec, line, nil
	}
	return r.src.Read()
}

// fit reconciles a record with the header width. Trailing empty cells beyond the header are
// tolerated (exports often end rows with a delimiter).
func (r *Rows) fit(rec []string) ([]string, bool) {
	switch {
	case len(rec) == r.width:
		return rec, true
	case len(rec) > r.width:
		if !isBlank(rec[r.width:]) {
			return rec, false
		}
		return rec[:r.width], true
	case r.cfg.PadShortRows:
		padded := make([]string, r.width)
		copy(padded, rec)
		return padded, true
	default:
		return rec, false
	}
}

func (r *Rows) drop(line int, msg string) {
	r.skipped++
	r.warnings = append(r.warnings, Warning{Line: line, Message: msg})
}

// Row returns the current record.
func (r *Rows) Row() Row { return r.row }

// Err returns the first fatal read error.
func (r *Rows) Err() error { return r.err }

// Header returns the (merged, trimmed) header names.
func (r *Rows) Header() []string { return append([]string(nil), r.header...) }

// Has reports whether the header has the named column, matched like Row.Get.
func (r *Rows) Has(name string) bool {
	_, ok := r.index[headerKey(name)]
	return ok
}

// Skipped counts malformed records dropped so far.
func (r *Rows) Skipped() int { return r.skipped }

// Warnings lists dropped records with reasons.
func (r *Rows) Warnings() []Warning { return append([]Warning(nil), r.warnings...) }

// Close releases the underlying reader.
func (r *Rows) Close() error { return r.src.Close() }

func mergeHeader(recs [][]string) []string {
	width := 0
	for _, rec := range recs {
		if len(rec) > width {
			width = len(rec)
		}
	}
	header := make([]string, width)
	for i := range header {
		var parts []string
		for _, rec := range recs {
			if i < len(rec) {
				if v := strings.TrimSpace(rec[i]); v != "" {
					parts = append(parts, v)
				}
			}
		}
		header[i] = strings.Join(parts, " ")
	}
	return header
}

func headerKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func containsCell(rec []string, key string) bool {
	for _, v := range rec {
		if headerKey(v) == key {
			return true
		}
	}
	return false
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
