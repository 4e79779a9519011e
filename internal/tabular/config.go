package tabular

import (
	"path/filepath"
	"strings"
)

// Format identifies the physical layout of an export.
type Format string

const (
	FormatDelimited   Format = "delimited"
	FormatSpreadsheet Format = "xlsx"
)

// Config describes how one upstream export is framed. The parser logic is the same for
// every source; only the configuration varies.
type Config struct {
	Format    Format
	Delimiter rune // defaults to ','
	Quote     rune // defaults to '"'

	// SkipRows drops this many physical records (title and banner lines) before the header.
	SkipRows int
	// HeaderMarker, when set, skips records until one contains a cell equal to the marker
	// (case-insensitive, trimmed). That record starts the header. Applied after SkipRows.
	HeaderMarker string
	// HeaderRows is the number of records merged into the header; 0 means 1.
	HeaderRows int
	// NoHeader exposes columns by position ("0", "1", ...).
	NoHeader bool

	// PadShortRows pads rows narrower than the header instead of dropping them.
	PadShortRows bool
	// Sheet selects a worksheet for spreadsheet input; empty means the first one.
	Sheet string
}

func (c Config) withDefaults() Config {
	if c.Format == "" {
		c.Format = FormatDelimited
	}
	if c.Delimiter == 0 {
		c.Delimiter = ','
	}
	if c.Quote == 0 {
		c.Quote = '"'
	}
	if c.HeaderRows <= 0 {
		c.HeaderRows = 1
	}
	if c.Format == FormatSpreadsheet {
		// xlsx rows omit trailing empty cells.
		c.PadShortRows = true
	}
	return c
}

// FormatFor guesses the format from a file name.
func FormatFor(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm", ".xltx":
		return FormatSpreadsheet
	default:
		return FormatDelimited
	}
}

// DelimiterFor returns the conventional delimiter for a delimited file name.
func DelimiterFor(filename string) rune {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tsv", ".tab":
		return '\t'
	default:
		return ','
	}
}
