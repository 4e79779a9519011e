package tabular

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// sheetReader streams worksheet rows. Cells are read raw so dates arrive as Excel serial
// numbers and amounts without display formatting.
type sheetReader struct {
	f    *excelize.File
	rows *excelize.Rows
	line int
}

func newSheetReader(r io.Reader, sheet string) (*sheetReader, error) {
	f, err := excelize.OpenReader(r, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			_ = f.Close()
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open sheet %q: %w", sheet, err)
	}
	return &sheetReader{f: f, rows: rows}, nil
}

func (s *sheetReader) Read() ([]string, int, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, s.line, err
		}
		return nil, s.line, io.EOF
	}
	s.line++
	cols, err := s.rows.Columns(excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, s.line, err
	}
	return cols, s.line, nil
}

func (s *sheetReader) Close() error {
	rerr := s.rows.Close()
	ferr := s.f.Close()
	if rerr != nil {
		return rerr
	}
	return ferr
}
