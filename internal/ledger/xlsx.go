package ledger

import (
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/jask/vendrecon/internal/reconcile"
)

const xlsxSheet = "Ledger"

func writeXLSX(w io.Writer, records []reconcile.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), xlsxSheet); err != nil {
		return err
	}
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "vendrecon ledger",
		Version: strconv.Itoa(SchemaVersion),
	}); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(xlsxSheet)
	if err != nil {
		return err
	}
	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			r.Date,
			r.Location,
			r.SKU,
			r.Name,
			r.Family,
			r.Type,
			r.Revenue.Round(2).InexactFloat64(),
			r.Cost.Round(2).InexactFloat64(),
			r.Quantity,
			r.Profit.Round(2).InexactFloat64(),
			r.Margin.InexactFloat64(),
			string(r.Tier),
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}
