package ledger

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/jask/vendrecon/internal/reconcile"
)

type parquetRow struct {
	Date               string  `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8"`
	Location           string  `parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8"`
	MasterSKU          string  `parquet:"name=masterSKU, type=BYTE_ARRAY, convertedtype=UTF8"`
	MasterName         string  `parquet:"name=masterName, type=BYTE_ARRAY, convertedtype=UTF8"`
	ProductFamily      string  `parquet:"name=productFamily, type=BYTE_ARRAY, convertedtype=UTF8"`
	Type               string  `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Revenue            float64 `parquet:"name=revenue, type=DOUBLE"`
	Cost               float64 `parquet:"name=cost, type=DOUBLE"`
	Quantity           int32   `parquet:"name=quantity, type=INT32"`
	Profit             float64 `parquet:"name=profit, type=DOUBLE"`
	GrossMarginPercent float64 `parquet:"name=grossMarginPercent, type=DOUBLE"`
	MappingTier        string  `parquet:"name=mappingTier, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func toParquetRow(r reconcile.Record) *parquetRow {
	return &parquetRow{
		Date:               r.Date,
		Location:           r.Location,
		MasterSKU:          r.SKU,
		MasterName:         r.Name,
		ProductFamily:      r.Family,
		Type:               r.Type,
		Revenue:            r.Revenue.Round(2).InexactFloat64(),
		Cost:               r.Cost.Round(2).InexactFloat64(),
		Quantity:           int32(r.Quantity),
		Profit:             r.Profit.Round(2).InexactFloat64(),
		GrossMarginPercent: r.Margin.InexactFloat64(),
		MappingTier:        string(r.Tier),
	}
}

func writeParquet(w io.Writer, records []reconcile.Record) error {
	fw := writerfile.NewWriterFile(w)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		return fmt.Errorf("parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	version := strconv.Itoa(SchemaVersion)
	pw.Footer.KeyValueMetadata = append(pw.Footer.KeyValueMetadata, &parquet.KeyValue{
		Key:   "vendrecon.ledger.schema_version",
		Value: &version,
	})

	for _, r := range records {
		if err := pw.Write(toParquetRow(r)); err != nil {
			_ = pw.WriteStop()
			return fmt.Errorf("parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("parquet flush: %w", err)
	}
	return nil
}
