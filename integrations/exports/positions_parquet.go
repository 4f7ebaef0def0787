package exports

import (
	"fmt"
	"io"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// Amounts are kept as decimal strings; D18 values overflow every parquet
// numeric type.
type parquetRow struct {
	PoolID          string `parquet:"name=pool_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	CollateralType  string `parquet:"name=collateral_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	AccountID       string `parquet:"name=account_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Collateral      string `parquet:"name=collateral, type=BYTE_ARRAY, convertedtype=UTF8"`
	CollateralValue string `parquet:"name=collateral_value, type=BYTE_ARRAY, convertedtype=UTF8"`
	Debt            string `parquet:"name=debt, type=BYTE_ARRAY, convertedtype=UTF8"`
	CollateralRatio string `parquet:"name=collateral_ratio, type=BYTE_ARRAY, convertedtype=UTF8"`
	GeneratedAt     string `parquet:"name=generated_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// WritePositionsParquet streams the snapshot as a snappy compressed parquet
// file into w.
func WritePositionsParquet(w io.Writer, snap *Snapshot) error {
	fw := writerfile.NewWriterFile(w)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		return fmt.Errorf("exports: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	generated := snap.GeneratedAt.UTC().Format(time.RFC3339)
	for _, pos := range snap.Positions {
		r := toRow(pos)
		pr := &parquetRow{
			PoolID:          r.PoolID,
			CollateralType:  r.CollateralType,
			AccountID:       r.AccountID,
			Collateral:      r.Collateral,
			CollateralValue: r.CollateralValue,
			Debt:            r.Debt,
			CollateralRatio: r.CollateralRatio,
			GeneratedAt:     generated,
		}
		if err := pw.Write(pr); err != nil {
			_ = pw.WriteStop()
			return fmt.Errorf("exports: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("exports: parquet finalize: %w", err)
	}
	return nil
}
