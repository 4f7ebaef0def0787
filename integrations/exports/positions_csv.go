package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"time"
)

var csvHeader = []string{"pool_id", "collateral_type", "account_id", "collateral", "collateral_value", "debt", "collateral_ratio", "generated_at"}

// PositionsCSV builds a CSV export of the snapshot and returns the serialised
// data alongside a SHA-256 checksum of the payload.
func PositionsCSV(snap *Snapshot) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write(csvHeader); err != nil {
		return nil, "", err
	}
	generated := snap.GeneratedAt.UTC().Format(time.RFC3339)
	for _, pos := range snap.Positions {
		r := toRow(pos)
		record := []string{r.PoolID, r.CollateralType, r.AccountID, r.Collateral, r.CollateralValue, r.Debt, r.CollateralRatio, generated}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	return checksummed(buffer.Bytes())
}

// PositionsJSONL builds a JSON Lines export of the snapshot and returns the
// serialised payload alongside a checksum.
func PositionsJSONL(snap *Snapshot) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	generated := snap.GeneratedAt.UTC().Format(time.RFC3339)
	for _, pos := range snap.Positions {
		r := toRow(pos)
		payload := map[string]string{
			"pool_id":          r.PoolID,
			"collateral_type":  r.CollateralType,
			"account_id":       r.AccountID,
			"collateral":       r.Collateral,
			"collateral_value": r.CollateralValue,
			"debt":             r.Debt,
			"collateral_ratio": r.CollateralRatio,
			"generated_at":     generated,
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	return checksummed(buffer.Bytes())
}

func checksummed(data []byte) ([]byte, string, error) {
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
