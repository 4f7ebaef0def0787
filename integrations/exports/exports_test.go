package exports

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"synthledger/core/decimalmath"
	"synthledger/core/types"
	"synthledger/native/ledger"
)

type stubSource struct {
	keys      []ledger.VaultKey
	positions map[string][]ledger.Position
	err       error
}

func (s stubSource) ListVaultKeys(context.Context) ([]ledger.VaultKey, error) {
	return s.keys, s.err
}

func (s stubSource) ListPositions(_ context.Context, poolID types.ID, ct common.Address) ([]ledger.Position, error) {
	return s.positions[poolID.String()+ct.Hex()], nil
}

var (
	snx = common.HexToAddress("0x5e")
	eth = common.HexToAddress("0xe7")
)

func d18(v int64) *big.Int { return new(big.Int).Mul(big.NewInt(v), decimalmath.UnitD18()) }

func samplePosition(pool, account uint64, ct common.Address, collateral, debt int64) ledger.Position {
	ratio := decimalmath.Infinity()
	if debt > 0 {
		ratio = decimalmath.DivDecimal(d18(collateral), d18(debt))
	}
	return ledger.Position{
		AccountID:       types.NewID(account),
		PoolID:          types.NewID(pool),
		CollateralType:  ct,
		Collateral:      d18(collateral),
		CollateralValue: d18(collateral),
		Debt:            d18(debt),
		CollateralRatio: ratio,
	}
}

func sampleSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	source := stubSource{
		keys: []ledger.VaultKey{{PoolID: types.NewID(1), CollateralType: snx}, {PoolID: types.NewID(2), CollateralType: eth}},
		positions: map[string][]ledger.Position{
			"1" + snx.Hex(): {samplePosition(1, 10, snx, 1000, 250), samplePosition(1, 11, snx, 500, 0)},
			"2" + eth.Hex(): {samplePosition(2, 10, eth, 40, 10)},
		},
	}
	snap, err := TakeSnapshot(context.Background(), source, time.Unix(1_700_000_000, 0))
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snap
}

func TestTakeSnapshot(t *testing.T) {
	snap := sampleSnapshot(t)
	if len(snap.Positions) != 3 {
		t.Fatalf("expected 3 positions, got %d", len(snap.Positions))
	}
	collateral, debt := snap.Totals()
	if collateral.Cmp(d18(1540)) != 0 || debt.Cmp(d18(260)) != 0 {
		t.Fatalf("unexpected totals %s / %s", collateral, debt)
	}

	_, err := TakeSnapshot(context.Background(), stubSource{err: errors.New("closed")}, time.Now())
	if err == nil || !strings.Contains(err.Error(), "list vaults") {
		t.Fatalf("expected list error, got %v", err)
	}
}

func TestPositionsCSV(t *testing.T) {
	data, checksum, err := PositionsCSV(sampleSnapshot(t))
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if len(checksum) != 64 {
		t.Fatalf("unexpected checksum %q", checksum)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header and 3 rows, got %d", len(lines))
	}
	if lines[0] != strings.Join(csvHeader, ",") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	want := "1," + snx.Hex() + ",10,1000,1000,250,4,2023-11-14T22:13:20Z"
	if lines[1] != want {
		t.Fatalf("unexpected row\n got %s\nwant %s", lines[1], want)
	}
	if !strings.Contains(lines[2], ",0,inf,") {
		t.Fatalf("debt free position should render an infinite ratio: %s", lines[2])
	}

	again, sum, err := PositionsCSV(sampleSnapshot(t))
	if err != nil || !bytes.Equal(again, data) || sum != checksum {
		t.Fatalf("export is not deterministic")
	}
}

func TestPositionsJSONL(t *testing.T) {
	data, checksum, err := PositionsJSONL(sampleSnapshot(t))
	if err != nil {
		t.Fatalf("jsonl: %v", err)
	}
	if checksum == "" {
		t.Fatalf("expected checksum")
	}
	output := string(data)
	if strings.Count(output, "\n") != 3 {
		t.Fatalf("expected 3 lines: %s", output)
	}
	if !strings.Contains(output, `"collateral_ratio":"4"`) {
		t.Fatalf("missing ratio: %s", output)
	}
}

func TestWritePositionsParquet(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePositionsParquet(&buf, sampleSnapshot(t)); err != nil {
		t.Fatalf("parquet: %v", err)
	}
	data := buf.Bytes()
	if len(data) < 8 || string(data[:4]) != "PAR1" || string(data[len(data)-4:]) != "PAR1" {
		t.Fatalf("output is not a parquet file (%d bytes)", len(data))
	}
}
