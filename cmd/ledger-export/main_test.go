package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	ledgerconfig "synthledger/config"
	"synthledger/core/decimalmath"
	"synthledger/core/types"
	"synthledger/native/ledger"
	"synthledger/native/oracle"
	"synthledger/storage"
)

const testConfig = `
DataDir = "%DATA%"
Owner = "0x00000000000000000000000000000000000000a1"

[Oracle.Prices]
"0x000000000000000000000000000000000000005e" = "2"

[[Collateral]]
Address = "0x000000000000000000000000000000000000005e"
IssuanceRatio = "2"
LiquidationRatio = "1.5"
LiquidationReward = "1"
MinDelegation = "0"
DepositingEnabled = true

[[Pools]]
ID = "1"
Owner = "0x00000000000000000000000000000000000000a1"
Name = "export"
`

// seedLedger writes a ledger with one 50 SNX position into dir.
func seedLedger(t *testing.T, dir string) string {
	t.Helper()
	ctx := context.Background()
	dataDir := filepath.Join(dir, "ledger")
	path := filepath.Join(dir, "ledger.toml")
	require.NoError(t, os.WriteFile(path, []byte(strings.ReplaceAll(testConfig, "%DATA%", dataDir)), 0o600))

	cfg, err := ledgerconfig.Load(path)
	require.NoError(t, err)
	db, err := storage.NewLevelDB(dataDir)
	require.NoError(t, err)
	defer db.Close()

	prices := oracle.NewStatic(0)
	engine := ledger.NewEngine(db)
	engine.SetOracle(prices)
	require.NoError(t, ledgerconfig.Apply(ctx, cfg, engine, prices))

	user := common.HexToAddress("0xb0")
	snx := common.HexToAddress("0x5e")
	amount, err := decimalmath.ParseD18("50")
	require.NoError(t, err)
	require.NoError(t, engine.CreateAccount(ctx, user, types.NewID(4)))
	require.NoError(t, engine.Deposit(ctx, user, types.NewID(4), snx, amount))
	require.NoError(t, engine.DelegateCollateral(ctx, user, types.NewID(4), types.NewID(1), snx, amount, decimalmath.UnitD18()))
	return path
}

func TestRunWritesCSV(t *testing.T) {
	dir := t.TempDir()
	path := seedLedger(t, dir)
	out := filepath.Join(dir, "positions.csv")

	var stderr bytes.Buffer
	require.NoError(t, run(context.Background(), options{configPath: path, format: "CSV", out: out}, &bytes.Buffer{}, &stderr))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[1], "1,"+common.HexToAddress("0x5e").Hex()+",4,50,100,0,inf,"), lines[1])
	require.Contains(t, stderr.String(), "exported 1 positions: collateral 50 debt 0 sha256 ")
}

func TestRunWritesParquetToStdout(t *testing.T) {
	dir := t.TempDir()
	path := seedLedger(t, dir)

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), options{configPath: path, format: "parquet", out: "-"}, &stdout, &stderr))
	require.True(t, bytes.HasPrefix(stdout.Bytes(), []byte("PAR1")))
	require.NotContains(t, stderr.String(), "sha256")
}

func TestRunRejectsUnknownFormat(t *testing.T) {
	err := run(context.Background(), options{format: "xml"}, &bytes.Buffer{}, &bytes.Buffer{})
	require.ErrorContains(t, err, "unknown format")
}
