package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	ledgerconfig "synthledger/config"
	"synthledger/core/decimalmath"
	"synthledger/integrations/exports"
	"synthledger/native/ledger"
	"synthledger/native/oracle"
	"synthledger/storage"
)

const (
	formatCSV     = "csv"
	formatJSONL   = "jsonl"
	formatParquet = "parquet"
)

type options struct {
	configPath string
	dataDir    string
	format     string
	out        string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "./ledger.toml", "ledger parameter file supplying oracle prices and the data directory")
	flag.StringVar(&opts.dataDir, "datadir", "", "leveldb directory; overrides DataDir from the config")
	flag.StringVar(&opts.format, "format", formatCSV, "export format: csv, jsonl or parquet")
	flag.StringVar(&opts.out, "out", "-", "output path, - for stdout")
	flag.Parse()

	if err := run(context.Background(), opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "ledger-export: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	format := strings.ToLower(strings.TrimSpace(opts.format))
	switch format {
	case formatCSV, formatJSONL, formatParquet:
	default:
		return fmt.Errorf("unknown format %q", opts.format)
	}

	cfg, err := ledgerconfig.Load(opts.configPath)
	if err != nil {
		return err
	}
	params, err := cfg.Params()
	if err != nil {
		return err
	}
	dataDir := strings.TrimSpace(opts.dataDir)
	if dataDir == "" {
		dataDir = cfg.DataDir
	}

	db, err := storage.NewLevelDB(dataDir)
	if err != nil {
		return fmt.Errorf("open %s: %w", dataDir, err)
	}
	defer db.Close()

	// exports value positions at the configured prices regardless of age
	prices := oracle.NewStatic(0)
	for ct, price := range params.Prices {
		if err := prices.Set(ct, price); err != nil {
			return fmt.Errorf("seed price %s: %w", ct.Hex(), err)
		}
	}
	engine := ledger.NewEngine(db)
	engine.SetOracle(prices)

	snap, err := exports.TakeSnapshot(ctx, engine, time.Now())
	if err != nil {
		return err
	}

	out := stdout
	if opts.out != "" && opts.out != "-" {
		file, err := os.Create(opts.out)
		if err != nil {
			return fmt.Errorf("create %s: %w", opts.out, err)
		}
		defer file.Close()
		out = file
	}
	buffered := bufio.NewWriter(out)

	var checksum string
	switch format {
	case formatParquet:
		err = exports.WritePositionsParquet(buffered, snap)
	default:
		var data []byte
		if format == formatCSV {
			data, checksum, err = exports.PositionsCSV(snap)
		} else {
			data, checksum, err = exports.PositionsJSONL(snap)
		}
		if err == nil {
			_, err = buffered.Write(data)
		}
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", format, err)
	}
	if err := buffered.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	collateral, debt := snap.Totals()
	summary := fmt.Sprintf("exported %d positions: collateral %s debt %s", len(snap.Positions), decimalmath.FormatD18(collateral), decimalmath.FormatD18(debt))
	if checksum != "" {
		summary += " sha256 " + checksum
	}
	fmt.Fprintln(stderr, summary)
	return nil
}
