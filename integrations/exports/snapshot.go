// Package exports renders point in time position snapshots of a ledger for
// reconciliation and reporting.
package exports

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"synthledger/core/decimalmath"
	"synthledger/core/types"
	"synthledger/native/ledger"
)

// PositionSource is the read side of the ledger consumed by exports.
type PositionSource interface {
	ListVaultKeys(ctx context.Context) ([]ledger.VaultKey, error)
	ListPositions(ctx context.Context, poolID types.ID, collateralType common.Address) ([]ledger.Position, error)
}

// Snapshot is every position of every vault at a single instant.
type Snapshot struct {
	GeneratedAt time.Time
	Positions   []ledger.Position
}

// TakeSnapshot walks all vaults of the source.
func TakeSnapshot(ctx context.Context, source PositionSource, now time.Time) (*Snapshot, error) {
	keys, err := source.ListVaultKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("exports: list vaults: %w", err)
	}
	snap := &Snapshot{GeneratedAt: now.UTC()}
	for _, key := range keys {
		positions, err := source.ListPositions(ctx, key.PoolID, key.CollateralType)
		if err != nil {
			return nil, fmt.Errorf("exports: list positions of pool %s / %s: %w", key.PoolID, key.CollateralType.Hex(), err)
		}
		snap.Positions = append(snap.Positions, positions...)
	}
	return snap, nil
}

// Totals sums collateral and debt across the snapshot.
func (s *Snapshot) Totals() (collateral, debt *big.Int) {
	collateral, debt = big.NewInt(0), big.NewInt(0)
	for _, pos := range s.Positions {
		if pos.Collateral != nil {
			collateral.Add(collateral, pos.Collateral)
		}
		if pos.Debt != nil {
			debt.Add(debt, pos.Debt)
		}
	}
	return collateral, debt
}

// row is the flat textual form shared by every export format.
type row struct {
	PoolID          string
	CollateralType  string
	AccountID       string
	Collateral      string
	CollateralValue string
	Debt            string
	CollateralRatio string
}

func toRow(pos ledger.Position) row {
	return row{
		PoolID:          pos.PoolID.String(),
		CollateralType:  pos.CollateralType.Hex(),
		AccountID:       pos.AccountID.String(),
		Collateral:      decimalmath.FormatD18(pos.Collateral),
		CollateralValue: decimalmath.FormatD18(pos.CollateralValue),
		Debt:            decimalmath.FormatD18(pos.Debt),
		CollateralRatio: decimalmath.FormatD18(pos.CollateralRatio),
	}
}
