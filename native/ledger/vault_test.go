package ledger

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"synthledger/core/types"
)

// requireConserved checks that the vault's totals equal the sum over its
// positions, allowing one wei of truncation per position.
func (f *fixture) requireConserved(step string) {
	f.t.Helper()
	positions, err := f.engine.ListPositions(ctx, f.poolID, f.snx)
	require.NoError(f.t, err)
	collateral, debt := big.NewInt(0), big.NewInt(0)
	for _, pos := range positions {
		collateral.Add(collateral, pos.Collateral)
		debt.Add(debt, pos.Debt)
	}
	vault := f.vault()
	tolerance := int64(len(positions)) + 1
	requireClose(f.t, vault.Collateral, collateral, tolerance, step+": collateral")
	requireClose(f.t, vault.Debt, debt, tolerance, step+": debt")
}

func TestVaultConservation(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)
	bob := f.openPosition(f.bob, 2, 500)
	carol := f.openPosition(f.carol, 3, 2500)
	f.requireConserved("open")

	require.NoError(t, f.engine.ReportDebt(ctx, f.marketAddr, f.marketID, d18(333)))
	f.requireConserved("report")

	require.NoError(t, f.engine.MintUsd(ctx, f.alice, alice, f.poolID, f.snx, d18(200)))
	require.NoError(t, f.engine.MintUsd(ctx, f.carol, carol, f.poolID, f.snx, d18(701)))
	f.requireConserved("mint")

	f.setPrice("1.3")
	require.NoError(t, f.engine.ReportDebt(ctx, f.marketAddr, f.marketID, d18(-57)))
	f.requireConserved("reprice")

	f.delegate(f.bob, bob, 100)
	f.advance(time.Minute)
	f.delegate(f.alice, alice, 800)
	f.requireConserved("redelegate")

	require.NoError(t, f.engine.BurnUsd(ctx, f.carol, carol, f.poolID, f.snx, d18(300)))
	_, err := f.engine.AssociateDebt(ctx, f.marketAddr, f.marketID, f.poolID, f.snx, bob, d18(20))
	require.NoError(t, err)
	f.requireConserved("burn and associate")

	f.setPrice("0.1")
	liquidator := f.openAccount(f.owner, 9, 0)
	require.NoError(t, f.engine.Liquidate(ctx, f.owner, carol, f.poolID, f.snx, liquidator))
	f.requireConserved("liquidate")

	positions, err := f.engine.ListPositions(ctx, f.poolID, f.snx)
	require.NoError(t, err)
	ids := make([]types.ID, 0, len(positions))
	for _, pos := range positions {
		ids = append(ids, pos.AccountID)
	}
	require.ElementsMatch(t, []types.ID{alice, bob}, ids)
}

func TestListVaultKeys(t *testing.T) {
	f := newFixture(t)
	f.openPosition(f.alice, 1, 10)

	keys, err := f.engine.ListVaultKeys(ctx)
	require.NoError(t, err)
	require.Equal(t, []VaultKey{{PoolID: f.poolID, CollateralType: f.snx}}, keys)
}
