package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	ledgererrors "synthledger/core/errors"
	"synthledger/core/types"
)

func TestLiquidateSpreadsDebtOverVault(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)
	bob := f.openPosition(f.bob, 2, 1000)
	liquidator := f.openAccount(f.carol, 3, 0)
	require.NoError(t, f.engine.MintUsd(ctx, f.alice, alice, f.poolID, f.snx, d18(600)))

	err := f.engine.Liquidate(ctx, f.carol, bob, f.poolID, f.snx, liquidator)
	ineligible := requireErr[*ledgererrors.IneligibleForLiquidationError](t, err)
	require.Zero(t, ineligible.Debt.Sign())

	f.setPrice("0.6")
	require.NoError(t, f.engine.Liquidate(ctx, f.carol, alice, f.poolID, f.snx, liquidator))

	liquidated := f.position(alice)
	require.Zero(t, liquidated.Collateral.Sign())
	require.Zero(t, liquidated.Debt.Sign())

	survivor := f.position(bob)
	require.Equal(t, d18(1980), survivor.Collateral)
	requireClose(t, d18(600), survivor.Debt, 1, "bob debt")

	vault := f.vault()
	require.Equal(t, d18(1980), vault.Collateral)
	requireClose(t, d18(600), vault.Debt, 1, "vault debt")

	reward, err := f.engine.GetAccountCollateral(ctx, liquidator, f.snx)
	require.NoError(t, err)
	require.Equal(t, d18(20), reward.Available)

	target, err := f.engine.GetAccountCollateral(ctx, alice, f.snx)
	require.NoError(t, err)
	require.Zero(t, target.Deposited.Sign())

	evts := f.emitter.ofType(EventTypePositionLiquidated)
	require.Len(t, evts, 1)
	require.Equal(t, d18(600).String(), evts[0].Attributes["debtLiquidated"])
	require.Equal(t, d18(1000).String(), evts[0].Attributes["collateralLiquidated"])
	require.Equal(t, d18(20).String(), evts[0].Attributes["amountRewarded"])
}

func TestLiquidateLastPositionRequiresVaultLiquidation(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)
	liquidator := f.openAccount(f.carol, 2, 0)
	require.NoError(t, f.engine.MintUsd(ctx, f.alice, alice, f.poolID, f.snx, d18(600)))
	f.setPrice("0.6")

	err := f.engine.Liquidate(ctx, f.carol, alice, f.poolID, f.snx, liquidator)
	requireErr[*ledgererrors.MustBeVaultLiquidatedError](t, err)
	require.Equal(t, d18(1000), f.position(alice).Collateral)
}

func TestLiquidateUnknownLiquidator(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)
	err := f.engine.Liquidate(ctx, f.carol, alice, f.poolID, f.snx, types.NewID(99))
	requireErr[*ledgererrors.AccountNotFoundError](t, err)
}

func TestLiquidateVaultPartialThenFull(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)
	liquidator := f.openAccount(f.carol, 2, 0)
	require.NoError(t, f.engine.MintUsd(ctx, f.alice, alice, f.poolID, f.snx, d18(600)))
	require.NoError(t, f.engine.TransferUsd(ctx, f.alice, f.carol, d18(600)))

	err := f.engine.LiquidateVault(ctx, f.carol, f.poolID, f.snx, liquidator, d18(300))
	requireErr[*ledgererrors.IneligibleForLiquidationError](t, err)

	f.setPrice("0.6")
	err = f.engine.LiquidateVault(ctx, f.carol, f.poolID, f.snx, liquidator, d18(0))
	requireInvalidParameter(t, err, "maxUsd")

	require.NoError(t, f.engine.LiquidateVault(ctx, f.carol, f.poolID, f.snx, liquidator, d18(300)))
	vault := f.vault()
	require.Equal(t, d18(500), vault.Collateral)
	require.Equal(t, d18(300), vault.Debt)
	pos := f.position(alice)
	require.Equal(t, d18(500), pos.Collateral)
	require.Equal(t, d18(300), pos.Debt)

	paid, err := f.engine.GetAccountCollateral(ctx, liquidator, f.snx)
	require.NoError(t, err)
	require.Equal(t, d18(500), paid.Available)

	// burns are capped at the outstanding debt
	require.NoError(t, f.engine.LiquidateVault(ctx, f.carol, f.poolID, f.snx, liquidator, d18(1000)))
	vault = f.vault()
	require.Equal(t, uint64(2), vault.Epoch)
	require.Zero(t, vault.Collateral.Sign())
	require.Zero(t, vault.Debt.Sign())
	pos = f.position(alice)
	require.Zero(t, pos.Collateral.Sign())
	require.Zero(t, pos.Debt.Sign())

	paid, err = f.engine.GetAccountCollateral(ctx, liquidator, f.snx)
	require.NoError(t, err)
	require.Equal(t, d18(1000), paid.Available)
	balance, err := f.engine.GetUsdBalance(ctx, f.carol)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())

	evts := f.emitter.ofType(EventTypeVaultLiquidated)
	require.Len(t, evts, 2)
	require.Equal(t, "false", evts[0].Attributes["full"])
	require.Equal(t, "true", evts[1].Attributes["full"])
}

func TestVaultEpochResetAllowsFreshDelegation(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)
	liquidator := f.openAccount(f.carol, 2, 0)
	require.NoError(t, f.engine.MintUsd(ctx, f.alice, alice, f.poolID, f.snx, d18(600)))
	require.NoError(t, f.engine.TransferUsd(ctx, f.alice, f.carol, d18(600)))
	f.setPrice("0.6")
	require.NoError(t, f.engine.LiquidateVault(ctx, f.carol, f.poolID, f.snx, liquidator, d18(600)))

	f.setPrice("1")
	bob := f.openPosition(f.bob, 3, 400)
	require.Equal(t, d18(400), f.position(bob).Collateral)
	require.Equal(t, d18(400), f.vault().Collateral)
	require.Zero(t, f.position(alice).Collateral.Sign())
}
