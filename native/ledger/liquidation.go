package ledger

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"synthledger/core/decimalmath"
	ledgererrors "synthledger/core/errors"
	"synthledger/core/types"
)

func ineligible(value, debt, ratio, required *big.Int) error {
	return &ledgererrors.IneligibleForLiquidationError{
		CollateralValue: value,
		Debt:            debt,
		CurrentCRatio:   ratio,
		RequiredCRatio:  decimalmath.Clone(required),
	}
}

// creditCollateral adds amount to the account's undelegated collateral.
func (tx *ledgerTx) creditCollateral(accountID types.ID, ct common.Address, amount *big.Int) error {
	tracker, err := tx.loadAccountCollateral(accountID, ct)
	if err != nil {
		return err
	}
	tracker.Available.Add(tracker.Available, amount)
	return tx.saveAccountCollateral(tracker)
}

// Liquidate closes an undercollateralized position. Its debt is spread over
// the remaining positions of the vault, the liquidation reward is paid to the
// liquidator account and the rest of its collateral stays in the vault.
func (e *Engine) Liquidate(ctx context.Context, caller common.Address, accountID, poolID types.ID, ct common.Address, liquidatorAccountID types.ID) error {
	return e.execute(ctx, "Liquidate", ModuleLiquidation, func(tx *ledgerTx) error {
		if _, err := tx.loadAccount(liquidatorAccountID); err != nil {
			return err
		}
		collateral, err := tx.loadCollateralType(ct)
		if err != nil {
			return err
		}
		state, err := tx.updateAccountDebt(poolID, ct, accountID)
		if err != nil {
			return err
		}
		debt := state.debt()
		value := state.collateralValue()
		ratio := decimalmath.Ratio(value, debt)
		if debt.Sign() <= 0 || ratio.Cmp(collateral.LiquidationRatio) >= 0 {
			return ineligible(value, debt, ratio, collateral.LiquidationRatio)
		}

		seized := state.collateral()
		state.vault.setPositionCollateral(state.pos, big.NewInt(0))
		if state.vault.Collateral.TotalShares.Sign() == 0 {
			return &ledgererrors.MustBeVaultLiquidatedError{}
		}
		state.vault.assignDebt(state.pos, new(big.Int).Neg(debt))
		if err := state.vault.distributeToAccounts(debt); err != nil {
			return err
		}
		reward := decimalmath.Min(collateral.LiquidationReward, seized)
		if err := state.vault.Collateral.Scale(new(big.Int).Sub(seized, reward)); err != nil {
			return err
		}

		target, err := tx.loadAccountCollateral(accountID, ct)
		if err != nil {
			return err
		}
		target.removePool(poolID)
		if err := tx.saveAccountCollateral(target); err != nil {
			return err
		}
		if err := tx.creditCollateral(liquidatorAccountID, ct, reward); err != nil {
			return err
		}
		if err := tx.afterCollateralChange(state, false); err != nil {
			return err
		}
		if err := tx.saveState(state); err != nil {
			return err
		}

		tx.engine.metrics.IncLiquidation("position")
		tx.engine.logger.Info("position liquidated",
			slog.String("account", accountID.String()),
			slog.String("pool", poolID.String()),
			slog.String("collateralType", ct.Hex()),
			slog.String("debt", debt.String()),
			slog.String("collateral", seized.String()))
		tx.emit(positionAttrs(accountID, poolID, ct).
			amount("debtLiquidated", debt).
			amount("collateralLiquidated", seized).
			amount("amountRewarded", reward).
			id("liquidatorAccountId", liquidatorAccountID).
			addr("sender", caller).
			event(EventTypePositionLiquidated))
		return nil
	})
}

// LiquidateVault burns up to maxUsd of caller's USD against an
// undercollateralized vault's debt and pays the liquidator account the same
// share of the vault's collateral. Burning the whole debt resets the vault.
func (e *Engine) LiquidateVault(ctx context.Context, caller common.Address, poolID types.ID, ct common.Address, liquidatorAccountID types.ID, maxUsd *big.Int) error {
	return e.execute(ctx, "LiquidateVault", ModuleLiquidation, func(tx *ledgerTx) error {
		if maxUsd == nil || maxUsd.Sign() <= 0 {
			return ledgererrors.InvalidParameter("maxUsd", "Zero amount")
		}
		if _, err := tx.loadAccount(liquidatorAccountID); err != nil {
			return err
		}
		collateral, err := tx.loadCollateralType(ct)
		if err != nil {
			return err
		}
		state, err := tx.updateVaultDebt(poolID, ct)
		if err != nil {
			return err
		}
		vault := state.vault
		debt := vault.totalDebt()
		total := vault.Collateral.TotalAmount()
		value := decimalmath.MulDecimal(total, state.price)
		ratio := decimalmath.Ratio(value, debt)
		if debt.Sign() <= 0 || ratio.Cmp(collateral.LiquidationRatio) >= 0 {
			return ineligible(value, debt, ratio, collateral.LiquidationRatio)
		}

		burned := decimalmath.Min(maxUsd, debt)
		if err := tx.debitUsd(caller, burned); err != nil {
			return err
		}
		var paid *big.Int
		full := burned.Cmp(debt) == 0
		if full {
			paid = total
			if err := tx.closeRewardsEpoch(vault); err != nil {
				return err
			}
			vault.bumpEpoch()
		} else {
			paid = decimalmath.MulDiv(total, burned, debt)
			if err := vault.distributeToAccounts(new(big.Int).Neg(burned)); err != nil {
				return err
			}
			if err := vault.Collateral.Scale(new(big.Int).Neg(paid)); err != nil {
				return err
			}
		}
		if err := tx.creditCollateral(liquidatorAccountID, ct, paid); err != nil {
			return err
		}
		if err := tx.afterCollateralChange(state, false); err != nil {
			return err
		}
		if err := tx.saveState(state); err != nil {
			return err
		}

		tx.engine.metrics.IncLiquidation("vault")
		tx.engine.logger.Info("vault liquidated",
			slog.String("pool", poolID.String()),
			slog.String("collateralType", ct.Hex()),
			slog.String("debt", burned.String()),
			slog.String("collateral", paid.String()),
			slog.Bool("full", full))
		tx.emit(vaultAttrs(poolID, ct).
			amount("debtLiquidated", burned).
			amount("collateralLiquidated", paid).
			id("liquidatorAccountId", liquidatorAccountID).
			str("full", boolString(full)).
			addr("sender", caller).
			event(EventTypeVaultLiquidated))
		return nil
	})
}
