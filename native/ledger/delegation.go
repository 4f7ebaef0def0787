package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"synthledger/core/decimalmath"
	ledgererrors "synthledger/core/errors"
	"synthledger/core/types"
)

// DelegateCollateral sets the account's delegated amount in the vault to
// amount. Only a leverage of exactly 1.0 is supported.
func (e *Engine) DelegateCollateral(ctx context.Context, caller common.Address, accountID, poolID types.ID, ct common.Address, amount, leverage *big.Int) error {
	return e.execute(ctx, "DelegateCollateral", ModuleDelegation, func(tx *ledgerTx) error {
		if err := checkLeverage(leverage); err != nil {
			return err
		}
		if _, err := tx.authorize(accountID, caller, PermissionDelegate); err != nil {
			return err
		}
		return tx.delegate(caller, accountID, poolID, ct, amount, leverage)
	})
}

func checkLeverage(leverage *big.Int) error {
	if leverage == nil || leverage.Cmp(decimalmath.UnitD18()) != 0 {
		return &ledgererrors.InvalidLeverageError{Leverage: decimalmath.Clone(leverage)}
	}
	return nil
}

// delegate applies a delegation change without checking permissions.
func (tx *ledgerTx) delegate(sender common.Address, accountID, poolID types.ID, ct common.Address, amount, leverage *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ledgererrors.InvalidParameter("amount", "Must be non-negative")
	}
	if _, err := tx.loadPool(poolID); err != nil {
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
	current := state.collateral()
	if current.Cmp(amount) == 0 {
		return &ledgererrors.InvalidCollateralAmountError{}
	}
	tracker, err := tx.loadAccountCollateral(accountID, ct)
	if err != nil {
		return err
	}

	increasing := amount.Cmp(current) > 0
	delta := new(big.Int).Sub(amount, current)
	if increasing {
		if delta.Cmp(tracker.Available) > 0 {
			return &ledgererrors.InsufficientAccountCollateralError{Amount: delta}
		}
		if !collateral.DepositingEnabled {
			return &ledgererrors.CollateralDepositDisabledError{CollateralType: ct}
		}
		poolCfg, err := tx.loadPoolCollateral(poolID, ct)
		if err != nil {
			return err
		}
		if poolCfg.CollateralLimit.Sign() > 0 {
			total := new(big.Int).Add(state.vault.Collateral.TotalAmount(), delta)
			if total.Cmp(poolCfg.CollateralLimit) > 0 {
				return &ledgererrors.PoolCollateralLimitExceededError{
					PoolID:         poolID,
					CollateralType: ct,
					Amount:         total,
					Limit:          decimalmath.Clone(poolCfg.CollateralLimit),
				}
			}
		}
	}
	if amount.Sign() != 0 && amount.Cmp(collateral.MinDelegation) < 0 {
		return &ledgererrors.InsufficientDelegationError{MinDelegation: decimalmath.Clone(collateral.MinDelegation)}
	}
	if !increasing {
		minDelegateTime, err := tx.maxMinDelegateTime(state.pool)
		if err != nil {
			return err
		}
		if until := state.pos.LastDelegationTime + minDelegateTime; tx.now < until {
			return &ledgererrors.PoolExitTemporaryLockError{PoolID: poolID, Until: until}
		}
		if err := tx.requireIssuanceRatio(state, collateral, amount, state.debt()); err != nil {
			return err
		}
	}

	tracker.Available.Sub(tracker.Available, delta)
	if amount.Sign() == 0 {
		tracker.removePool(poolID)
	} else {
		tracker.addPool(poolID)
	}
	if err := tx.saveAccountCollateral(tracker); err != nil {
		return err
	}
	state.vault.setPositionCollateral(state.pos, amount)
	state.pos.LastDelegationTime = tx.now
	if err := tx.afterCollateralChange(state, !increasing); err != nil {
		return err
	}
	if err := tx.saveState(state); err != nil {
		return err
	}
	tx.emit(positionAttrs(accountID, poolID, ct).
		amount("amount", amount).
		amount("leverage", leverage).
		addr("sender", sender).
		event(EventTypeDelegationUpdated))
	return nil
}

// requireIssuanceRatio fails when collateralAmount no longer backs debt at
// the issuance ratio of the pool.
func (tx *ledgerTx) requireIssuanceRatio(state *positionState, collateral *CollateralType, collateralAmount, debt *big.Int) error {
	if debt.Sign() <= 0 {
		return nil
	}
	required, err := tx.issuanceRatio(state.pool.ID, collateral)
	if err != nil {
		return err
	}
	value := decimalmath.MulDecimal(collateralAmount, state.price)
	ratio := decimalmath.Ratio(value, debt)
	if ratio.Cmp(required) < 0 {
		return &ledgererrors.InsufficientCollateralRatioError{
			CollateralValue: value,
			Debt:            decimalmath.Clone(debt),
			Ratio:           ratio,
			MinRatio:        decimalmath.Clone(required),
		}
	}
	return nil
}
