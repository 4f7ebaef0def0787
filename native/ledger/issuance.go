package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"synthledger/core/decimalmath"
	ledgererrors "synthledger/core/errors"
	"synthledger/core/types"
)

// MintUsd issues USD to caller against the account's position. The position
// must stay at or above the issuance ratio including the mint fee.
func (e *Engine) MintUsd(ctx context.Context, caller common.Address, accountID, poolID types.ID, ct common.Address, amount *big.Int) error {
	return e.execute(ctx, "MintUsd", ModuleIssuance, func(tx *ledgerTx) error {
		if amount == nil || amount.Sign() <= 0 {
			return ledgererrors.InvalidParameter("amount", "Zero amount")
		}
		if _, err := tx.authorize(accountID, caller, PermissionMint); err != nil {
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
		params, err := tx.loadParams()
		if err != nil {
			return err
		}
		fee := decimalmath.MulDecimal(amount, params.MintFeeRatio)
		issued := new(big.Int).Add(amount, fee)
		newDebt := new(big.Int).Add(state.debt(), issued)
		if err := tx.requireIssuanceRatio(state, collateral, state.collateral(), newDebt); err != nil {
			return err
		}
		state.vault.assignDebt(state.pos, issued)
		if err := tx.creditUsd(caller, amount); err != nil {
			return err
		}
		if err := tx.creditUsd(params.FeeRecipient, fee); err != nil {
			return err
		}
		if err := tx.saveState(state); err != nil {
			return err
		}
		tx.emit(positionAttrs(accountID, poolID, ct).amount("amount", amount).addr("sender", caller).
			event(EventTypeUsdMinted))
		if fee.Sign() > 0 {
			tx.emit(positionAttrs(accountID, poolID, ct).amount("fee", fee).
				addr("recipient", params.FeeRecipient).str("operation", "mint").event(EventTypeUsdFeePaid))
		}
		return nil
	})
}

// BurnUsd repays the position's debt with caller's USD. The amount is capped
// at the outstanding debt; anyone may burn on behalf of any account.
func (e *Engine) BurnUsd(ctx context.Context, caller common.Address, accountID, poolID types.ID, ct common.Address, amount *big.Int) error {
	return e.execute(ctx, "BurnUsd", ModuleIssuance, func(tx *ledgerTx) error {
		if amount == nil || amount.Sign() <= 0 {
			return ledgererrors.InvalidParameter("amount", "Zero amount")
		}
		if _, err := tx.loadAccount(accountID); err != nil {
			return err
		}
		if _, err := tx.loadCollateralType(ct); err != nil {
			return err
		}
		state, err := tx.updateAccountDebt(poolID, ct, accountID)
		if err != nil {
			return err
		}
		debt := state.debt()
		if debt.Sign() <= 0 {
			return ledgererrors.InvalidParameter("amount", "No debt to burn")
		}
		burned := decimalmath.Min(amount, debt)
		params, err := tx.loadParams()
		if err != nil {
			return err
		}
		fee := decimalmath.MulDecimal(burned, params.BurnFeeRatio)
		if err := tx.debitUsd(caller, new(big.Int).Add(burned, fee)); err != nil {
			return err
		}
		if err := tx.creditUsd(params.FeeRecipient, fee); err != nil {
			return err
		}
		state.vault.assignDebt(state.pos, new(big.Int).Neg(burned))
		if err := tx.saveState(state); err != nil {
			return err
		}
		tx.emit(positionAttrs(accountID, poolID, ct).amount("amount", burned).addr("sender", caller).
			event(EventTypeUsdBurned))
		if fee.Sign() > 0 {
			tx.emit(positionAttrs(accountID, poolID, ct).amount("fee", fee).
				addr("recipient", params.FeeRecipient).str("operation", "burn").event(EventTypeUsdFeePaid))
		}
		return nil
	})
}

// TransferUsd moves USD between ledger balances.
func (e *Engine) TransferUsd(ctx context.Context, caller, to common.Address, amount *big.Int) error {
	return e.execute(ctx, "TransferUsd", ModuleIssuance, func(tx *ledgerTx) error {
		if amount == nil || amount.Sign() <= 0 {
			return ledgererrors.InvalidParameter("amount", "Zero amount")
		}
		if to == (common.Address{}) {
			return ledgererrors.InvalidParameter("to", "Zero address")
		}
		if err := tx.debitUsd(caller, amount); err != nil {
			return err
		}
		if err := tx.creditUsd(to, amount); err != nil {
			return err
		}
		tx.emit(attrs{}.addr("from", caller).addr("to", to).amount("amount", amount).event(EventTypeUsdTransferred))
		return nil
	})
}

// GetUsdBalance returns the USD held by addr.
func (e *Engine) GetUsdBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	var out *big.Int
	err := e.view(ctx, "GetUsdBalance", func(tx *ledgerTx) error {
		balance, err := tx.usdBalance(addr)
		out = balance
		return err
	})
	return out, err
}
