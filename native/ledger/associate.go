package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"synthledger/core/decimalmath"
	ledgererrors "synthledger/core/errors"
	"synthledger/core/types"
)

// AssociateDebt lets a market move amount of the vault's debt onto a single
// account: the vault's other positions are relieved pro rata and the account
// is charged directly. The account must remain above the issuance ratio. The
// account's resulting debt is returned.
func (e *Engine) AssociateDebt(ctx context.Context, caller common.Address, marketID, poolID types.ID, ct common.Address, accountID types.ID, amount *big.Int) (*big.Int, error) {
	var debt *big.Int
	err := e.execute(ctx, "AssociateDebt", ModuleMarkets, func(tx *ledgerTx) error {
		if amount == nil || amount.Sign() < 0 {
			return ledgererrors.InvalidParameter("amount", "Must be non-negative")
		}
		if _, err := tx.loadMarketFor(caller, marketID); err != nil {
			return err
		}
		pool, err := tx.loadPool(poolID)
		if err != nil {
			return err
		}
		if _, ok := pool.marketConfig(marketID); !ok {
			return &ledgererrors.NotFundedByPoolError{MarketID: marketID, PoolID: poolID}
		}
		collateral, err := tx.loadCollateralType(ct)
		if err != nil {
			return err
		}
		state, err := tx.updateAccountDebt(poolID, ct, accountID)
		if err != nil {
			return err
		}
		if state.collateral().Sign() == 0 {
			return ledgererrors.InvalidParameter("accountId", "Position has no collateral")
		}
		if err := state.vault.distributeToAccounts(new(big.Int).Neg(amount)); err != nil {
			return err
		}
		state.vault.assignDebt(state.pos, amount)
		debt = decimalmath.Clone(state.vault.consolidate(state.pos))
		if err := tx.requireIssuanceRatio(state, collateral, state.collateral(), debt); err != nil {
			return err
		}
		if err := tx.saveState(state); err != nil {
			return err
		}
		tx.emit(positionAttrs(accountID, poolID, ct).
			id("marketId", marketID).
			amount("amount", amount).
			amount("updatedDebt", debt).
			event(EventTypeDebtAssociated))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return debt, nil
}
