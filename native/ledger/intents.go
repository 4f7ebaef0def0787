package ledger

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"synthledger/core/decimalmath"
	ledgererrors "synthledger/core/errors"
	"synthledger/core/types"
)

// intentWindow returns the processing delay and window for a delegation
// change on the pool. The delay is the longest among the pool's markets and
// the window the shortest non-zero one; a zero window never expires.
func (tx *ledgerTx) intentWindow(pool *Pool, undelegation bool) (delay, window uint64, err error) {
	for _, cfg := range pool.Markets {
		market, err := tx.loadMarket(cfg.MarketID)
		if err != nil {
			return 0, 0, err
		}
		d, w := market.DelegateDelay, market.DelegateWindow
		if undelegation {
			d, w = market.UndelegateDelay, market.UndelegateWindow
		}
		if d > delay {
			delay = d
		}
		if w > 0 && (window == 0 || w < window) {
			window = w
		}
	}
	return delay, window, nil
}

// DeclareDelegateIntent records a delegation change to be applied later by
// ProcessIntentToDelegateCollateralByIntents.
func (e *Engine) DeclareDelegateIntent(ctx context.Context, caller common.Address, accountID, poolID types.ID, ct common.Address, amount, leverage *big.Int) (uint64, error) {
	var id uint64
	err := e.execute(ctx, "DeclareDelegateIntent", ModuleDelegation, func(tx *ledgerTx) error {
		if err := checkLeverage(leverage); err != nil {
			return err
		}
		if amount == nil || amount.Sign() < 0 {
			return ledgererrors.InvalidParameter("amount", "Must be non-negative")
		}
		if _, err := tx.authorize(accountID, caller, PermissionDelegate); err != nil {
			return err
		}
		pool, err := tx.loadPool(poolID)
		if err != nil {
			return err
		}
		if _, err := tx.loadCollateralType(ct); err != nil {
			return err
		}
		vault, err := tx.loadVault(poolID, ct)
		if err != nil {
			return err
		}
		pos, err := tx.loadPosition(vault, accountID)
		if err != nil {
			return err
		}
		current := vault.positionCollateral(pos)
		if current.Cmp(amount) == 0 {
			return &ledgererrors.InvalidCollateralAmountError{}
		}
		undelegation := amount.Cmp(current) < 0
		delay, window, err := tx.intentWindow(pool, undelegation)
		if err != nil {
			return err
		}
		params, err := tx.loadParams()
		if err != nil {
			return err
		}
		id = params.NextIntentID
		params.NextIntentID++
		intent := &DelegationIntent{
			ID:              id,
			AccountID:       accountID,
			PoolID:          poolID,
			CollateralType:  ct,
			RequestedAmount: decimalmath.Clone(amount),
			Leverage:        decimalmath.Clone(leverage),
			DeclaredAt:      tx.now,
			Undelegation:    undelegation,
			ProcessingStart: tx.now + delay,
		}
		if window > 0 {
			intent.ProcessingEnd = intent.ProcessingStart + window
		}
		if err := tx.saveIntent(intent); err != nil {
			return err
		}
		tx.emit(positionAttrs(accountID, poolID, ct).
			num("intentId", id).
			amount("amount", amount).
			num("processingStart", intent.ProcessingStart).
			num("processingEnd", intent.ProcessingEnd).
			event(EventTypeIntentDeclared))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ProcessIntentToDelegateCollateralByIntents applies the account's intents in
// order. Anyone may process an intent once its window opened; the whole call
// fails if any intent is not ready or expired.
func (e *Engine) ProcessIntentToDelegateCollateralByIntents(ctx context.Context, caller common.Address, accountID types.ID, intentIDs []uint64) error {
	return e.execute(ctx, "ProcessIntents", ModuleDelegation, func(tx *ledgerTx) error {
		for _, id := range intentIDs {
			intent, err := tx.loadIntent(id)
			if err != nil {
				return err
			}
			if intent.AccountID.Cmp(accountID) != 0 {
				return ledgererrors.InvalidParameter("intentId", "Intent belongs to another account")
			}
			if tx.now < intent.ProcessingStart {
				return &ledgererrors.DelegationIntentNotReadyError{
					DeclarationTime:     intent.DeclaredAt,
					ProcessingStartTime: intent.ProcessingStart,
				}
			}
			if intent.Expired(tx.now) {
				return &ledgererrors.DelegationIntentExpiredError{
					DeclarationTime:   intent.DeclaredAt,
					ProcessingEndTime: intent.ProcessingEnd,
				}
			}
			if err := tx.delegate(caller, intent.AccountID, intent.PoolID, intent.CollateralType, intent.RequestedAmount, intent.Leverage); err != nil {
				return err
			}
			tx.deleteIntent(intent)
			tx.emit(positionAttrs(intent.AccountID, intent.PoolID, intent.CollateralType).
				num("intentId", id).addr("sender", caller).event(EventTypeIntentProcessed))
		}
		return nil
	})
}

// DeleteExpiredIntents removes expired intents of the account. Intents that
// can still be processed are rejected.
func (e *Engine) DeleteExpiredIntents(ctx context.Context, caller common.Address, accountID types.ID, intentIDs []uint64) error {
	return e.execute(ctx, "DeleteExpiredIntents", ModuleDelegation, func(tx *ledgerTx) error {
		if _, err := tx.authorize(accountID, caller, PermissionDelegate); err != nil {
			return err
		}
		for _, id := range intentIDs {
			intent, err := tx.loadIntent(id)
			if err != nil {
				return err
			}
			if intent.AccountID.Cmp(accountID) != 0 {
				return ledgererrors.InvalidParameter("intentId", "Intent belongs to another account")
			}
			if !intent.Expired(tx.now) {
				return ledgererrors.InvalidParameter("intentId", "Intent not expired")
			}
			tx.deleteIntent(intent)
			tx.emit(attrs{}.id("accountId", accountID).num("intentId", id).addr("sender", caller).
				event(EventTypeIntentDeleted))
		}
		return nil
	})
}

// ForceDeleteIntents removes any intents. System owner only.
func (e *Engine) ForceDeleteIntents(ctx context.Context, caller common.Address, intentIDs []uint64) error {
	return e.execute(ctx, "ForceDeleteIntents", ModuleDelegation, func(tx *ledgerTx) error {
		if err := tx.requireOwner(caller); err != nil {
			return err
		}
		for _, id := range intentIDs {
			intent, err := tx.loadIntent(id)
			if err != nil {
				return err
			}
			tx.deleteIntent(intent)
			tx.emit(attrs{}.id("accountId", intent.AccountID).num("intentId", id).addr("sender", caller).
				event(EventTypeIntentDeleted))
		}
		return nil
	})
}

// GetIntent returns a stored intent.
func (e *Engine) GetIntent(ctx context.Context, id uint64) (*DelegationIntent, error) {
	var out *DelegationIntent
	err := e.view(ctx, "GetIntent", func(tx *ledgerTx) error {
		intent, err := tx.loadIntent(id)
		out = intent
		return err
	})
	return out, err
}

// GetAccountIntents returns the account's pending intents ordered by id.
func (e *Engine) GetAccountIntents(ctx context.Context, accountID types.ID) ([]*DelegationIntent, error) {
	var out []*DelegationIntent
	err := e.view(ctx, "GetAccountIntents", func(tx *ledgerTx) error {
		ids, err := tx.accountIntentIDs(accountID)
		if err != nil {
			return err
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			intent, err := tx.loadIntent(id)
			if err != nil {
				return err
			}
			out = append(out, intent)
		}
		return nil
	})
	return out, err
}
