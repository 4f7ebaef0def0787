package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"synthledger/core/decimalmath"
	ledgererrors "synthledger/core/errors"
	"synthledger/core/types"
)

// ConfigureCollateral registers or updates a collateral type. Owner only.
func (e *Engine) ConfigureCollateral(ctx context.Context, caller common.Address, cfg CollateralType) error {
	return e.execute(ctx, "ConfigureCollateral", ModuleCollateral, func(tx *ledgerTx) error {
		if err := tx.requireOwner(caller); err != nil {
			return err
		}
		if cfg.Address == (common.Address{}) {
			return ledgererrors.InvalidParameter("collateralType", "Zero address")
		}
		if cfg.IssuanceRatio == nil || cfg.IssuanceRatio.Sign() <= 0 {
			return ledgererrors.InvalidParameter("issuanceRatio", "Must be positive")
		}
		if cfg.LiquidationRatio == nil || cfg.LiquidationRatio.Sign() <= 0 {
			return ledgererrors.InvalidParameter("liquidationRatio", "Must be positive")
		}
		if cfg.IssuanceRatio.Cmp(cfg.LiquidationRatio) < 0 {
			return ledgererrors.InvalidParameter("issuanceRatio", "Must not be below the liquidation ratio")
		}
		if cfg.LiquidationReward == nil {
			cfg.LiquidationReward = big.NewInt(0)
		}
		if cfg.MinDelegation == nil {
			cfg.MinDelegation = big.NewInt(0)
		}
		if cfg.LiquidationReward.Sign() < 0 || cfg.MinDelegation.Sign() < 0 {
			return ledgererrors.InvalidParameter("liquidationReward", "Must be non-negative")
		}
		stored := cfg
		stored.IssuanceRatio = decimalmath.Clone(cfg.IssuanceRatio)
		stored.LiquidationRatio = decimalmath.Clone(cfg.LiquidationRatio)
		stored.LiquidationReward = decimalmath.Clone(cfg.LiquidationReward)
		stored.MinDelegation = decimalmath.Clone(cfg.MinDelegation)
		if err := tx.saveCollateralType(&stored); err != nil {
			return err
		}
		tx.emit(attrs{}.addr("collateralType", cfg.Address).
			amount("issuanceRatio", cfg.IssuanceRatio).
			amount("liquidationRatio", cfg.LiquidationRatio).
			amount("liquidationReward", cfg.LiquidationReward).
			amount("minDelegation", cfg.MinDelegation).
			str("depositingEnabled", boolString(cfg.DepositingEnabled)).
			event(EventTypeCollateralConfigured))
		return nil
	})
}

// GetCollateralType returns the configuration of a collateral type.
func (e *Engine) GetCollateralType(ctx context.Context, ct common.Address) (*CollateralType, error) {
	var out *CollateralType
	err := e.view(ctx, "GetCollateralType", func(tx *ledgerTx) error {
		c, err := tx.loadCollateralType(ct)
		out = c
		return err
	})
	return out, err
}

// Deposit credits amount of collateral to the account's available balance,
// pulling the tokens from caller through the custodian.
func (e *Engine) Deposit(ctx context.Context, caller common.Address, accountID types.ID, ct common.Address, amount *big.Int) error {
	return e.execute(ctx, "Deposit", ModuleCollateral, func(tx *ledgerTx) error {
		if amount == nil || amount.Sign() <= 0 {
			return ledgererrors.InvalidParameter("amount", "Zero amount")
		}
		if _, err := tx.loadAccount(accountID); err != nil {
			return err
		}
		collateral, err := tx.loadCollateralType(ct)
		if err != nil {
			return err
		}
		if !collateral.DepositingEnabled {
			return &ledgererrors.CollateralDepositDisabledError{CollateralType: ct}
		}
		entry, err := tx.loadAccountCollateral(accountID, ct)
		if err != nil {
			return err
		}
		entry.Available.Add(entry.Available, amount)
		if err := tx.saveAccountCollateral(entry); err != nil {
			return err
		}
		if custodian := tx.engine.custodian; custodian != nil {
			if err := custodian.Pull(tx.ctx, caller, ct, amount); err != nil {
				return err
			}
		}
		tx.emit(attrs{}.id("accountId", accountID).addr("collateralType", ct).amount("amount", amount).
			addr("sender", caller).event(EventTypeCollateralDeposited))
		return nil
	})
}

// Withdraw releases undelegated collateral to caller. Requires WITHDRAW.
func (e *Engine) Withdraw(ctx context.Context, caller common.Address, accountID types.ID, ct common.Address, amount *big.Int) error {
	return e.execute(ctx, "Withdraw", ModuleCollateral, func(tx *ledgerTx) error {
		if amount == nil || amount.Sign() <= 0 {
			return ledgererrors.InvalidParameter("amount", "Zero amount")
		}
		if _, err := tx.authorize(accountID, caller, PermissionWithdraw); err != nil {
			return err
		}
		if _, err := tx.loadCollateralType(ct); err != nil {
			return err
		}
		entry, err := tx.loadAccountCollateral(accountID, ct)
		if err != nil {
			return err
		}
		if entry.Available.Cmp(amount) < 0 {
			return &ledgererrors.InsufficientAccountCollateralError{Amount: decimalmath.Clone(amount)}
		}
		entry.Available.Sub(entry.Available, amount)
		if err := tx.saveAccountCollateral(entry); err != nil {
			return err
		}
		if custodian := tx.engine.custodian; custodian != nil {
			if err := custodian.Push(tx.ctx, caller, ct, amount); err != nil {
				return err
			}
		}
		tx.emit(attrs{}.id("accountId", accountID).addr("collateralType", ct).amount("amount", amount).
			addr("sender", caller).event(EventTypeCollateralWithdrawn))
		return nil
	})
}

// GetAccountCollateral returns deposited, assigned and available amounts.
func (e *Engine) GetAccountCollateral(ctx context.Context, accountID types.ID, ct common.Address) (CollateralBalance, error) {
	var out CollateralBalance
	err := e.view(ctx, "GetAccountCollateral", func(tx *ledgerTx) error {
		entry, err := tx.loadAccountCollateral(accountID, ct)
		if err != nil {
			return err
		}
		assigned, err := tx.assignedCollateral(entry)
		if err != nil {
			return err
		}
		out = CollateralBalance{
			Deposited: new(big.Int).Add(entry.Available, assigned),
			Assigned:  assigned,
			Available: decimalmath.Clone(entry.Available),
		}
		return nil
	})
	return out, err
}

// assignedCollateral sums the account's live positions across its pools.
func (tx *ledgerTx) assignedCollateral(entry *AccountCollateral) (*big.Int, error) {
	total := big.NewInt(0)
	for _, poolID := range entry.Pools {
		vault, err := tx.loadVault(poolID, entry.CollateralType)
		if err != nil {
			return nil, err
		}
		pos, err := tx.loadPosition(vault, entry.AccountID)
		if err != nil {
			return nil, err
		}
		total.Add(total, vault.positionCollateral(pos))
	}
	return total, nil
}

func (entry *AccountCollateral) addPool(pool types.ID) {
	for _, id := range entry.Pools {
		if id.Cmp(pool) == 0 {
			return
		}
	}
	entry.Pools = append(entry.Pools, pool)
}

func (entry *AccountCollateral) removePool(pool types.ID) {
	kept := entry.Pools[:0]
	for _, id := range entry.Pools {
		if id.Cmp(pool) != 0 {
			kept = append(kept, id)
		}
	}
	entry.Pools = kept
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
