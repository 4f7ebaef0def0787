package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"synthledger/core/decimalmath"
	"synthledger/core/types"
	"synthledger/native/distribution"
)

// totalDebt is the debt the vault owes: debt still spread over the accounts
// distribution plus debt already consolidated into positions.
func (v *Vault) totalDebt() *big.Int {
	return new(big.Int).Add(v.UnconsolidatedDebt, v.TotalConsolidatedDebt)
}

func (v *Vault) positionCollateral(pos *VaultPosition) *big.Int {
	if pos == nil || pos.Epoch != v.Epoch {
		return big.NewInt(0)
	}
	return v.Collateral.Get(pos.CollateralShares)
}

func (v *Vault) positionShares(pos *VaultPosition) *big.Int {
	if pos == nil || pos.Epoch != v.Epoch {
		return big.NewInt(0)
	}
	return decimalmath.Clone(pos.CollateralShares)
}

// distributeToAccounts spreads amount over every position of the vault. The
// amount is owed by the vault even when no account holds shares.
func (v *Vault) distributeToAccounts(amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if !v.AccountsDebt.Empty() {
		if err := v.AccountsDebt.DistributeValue(amount); err != nil {
			return err
		}
	}
	v.UnconsolidatedDebt.Add(v.UnconsolidatedDebt, amount)
	return nil
}

// consolidate moves the position's share of distributed debt onto the
// position itself. Positions from a closed epoch start over empty.
func (v *Vault) consolidate(pos *VaultPosition) *big.Int {
	if pos.Epoch != v.Epoch {
		*pos = VaultPosition{
			AccountID:        pos.AccountID,
			PoolID:           pos.PoolID,
			CollateralType:   pos.CollateralType,
			Epoch:            v.Epoch,
			CollateralShares: big.NewInt(0),
			ConsolidatedDebt: big.NewInt(0),
		}
	}
	v.consolidateAmount(pos, v.AccountsDebt.AccumulateActor(&pos.DebtActor))
	return pos.ConsolidatedDebt
}

// consolidateAmount moves amount of distributed debt onto pos.
func (v *Vault) consolidateAmount(pos *VaultPosition, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	v.UnconsolidatedDebt.Sub(v.UnconsolidatedDebt, amount)
	v.assignDebt(pos, amount)
}

// assignDebt charges amount directly to pos, changing the vault's debt by
// the same amount.
func (v *Vault) assignDebt(pos *VaultPosition, amount *big.Int) {
	v.TotalConsolidatedDebt.Add(v.TotalConsolidatedDebt, amount)
	pos.ConsolidatedDebt.Add(pos.ConsolidatedDebt, amount)
}

// setPositionCollateral replaces the position's collateral amount. The
// position must be consolidated first.
func (v *Vault) setPositionCollateral(pos *VaultPosition, amount *big.Int) {
	shares := v.Collateral.Set(pos.CollateralShares, amount)
	pos.CollateralShares = shares
	v.consolidateAmount(pos, v.AccountsDebt.SetActorShares(&pos.DebtActor, shares))
}

// bumpEpoch closes the current epoch, leaving every stored position stale.
func (v *Vault) bumpEpoch() {
	v.Epoch++
	v.Collateral = distribution.NewScalable()
	v.AccountsDebt = distribution.New()
	v.UnconsolidatedDebt = big.NewInt(0)
	v.TotalConsolidatedDebt = big.NewInt(0)
}

// collectVaultDebt pulls the vault's share of pool debt down to its accounts.
func (tx *ledgerTx) collectVaultDebt(pool *Pool, vault *Vault) error {
	return vault.distributeToAccounts(pool.VaultsDebt.AccumulateActor(&vault.DebtActor))
}

// recalcVaultCollateral reprices the vault's collateral and updates its
// weight in the pool's debt distribution.
func (tx *ledgerTx) recalcVaultCollateral(pool *Pool, vault *Vault) (*big.Int, error) {
	price, err := tx.price(vault.CollateralType)
	if err != nil {
		return nil, err
	}
	value := decimalmath.MulDecimal(vault.Collateral.TotalAmount(), price)
	if err := vault.distributeToAccounts(pool.VaultsDebt.SetActorShares(&vault.DebtActor, value)); err != nil {
		return nil, err
	}
	if err := pool.flushPending(); err != nil {
		return nil, err
	}
	if err := tx.collectVaultDebt(pool, vault); err != nil {
		return nil, err
	}
	return price, nil
}

// positionState bundles the records touched when acting on one position.
type positionState struct {
	pool  *Pool
	vault *Vault
	pos   *VaultPosition
	price *big.Int
}

func (s *positionState) collateral() *big.Int { return s.vault.positionCollateral(s.pos) }

func (s *positionState) collateralValue() *big.Int {
	return decimalmath.MulDecimal(s.collateral(), s.price)
}

func (s *positionState) debt() *big.Int { return decimalmath.Clone(s.pos.ConsolidatedDebt) }

// updateAccountDebt settles the whole path from the pool's markets down to
// the position so that its debt is current, then rebalances the pool's
// markets against the repriced collateral.
func (tx *ledgerTx) updateAccountDebt(poolID types.ID, ct common.Address, account types.ID) (*positionState, error) {
	state, err := tx.updateVaultDebt(poolID, ct)
	if err != nil {
		return nil, err
	}
	pos, err := tx.loadPosition(state.vault, account)
	if err != nil {
		return nil, err
	}
	if err := tx.settleRewards(state.vault, pos); err != nil {
		return nil, err
	}
	state.vault.consolidate(pos)
	state.pos = pos
	return state, nil
}

// updateVaultDebt settles the pool and vault levels.
func (tx *ledgerTx) updateVaultDebt(poolID types.ID, ct common.Address) (*positionState, error) {
	pool, err := tx.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	if err := tx.distributePoolDebt(pool); err != nil {
		return nil, err
	}
	vault, err := tx.loadVault(poolID, ct)
	if err != nil {
		return nil, err
	}
	price, err := tx.recalcVaultCollateral(pool, vault)
	if err != nil {
		return nil, err
	}
	if err := tx.rebalancePool(pool, false); err != nil {
		return nil, err
	}
	return &positionState{pool: pool, vault: vault, price: price}, nil
}

// afterCollateralChange reprices the vault and rebalances its pool. Lowering
// capacity of a capacity locked market fails when enforceLock is set.
func (tx *ledgerTx) afterCollateralChange(state *positionState, enforceLock bool) error {
	price, err := tx.recalcVaultCollateral(state.pool, state.vault)
	if err != nil {
		return err
	}
	state.price = price
	return tx.rebalancePool(state.pool, enforceLock)
}

func (tx *ledgerTx) saveState(state *positionState) error {
	if err := tx.savePool(state.pool); err != nil {
		return err
	}
	if err := tx.saveVault(state.vault); err != nil {
		return err
	}
	if state.pos != nil {
		return tx.savePosition(state.pos)
	}
	return nil
}

func (s *positionState) position() Position {
	collateral := s.collateral()
	value := decimalmath.MulDecimal(collateral, s.price)
	debt := s.debt()
	return Position{
		AccountID:       s.pos.AccountID,
		PoolID:          s.vault.PoolID,
		CollateralType:  s.vault.CollateralType,
		Collateral:      collateral,
		CollateralValue: value,
		Debt:            debt,
		CollateralRatio: decimalmath.Ratio(value, debt),
	}
}

func (s *positionState) summary() VaultSummary {
	collateral := s.vault.Collateral.TotalAmount()
	value := decimalmath.MulDecimal(collateral, s.price)
	debt := s.vault.totalDebt()
	return VaultSummary{
		PoolID:          s.vault.PoolID,
		CollateralType:  s.vault.CollateralType,
		Epoch:           s.vault.Epoch,
		Collateral:      collateral,
		CollateralValue: value,
		Debt:            debt,
		CollateralRatio: decimalmath.Ratio(value, debt),
	}
}

// GetPosition returns the account's collateral, debt and collateral ratio in
// the vault. The ratio is infinite when the position carries no debt.
func (e *Engine) GetPosition(ctx context.Context, accountID, poolID types.ID, ct common.Address) (Position, error) {
	var out Position
	err := e.view(ctx, "GetPosition", func(tx *ledgerTx) error {
		state, err := tx.updateAccountDebt(poolID, ct, accountID)
		if err != nil {
			return err
		}
		out = state.position()
		return nil
	})
	return out, err
}

func (e *Engine) GetPositionCollateral(ctx context.Context, accountID, poolID types.ID, ct common.Address) (*big.Int, error) {
	pos, err := e.GetPosition(ctx, accountID, poolID, ct)
	return pos.Collateral, err
}

func (e *Engine) GetPositionDebt(ctx context.Context, accountID, poolID types.ID, ct common.Address) (*big.Int, error) {
	pos, err := e.GetPosition(ctx, accountID, poolID, ct)
	return pos.Debt, err
}

func (e *Engine) GetPositionCollateralRatio(ctx context.Context, accountID, poolID types.ID, ct common.Address) (*big.Int, error) {
	pos, err := e.GetPosition(ctx, accountID, poolID, ct)
	return pos.CollateralRatio, err
}

// GetVault returns the vault's aggregate collateral and debt.
func (e *Engine) GetVault(ctx context.Context, poolID types.ID, ct common.Address) (VaultSummary, error) {
	var out VaultSummary
	err := e.view(ctx, "GetVault", func(tx *ledgerTx) error {
		state, err := tx.updateVaultDebt(poolID, ct)
		if err != nil {
			return err
		}
		out = state.summary()
		return nil
	})
	return out, err
}

func (e *Engine) GetVaultCollateral(ctx context.Context, poolID types.ID, ct common.Address) (*big.Int, *big.Int, error) {
	summary, err := e.GetVault(ctx, poolID, ct)
	return summary.Collateral, summary.CollateralValue, err
}

func (e *Engine) GetVaultDebt(ctx context.Context, poolID types.ID, ct common.Address) (*big.Int, error) {
	summary, err := e.GetVault(ctx, poolID, ct)
	return summary.Debt, err
}

func (e *Engine) GetVaultCollateralRatio(ctx context.Context, poolID types.ID, ct common.Address) (*big.Int, error) {
	summary, err := e.GetVault(ctx, poolID, ct)
	return summary.CollateralRatio, err
}

// ListPositions returns every live position of the vault with its current
// figures. Positions left in a closed epoch are skipped.
func (e *Engine) ListPositions(ctx context.Context, poolID types.ID, ct common.Address) ([]Position, error) {
	var out []Position
	err := e.view(ctx, "ListPositions", func(tx *ledgerTx) error {
		state, err := tx.updateVaultDebt(poolID, ct)
		if err != nil {
			return err
		}
		var accounts []types.ID
		err = tx.forEachPosition(positionVaultPrefix(poolID, ct), func(pos *VaultPosition) error {
			if pos.Epoch == state.vault.Epoch && pos.CollateralShares.Sign() > 0 {
				accounts = append(accounts, pos.AccountID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, account := range accounts {
			pos, err := tx.loadPosition(state.vault, account)
			if err != nil {
				return err
			}
			state.vault.consolidate(pos)
			state.pos = pos
			out = append(out, state.position())
		}
		return nil
	})
	return out, err
}

// ListVaultKeys returns every (pool, collateral type) pair holding a vault.
func (e *Engine) ListVaultKeys(ctx context.Context) ([]VaultKey, error) {
	var out []VaultKey
	err := e.view(ctx, "ListVaultKeys", func(tx *ledgerTx) error {
		return tx.forEachVault(func(v *Vault) error {
			out = append(out, VaultKey{PoolID: v.PoolID, CollateralType: v.CollateralType})
			return nil
		})
	})
	return out, err
}

// VaultKey identifies a vault.
type VaultKey struct {
	PoolID         types.ID
	CollateralType common.Address
}
