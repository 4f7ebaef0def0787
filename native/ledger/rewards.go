package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"synthledger/core/decimalmath"
	ledgererrors "synthledger/core/errors"
	"synthledger/core/types"
	"synthledger/native/rewards"
)

// RewardBalance is an account's claimable amount from one distributor.
type RewardBalance struct {
	Distributor common.Address
	Amount      *big.Int
}

// epochBaseline is the reward per share at which positions of epoch started
// earning from the distributor.
func (r *RewardDistributor) epochBaseline(epoch uint64) *big.Int {
	if epoch > 1 {
		if closed, ok := r.ClosedEpochs[epoch-1]; ok && closed != nil {
			return decimalmath.Clone(closed)
		}
	}
	return big.NewInt(0)
}

func (tx *ledgerTx) loadVaultDistributor(pool types.ID, ct, distributor common.Address) (*RewardDistributor, error) {
	rec, ok, err := tx.loadDistributor(pool, ct, distributor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ledgererrors.DistributorNotFoundError{PoolID: pool, CollateralType: ct, Distributor: distributor}
	}
	return rec, nil
}

// settleRewards vests every distributor of the vault and moves what the
// position earned into its claims. It must run before the vault's shares
// change.
func (tx *ledgerTx) settleRewards(vault *Vault, pos *VaultPosition) error {
	for _, distributor := range vault.Distributors {
		rec, err := tx.loadVaultDistributor(vault.PoolID, vault.CollateralType, distributor)
		if err != nil {
			return err
		}
		rec.Stream.Advance(tx.now, vault.Collateral.TotalShares)
		if err := tx.saveDistributor(rec); err != nil {
			return err
		}
		claim, err := tx.loadClaim(vault.PoolID, vault.CollateralType, distributor, pos.AccountID)
		if err != nil {
			return err
		}
		settleClaim(claim, rec, vault, pos)
		if err := tx.saveClaim(vault.PoolID, vault.CollateralType, distributor, pos.AccountID, claim); err != nil {
			return err
		}
	}
	return nil
}

func settleClaim(claim *rewards.Claim, rec *RewardDistributor, vault *Vault, pos *VaultPosition) {
	if claim.Epoch == 0 {
		claim.Epoch = pos.Epoch
		claim.LastRewardPerShare = rec.epochBaseline(pos.Epoch)
	}
	if claim.Epoch != vault.Epoch {
		if pos.Epoch == claim.Epoch {
			if closed, ok := rec.ClosedEpochs[claim.Epoch]; ok {
				claim.Settle(pos.CollateralShares, closed)
			}
		}
		claim.Epoch = vault.Epoch
		claim.LastRewardPerShare = rec.epochBaseline(vault.Epoch)
	}
	claim.Settle(vault.positionShares(pos), rec.Stream.RewardPerShare)
}

// closeRewardsEpoch vests every distributor and records its reward per share
// at the end of the vault's current epoch.
func (tx *ledgerTx) closeRewardsEpoch(vault *Vault) error {
	for _, distributor := range vault.Distributors {
		rec, err := tx.loadVaultDistributor(vault.PoolID, vault.CollateralType, distributor)
		if err != nil {
			return err
		}
		rec.Stream.Advance(tx.now, vault.Collateral.TotalShares)
		rec.ClosedEpochs[vault.Epoch] = decimalmath.Clone(rec.Stream.RewardPerShare)
		if err := tx.saveDistributor(rec); err != nil {
			return err
		}
	}
	return nil
}

// RegisterRewardsDistributor allows distributor to stream rewards to the
// vault. Pool owner only. A removed distributor is reactivated.
func (e *Engine) RegisterRewardsDistributor(ctx context.Context, caller common.Address, poolID types.ID, ct, distributor common.Address) error {
	return e.execute(ctx, "RegisterRewardsDistributor", ModuleRewards, func(tx *ledgerTx) error {
		if _, err := tx.loadOwnedPool(caller, poolID); err != nil {
			return err
		}
		if _, err := tx.loadCollateralType(ct); err != nil {
			return err
		}
		if distributor == (common.Address{}) {
			return ledgererrors.InvalidParameter("distributor", "Zero address")
		}
		rec, ok, err := tx.loadDistributor(poolID, ct, distributor)
		if err != nil {
			return err
		}
		if ok && rec.Stream.Active {
			return ledgererrors.InvalidParameter("distributor", "Already registered")
		}
		if !ok {
			rec = &RewardDistributor{
				PoolID:         poolID,
				CollateralType: ct,
				Distributor:    distributor,
				Stream:         rewards.NewStream(),
				ClosedEpochs:   make(map[uint64]*big.Int),
			}
		}
		rec.Stream.Active = true
		rec.Stream.LastUpdate = tx.now
		if err := tx.saveDistributor(rec); err != nil {
			return err
		}
		vault, err := tx.loadVault(poolID, ct)
		if err != nil {
			return err
		}
		if !ok {
			vault.Distributors = append(vault.Distributors, distributor)
			if err := tx.saveVault(vault); err != nil {
				return err
			}
		}
		tx.emit(vaultAttrs(poolID, ct).addr("distributor", distributor).event(EventTypeDistributorRegistered))
		return nil
	})
}

// RemoveRewardsDistributor stops the distributor. Rewards vested so far stay
// claimable; the unvested remainder is forfeited.
func (e *Engine) RemoveRewardsDistributor(ctx context.Context, caller common.Address, poolID types.ID, ct, distributor common.Address) error {
	return e.execute(ctx, "RemoveRewardsDistributor", ModuleRewards, func(tx *ledgerTx) error {
		if _, err := tx.loadOwnedPool(caller, poolID); err != nil {
			return err
		}
		rec, err := tx.loadVaultDistributor(poolID, ct, distributor)
		if err != nil {
			return err
		}
		if !rec.Stream.Active {
			return ledgererrors.InvalidParameter("distributor", "Already removed")
		}
		vault, err := tx.loadVault(poolID, ct)
		if err != nil {
			return err
		}
		forfeited := rec.Stream.Stop(tx.now, vault.Collateral.TotalShares)
		if err := tx.saveDistributor(rec); err != nil {
			return err
		}
		tx.emit(vaultAttrs(poolID, ct).addr("distributor", distributor).amount("forfeited", forfeited).
			event(EventTypeDistributorRemoved))
		return nil
	})
}

// DistributeRewards schedules amount to vest linearly over duration seconds
// from start. Only the registered distributor may call it.
func (e *Engine) DistributeRewards(ctx context.Context, caller common.Address, poolID types.ID, ct common.Address, amount *big.Int, start, duration uint64) error {
	return e.execute(ctx, "DistributeRewards", ModuleRewards, func(tx *ledgerTx) error {
		if amount == nil || amount.Sign() <= 0 {
			return ledgererrors.InvalidParameter("amount", "Zero amount")
		}
		rec, err := tx.loadVaultDistributor(poolID, ct, caller)
		if err != nil {
			return err
		}
		if !rec.Stream.Active {
			return &ledgererrors.UnauthorizedError{Address: caller}
		}
		vault, err := tx.loadVault(poolID, ct)
		if err != nil {
			return err
		}
		rec.Stream.Advance(tx.now, vault.Collateral.TotalShares)
		rec.Stream.AddTranche(amount, start, duration)
		rec.Stream.Advance(tx.now, vault.Collateral.TotalShares)
		if err := tx.saveDistributor(rec); err != nil {
			return err
		}
		tx.emit(vaultAttrs(poolID, ct).addr("distributor", caller).amount("amount", amount).
			num("start", start).num("duration", duration).event(EventTypeRewardsDistributed))
		return nil
	})
}

// ClaimRewards pays the account's vested rewards from distributor to caller.
// Claiming nothing is an error.
func (e *Engine) ClaimRewards(ctx context.Context, caller common.Address, accountID, poolID types.ID, ct, distributor common.Address) (*big.Int, error) {
	var claimed *big.Int
	err := e.execute(ctx, "ClaimRewards", ModuleRewards, func(tx *ledgerTx) error {
		if _, err := tx.authorize(accountID, caller, PermissionRewards); err != nil {
			return err
		}
		if _, err := tx.loadVaultDistributor(poolID, ct, distributor); err != nil {
			return err
		}
		state, err := tx.updateAccountDebt(poolID, ct, accountID)
		if err != nil {
			return err
		}
		claim, err := tx.loadClaim(poolID, ct, distributor, accountID)
		if err != nil {
			return err
		}
		claimed = claim.Take()
		if claimed.Sign() == 0 {
			return ledgererrors.InvalidParameter("amount", "Zero amount")
		}
		if err := tx.saveClaim(poolID, ct, distributor, accountID, claim); err != nil {
			return err
		}
		if err := tx.saveState(state); err != nil {
			return err
		}
		if payer := tx.engine.payer; payer != nil {
			if err := payer.PayReward(tx.ctx, distributor, poolID, accountID, ct, caller, claimed); err != nil {
				return err
			}
		}
		tx.emit(positionAttrs(accountID, poolID, ct).addr("distributor", distributor).
			amount("amount", claimed).addr("sender", caller).event(EventTypeRewardsClaimed))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// GetAvailableRewards returns what the account could claim from distributor
// right now.
func (e *Engine) GetAvailableRewards(ctx context.Context, accountID, poolID types.ID, ct, distributor common.Address) (*big.Int, error) {
	var out *big.Int
	err := e.view(ctx, "GetAvailableRewards", func(tx *ledgerTx) error {
		if _, err := tx.loadVaultDistributor(poolID, ct, distributor); err != nil {
			return err
		}
		if _, err := tx.updateAccountDebt(poolID, ct, accountID); err != nil {
			return err
		}
		claim, err := tx.loadClaim(poolID, ct, distributor, accountID)
		if err != nil {
			return err
		}
		out = decimalmath.Clone(claim.Pending)
		return nil
	})
	return out, err
}

// UpdateRewards commits vesting for the position and returns the claimable
// balance per distributor.
func (e *Engine) UpdateRewards(ctx context.Context, accountID, poolID types.ID, ct common.Address) ([]RewardBalance, error) {
	var out []RewardBalance
	err := e.execute(ctx, "UpdateRewards", ModuleRewards, func(tx *ledgerTx) error {
		if _, err := tx.loadAccount(accountID); err != nil {
			return err
		}
		state, err := tx.updateAccountDebt(poolID, ct, accountID)
		if err != nil {
			return err
		}
		for _, distributor := range state.vault.Distributors {
			claim, err := tx.loadClaim(poolID, ct, distributor, accountID)
			if err != nil {
				return err
			}
			out = append(out, RewardBalance{Distributor: distributor, Amount: decimalmath.Clone(claim.Pending)})
		}
		return tx.saveState(state)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetRewardDistributor returns the stored distributor state.
func (e *Engine) GetRewardDistributor(ctx context.Context, poolID types.ID, ct, distributor common.Address) (*RewardDistributor, error) {
	var out *RewardDistributor
	err := e.view(ctx, "GetRewardDistributor", func(tx *ledgerTx) error {
		rec, err := tx.loadVaultDistributor(poolID, ct, distributor)
		out = rec
		return err
	})
	return out, err
}
