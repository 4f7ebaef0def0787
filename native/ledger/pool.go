package ledger

import (
	"context"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"synthledger/core/decimalmath"
	ledgererrors "synthledger/core/errors"
	"synthledger/core/types"
	"synthledger/native/distribution"
)

// flushPending hands debt the pool could not assign earlier to its vaults
// once any of them holds collateral.
func (p *Pool) flushPending() error {
	if p.PendingDebt.Sign() == 0 || p.VaultsDebt.Empty() {
		return nil
	}
	if err := p.VaultsDebt.DistributeValue(p.PendingDebt); err != nil {
		return err
	}
	p.PendingDebt = big.NewInt(0)
	return nil
}

func (p *Pool) marketConfig(id types.ID) (MarketConfiguration, bool) {
	for _, cfg := range p.Markets {
		if cfg.MarketID.Cmp(id) == 0 {
			return cfg, true
		}
	}
	return MarketConfiguration{}, false
}

// distributePoolDebt collects the pool's share of every backing market's debt
// and distributes it to the pool's vaults.
func (tx *ledgerTx) distributePoolDebt(pool *Pool) error {
	for _, cfg := range pool.Markets {
		market, err := tx.loadMarket(cfg.MarketID)
		if err != nil {
			return err
		}
		if err := market.distributeDebt(); err != nil {
			return err
		}
		pool.PendingDebt.Add(pool.PendingDebt, market.collectPoolDebt(pool.ID))
		if err := tx.saveMarket(market); err != nil {
			return err
		}
	}
	return pool.flushPending()
}

// rebalancePool reassigns the pool's liquidity to its markets in proportion
// to their weights.
func (tx *ledgerTx) rebalancePool(pool *Pool, enforceLock bool) error {
	liquidity := pool.VaultsDebt.TotalShares
	totalWeight := pool.TotalWeight()
	for _, cfg := range pool.Markets {
		market, err := tx.loadMarket(cfg.MarketID)
		if err != nil {
			return err
		}
		before := market.capacity()
		capacity := decimalmath.MulDiv(liquidity, cfg.Weight, totalWeight)
		market.setPoolCapacity(pool.ID, capacity, cfg.MaxDebtShareValue)
		if enforceLock {
			if err := checkCapacityLock(market, before); err != nil {
				return err
			}
		}
		if err := market.distributeDebt(); err != nil {
			return err
		}
		if err := tx.saveMarket(market); err != nil {
			return err
		}
	}
	return nil
}

// checkCapacityLock fails when the market lost capacity below the amount it
// declared locked.
func checkCapacityLock(market *Market, before *big.Int) error {
	after := market.capacity()
	if after.Cmp(before) < 0 && after.Cmp(market.LockedCapacity) < 0 {
		return &ledgererrors.CapacityLockedError{MarketID: market.ID}
	}
	return nil
}

// maxMinDelegateTime returns the longest minimum delegation time among the
// pool's markets.
func (tx *ledgerTx) maxMinDelegateTime(pool *Pool) (uint64, error) {
	var out uint64
	for _, cfg := range pool.Markets {
		market, err := tx.loadMarket(cfg.MarketID)
		if err != nil {
			return 0, err
		}
		if market.MinDelegateTime > out {
			out = market.MinDelegateTime
		}
	}
	return out, nil
}

func (tx *ledgerTx) loadOwnedPool(caller common.Address, id types.ID) (*Pool, error) {
	pool, err := tx.loadPool(id)
	if err != nil {
		return nil, err
	}
	if caller != pool.Owner {
		return nil, &ledgererrors.UnauthorizedError{Address: caller}
	}
	return pool, nil
}

// CreatePool registers a pool under a caller chosen id.
func (e *Engine) CreatePool(ctx context.Context, caller common.Address, id types.ID, owner common.Address) error {
	return e.execute(ctx, "CreatePool", ModulePools, func(tx *ledgerTx) error {
		if id.IsZero() {
			return ledgererrors.InvalidParameter("poolId", "Zero id")
		}
		if owner == (common.Address{}) {
			return ledgererrors.InvalidParameter("owner", "Zero address")
		}
		exists, err := tx.poolExists(id)
		if err != nil {
			return err
		}
		if exists {
			return ledgererrors.InvalidParameter("poolId", "Pool already exists")
		}
		pool := &Pool{
			ID:          id,
			Owner:       owner,
			VaultsDebt:  distribution.New(),
			PendingDebt: big.NewInt(0),
			CreatedAt:   tx.now,
		}
		if err := tx.savePool(pool); err != nil {
			return err
		}
		tx.emit(attrs{}.id("poolId", id).addr("owner", owner).addr("sender", caller).event(EventTypePoolCreated))
		return nil
	})
}

// NominatePoolOwner proposes a new owner who must accept the nomination.
func (e *Engine) NominatePoolOwner(ctx context.Context, caller common.Address, id types.ID, nominee common.Address) error {
	return e.execute(ctx, "NominatePoolOwner", ModulePools, func(tx *ledgerTx) error {
		pool, err := tx.loadOwnedPool(caller, id)
		if err != nil {
			return err
		}
		pool.NominatedOwner = nominee
		if err := tx.savePool(pool); err != nil {
			return err
		}
		tx.emit(attrs{}.id("poolId", id).addr("nominee", nominee).event(EventTypePoolOwnerNominated))
		return nil
	})
}

// AcceptPoolOwnership completes a nomination. Only the nominee may call it.
func (e *Engine) AcceptPoolOwnership(ctx context.Context, caller common.Address, id types.ID) error {
	return e.execute(ctx, "AcceptPoolOwnership", ModulePools, func(tx *ledgerTx) error {
		pool, err := tx.loadPool(id)
		if err != nil {
			return err
		}
		if pool.NominatedOwner == (common.Address{}) || caller != pool.NominatedOwner {
			return &ledgererrors.UnauthorizedError{Address: caller}
		}
		previous := pool.Owner
		pool.Owner = caller
		pool.NominatedOwner = common.Address{}
		if err := tx.savePool(pool); err != nil {
			return err
		}
		tx.emit(attrs{}.id("poolId", id).addr("from", previous).addr("to", caller).event(EventTypePoolOwnershipAccepted))
		return nil
	})
}

func (e *Engine) SetPoolName(ctx context.Context, caller common.Address, id types.ID, name string) error {
	return e.execute(ctx, "SetPoolName", ModulePools, func(tx *ledgerTx) error {
		pool, err := tx.loadOwnedPool(caller, id)
		if err != nil {
			return err
		}
		pool.Name = name
		if err := tx.savePool(pool); err != nil {
			return err
		}
		tx.emit(attrs{}.id("poolId", id).str("name", name).event(EventTypePoolRenamed))
		return nil
	})
}

// SetPoolCollateralConfiguration narrows a collateral type for the pool.
func (e *Engine) SetPoolCollateralConfiguration(ctx context.Context, caller common.Address, id types.ID, ct common.Address, cfg PoolCollateralConfiguration) error {
	return e.execute(ctx, "SetPoolCollateralConfiguration", ModulePools, func(tx *ledgerTx) error {
		if _, err := tx.loadOwnedPool(caller, id); err != nil {
			return err
		}
		if _, err := tx.loadCollateralType(ct); err != nil {
			return err
		}
		if cfg.CollateralLimit != nil && cfg.CollateralLimit.Sign() < 0 {
			return ledgererrors.InvalidParameter("collateralLimit", "Must be non-negative")
		}
		if cfg.IssuanceRatio != nil && cfg.IssuanceRatio.Sign() < 0 {
			return ledgererrors.InvalidParameter("issuanceRatio", "Must be non-negative")
		}
		stored := PoolCollateralConfiguration{
			CollateralLimit: decimalmath.ClampZero(cfg.CollateralLimit),
			IssuanceRatio:   decimalmath.ClampZero(cfg.IssuanceRatio),
		}
		if err := tx.savePoolCollateral(id, ct, &stored); err != nil {
			return err
		}
		tx.emit(vaultAttrs(id, ct).
			amount("collateralLimit", stored.CollateralLimit).
			amount("issuanceRatio", stored.IssuanceRatio).
			event(EventTypePoolCollateralConfigured))
		return nil
	})
}

// issuanceRatio returns the pool override for ct, or the collateral default.
func (tx *ledgerTx) issuanceRatio(pool types.ID, collateral *CollateralType) (*big.Int, error) {
	cfg, err := tx.loadPoolCollateral(pool, collateral.Address)
	if err != nil {
		return nil, err
	}
	if cfg.IssuanceRatio.Sign() > 0 {
		return cfg.IssuanceRatio, nil
	}
	return collateral.IssuanceRatio, nil
}

// SetPoolConfiguration replaces the pool's weighted market list. Markets must
// be strictly ascending by id with non-zero weights. Markets dropped from the
// list are released at their current debt per share.
func (e *Engine) SetPoolConfiguration(ctx context.Context, caller common.Address, id types.ID, markets []MarketConfiguration) error {
	return e.execute(ctx, "SetPoolConfiguration", ModulePools, func(tx *ledgerTx) error {
		pool, err := tx.loadOwnedPool(caller, id)
		if err != nil {
			return err
		}
		for i, cfg := range markets {
			if cfg.Weight == nil || cfg.Weight.Sign() <= 0 {
				return ledgererrors.InvalidParameter("weight", "Must be non-zero")
			}
			if cfg.MaxDebtShareValue == nil {
				return ledgererrors.InvalidParameter("maxDebtShareValue", "Missing value")
			}
			if i > 0 && cfg.MarketID.Cmp(markets[i-1].MarketID) <= 0 {
				return ledgererrors.InvalidParameter("markets", "Must be sorted by id without duplicates")
			}
			if _, err := tx.loadMarket(cfg.MarketID); err != nil {
				return err
			}
		}
		if err := tx.distributePoolDebt(pool); err != nil {
			return err
		}

		next := make([]MarketConfiguration, len(markets))
		for i, cfg := range markets {
			next[i] = MarketConfiguration{
				MarketID:          cfg.MarketID,
				Weight:            decimalmath.Clone(cfg.Weight),
				MaxDebtShareValue: decimalmath.Clone(cfg.MaxDebtShareValue),
				UpdatedAt:         tx.now,
			}
			prev, ok := pool.marketConfig(cfg.MarketID)
			if !ok {
				continue
			}
			if prev.Weight.Cmp(cfg.Weight) == 0 && prev.MaxDebtShareValue.Cmp(cfg.MaxDebtShareValue) == 0 {
				next[i].UpdatedAt = prev.UpdatedAt
				continue
			}
			if err := tx.checkMinDelegateTime(pool.ID, prev); err != nil {
				return err
			}
		}

		for _, prev := range pool.Markets {
			if _, kept := findMarket(next, prev.MarketID); kept {
				continue
			}
			if err := tx.checkMinDelegateTime(pool.ID, prev); err != nil {
				return err
			}
			market, err := tx.loadMarket(prev.MarketID)
			if err != nil {
				return err
			}
			before := market.capacity()
			pool.PendingDebt.Add(pool.PendingDebt, market.removePool(pool.ID))
			if err := checkCapacityLock(market, before); err != nil {
				return err
			}
			if err := market.distributeDebt(); err != nil {
				return err
			}
			if err := tx.saveMarket(market); err != nil {
				return err
			}
		}

		pool.Markets = next
		if err := pool.flushPending(); err != nil {
			return err
		}
		if err := tx.rebalancePool(pool, true); err != nil {
			return err
		}
		if err := tx.savePool(pool); err != nil {
			return err
		}
		tx.emit(attrs{}.id("poolId", id).str("markets", strconv.Itoa(len(next))).
			amount("totalWeight", pool.TotalWeight()).addr("sender", caller).event(EventTypePoolConfigured))
		return nil
	})
}

func findMarket(list []MarketConfiguration, id types.ID) (MarketConfiguration, bool) {
	for _, cfg := range list {
		if cfg.MarketID.Cmp(id) == 0 {
			return cfg, true
		}
	}
	return MarketConfiguration{}, false
}

func (tx *ledgerTx) checkMinDelegateTime(pool types.ID, prev MarketConfiguration) error {
	market, err := tx.loadMarket(prev.MarketID)
	if err != nil {
		return err
	}
	readyAt := prev.UpdatedAt + market.MinDelegateTime
	if tx.now < readyAt {
		return &ledgererrors.MinDelegationTimeoutPendingError{PoolID: pool, TimeRemaining: readyAt - tx.now}
	}
	return nil
}

// GetPool returns the stored pool.
func (e *Engine) GetPool(ctx context.Context, id types.ID) (*Pool, error) {
	var out *Pool
	err := e.view(ctx, "GetPool", func(tx *ledgerTx) error {
		pool, err := tx.loadPool(id)
		out = pool
		return err
	})
	return out, err
}

// GetPoolConfiguration returns the pool's weighted market list.
func (e *Engine) GetPoolConfiguration(ctx context.Context, id types.ID) ([]MarketConfiguration, error) {
	pool, err := e.GetPool(ctx, id)
	if err != nil {
		return nil, err
	}
	return pool.Markets, nil
}

func (e *Engine) GetPoolCollateralConfiguration(ctx context.Context, id types.ID, ct common.Address) (PoolCollateralConfiguration, error) {
	var out PoolCollateralConfiguration
	err := e.view(ctx, "GetPoolCollateralConfiguration", func(tx *ledgerTx) error {
		if _, err := tx.loadPool(id); err != nil {
			return err
		}
		cfg, err := tx.loadPoolCollateral(id, ct)
		if err != nil {
			return err
		}
		out = *cfg
		return nil
	})
	return out, err
}
