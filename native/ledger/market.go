package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"synthledger/core/decimalmath"
	ledgererrors "synthledger/core/errors"
	"synthledger/core/types"
)

// MaxMinDelegateTime bounds the minimum delegation time a market may demand.
const MaxMinDelegateTime = 30 * 24 * 60 * 60

// totalDebt is the market's reported debt plus its net USD issuance.
func (m *Market) totalDebt() *big.Int {
	out := new(big.Int).Add(m.ReportedDebt, m.UsdWithdrawn)
	return out.Sub(out, m.UsdDeposited)
}

// capacity is the USD liquidity currently assigned by all backing pools.
func (m *Market) capacity() *big.Int {
	total := big.NewInt(0)
	for _, entry := range m.Pools {
		total.Add(total, entry.Capacity)
	}
	return total
}

// withdrawable is the USD the market may still draw. A zero minimum liquidity
// ratio leaves the capacity unscaled.
func (m *Market) withdrawable(minLiquidityRatio *big.Int) *big.Int {
	capacity := m.capacity()
	if minLiquidityRatio != nil && minLiquidityRatio.Sign() > 0 {
		capacity = decimalmath.DivDecimal(capacity, minLiquidityRatio)
	}
	return decimalmath.ClampZero(capacity.Sub(capacity, m.totalDebt()))
}

func (m *Market) pool(id types.ID) *MarketPool {
	for i := range m.Pools {
		if m.Pools[i].PoolID.Cmp(id) == 0 {
			return &m.Pools[i]
		}
	}
	return nil
}

func (m *Market) ensurePool(id types.ID) *MarketPool {
	if entry := m.pool(id); entry != nil {
		return entry
	}
	m.Pools = append(m.Pools, MarketPool{
		PoolID:            id,
		Capacity:          big.NewInt(0),
		MaxDebtShareValue: big.NewInt(0),
		Pending:           big.NewInt(0),
	})
	return &m.Pools[len(m.Pools)-1]
}

func (m *Market) bumpOut(entry *MarketPool) {
	entry.Pending.Add(entry.Pending, m.PoolsDebt.SetActorShares(&entry.Actor, big.NewInt(0)))
	entry.InRange = false
}

func (m *Market) bumpIn(entry *MarketPool) {
	entry.Pending.Add(entry.Pending, m.PoolsDebt.SetActorShares(&entry.Actor, entry.Capacity))
	entry.InRange = true
}

// lowestInRange returns the in-range pool with shares and the smallest cap.
func (m *Market) lowestInRange() *MarketPool {
	var out *MarketPool
	for i := range m.Pools {
		entry := &m.Pools[i]
		if !entry.InRange || entry.Actor.Shares == nil || entry.Actor.Shares.Sign() == 0 {
			continue
		}
		if out == nil || entry.MaxDebtShareValue.Cmp(out.MaxDebtShareValue) < 0 {
			out = entry
		}
	}
	return out
}

// highestOutOfRange returns the bumped out pool with the largest cap.
func (m *Market) highestOutOfRange() *MarketPool {
	var out *MarketPool
	for i := range m.Pools {
		entry := &m.Pools[i]
		if entry.InRange || entry.Capacity.Sign() == 0 {
			continue
		}
		if out == nil || entry.MaxDebtShareValue.Cmp(out.MaxDebtShareValue) > 0 {
			out = entry
		}
	}
	return out
}

// distributeDebt pushes the debt change since the last distribution to the
// backing pools. Pools are bumped out of the distribution when the debt per
// share reaches their cap and bumped back in when it falls below it. Whatever
// cannot be assigned because no liquidity is in range stays undistributed and
// is retried on the next call.
func (m *Market) distributeDebt() error {
	total := m.totalDebt()
	delta := new(big.Int).Sub(total, m.LastDistributedDebt)

	for delta.Sign() > 0 && !m.PoolsDebt.Empty() {
		entry := m.lowestInRange()
		if entry == nil {
			break
		}
		headroom := new(big.Int).Sub(decimalmath.UpscaleD18ToD27(entry.MaxDebtShareValue), m.PoolsDebt.ValuePerShare)
		room := decimalmath.MulDecimalD27(m.PoolsDebt.TotalShares, headroom)
		if room.Cmp(delta) > 0 {
			if err := m.PoolsDebt.DistributeValue(delta); err != nil {
				return err
			}
			delta.SetInt64(0)
			break
		}
		if room.Sign() > 0 {
			if err := m.PoolsDebt.DistributeValue(room); err != nil {
				return err
			}
			delta.Sub(delta, room)
		}
		m.bumpOut(entry)
	}

	for delta.Sign() < 0 {
		entry := m.highestOutOfRange()
		if entry == nil {
			if m.PoolsDebt.Empty() {
				break
			}
			if err := m.PoolsDebt.DistributeValue(delta); err != nil {
				return err
			}
			delta.SetInt64(0)
			break
		}
		capD27 := decimalmath.UpscaleD18ToD27(entry.MaxDebtShareValue)
		if m.PoolsDebt.Empty() {
			if m.PoolsDebt.ValuePerShare.Cmp(capD27) > 0 {
				break
			}
			m.bumpIn(entry)
			continue
		}
		drop := decimalmath.MulDecimalD27(m.PoolsDebt.TotalShares, new(big.Int).Sub(m.PoolsDebt.ValuePerShare, capD27))
		if drop.Sign() <= 0 {
			m.bumpIn(entry)
			continue
		}
		if new(big.Int).Neg(delta).Cmp(drop) < 0 {
			if err := m.PoolsDebt.DistributeValue(delta); err != nil {
				return err
			}
			delta.SetInt64(0)
			break
		}
		if err := m.PoolsDebt.DistributeValue(new(big.Int).Neg(drop)); err != nil {
			return err
		}
		delta.Add(delta, drop)
		m.bumpIn(entry)
	}

	m.LastDistributedDebt = total.Sub(total, delta)
	return nil
}

// setPoolCapacity updates the liquidity a pool assigns to the market. The pool
// only takes shares while the debt per share is below its cap.
func (m *Market) setPoolCapacity(pool types.ID, capacity, maxDebtShareValue *big.Int) {
	entry := m.ensurePool(pool)
	entry.Capacity = decimalmath.Clone(capacity)
	entry.MaxDebtShareValue = decimalmath.Clone(maxDebtShareValue)
	entry.InRange = m.PoolsDebt.ValuePerShare.Cmp(decimalmath.UpscaleD18ToD27(entry.MaxDebtShareValue)) < 0
	shares := big.NewInt(0)
	if entry.InRange {
		shares = entry.Capacity
	}
	entry.Pending.Add(entry.Pending, m.PoolsDebt.SetActorShares(&entry.Actor, shares))
}

// collectPoolDebt returns and clears the debt accrued by pool.
func (m *Market) collectPoolDebt(pool types.ID) *big.Int {
	entry := m.pool(pool)
	if entry == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Add(entry.Pending, m.PoolsDebt.AccumulateActor(&entry.Actor))
	entry.Pending = big.NewInt(0)
	return out
}

// removePool detaches pool at the current debt per share and returns what it
// accrued up to that point.
func (m *Market) removePool(pool types.ID) *big.Int {
	entry := m.pool(pool)
	if entry == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Add(entry.Pending, m.PoolsDebt.SetActorShares(&entry.Actor, big.NewInt(0)))
	kept := m.Pools[:0]
	for _, e := range m.Pools {
		if e.PoolID.Cmp(pool) != 0 {
			kept = append(kept, e)
		}
	}
	m.Pools = kept
	return out
}

func (tx *ledgerTx) loadMarketFor(caller common.Address, id types.ID) (*Market, error) {
	market, err := tx.loadMarket(id)
	if err != nil {
		return nil, err
	}
	if caller != market.Address {
		return nil, &ledgererrors.UnauthorizedError{Address: caller}
	}
	return market, nil
}

// RegisterMarket registers caller as a new market and returns its id.
func (e *Engine) RegisterMarket(ctx context.Context, caller common.Address) (types.ID, error) {
	var id types.ID
	err := e.execute(ctx, "RegisterMarket", ModuleMarkets, func(tx *ledgerTx) error {
		if caller == (common.Address{}) {
			return ledgererrors.InvalidParameter("market", "Zero address")
		}
		params, err := tx.loadParams()
		if err != nil {
			return err
		}
		id = params.NextMarketID
		params.NextMarketID = id.Next()
		market := &Market{ID: id, Address: caller, RegisteredAt: tx.now}
		if err := tx.saveMarket(market); err != nil {
			return err
		}
		tx.emit(attrs{}.id("marketId", id).addr("market", caller).event(EventTypeMarketRegistered))
		return nil
	})
	if err != nil {
		return types.ID{}, err
	}
	return id, nil
}

// ReportDebt records the market's current debt and distributes the change to
// its backing pools.
func (e *Engine) ReportDebt(ctx context.Context, caller common.Address, marketID types.ID, debt *big.Int) error {
	return e.execute(ctx, "ReportDebt", ModuleMarkets, func(tx *ledgerTx) error {
		if debt == nil {
			return ledgererrors.InvalidParameter("debt", "Missing value")
		}
		market, err := tx.loadMarketFor(caller, marketID)
		if err != nil {
			return err
		}
		market.ReportedDebt = decimalmath.Clone(debt)
		if err := market.distributeDebt(); err != nil {
			return err
		}
		if err := tx.saveMarket(market); err != nil {
			return err
		}
		tx.engine.metrics.SetMarketDebt(marketID.String(), debtFloat(market.totalDebt()))
		tx.emit(attrs{}.id("marketId", marketID).amount("reportedDebt", debt).
			amount("totalDebt", market.totalDebt()).event(EventTypeMarketDebtReported))
		return nil
	})
}

// DepositMarketUsd moves USD from target into the market, reducing the debt
// its backing pools carry.
func (e *Engine) DepositMarketUsd(ctx context.Context, caller common.Address, marketID types.ID, target common.Address, amount *big.Int) error {
	return e.execute(ctx, "DepositMarketUsd", ModuleMarkets, func(tx *ledgerTx) error {
		if amount == nil || amount.Sign() <= 0 {
			return ledgererrors.InvalidParameter("amount", "Zero amount")
		}
		market, err := tx.loadMarketFor(caller, marketID)
		if err != nil {
			return err
		}
		if err := tx.debitUsd(target, amount); err != nil {
			return err
		}
		market.UsdDeposited.Add(market.UsdDeposited, amount)
		if err := market.distributeDebt(); err != nil {
			return err
		}
		if err := tx.saveMarket(market); err != nil {
			return err
		}
		tx.emit(attrs{}.id("marketId", marketID).addr("target", target).amount("amount", amount).
			event(EventTypeMarketUsdDeposited))
		return nil
	})
}

// WithdrawMarketUsd issues USD to target against the market's withdrawable
// capacity.
func (e *Engine) WithdrawMarketUsd(ctx context.Context, caller common.Address, marketID types.ID, target common.Address, amount *big.Int) error {
	return e.execute(ctx, "WithdrawMarketUsd", ModuleMarkets, func(tx *ledgerTx) error {
		if amount == nil || amount.Sign() <= 0 {
			return ledgererrors.InvalidParameter("amount", "Zero amount")
		}
		market, err := tx.loadMarketFor(caller, marketID)
		if err != nil {
			return err
		}
		params, err := tx.loadParams()
		if err != nil {
			return err
		}
		if amount.Cmp(market.withdrawable(params.MinLiquidityRatio)) > 0 {
			return &ledgererrors.NotEnoughLiquidityError{MarketID: marketID, Amount: decimalmath.Clone(amount)}
		}
		if err := tx.creditUsd(target, amount); err != nil {
			return err
		}
		market.UsdWithdrawn.Add(market.UsdWithdrawn, amount)
		if err := market.distributeDebt(); err != nil {
			return err
		}
		if err := tx.saveMarket(market); err != nil {
			return err
		}
		tx.emit(attrs{}.id("marketId", marketID).addr("target", target).amount("amount", amount).
			event(EventTypeMarketUsdWithdrawn))
		return nil
	})
}

// SetMarketMinDelegateTime sets how long pools must wait between changes to
// their allocation of this market and how long delegators stay locked in.
func (e *Engine) SetMarketMinDelegateTime(ctx context.Context, caller common.Address, marketID types.ID, seconds uint64) error {
	return e.execute(ctx, "SetMarketMinDelegateTime", ModuleMarkets, func(tx *ledgerTx) error {
		if seconds > MaxMinDelegateTime {
			return ledgererrors.InvalidParameter("minDelegateTime", "Must be below the maximum")
		}
		market, err := tx.loadMarketFor(caller, marketID)
		if err != nil {
			return err
		}
		market.MinDelegateTime = seconds
		return tx.saveMarketSettings(market)
	})
}

// SetMarketLockedCapacity declares the capacity pools may not take away.
func (e *Engine) SetMarketLockedCapacity(ctx context.Context, caller common.Address, marketID types.ID, locked *big.Int) error {
	return e.execute(ctx, "SetMarketLockedCapacity", ModuleMarkets, func(tx *ledgerTx) error {
		if locked == nil || locked.Sign() < 0 {
			return ledgererrors.InvalidParameter("lockedCapacity", "Must be non-negative")
		}
		market, err := tx.loadMarketFor(caller, marketID)
		if err != nil {
			return err
		}
		market.LockedCapacity = decimalmath.Clone(locked)
		return tx.saveMarketSettings(market)
	})
}

// SetMarketDelegationWindows configures the delay and window applied to
// delegation intents of pools backing this market.
func (e *Engine) SetMarketDelegationWindows(ctx context.Context, caller common.Address, marketID types.ID, delegateDelay, delegateWindow, undelegateDelay, undelegateWindow uint64) error {
	return e.execute(ctx, "SetMarketDelegationWindows", ModuleMarkets, func(tx *ledgerTx) error {
		market, err := tx.loadMarketFor(caller, marketID)
		if err != nil {
			return err
		}
		market.DelegateDelay = delegateDelay
		market.DelegateWindow = delegateWindow
		market.UndelegateDelay = undelegateDelay
		market.UndelegateWindow = undelegateWindow
		return tx.saveMarketSettings(market)
	})
}

func (tx *ledgerTx) saveMarketSettings(market *Market) error {
	if err := tx.saveMarket(market); err != nil {
		return err
	}
	tx.emit(attrs{}.id("marketId", market.ID).
		num("minDelegateTime", market.MinDelegateTime).
		amount("lockedCapacity", market.LockedCapacity).
		num("delegateDelay", market.DelegateDelay).
		num("delegateWindow", market.DelegateWindow).
		num("undelegateDelay", market.UndelegateDelay).
		num("undelegateWindow", market.UndelegateWindow).
		event(EventTypeMarketSettingsUpdated))
	return nil
}

// GetMarket returns the market's current figures with pending debt
// distributed.
func (e *Engine) GetMarket(ctx context.Context, marketID types.ID) (MarketSummary, error) {
	var out MarketSummary
	err := e.view(ctx, "GetMarket", func(tx *ledgerTx) error {
		market, err := tx.loadMarket(marketID)
		if err != nil {
			return err
		}
		params, err := tx.loadParams()
		if err != nil {
			return err
		}
		if err := market.distributeDebt(); err != nil {
			return err
		}
		total := market.totalDebt()
		out = MarketSummary{
			ID:                market.ID,
			Address:           market.Address,
			ReportedDebt:      decimalmath.Clone(market.ReportedDebt),
			TotalDebt:         total,
			Capacity:          market.capacity(),
			Withdrawable:      market.withdrawable(params.MinLiquidityRatio),
			UndistributedDebt: new(big.Int).Sub(total, market.LastDistributedDebt),
			DebtPerShare:      market.PoolsDebt.ValuePerShareD18(),
		}
		return nil
	})
	return out, err
}

// GetWithdrawableMarketUsd returns the USD the market may still withdraw.
func (e *Engine) GetWithdrawableMarketUsd(ctx context.Context, marketID types.ID) (*big.Int, error) {
	summary, err := e.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	return summary.Withdrawable, nil
}

func debtFloat(v *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), new(big.Float).SetInt(decimalmath.UnitD18())).Float64()
	return f
}
