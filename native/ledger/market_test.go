package ledger

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	ledgererrors "synthledger/core/errors"
	"synthledger/core/types"
)

func TestMarketDebtFlowsToPositions(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)

	require.NoError(t, f.engine.ReportDebt(ctx, f.marketAddr, f.marketID, d18(100)))
	require.Equal(t, d18(100), f.position(alice).Debt)

	bob := f.openPosition(f.bob, 2, 1000)
	require.NoError(t, f.engine.ReportDebt(ctx, f.marketAddr, f.marketID, d18(300)))

	requireClose(t, d18(200), f.position(alice).Debt, 1, "alice debt")
	requireClose(t, d18(100), f.position(bob).Debt, 1, "bob debt")
	requireClose(t, d18(300), f.vault().Debt, 1, "vault debt")

	// negative debt is a credit
	require.NoError(t, f.engine.ReportDebt(ctx, f.marketAddr, f.marketID, d18(-100)))
	requireClose(t, d18(0), f.position(alice).Debt, 1, "alice debt")
	requireClose(t, d18(-100), f.position(bob).Debt, 1, "bob debt")
}

func TestReportDebtRequiresMarket(t *testing.T) {
	f := newFixture(t)
	err := f.engine.ReportDebt(ctx, f.alice, f.marketID, d18(1))
	requireErr[*ledgererrors.UnauthorizedError](t, err)

	err = f.engine.ReportDebt(ctx, f.marketAddr, types.NewID(42), d18(1))
	requireErr[*ledgererrors.MarketNotFoundError](t, err)
}

func TestMarketIDsAreSequential(t *testing.T) {
	f := newFixture(t)
	second := f.registerMarket(common.HexToAddress("0xd0"))
	require.Equal(t, types.NewID(2), second)
	third := f.registerMarket(common.HexToAddress("0xd1"))
	require.Equal(t, types.NewID(3), third)
	require.Len(t, f.emitter.ofType(EventTypeMarketRegistered), 3)
}

func TestWeightsSplitLiquidity(t *testing.T) {
	f := newFixture(t)
	second := f.registerMarket(common.HexToAddress("0xd0"))
	require.NoError(t, f.engine.SetPoolConfiguration(ctx, f.poolOwner, f.poolID, []MarketConfiguration{
		{MarketID: f.marketID, Weight: one(), MaxDebtShareValue: one()},
		{MarketID: second, Weight: d18(3), MaxDebtShareValue: one()},
	}))
	f.openPosition(f.alice, 1, 1000)

	require.Equal(t, d18(250), f.market(f.marketID).Capacity)
	require.Equal(t, d18(750), f.market(second).Capacity)

	// capacity follows the collateral price
	f.setPrice("2")
	f.openPosition(f.bob, 2, 1000)
	require.Equal(t, d18(1000), f.market(f.marketID).Capacity)
	require.Equal(t, d18(3000), f.market(second).Capacity)
}

func TestMarketBumpsPoolOutAtMaxDebtShareValue(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.SetPoolConfiguration(ctx, f.poolOwner, f.poolID, []MarketConfiguration{
		{MarketID: f.marketID, Weight: one(), MaxDebtShareValue: d18f(t, "0.5")},
	}))
	alice := f.openPosition(f.alice, 1, 1000)

	require.NoError(t, f.engine.ReportDebt(ctx, f.marketAddr, f.marketID, d18(800)))
	summary := f.market(f.marketID)
	require.Equal(t, d18(300), summary.UndistributedDebt)
	require.Equal(t, d18f(t, "0.5"), summary.DebtPerShare)
	require.Equal(t, d18(500), f.position(alice).Debt)

	require.NoError(t, f.engine.ReportDebt(ctx, f.marketAddr, f.marketID, d18(400)))
	summary = f.market(f.marketID)
	require.Zero(t, summary.UndistributedDebt.Sign())
	require.Equal(t, d18(400), f.position(alice).Debt)
}

func TestDebtWithoutLiquidityStaysPending(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.ReportDebt(ctx, f.marketAddr, f.marketID, d18(100)))

	summary := f.market(f.marketID)
	require.Equal(t, d18(100), summary.TotalDebt)
	require.Equal(t, d18(100), summary.UndistributedDebt)
	require.Zero(t, summary.Capacity.Sign())

	alice := f.openPosition(f.alice, 1, 1000)
	require.Zero(t, f.market(f.marketID).UndistributedDebt.Sign())
	require.Equal(t, d18(100), f.position(alice).Debt)
}

func TestMarketUsdWithdrawals(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)
	trader := common.HexToAddress("0xbeef")

	withdrawable, err := f.engine.GetWithdrawableMarketUsd(ctx, f.marketID)
	require.NoError(t, err)
	require.Equal(t, d18(1000), withdrawable)

	require.NoError(t, f.engine.WithdrawMarketUsd(ctx, f.marketAddr, f.marketID, trader, d18(400)))
	require.Equal(t, d18(600), f.market(f.marketID).Withdrawable)
	require.Equal(t, d18(400), f.position(alice).Debt)

	err = f.engine.WithdrawMarketUsd(ctx, f.marketAddr, f.marketID, trader, d18(700))
	liquidity := requireErr[*ledgererrors.NotEnoughLiquidityError](t, err)
	require.Equal(t, d18(700), liquidity.Amount)

	require.NoError(t, f.engine.SetMinLiquidityRatio(ctx, f.owner, d18(2)))
	require.Equal(t, d18(100), f.market(f.marketID).Withdrawable)

	require.NoError(t, f.engine.DepositMarketUsd(ctx, f.marketAddr, f.marketID, trader, d18(400)))
	require.Equal(t, d18(500), f.market(f.marketID).Withdrawable)
	require.Zero(t, f.position(alice).Debt.Sign())

	balance, err := f.engine.GetUsdBalance(ctx, trader)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())
}

func TestPoolConfigurationValidation(t *testing.T) {
	f := newFixture(t)
	second := f.registerMarket(common.HexToAddress("0xd0"))

	err := f.engine.SetPoolConfiguration(ctx, f.alice, f.poolID, nil)
	requireErr[*ledgererrors.UnauthorizedError](t, err)

	err = f.engine.SetPoolConfiguration(ctx, f.poolOwner, f.poolID, []MarketConfiguration{
		{MarketID: second, Weight: one(), MaxDebtShareValue: one()},
		{MarketID: f.marketID, Weight: one(), MaxDebtShareValue: one()},
	})
	requireInvalidParameter(t, err, "markets")

	err = f.engine.SetPoolConfiguration(ctx, f.poolOwner, f.poolID, []MarketConfiguration{
		{MarketID: f.marketID, Weight: big.NewInt(0), MaxDebtShareValue: one()},
	})
	requireInvalidParameter(t, err, "weight")

	err = f.engine.SetPoolConfiguration(ctx, f.poolOwner, f.poolID, []MarketConfiguration{
		{MarketID: types.NewID(99), Weight: one(), MaxDebtShareValue: one()},
	})
	requireErr[*ledgererrors.MarketNotFoundError](t, err)

	cfg, err := f.engine.GetPoolConfiguration(ctx, f.poolID)
	require.NoError(t, err)
	require.Len(t, cfg, 1)
	require.Equal(t, f.marketID, cfg[0].MarketID)
}

func TestPoolConfigurationHonoursMinDelegateTime(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.SetMarketMinDelegateTime(ctx, f.marketAddr, f.marketID, 3600))
	reweighted := []MarketConfiguration{{MarketID: f.marketID, Weight: d18(2), MaxDebtShareValue: one()}}

	err := f.engine.SetPoolConfiguration(ctx, f.poolOwner, f.poolID, reweighted)
	pending := requireErr[*ledgererrors.MinDelegationTimeoutPendingError](t, err)
	require.Equal(t, uint64(3600), pending.TimeRemaining)

	// an unchanged entry is not a change
	require.NoError(t, f.engine.SetPoolConfiguration(ctx, f.poolOwner, f.poolID, []MarketConfiguration{
		{MarketID: f.marketID, Weight: one(), MaxDebtShareValue: one()},
	}))

	f.advance(time.Hour)
	require.NoError(t, f.engine.SetPoolConfiguration(ctx, f.poolOwner, f.poolID, reweighted))

	err = f.engine.SetMarketMinDelegateTime(ctx, f.marketAddr, f.marketID, MaxMinDelegateTime+1)
	requireInvalidParameter(t, err, "minDelegateTime")
}

func TestLockedCapacityBlocksWithdrawal(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)
	require.NoError(t, f.engine.SetMarketLockedCapacity(ctx, f.marketAddr, f.marketID, d18(800)))

	err := f.engine.SetPoolConfiguration(ctx, f.poolOwner, f.poolID, nil)
	requireErr[*ledgererrors.CapacityLockedError](t, err)

	err = f.engine.DelegateCollateral(ctx, f.alice, alice, f.poolID, f.snx, d18(500), one())
	requireErr[*ledgererrors.CapacityLockedError](t, err)

	f.delegate(f.alice, alice, 900)
	require.Equal(t, d18(900), f.market(f.marketID).Capacity)
}

func TestRemovedMarketStopsChargingPool(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)
	require.NoError(t, f.engine.ReportDebt(ctx, f.marketAddr, f.marketID, d18(100)))

	require.NoError(t, f.engine.SetPoolConfiguration(ctx, f.poolOwner, f.poolID, nil))
	require.Equal(t, d18(100), f.position(alice).Debt)
	require.Zero(t, f.market(f.marketID).Capacity.Sign())

	require.NoError(t, f.engine.ReportDebt(ctx, f.marketAddr, f.marketID, d18(500)))
	require.Equal(t, d18(100), f.position(alice).Debt)
	require.Equal(t, d18(400), f.market(f.marketID).UndistributedDebt)
}

func TestPoolOwnership(t *testing.T) {
	f := newFixture(t)
	err := f.engine.CreatePool(ctx, f.alice, f.poolID, f.alice)
	requireInvalidParameter(t, err, "poolId")

	err = f.engine.AcceptPoolOwnership(ctx, f.bob, f.poolID)
	requireErr[*ledgererrors.UnauthorizedError](t, err)

	require.NoError(t, f.engine.NominatePoolOwner(ctx, f.poolOwner, f.poolID, f.bob))
	require.NoError(t, f.engine.AcceptPoolOwnership(ctx, f.bob, f.poolID))
	require.NoError(t, f.engine.SetPoolName(ctx, f.bob, f.poolID, "spartan council"))

	pool, err := f.engine.GetPool(ctx, f.poolID)
	require.NoError(t, err)
	require.Equal(t, f.bob, pool.Owner)
	require.Equal(t, "spartan council", pool.Name)

	err = f.engine.SetPoolName(ctx, f.poolOwner, f.poolID, "nope")
	requireErr[*ledgererrors.UnauthorizedError](t, err)
}
