package ledger

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	ledgererrors "synthledger/core/errors"
	"synthledger/core/types"
)

var distributorAddr = common.HexToAddress("0xd15")

func (f *fixture) registerDistributor() {
	f.t.Helper()
	require.NoError(f.t, f.engine.RegisterRewardsDistributor(ctx, f.poolOwner, f.poolID, f.snx, distributorAddr))
}

func (f *fixture) available(account types.ID) string {
	f.t.Helper()
	amount, err := f.engine.GetAvailableRewards(ctx, account, f.poolID, f.snx, distributorAddr)
	require.NoError(f.t, err)
	return amount.String()
}

func TestRewardsVestLinearly(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)
	f.registerDistributor()
	require.NoError(t, f.engine.DistributeRewards(ctx, distributorAddr, f.poolID, f.snx, d18(1000), f.unix(), 100))

	f.advance(51 * time.Second)
	require.Equal(t, d18(510).String(), f.available(alice))
	require.Equal(t, d18(510).String(), f.available(alice))

	f.advance(49 * time.Second)
	require.Equal(t, d18(1000).String(), f.available(alice))

	claimed, err := f.engine.ClaimRewards(ctx, f.alice, alice, f.poolID, f.snx, distributorAddr)
	require.NoError(t, err)
	require.Equal(t, d18(1000), claimed)
	require.Len(t, f.payer.paid, 1)
	require.Equal(t, d18(1000), f.payer.paid[0])
	require.Equal(t, f.alice, f.payer.to[0])

	_, err = f.engine.ClaimRewards(ctx, f.alice, alice, f.poolID, f.snx, distributorAddr)
	requireInvalidParameter(t, err, "amount")
}

func TestRewardsSplitByShares(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)
	bob := f.openPosition(f.bob, 2, 3000)
	f.registerDistributor()

	require.NoError(t, f.engine.DistributeRewards(ctx, distributorAddr, f.poolID, f.snx, d18(1000), f.unix(), 0))
	require.Equal(t, d18(250).String(), f.available(alice))
	require.Equal(t, d18(750).String(), f.available(bob))

	balances, err := f.engine.UpdateRewards(ctx, bob, f.poolID, f.snx)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	require.Equal(t, distributorAddr, balances[0].Distributor)
	require.Equal(t, d18(750), balances[0].Amount)
}

func TestRewardsJoinAfterDistribution(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)
	f.registerDistributor()
	require.NoError(t, f.engine.DistributeRewards(ctx, distributorAddr, f.poolID, f.snx, d18(1000), f.unix(), 100))

	f.advance(50 * time.Second)
	bob := f.openPosition(f.bob, 2, 1000)
	f.advance(50 * time.Second)

	require.Equal(t, d18(750).String(), f.available(alice))
	require.Equal(t, d18(250).String(), f.available(bob))
}

func TestRewardsFutureStart(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)
	f.registerDistributor()
	require.NoError(t, f.engine.DistributeRewards(ctx, distributorAddr, f.poolID, f.snx, d18(1000), f.unix()+100, 0))

	f.advance(50 * time.Second)
	require.Equal(t, "0", f.available(alice))
	f.advance(50 * time.Second)
	require.Equal(t, d18(1000).String(), f.available(alice))
}

func TestRemovedDistributorKeepsVestedRewards(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)
	f.registerDistributor()
	require.NoError(t, f.engine.DistributeRewards(ctx, distributorAddr, f.poolID, f.snx, d18(1000), f.unix(), 100))

	f.advance(50 * time.Second)
	require.NoError(t, f.engine.RemoveRewardsDistributor(ctx, f.poolOwner, f.poolID, f.snx, distributorAddr))
	removed := f.emitter.ofType(EventTypeDistributorRemoved)
	require.Len(t, removed, 1)
	require.Equal(t, d18(500).String(), removed[0].Attributes["forfeited"])

	f.advance(50 * time.Second)
	require.Equal(t, d18(500).String(), f.available(alice))

	err := f.engine.DistributeRewards(ctx, distributorAddr, f.poolID, f.snx, d18(1), f.unix(), 0)
	requireErr[*ledgererrors.UnauthorizedError](t, err)

	// re-registration resumes the stream
	f.registerDistributor()
	require.NoError(t, f.engine.DistributeRewards(ctx, distributorAddr, f.poolID, f.snx, d18(100), f.unix(), 0))
	require.Equal(t, d18(600).String(), f.available(alice))
}

func TestRewardsDistributorAuthorization(t *testing.T) {
	f := newFixture(t)
	err := f.engine.RegisterRewardsDistributor(ctx, f.alice, f.poolID, f.snx, distributorAddr)
	requireErr[*ledgererrors.UnauthorizedError](t, err)

	f.registerDistributor()
	err = f.engine.RegisterRewardsDistributor(ctx, f.poolOwner, f.poolID, f.snx, distributorAddr)
	requireInvalidParameter(t, err, "distributor")

	err = f.engine.DistributeRewards(ctx, f.alice, f.poolID, f.snx, d18(1), f.unix(), 0)
	requireErr[*ledgererrors.DistributorNotFoundError](t, err)

	alice := f.openPosition(f.alice, 1, 1000)
	require.NoError(t, f.engine.DistributeRewards(ctx, distributorAddr, f.poolID, f.snx, d18(10), f.unix(), 0))
	_, err = f.engine.ClaimRewards(ctx, f.bob, alice, f.poolID, f.snx, distributorAddr)
	requireErr[*ledgererrors.PermissionDeniedError](t, err)
}

func TestRewardsSurviveVaultLiquidation(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)
	liquidator := f.openAccount(f.carol, 2, 0)
	f.registerDistributor()
	require.NoError(t, f.engine.DistributeRewards(ctx, distributorAddr, f.poolID, f.snx, d18(1000), f.unix(), 100))
	require.NoError(t, f.engine.MintUsd(ctx, f.alice, alice, f.poolID, f.snx, d18(600)))
	require.NoError(t, f.engine.TransferUsd(ctx, f.alice, f.carol, d18(600)))

	f.advance(50 * time.Second)
	f.setPrice("0.6")
	require.NoError(t, f.engine.LiquidateVault(ctx, f.carol, f.poolID, f.snx, liquidator, d18(600)))

	// rewards vested to the closed epoch stay claimable, later ones go to the new epoch
	f.advance(50 * time.Second)
	require.Equal(t, d18(500).String(), f.available(alice))
}
