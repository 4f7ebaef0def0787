package ledger

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	ledgererrors "synthledger/core/errors"
)

func TestDepositAndWithdraw(t *testing.T) {
	f := newFixture(t)
	account := f.openAccount(f.alice, 1, 1000)

	err := f.engine.Withdraw(ctx, f.alice, account, f.snx, d18(1001))
	requireErr[*ledgererrors.InsufficientAccountCollateralError](t, err)

	err = f.engine.Withdraw(ctx, f.bob, account, f.snx, d18(1))
	requireErr[*ledgererrors.PermissionDeniedError](t, err)

	require.NoError(t, f.engine.Withdraw(ctx, f.alice, account, f.snx, d18(400)))
	balance, err := f.engine.GetAccountCollateral(ctx, account, f.snx)
	require.NoError(t, err)
	require.Equal(t, d18(600), balance.Deposited)

	err = f.engine.Deposit(ctx, f.alice, account, common.HexToAddress("0x99"), d18(1))
	requireErr[*ledgererrors.CollateralNotFoundError](t, err)
}

func TestDepositDisabledCollateral(t *testing.T) {
	f := newFixture(t)
	account := f.openAccount(f.alice, 1, 1000)
	require.NoError(t, f.engine.ConfigureCollateral(ctx, f.owner, CollateralType{
		Address:           f.snx,
		IssuanceRatio:     d18f(t, "1.5"),
		LiquidationRatio:  d18f(t, "1.2"),
		LiquidationReward: d18(20),
		MinDelegation:     d18(0),
		DepositingEnabled: false,
	}))

	err := f.engine.Deposit(ctx, f.alice, account, f.snx, d18(1))
	requireErr[*ledgererrors.CollateralDepositDisabledError](t, err)
	err = f.engine.DelegateCollateral(ctx, f.alice, account, f.poolID, f.snx, d18(10), one())
	requireErr[*ledgererrors.CollateralDepositDisabledError](t, err)

	// withdrawing stays possible
	require.NoError(t, f.engine.Withdraw(ctx, f.alice, account, f.snx, d18(10)))
}

func TestConfigureCollateralValidation(t *testing.T) {
	f := newFixture(t)
	cfg := CollateralType{
		Address:           common.HexToAddress("0x77"),
		IssuanceRatio:     d18f(t, "1.1"),
		LiquidationRatio:  d18f(t, "1.2"),
		LiquidationReward: d18(0),
		MinDelegation:     d18(0),
		DepositingEnabled: true,
	}
	err := f.engine.ConfigureCollateral(ctx, f.owner, cfg)
	requireInvalidParameter(t, err, "issuanceRatio")

	err = f.engine.ConfigureCollateral(ctx, f.alice, cfg)
	requireErr[*ledgererrors.UnauthorizedError](t, err)
}

func TestDelegationTracksAccountCollateral(t *testing.T) {
	f := newFixture(t)
	account := f.openAccount(f.alice, 1, 1000)
	f.delegate(f.alice, account, 600)

	balance, err := f.engine.GetAccountCollateral(ctx, account, f.snx)
	require.NoError(t, err)
	require.Equal(t, d18(1000), balance.Deposited)
	require.Equal(t, d18(600), balance.Assigned)
	require.Equal(t, d18(400), balance.Available)

	f.delegate(f.alice, account, 0)
	balance, err = f.engine.GetAccountCollateral(ctx, account, f.snx)
	require.NoError(t, err)
	require.Zero(t, balance.Assigned.Sign())
	require.Equal(t, d18(1000), balance.Available)
}

func TestDelegationRejections(t *testing.T) {
	f := newFixture(t)
	account := f.openAccount(f.alice, 1, 1000)

	err := f.engine.DelegateCollateral(ctx, f.alice, account, f.poolID, f.snx, d18(100), d18(2))
	requireErr[*ledgererrors.InvalidLeverageError](t, err)

	err = f.engine.DelegateCollateral(ctx, f.bob, account, f.poolID, f.snx, d18(100), one())
	denied := requireErr[*ledgererrors.PermissionDeniedError](t, err)
	require.Equal(t, string(PermissionDelegate), denied.Permission)

	err = f.engine.DelegateCollateral(ctx, f.alice, account, f.poolID, f.snx, d18(1500), one())
	insufficient := requireErr[*ledgererrors.InsufficientAccountCollateralError](t, err)
	require.Equal(t, d18(1500), insufficient.Amount)

	f.delegate(f.alice, account, 500)
	err = f.engine.DelegateCollateral(ctx, f.alice, account, f.poolID, f.snx, d18(500), one())
	requireErr[*ledgererrors.InvalidCollateralAmountError](t, err)

	// the delta, not the target, must be available
	err = f.engine.DelegateCollateral(ctx, f.alice, account, f.poolID, f.snx, d18(1100), one())
	insufficient = requireErr[*ledgererrors.InsufficientAccountCollateralError](t, err)
	require.Equal(t, d18(600), insufficient.Amount)

	require.NoError(t, f.engine.GrantPermission(ctx, f.alice, account, PermissionDelegate, f.bob))
	require.NoError(t, f.engine.DelegateCollateral(ctx, f.bob, account, f.poolID, f.snx, d18(1000), one()))
}

func TestMinimumDelegation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.ConfigureCollateral(ctx, f.owner, CollateralType{
		Address:           f.snx,
		IssuanceRatio:     d18f(t, "1.5"),
		LiquidationRatio:  d18f(t, "1.2"),
		LiquidationReward: d18(20),
		MinDelegation:     d18(100),
		DepositingEnabled: true,
	}))
	account := f.openAccount(f.alice, 1, 1000)

	err := f.engine.DelegateCollateral(ctx, f.alice, account, f.poolID, f.snx, d18(50), one())
	minimum := requireErr[*ledgererrors.InsufficientDelegationError](t, err)
	require.Equal(t, d18(100), minimum.MinDelegation)

	f.delegate(f.alice, account, 200)
	err = f.engine.DelegateCollateral(ctx, f.alice, account, f.poolID, f.snx, d18(50), one())
	requireErr[*ledgererrors.InsufficientDelegationError](t, err)
	// leaving entirely is always allowed
	f.delegate(f.alice, account, 0)
}

func TestUndelegationKeepsIssuanceRatio(t *testing.T) {
	f := newFixture(t)
	account := f.openPosition(f.alice, 1, 1000)
	require.NoError(t, f.engine.MintUsd(ctx, f.alice, account, f.poolID, f.snx, d18(600)))

	err := f.engine.DelegateCollateral(ctx, f.alice, account, f.poolID, f.snx, d18(800), one())
	icr := requireErr[*ledgererrors.InsufficientCollateralRatioError](t, err)
	require.Equal(t, d18(800), icr.CollateralValue)
	require.Equal(t, d18(600), icr.Debt)

	f.delegate(f.alice, account, 900)
	pos := f.position(account)
	require.Equal(t, d18(900), pos.Collateral)
	require.Equal(t, d18(600), pos.Debt)
}

func TestPoolExitLockedAfterDelegation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.SetMarketMinDelegateTime(ctx, f.marketAddr, f.marketID, 100))
	account := f.openPosition(f.alice, 1, 1000)
	delegatedAt := f.unix()

	f.advance(50 * time.Second)
	err := f.engine.DelegateCollateral(ctx, f.alice, account, f.poolID, f.snx, d18(500), one())
	locked := requireErr[*ledgererrors.PoolExitTemporaryLockError](t, err)
	require.Equal(t, delegatedAt+100, locked.Until)

	f.advance(50 * time.Second)
	f.delegate(f.alice, account, 500)
}

func TestPoolCollateralLimit(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.SetPoolCollateralConfiguration(ctx, f.poolOwner, f.poolID, f.snx, PoolCollateralConfiguration{
		CollateralLimit: d18(1500),
	}))
	f.openPosition(f.alice, 1, 1000)
	bob := f.openAccount(f.bob, 2, 1000)

	err := f.engine.DelegateCollateral(ctx, f.bob, bob, f.poolID, f.snx, d18(1000), one())
	exceeded := requireErr[*ledgererrors.PoolCollateralLimitExceededError](t, err)
	require.Equal(t, d18(2000), exceeded.Amount)
	require.Equal(t, d18(1500), exceeded.Limit)

	f.delegate(f.bob, bob, 500)
}

func newIntentFixture(t *testing.T) *fixture {
	f := newFixture(t)
	require.NoError(t, f.engine.SetMarketDelegationWindows(ctx, f.marketAddr, f.marketID, 100, 50, 200, 0))
	return f
}

func TestIntentProcessingWindow(t *testing.T) {
	f := newIntentFixture(t)
	account := f.openAccount(f.alice, 1, 1000)
	declaredAt := f.unix()

	id, err := f.engine.DeclareDelegateIntent(ctx, f.alice, account, f.poolID, f.snx, d18(600), one())
	require.NoError(t, err)
	intent, err := f.engine.GetIntent(ctx, id)
	require.NoError(t, err)
	require.Equal(t, declaredAt+100, intent.ProcessingStart)
	require.Equal(t, declaredAt+150, intent.ProcessingEnd)
	require.False(t, intent.Undelegation)

	f.advance(10 * time.Second)
	err = f.engine.ProcessIntentToDelegateCollateralByIntents(ctx, f.bob, account, []uint64{id})
	notReady := requireErr[*ledgererrors.DelegationIntentNotReadyError](t, err)
	require.Equal(t, declaredAt, notReady.DeclarationTime)
	require.Equal(t, declaredAt+100, notReady.ProcessingStartTime)

	// anyone may process a ready intent
	f.advance(110 * time.Second)
	require.NoError(t, f.engine.ProcessIntentToDelegateCollateralByIntents(ctx, f.bob, account, []uint64{id}))
	require.Equal(t, d18(600), f.position(account).Collateral)

	_, err = f.engine.GetIntent(ctx, id)
	requireErr[*ledgererrors.IntentNotFoundError](t, err)
	intents, err := f.engine.GetAccountIntents(ctx, account)
	require.NoError(t, err)
	require.Empty(t, intents)
}

func TestExpiredIntents(t *testing.T) {
	f := newIntentFixture(t)
	account := f.openAccount(f.alice, 1, 1000)
	declaredAt := f.unix()

	first, err := f.engine.DeclareDelegateIntent(ctx, f.alice, account, f.poolID, f.snx, d18(600), one())
	require.NoError(t, err)
	second, err := f.engine.DeclareDelegateIntent(ctx, f.alice, account, f.poolID, f.snx, d18(700), one())
	require.NoError(t, err)
	require.Greater(t, second, first)

	intents, err := f.engine.GetAccountIntents(ctx, account)
	require.NoError(t, err)
	require.Len(t, intents, 2)
	require.Equal(t, first, intents[0].ID)

	err = f.engine.DeleteExpiredIntents(ctx, f.alice, account, []uint64{first})
	requireInvalidParameter(t, err, "intentId")

	f.advance(200 * time.Second)
	err = f.engine.ProcessIntentToDelegateCollateralByIntents(ctx, f.alice, account, []uint64{first})
	expired := requireErr[*ledgererrors.DelegationIntentExpiredError](t, err)
	require.Equal(t, declaredAt, expired.DeclarationTime)
	require.Equal(t, declaredAt+150, expired.ProcessingEndTime)

	err = f.engine.DeleteExpiredIntents(ctx, f.bob, account, []uint64{first})
	requireErr[*ledgererrors.PermissionDeniedError](t, err)
	require.NoError(t, f.engine.DeleteExpiredIntents(ctx, f.alice, account, []uint64{first}))

	err = f.engine.ForceDeleteIntents(ctx, f.alice, []uint64{second})
	requireErr[*ledgererrors.UnauthorizedError](t, err)
	require.NoError(t, f.engine.ForceDeleteIntents(ctx, f.owner, []uint64{second}))

	intents, err = f.engine.GetAccountIntents(ctx, account)
	require.NoError(t, err)
	require.Empty(t, intents)
}

func TestUndelegationIntentNeverExpiresWithoutWindow(t *testing.T) {
	f := newIntentFixture(t)
	account := f.openPosition(f.alice, 1, 1000)

	id, err := f.engine.DeclareDelegateIntent(ctx, f.alice, account, f.poolID, f.snx, d18(400), one())
	require.NoError(t, err)
	intent, err := f.engine.GetIntent(ctx, id)
	require.NoError(t, err)
	require.True(t, intent.Undelegation)
	require.Zero(t, intent.ProcessingEnd)

	f.advance(24 * time.Hour)
	require.NoError(t, f.engine.ProcessIntentToDelegateCollateralByIntents(ctx, f.alice, account, []uint64{id}))
	require.Equal(t, d18(400), f.position(account).Collateral)
}

func TestIntentOfAnotherAccountRejected(t *testing.T) {
	f := newIntentFixture(t)
	alice := f.openAccount(f.alice, 1, 1000)
	bob := f.openAccount(f.bob, 2, 1000)

	id, err := f.engine.DeclareDelegateIntent(ctx, f.alice, alice, f.poolID, f.snx, d18(100), one())
	require.NoError(t, err)
	f.advance(120 * time.Second)
	err = f.engine.ProcessIntentToDelegateCollateralByIntents(ctx, f.bob, bob, []uint64{id})
	requireInvalidParameter(t, err, "intentId")
}
