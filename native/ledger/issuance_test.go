package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"synthledger/core/decimalmath"
	ledgererrors "synthledger/core/errors"
)

func TestMintRaisesPositionDebt(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)

	require.NoError(t, f.engine.MintUsd(ctx, f.alice, alice, f.poolID, f.snx, d18(100)))

	pos := f.position(alice)
	require.Equal(t, d18(100), pos.Debt)
	require.Equal(t, d18(10), pos.CollateralRatio)
	require.Equal(t, d18(100), f.vault().Debt)

	balance, err := f.engine.GetUsdBalance(ctx, f.alice)
	require.NoError(t, err)
	require.Equal(t, d18(100), balance)
	require.Len(t, f.emitter.ofType(EventTypeUsdMinted), 1)
	require.Empty(t, f.emitter.ofType(EventTypeUsdFeePaid))
}

func TestMintBelowIssuanceRatioRejected(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)

	err := f.engine.MintUsd(ctx, f.alice, alice, f.poolID, f.snx, d18(1000))
	icr := requireErr[*ledgererrors.InsufficientCollateralRatioError](t, err)
	require.Equal(t, d18(1000), icr.CollateralValue)
	require.Equal(t, d18(1000), icr.Debt)
	require.Equal(t, one(), icr.Ratio)
	require.Equal(t, d18f(t, "1.5"), icr.MinRatio)

	pos := f.position(alice)
	require.Zero(t, pos.Debt.Sign())
	require.True(t, decimalmath.IsInfinity(pos.CollateralRatio))
}

func TestMintUsesPoolIssuanceRatioOverride(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)
	require.NoError(t, f.engine.SetPoolCollateralConfiguration(ctx, f.poolOwner, f.poolID, f.snx, PoolCollateralConfiguration{
		IssuanceRatio: d18(4),
	}))

	err := f.engine.MintUsd(ctx, f.alice, alice, f.poolID, f.snx, d18(300))
	icr := requireErr[*ledgererrors.InsufficientCollateralRatioError](t, err)
	require.Equal(t, d18(4), icr.MinRatio)
	require.NoError(t, f.engine.MintUsd(ctx, f.alice, alice, f.poolID, f.snx, d18(250)))
}

func TestMintRequiresPermission(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)

	err := f.engine.MintUsd(ctx, f.bob, alice, f.poolID, f.snx, d18(10))
	denied := requireErr[*ledgererrors.PermissionDeniedError](t, err)
	require.Equal(t, string(PermissionMint), denied.Permission)

	require.NoError(t, f.engine.GrantPermission(ctx, f.alice, alice, PermissionMint, f.bob))
	require.NoError(t, f.engine.MintUsd(ctx, f.bob, alice, f.poolID, f.snx, d18(10)))
	balance, err := f.engine.GetUsdBalance(ctx, f.bob)
	require.NoError(t, err)
	require.Equal(t, d18(10), balance)
}

func TestBurnCapsAtDebt(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)
	require.NoError(t, f.engine.MintUsd(ctx, f.alice, alice, f.poolID, f.snx, d18(100)))
	require.NoError(t, f.engine.TransferUsd(ctx, f.alice, f.bob, d18(40)))

	err := f.engine.BurnUsd(ctx, f.carol, alice, f.poolID, f.snx, d18(10))
	requireErr[*ledgererrors.InsufficientBalanceError](t, err)

	// anyone may burn against the account
	require.NoError(t, f.engine.BurnUsd(ctx, f.bob, alice, f.poolID, f.snx, d18(40)))
	require.Equal(t, d18(60), f.position(alice).Debt)

	require.NoError(t, f.engine.BurnUsd(ctx, f.alice, alice, f.poolID, f.snx, d18(500)))
	require.Zero(t, f.position(alice).Debt.Sign())
	balance, err := f.engine.GetUsdBalance(ctx, f.alice)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())

	err = f.engine.BurnUsd(ctx, f.alice, alice, f.poolID, f.snx, d18(1))
	requireInvalidParameter(t, err, "amount")
}

func TestMintAndBurnFees(t *testing.T) {
	f := newFixture(t)
	feeRecipient := common.HexToAddress("0xfee")
	require.NoError(t, f.engine.SetFeeConfiguration(ctx, f.owner, d18f(t, "0.01"), d18f(t, "0.02"), feeRecipient))
	alice := f.openPosition(f.alice, 1, 1000)

	require.NoError(t, f.engine.MintUsd(ctx, f.alice, alice, f.poolID, f.snx, d18(100)))
	require.Equal(t, d18(101), f.position(alice).Debt)

	require.NoError(t, f.engine.BurnUsd(ctx, f.alice, alice, f.poolID, f.snx, d18(50)))
	require.Equal(t, d18(51), f.position(alice).Debt)

	aliceBalance, err := f.engine.GetUsdBalance(ctx, f.alice)
	require.NoError(t, err)
	require.Equal(t, d18(49), aliceBalance)
	feeBalance, err := f.engine.GetUsdBalance(ctx, feeRecipient)
	require.NoError(t, err)
	require.Equal(t, d18(2), feeBalance)
	require.Len(t, f.emitter.ofType(EventTypeUsdFeePaid), 2)
}

func TestSetFeeConfigurationValidation(t *testing.T) {
	f := newFixture(t)
	err := f.engine.SetFeeConfiguration(ctx, f.alice, big.NewInt(0), big.NewInt(0), common.Address{})
	requireErr[*ledgererrors.UnauthorizedError](t, err)

	err = f.engine.SetFeeConfiguration(ctx, f.owner, d18(2), big.NewInt(0), f.owner)
	requireInvalidParameter(t, err, "mintFeeRatio")

	err = f.engine.SetFeeConfiguration(ctx, f.owner, d18f(t, "0.1"), big.NewInt(0), common.Address{})
	requireInvalidParameter(t, err, "feeRecipient")
}

func TestTransferUsd(t *testing.T) {
	f := newFixture(t)
	err := f.engine.TransferUsd(ctx, f.alice, f.bob, d18(1))
	insufficient := requireErr[*ledgererrors.InsufficientBalanceError](t, err)
	require.Zero(t, insufficient.Available.Sign())

	err = f.engine.TransferUsd(ctx, f.alice, common.Address{}, d18(1))
	requireInvalidParameter(t, err, "to")
}
