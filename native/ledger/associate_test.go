package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	ledgererrors "synthledger/core/errors"
)

func TestAssociateDebtMovesDebtOntoAccount(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)
	bob := f.openPosition(f.bob, 2, 1000)

	debt, err := f.engine.AssociateDebt(ctx, f.marketAddr, f.marketID, f.poolID, f.snx, alice, d18(100))
	require.NoError(t, err)
	require.Equal(t, d18(50), debt)

	require.Equal(t, d18(50), f.position(alice).Debt)
	require.Equal(t, d18(-50), f.position(bob).Debt)
	require.Zero(t, f.vault().Debt.Sign())

	evts := f.emitter.ofType(EventTypeDebtAssociated)
	require.Len(t, evts, 1)
	require.Equal(t, d18(50).String(), evts[0].Attributes["updatedDebt"])
}

func TestAssociateDebtChecks(t *testing.T) {
	f := newFixture(t)
	alice := f.openPosition(f.alice, 1, 1000)
	f.openPosition(f.bob, 2, 1000)
	carol := f.openAccount(f.carol, 3, 0)

	_, err := f.engine.AssociateDebt(ctx, f.alice, f.marketID, f.poolID, f.snx, alice, d18(1))
	requireErr[*ledgererrors.UnauthorizedError](t, err)

	otherAddr := common.HexToAddress("0xd0")
	other := f.registerMarket(otherAddr)
	_, err = f.engine.AssociateDebt(ctx, otherAddr, other, f.poolID, f.snx, alice, d18(1))
	notFunded := requireErr[*ledgererrors.NotFundedByPoolError](t, err)
	require.Equal(t, other, notFunded.MarketID)

	_, err = f.engine.AssociateDebt(ctx, f.marketAddr, f.marketID, f.poolID, f.snx, carol, d18(1))
	requireInvalidParameter(t, err, "accountId")

	_, err = f.engine.AssociateDebt(ctx, f.marketAddr, f.marketID, f.poolID, f.snx, alice, big.NewInt(-1))
	requireInvalidParameter(t, err, "amount")

	// 2000 associated leaves alice with 1000 debt against 1000 collateral
	_, err = f.engine.AssociateDebt(ctx, f.marketAddr, f.marketID, f.poolID, f.snx, alice, d18(2000))
	icr := requireErr[*ledgererrors.InsufficientCollateralRatioError](t, err)
	require.Equal(t, d18(1000), icr.Debt)
	require.Zero(t, f.position(alice).Debt.Sign())
}
