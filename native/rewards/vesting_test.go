package rewards

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"synthledger/core/decimalmath"
)

func TestLinearVesting(t *testing.T) {
	const start = 1_000
	shares := decimalmath.FromUint64(1000)
	stream := NewStream()
	stream.AddTranche(decimalmath.FromUint64(1000), start, 100)

	var claim Claim
	stream.Advance(start-1, shares)
	claim.Settle(shares, stream.RewardPerShare)
	require.Equal(t, 0, claim.Pending.Sign(), "nothing vests before start")

	stream.Advance(start+51, shares)
	claim.Settle(shares, stream.RewardPerShare)
	require.Equal(t, 0, claim.Pending.Cmp(decimalmath.FromUint64(510)))

	stream.Advance(start+100, shares)
	claim.Settle(shares, stream.RewardPerShare)
	require.Equal(t, 0, claim.Pending.Cmp(decimalmath.FromUint64(1000)))
	require.Empty(t, stream.Tranches, "fully vested tranches are pruned")

	stream.Advance(start+500, shares)
	claim.Settle(shares, stream.RewardPerShare)
	require.Equal(t, 0, claim.Pending.Cmp(decimalmath.FromUint64(1000)))
}

func TestInstantAndFutureTranches(t *testing.T) {
	shares := decimalmath.FromUint64(10)
	stream := NewStream()
	stream.AddTranche(decimalmath.FromUint64(50), 100, 0)
	stream.AddTranche(decimalmath.FromUint64(70), 200, 0)

	credited := stream.Advance(100, shares)
	require.Equal(t, 0, credited.Cmp(decimalmath.FromUint64(50)))
	require.Len(t, stream.Tranches, 1)
	require.Equal(t, 0, stream.Unvested().Cmp(decimalmath.FromUint64(70)))

	credited = stream.Advance(200, shares)
	require.Equal(t, 0, credited.Cmp(decimalmath.FromUint64(70)))
}

func TestVestingWaitsForShares(t *testing.T) {
	stream := NewStream()
	stream.AddTranche(decimalmath.FromUint64(100), 0, 10)
	require.Equal(t, 0, stream.Advance(5, big.NewInt(0)).Sign())
	require.Equal(t, 0, stream.RewardPerShare.Sign())

	credited := stream.Advance(5, decimalmath.FromUint64(1))
	require.Equal(t, 0, credited.Cmp(decimalmath.FromUint64(50)))
}

func TestStopForfeitsUnvested(t *testing.T) {
	shares := decimalmath.FromUint64(4)
	stream := NewStream()
	stream.AddTranche(decimalmath.FromUint64(100), 0, 100)

	forfeited := stream.Stop(25, shares)
	require.False(t, stream.Active)
	require.Equal(t, 0, forfeited.Cmp(decimalmath.FromUint64(75)))

	var claim Claim
	claim.Settle(shares, stream.RewardPerShare)
	require.Equal(t, 0, claim.Pending.Cmp(decimalmath.FromUint64(25)), "vested rewards stay claimable")
	require.Equal(t, 0, claim.Take().Cmp(decimalmath.FromUint64(25)))
	require.Equal(t, 0, claim.Pending.Sign())
}
