package distribution

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"synthledger/core/decimalmath"
)

func d18(v int64) *big.Int { return decimalmath.FromInt64(v) }

func TestDistributeOverEmptyDistribution(t *testing.T) {
	dist := New()
	err := dist.DistributeValue(d18(100))
	if !errors.Is(err, ErrEmptyDistribution) {
		t.Fatalf("expected ErrEmptyDistribution, got %v", err)
	}
	require.Equal(t, 0, dist.ValuePerShare.Sign())
	require.NoError(t, dist.DistributeValue(big.NewInt(0)))
}

func TestProportionalAccrual(t *testing.T) {
	dist := New()
	var a, b Actor
	require.Equal(t, 0, dist.SetActorShares(&a, d18(100)).Sign())
	require.Equal(t, 0, dist.SetActorShares(&b, d18(300)).Sign())
	require.Equal(t, 0, dist.TotalShares.Cmp(d18(400)))

	require.NoError(t, dist.DistributeValue(d18(40)))
	require.Equal(t, 0, dist.PendingValue(a).Cmp(d18(10)))
	require.Equal(t, 0, dist.PendingValue(b).Cmp(d18(30)))

	// Negative values (credit) flow the same way.
	require.NoError(t, dist.DistributeValue(d18(-8)))
	require.Equal(t, 0, dist.PendingValue(a).Cmp(d18(8)))
	require.Equal(t, 0, dist.PendingValue(b).Cmp(d18(24)))
}

func TestSettlementIsIdempotentAndOrderIndependent(t *testing.T) {
	build := func() (*Distribution, *Actor, *Actor) {
		dist := New()
		a, b := &Actor{}, &Actor{}
		dist.SetActorShares(a, d18(1))
		dist.SetActorShares(b, d18(2))
		require.NoError(t, dist.DistributeValue(d18(3)))
		return dist, a, b
	}

	dist1, a1, b1 := build()
	va1 := dist1.AccumulateActor(a1)
	vb1 := dist1.AccumulateActor(b1)

	dist2, a2, b2 := build()
	vb2 := dist2.AccumulateActor(b2)
	va2 := dist2.AccumulateActor(a2)

	require.Equal(t, 0, va1.Cmp(va2))
	require.Equal(t, 0, vb1.Cmp(vb2))

	// A second settlement without new value yields nothing.
	require.Equal(t, 0, dist1.AccumulateActor(a1).Sign())
	// Reads never mutate.
	require.Equal(t, 0, dist2.PendingValue(*a2).Cmp(dist2.PendingValue(*a2)))
}

func TestSetActorSharesReturnsSettledValue(t *testing.T) {
	dist := New()
	var a, b Actor
	dist.SetActorShares(&a, d18(50))
	dist.SetActorShares(&b, d18(50))
	require.NoError(t, dist.DistributeValue(d18(10)))

	settled := dist.SetActorShares(&a, big.NewInt(0))
	require.Equal(t, 0, settled.Cmp(d18(5)))
	require.Equal(t, 0, dist.TotalShares.Cmp(d18(50)))

	// Value distributed after a's exit accrues to b only.
	require.NoError(t, dist.DistributeValue(d18(10)))
	require.Equal(t, 0, dist.PendingValue(a).Sign())
	require.Equal(t, 0, dist.PendingValue(b).Cmp(d18(15)))
}

func TestLateJoinerDoesNotInheritHistory(t *testing.T) {
	dist := New()
	var a, late Actor
	dist.SetActorShares(&a, d18(10))
	require.NoError(t, dist.DistributeValue(d18(100)))
	dist.SetActorShares(&late, d18(10))
	require.Equal(t, 0, dist.PendingValue(late).Sign())
	require.NoError(t, dist.DistributeValue(d18(20)))
	require.Equal(t, 0, dist.PendingValue(late).Cmp(d18(10)))
	require.Equal(t, 0, dist.PendingValue(a).Cmp(d18(110)))
}

func TestScalableMapping(t *testing.T) {
	m := NewScalable()
	aShares := m.Set(nil, d18(1000))
	bShares := m.Set(nil, d18(1000))
	require.Equal(t, 0, m.TotalAmount().Cmp(d18(2000)))

	// Remove a and scale the rest by what a left behind minus a reward.
	m.Set(aShares, big.NewInt(0))
	require.NoError(t, m.Scale(d18(980)))
	require.Equal(t, 0, m.Get(bShares).Cmp(d18(1980)))
	require.Equal(t, 0, m.TotalAmount().Cmp(d18(1980)))

	// Shrink proportionally.
	cShares := m.Set(nil, d18(1980))
	require.NoError(t, m.Scale(d18(-1980)))
	require.Equal(t, 0, m.Get(bShares).Cmp(d18(990)))
	require.Equal(t, 0, m.Get(cShares).Cmp(d18(990)))
}

func TestScaleRejectsEmptyOrOverdrawn(t *testing.T) {
	m := NewScalable()
	require.ErrorIs(t, m.Scale(d18(1)), ErrInsufficientMappedAmount)

	m.Set(nil, d18(10))
	require.ErrorIs(t, m.Scale(d18(-11)), ErrInsufficientMappedAmount)
	require.NoError(t, m.Scale(d18(-10)))
	require.Equal(t, 0, m.TotalAmount().Sign())
}
