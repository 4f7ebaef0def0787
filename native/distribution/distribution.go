// Package distribution implements the lazy value-per-share accumulator shared by
// every level of the debt tree and the proportional collateral mapping used by
// vaults.
//
// A Distribution only stores the aggregate (total shares and the running value
// per share). Actor records live wherever their owner persists them; every
// share mutation must go through SetActorShares so that the aggregate stays in
// sync with the sum of actor shares.
package distribution

import (
	"errors"
	"math/big"

	"synthledger/core/decimalmath"
)

// ErrEmptyDistribution is returned when value is distributed over zero shares.
var ErrEmptyDistribution = errors.New("distribution: no shares to distribute over")

// Distribution is an actor weighted accumulator. Shares are D18 values and the
// value per share is a D27 fixed point number.
type Distribution struct {
	TotalShares   *big.Int `json:"totalShares"`
	ValuePerShare *big.Int `json:"valuePerShare"`
}

// Actor is a participant in a Distribution.
type Actor struct {
	Shares            *big.Int `json:"shares"`
	LastValuePerShare *big.Int `json:"lastValuePerShare"`
}

// New returns an empty distribution.
func New() *Distribution {
	return &Distribution{TotalShares: big.NewInt(0), ValuePerShare: big.NewInt(0)}
}

func (d *Distribution) ensure() {
	if d.TotalShares == nil {
		d.TotalShares = big.NewInt(0)
	}
	if d.ValuePerShare == nil {
		d.ValuePerShare = big.NewInt(0)
	}
}

func (a *Actor) ensure() {
	if a.Shares == nil {
		a.Shares = big.NewInt(0)
	}
	if a.LastValuePerShare == nil {
		a.LastValuePerShare = big.NewInt(0)
	}
}

// Clone returns a deep copy of the distribution.
func (d *Distribution) Clone() *Distribution {
	if d == nil {
		return New()
	}
	return &Distribution{
		TotalShares:   decimalmath.Clone(d.TotalShares),
		ValuePerShare: decimalmath.Clone(d.ValuePerShare),
	}
}

// Empty reports whether no shares are outstanding.
func (d *Distribution) Empty() bool {
	return d == nil || d.TotalShares == nil || d.TotalShares.Sign() == 0
}

// ValuePerShareD18 returns the accumulated value per share at D18 precision.
func (d *Distribution) ValuePerShareD18() *big.Int {
	if d == nil {
		return big.NewInt(0)
	}
	return decimalmath.DownscaleD27ToD18(d.ValuePerShare)
}

// DistributeValue spreads amount over all outstanding shares. A zero amount is
// a no-op; distributing over zero shares fails with ErrEmptyDistribution and
// leaves the distribution untouched.
func (d *Distribution) DistributeValue(amount *big.Int) error {
	d.ensure()
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if d.TotalShares.Sign() == 0 {
		return ErrEmptyDistribution
	}
	// amount (D18) * 1e27 / shares (D18) yields a D27 value per share.
	delta := decimalmath.DivDecimalD27(amount, d.TotalShares)
	d.ValuePerShare.Add(d.ValuePerShare, delta)
	return nil
}

// SetActorShares settles the actor and replaces its shares. The value accrued
// since the actor was last touched is returned so the caller can commit it.
func (d *Distribution) SetActorShares(actor *Actor, shares *big.Int) *big.Int {
	d.ensure()
	actor.ensure()
	if shares == nil {
		shares = big.NewInt(0)
	}
	change := d.AccumulateActor(actor)
	d.TotalShares.Add(d.TotalShares, new(big.Int).Sub(shares, actor.Shares))
	actor.Shares = new(big.Int).Set(shares)
	return change
}

// AccumulateActor settles the actor against the current value per share and
// returns the value accrued since its previous settlement.
func (d *Distribution) AccumulateActor(actor *Actor) *big.Int {
	d.ensure()
	actor.ensure()
	change := d.PendingValue(*actor)
	actor.LastValuePerShare = new(big.Int).Set(d.ValuePerShare)
	return change
}

// PendingValue returns the value accrued by actor since its last settlement
// without mutating anything.
func (d *Distribution) PendingValue(actor Actor) *big.Int {
	if d == nil || actor.Shares == nil || actor.Shares.Sign() == 0 {
		return big.NewInt(0)
	}
	vps := d.ValuePerShare
	if vps == nil {
		vps = big.NewInt(0)
	}
	last := actor.LastValuePerShare
	if last == nil {
		last = big.NewInt(0)
	}
	diff := new(big.Int).Sub(vps, last)
	return decimalmath.MulDecimalD27(actor.Shares, diff)
}
