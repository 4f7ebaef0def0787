package distribution

import (
	"errors"
	"math/big"

	"synthledger/core/decimalmath"
)

// ErrInsufficientMappedAmount is returned when scaling a mapping that holds
// nothing, or when a negative scale would wipe out more than it holds.
var ErrInsufficientMappedAmount = errors.New("distribution: insufficient mapped amount")

// Scalable maps actors to amounts that can be rescaled uniformly in O(1).
// Every actor value is shares * (ScaleModifier + 1e27) / 1e27, so adding to
// ScaleModifier grows or shrinks all holders proportionally. Actor shares are
// persisted by the caller.
type Scalable struct {
	ScaleModifier *big.Int `json:"scaleModifier"`
	TotalShares   *big.Int `json:"totalShares"`
}

// NewScalable returns an empty mapping.
func NewScalable() *Scalable {
	return &Scalable{ScaleModifier: big.NewInt(0), TotalShares: big.NewInt(0)}
}

func (s *Scalable) ensure() {
	if s.ScaleModifier == nil {
		s.ScaleModifier = big.NewInt(0)
	}
	if s.TotalShares == nil {
		s.TotalShares = big.NewInt(0)
	}
}

func (s *Scalable) factor() *big.Int {
	s.ensure()
	return new(big.Int).Add(s.ScaleModifier, decimalmath.UnitD27())
}

// Clone returns a deep copy of the mapping.
func (s *Scalable) Clone() *Scalable {
	if s == nil {
		return NewScalable()
	}
	return &Scalable{
		ScaleModifier: decimalmath.Clone(s.ScaleModifier),
		TotalShares:   decimalmath.Clone(s.TotalShares),
	}
}

// TotalAmount returns the sum of all actor amounts.
func (s *Scalable) TotalAmount() *big.Int {
	if s == nil {
		return big.NewInt(0)
	}
	return decimalmath.MulDecimalD27(s.TotalShares, s.factor())
}

// Get converts an actor's shares into its current amount.
func (s *Scalable) Get(shares *big.Int) *big.Int {
	if s == nil || shares == nil {
		return big.NewInt(0)
	}
	return decimalmath.MulDecimalD27(shares, s.factor())
}

// SharesFor converts an amount into shares at the current scale.
func (s *Scalable) SharesFor(amount *big.Int) *big.Int {
	if amount == nil || amount.Sign() == 0 {
		return big.NewInt(0)
	}
	return decimalmath.DivDecimalD27(amount, s.factor())
}

// Set replaces the amount held by the actor currently owning actorShares and
// returns the actor's new share count.
func (s *Scalable) Set(actorShares, amount *big.Int) *big.Int {
	s.ensure()
	if actorShares == nil {
		actorShares = big.NewInt(0)
	}
	shares := s.SharesFor(amount)
	s.TotalShares.Add(s.TotalShares, new(big.Int).Sub(shares, actorShares))
	return shares
}

// Scale adds delta to the total amount, spreading it over every actor in
// proportion to its shares.
func (s *Scalable) Scale(delta *big.Int) error {
	s.ensure()
	if delta == nil || delta.Sign() == 0 {
		return nil
	}
	if s.TotalShares.Sign() == 0 {
		return ErrInsufficientMappedAmount
	}
	// total' = total + delta  =>  modifier' = modifier + delta * 1e27 / shares
	step := new(big.Int).Mul(delta, decimalmath.UnitD27())
	step.Quo(step, s.TotalShares)
	next := new(big.Int).Add(s.ScaleModifier, step)
	if new(big.Int).Add(next, decimalmath.UnitD27()).Sign() < 0 {
		return ErrInsufficientMappedAmount
	}
	s.ScaleModifier = next
	return nil
}
