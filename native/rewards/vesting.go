// Package rewards implements the time-vested reward streams layered on top of
// vault shares. A Stream is a reward-per-share accumulator fed by any number of
// independent, possibly overlapping tranches.
package rewards

import (
	"math/big"

	"synthledger/core/decimalmath"
)

// Tranche is a single reward distribution vesting linearly from Start over
// Duration seconds. A zero Duration vests instantly once Start is reached.
type Tranche struct {
	Amount   *big.Int `json:"amount"`
	Start    uint64   `json:"start"`
	Duration uint64   `json:"duration"`
	Vested   *big.Int `json:"vested"`
}

// VestedAt returns the cumulative amount of the tranche vested at now.
func (t Tranche) VestedAt(now uint64) *big.Int {
	if t.Amount == nil || t.Amount.Sign() <= 0 || now < t.Start {
		return big.NewInt(0)
	}
	elapsed := now - t.Start
	if t.Duration == 0 || elapsed >= t.Duration {
		return new(big.Int).Set(t.Amount)
	}
	out := new(big.Int).Mul(t.Amount, new(big.Int).SetUint64(elapsed))
	return out.Quo(out, new(big.Int).SetUint64(t.Duration))
}

// Complete reports whether the whole tranche has been credited.
func (t Tranche) Complete() bool {
	return t.Vested != nil && t.Amount != nil && t.Vested.Cmp(t.Amount) >= 0
}

// Remaining returns the amount not yet credited.
func (t Tranche) Remaining() *big.Int {
	return decimalmath.ClampZero(new(big.Int).Sub(decimalmath.Clone(t.Amount), decimalmath.Clone(t.Vested)))
}

// Stream accumulates vested rewards per vault share.
type Stream struct {
	Active         bool      `json:"active"`
	RewardPerShare *big.Int  `json:"rewardPerShare"`
	Tranches       []Tranche `json:"tranches"`
	LastUpdate     uint64    `json:"lastUpdate"`
}

// NewStream returns an active stream with no tranches.
func NewStream() *Stream {
	return &Stream{Active: true, RewardPerShare: big.NewInt(0)}
}

// AddTranche schedules amount to vest from start over duration seconds.
func (s *Stream) AddTranche(amount *big.Int, start, duration uint64) {
	s.Tranches = append(s.Tranches, Tranche{
		Amount:   decimalmath.Clone(amount),
		Start:    start,
		Duration: duration,
		Vested:   big.NewInt(0),
	})
}

// Advance credits everything vested up to now to the reward per share. While
// totalShares is zero nothing advances: vesting waits for participants.
// The amount credited is returned.
func (s *Stream) Advance(now uint64, totalShares *big.Int) *big.Int {
	if s.RewardPerShare == nil {
		s.RewardPerShare = big.NewInt(0)
	}
	credited := big.NewInt(0)
	if totalShares == nil || totalShares.Sign() <= 0 {
		return credited
	}
	kept := s.Tranches[:0]
	for _, tr := range s.Tranches {
		vested := tr.VestedAt(now)
		if tr.Vested == nil {
			tr.Vested = big.NewInt(0)
		}
		if delta := new(big.Int).Sub(vested, tr.Vested); delta.Sign() > 0 {
			credited.Add(credited, delta)
			tr.Vested = vested
		}
		if !tr.Complete() {
			kept = append(kept, tr)
		}
	}
	s.Tranches = kept
	if credited.Sign() > 0 {
		s.RewardPerShare.Add(s.RewardPerShare, decimalmath.DivDecimalD27(credited, totalShares))
	}
	s.LastUpdate = now
	return credited
}

// Stop vests the stream up to now, discards whatever has not vested yet and
// deactivates it. The forfeited amount is returned.
func (s *Stream) Stop(now uint64, totalShares *big.Int) *big.Int {
	s.Advance(now, totalShares)
	forfeited := big.NewInt(0)
	for _, tr := range s.Tranches {
		forfeited.Add(forfeited, tr.Remaining())
	}
	s.Tranches = nil
	s.Active = false
	return forfeited
}

// Unvested returns the total amount still scheduled to vest.
func (s *Stream) Unvested() *big.Int {
	total := big.NewInt(0)
	for _, tr := range s.Tranches {
		total.Add(total, tr.Remaining())
	}
	return total
}

// Claim is an account's settlement checkpoint against a stream.
type Claim struct {
	Epoch              uint64   `json:"epoch"`
	LastRewardPerShare *big.Int `json:"lastRewardPerShare"`
	Pending            *big.Int `json:"pending"`
}

// Settle moves everything shares earned since the checkpoint into Pending,
// measured against rewardPerShare, and returns the amount added.
func (c *Claim) Settle(shares, rewardPerShare *big.Int) *big.Int {
	if c.Pending == nil {
		c.Pending = big.NewInt(0)
	}
	if c.LastRewardPerShare == nil {
		c.LastRewardPerShare = big.NewInt(0)
	}
	earned := big.NewInt(0)
	if shares != nil && shares.Sign() > 0 && rewardPerShare != nil {
		earned = decimalmath.MulDecimalD27(shares, new(big.Int).Sub(rewardPerShare, c.LastRewardPerShare))
		if earned.Sign() < 0 {
			earned = big.NewInt(0)
		}
		c.Pending.Add(c.Pending, earned)
	}
	c.LastRewardPerShare = decimalmath.Clone(rewardPerShare)
	return earned
}

// Take returns the pending amount and resets it.
func (c *Claim) Take() *big.Int {
	out := decimalmath.Clone(c.Pending)
	c.Pending = big.NewInt(0)
	return out
}
