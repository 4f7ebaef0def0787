// Package oracle provides price sources for the ledger.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnknownCollateral is returned for collateral types without a price.
	ErrUnknownCollateral = errors.New("oracle: no price for collateral type")
	// ErrStalePrice is returned when the last update is older than the
	// configured maximum age.
	ErrStalePrice = errors.New("oracle: price expired")
)

type quote struct {
	price   *big.Int
	updated time.Time
}

// Static serves operator supplied D18 prices. It is safe for concurrent use.
type Static struct {
	mu     sync.RWMutex
	quotes map[common.Address]quote
	maxAge time.Duration
	nowFn  func() time.Time
}

// NewStatic returns an empty oracle. A zero maxAge disables staleness checks.
func NewStatic(maxAge time.Duration) *Static {
	return &Static{quotes: make(map[common.Address]quote), maxAge: maxAge, nowFn: time.Now}
}

// SetNowFunc overrides the clock used for staleness checks.
func (s *Static) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.mu.Lock()
	s.nowFn = now
	s.mu.Unlock()
}

// Set records the price of a collateral type.
func (s *Static) Set(collateralType common.Address, price *big.Int) error {
	if price == nil || price.Sign() < 0 {
		return fmt.Errorf("oracle: invalid price for %s", collateralType.Hex())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[collateralType] = quote{price: new(big.Int).Set(price), updated: s.nowFn()}
	return nil
}

// Price implements the ledger price source.
func (s *Static) Price(_ context.Context, collateralType common.Address) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[collateralType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollateral, collateralType.Hex())
	}
	if s.maxAge > 0 && s.nowFn().Sub(q.updated) > s.maxAge {
		return nil, fmt.Errorf("%w: %s", ErrStalePrice, collateralType.Hex())
	}
	return new(big.Int).Set(q.price), nil
}

// Snapshot returns a copy of every configured price.
func (s *Static) Snapshot() map[common.Address]*big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[common.Address]*big.Int, len(s.quotes))
	for addr, q := range s.quotes {
		out[addr] = new(big.Int).Set(q.price)
	}
	return out
}
