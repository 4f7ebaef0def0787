package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"synthledger/core/decimalmath"
	"synthledger/core/types"
	"synthledger/native/ledger"
)

// PoolParams is a parsed pool entry.
type PoolParams struct {
	ID    types.ID
	Owner common.Address
	Name  string
}

// Params holds the parsed, validated runtime values of a Config.
type Params struct {
	Owner             common.Address
	MinLiquidityRatio *big.Int
	MintFee           *big.Int
	BurnFee           *big.Int
	FeeRecipient      common.Address
	OracleMaxAge      time.Duration
	Prices            map[common.Address]*big.Int
	Collateral        []ledger.CollateralType
	Pools             []PoolParams
}

// ValidateConfig parses every field and checks the cross field rules the
// ledger would otherwise reject at Apply time.
func ValidateConfig(cfg *Config) error {
	_, err := cfg.Params()
	return err
}

// Params parses the textual config into runtime values.
func (c *Config) Params() (Params, error) {
	var p Params
	var err error
	if p.Owner, err = parseAddress("Owner", c.Owner); err != nil {
		return p, err
	}
	if p.MinLiquidityRatio, err = parseDecimal("MinLiquidityRatio", c.MinLiquidityRatio); err != nil {
		return p, err
	}
	if p.MintFee, err = parseDecimal("Fees.MintFee", c.Fees.MintFee); err != nil {
		return p, err
	}
	if p.BurnFee, err = parseDecimal("Fees.BurnFee", c.Fees.BurnFee); err != nil {
		return p, err
	}
	for name, fee := range map[string]*big.Int{"Fees.MintFee": p.MintFee, "Fees.BurnFee": p.BurnFee} {
		if fee.Cmp(decimalmath.UnitD18()) > 0 {
			return p, fmt.Errorf("config: %s must not exceed 1", name)
		}
	}
	if strings.TrimSpace(c.Fees.Recipient) != "" {
		if p.FeeRecipient, err = parseAddress("Fees.Recipient", c.Fees.Recipient); err != nil {
			return p, err
		}
	} else if p.MintFee.Sign() > 0 || p.BurnFee.Sign() > 0 {
		return p, fmt.Errorf("config: Fees.Recipient required when fees are charged")
	}

	p.OracleMaxAge = time.Duration(c.Oracle.MaxAgeSeconds) * time.Second
	p.Prices = make(map[common.Address]*big.Int, len(c.Oracle.Prices))
	for raw, price := range c.Oracle.Prices {
		addr, err := parseAddress("Oracle.Prices", raw)
		if err != nil {
			return p, err
		}
		if p.Prices[addr], err = parseDecimal("Oracle.Prices."+raw, price); err != nil {
			return p, err
		}
	}

	seen := make(map[common.Address]struct{}, len(c.Collateral))
	for i, entry := range c.Collateral {
		field := fmt.Sprintf("Collateral[%d]", i)
		ct := ledger.CollateralType{DepositingEnabled: entry.DepositingEnabled}
		if ct.Address, err = parseAddress(field+".Address", entry.Address); err != nil {
			return p, err
		}
		if _, dup := seen[ct.Address]; dup {
			return p, fmt.Errorf("config: %s duplicates %s", field, ct.Address.Hex())
		}
		seen[ct.Address] = struct{}{}
		if ct.IssuanceRatio, err = parseDecimal(field+".IssuanceRatio", entry.IssuanceRatio); err != nil {
			return p, err
		}
		if ct.LiquidationRatio, err = parseDecimal(field+".LiquidationRatio", entry.LiquidationRatio); err != nil {
			return p, err
		}
		if ct.LiquidationReward, err = parseDecimal(field+".LiquidationReward", entry.LiquidationReward); err != nil {
			return p, err
		}
		if ct.MinDelegation, err = parseDecimal(field+".MinDelegation", entry.MinDelegation); err != nil {
			return p, err
		}
		if ct.LiquidationRatio.Sign() <= 0 {
			return p, fmt.Errorf("config: %s.LiquidationRatio must be positive", field)
		}
		if ct.IssuanceRatio.Cmp(ct.LiquidationRatio) < 0 {
			return p, fmt.Errorf("config: %s.IssuanceRatio below LiquidationRatio", field)
		}
		p.Collateral = append(p.Collateral, ct)
	}

	pools := make(map[string]struct{}, len(c.Pools))
	for i, entry := range c.Pools {
		field := fmt.Sprintf("Pools[%d]", i)
		id, err := types.ParseID(entry.ID)
		if err != nil {
			return p, fmt.Errorf("config: %s.ID: %w", field, err)
		}
		if id.IsZero() {
			return p, fmt.Errorf("config: %s.ID must be non-zero", field)
		}
		if _, dup := pools[id.String()]; dup {
			return p, fmt.Errorf("config: %s duplicates pool %s", field, id)
		}
		pools[id.String()] = struct{}{}
		owner, err := parseAddress(field+".Owner", entry.Owner)
		if err != nil {
			return p, err
		}
		p.Pools = append(p.Pools, PoolParams{ID: id, Owner: owner, Name: strings.TrimSpace(entry.Name)})
	}
	return p, nil
}

func parseAddress(field, raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("config: %s: invalid address %q", field, raw)
	}
	addr := common.HexToAddress(trimmed)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("config: %s: zero address", field)
	}
	return addr, nil
}

func parseDecimal(field, raw string) (*big.Int, error) {
	value, err := decimalmath.ParseD18(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", field, err)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("config: %s must be non-negative", field)
	}
	return value, nil
}
