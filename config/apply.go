package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	ledgererrors "synthledger/core/errors"
	nativecommon "synthledger/native/common"
	"synthledger/native/ledger"
	"synthledger/native/oracle"
)

// PauseSet builds the runtime pause view for the configured flags.
func (p Pauses) PauseSet() *nativecommon.PauseSet {
	set := nativecommon.NewPauseSet()
	for module, paused := range map[string]bool{
		ledger.ModuleAccounts:    p.Accounts,
		ledger.ModuleCollateral:  p.Collateral,
		ledger.ModulePools:       p.Pools,
		ledger.ModuleMarkets:     p.Markets,
		ledger.ModuleDelegation:  p.Delegation,
		ledger.ModuleIssuance:    p.Issuance,
		ledger.ModuleLiquidation: p.Liquidation,
		ledger.ModuleRewards:     p.Rewards,
	} {
		set.Set(module, paused)
	}
	return set
}

// Apply seeds prices and brings the ledger's system settings, collateral types
// and pools in line with the config, acting as the configured owner. Existing
// pools are left untouched. Apply must run before pauses are installed.
func Apply(ctx context.Context, cfg *Config, engine *ledger.Engine, prices *oracle.Static) error {
	params, err := cfg.Params()
	if err != nil {
		return err
	}
	if prices != nil {
		for ct, price := range params.Prices {
			if err := prices.Set(ct, price); err != nil {
				return fmt.Errorf("config: seed price: %w", err)
			}
		}
	}

	system, err := engine.GetSystemParams(ctx)
	if err != nil {
		return fmt.Errorf("config: read system params: %w", err)
	}
	switch system.Owner {
	case common.Address{}:
		if err := engine.Initialize(ctx, params.Owner); err != nil {
			return fmt.Errorf("config: initialize ledger: %w", err)
		}
	case params.Owner:
	default:
		return fmt.Errorf("config: ledger is owned by %s, config names %s", system.Owner.Hex(), params.Owner.Hex())
	}

	owner := params.Owner
	if err := engine.SetMinLiquidityRatio(ctx, owner, params.MinLiquidityRatio); err != nil {
		return fmt.Errorf("config: min liquidity ratio: %w", err)
	}
	if err := engine.SetFeeConfiguration(ctx, owner, params.MintFee, params.BurnFee, params.FeeRecipient); err != nil {
		return fmt.Errorf("config: fees: %w", err)
	}
	for _, ct := range params.Collateral {
		if err := engine.ConfigureCollateral(ctx, owner, ct); err != nil {
			return fmt.Errorf("config: collateral %s: %w", ct.Address.Hex(), err)
		}
	}
	for _, pool := range params.Pools {
		_, err := engine.GetPool(ctx, pool.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, ledgererrors.ErrPoolNotFound) {
			return fmt.Errorf("config: pool %s: %w", pool.ID, err)
		}
		if err := engine.CreatePool(ctx, owner, pool.ID, pool.Owner); err != nil {
			return fmt.Errorf("config: create pool %s: %w", pool.ID, err)
		}
		if pool.Name != "" {
			if err := engine.SetPoolName(ctx, pool.Owner, pool.ID, pool.Name); err != nil {
				return fmt.Errorf("config: name pool %s: %w", pool.ID, err)
			}
		}
	}
	return nil
}
