package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"synthledger/core/decimalmath"
	ledgererrors "synthledger/core/errors"
)

// Initialize assigns the system owner of a fresh ledger. Once an owner exists
// the call fails with Unauthorized.
func (e *Engine) Initialize(ctx context.Context, owner common.Address) error {
	return e.execute(ctx, "Initialize", "", func(tx *ledgerTx) error {
		params, err := tx.loadParams()
		if err != nil {
			return err
		}
		if params.Owner != (common.Address{}) {
			return &ledgererrors.UnauthorizedError{Address: owner}
		}
		if owner == (common.Address{}) {
			return ledgererrors.InvalidParameter("owner", "Zero address")
		}
		params.Owner = owner
		tx.emit(attrs{}.addr("owner", owner).event(EventTypeSystemConfigured))
		return nil
	})
}

// TransferSystemOwnership hands system ownership to newOwner.
func (e *Engine) TransferSystemOwnership(ctx context.Context, caller, newOwner common.Address) error {
	return e.execute(ctx, "TransferSystemOwnership", "", func(tx *ledgerTx) error {
		if err := tx.requireOwner(caller); err != nil {
			return err
		}
		if newOwner == (common.Address{}) {
			return ledgererrors.InvalidParameter("owner", "Zero address")
		}
		tx.params.Owner = newOwner
		tx.emit(attrs{}.addr("owner", newOwner).event(EventTypeSystemConfigured))
		return nil
	})
}

// SetMinLiquidityRatio sets the global ratio applied to market withdrawable USD.
func (e *Engine) SetMinLiquidityRatio(ctx context.Context, caller common.Address, ratio *big.Int) error {
	return e.execute(ctx, "SetMinLiquidityRatio", "", func(tx *ledgerTx) error {
		if err := tx.requireOwner(caller); err != nil {
			return err
		}
		if ratio == nil || ratio.Sign() < 0 {
			return ledgererrors.InvalidParameter("minLiquidityRatio", "Must be non-negative")
		}
		tx.params.MinLiquidityRatio = decimalmath.Clone(ratio)
		tx.emit(attrs{}.amount("minLiquidityRatio", ratio).event(EventTypeSystemConfigured))
		return nil
	})
}

// SetFeeConfiguration configures the optional mint and burn fees. Ratios are
// D18 fractions of the minted or burned amount and must not exceed 1.
func (e *Engine) SetFeeConfiguration(ctx context.Context, caller common.Address, mintFee, burnFee *big.Int, recipient common.Address) error {
	return e.execute(ctx, "SetFeeConfiguration", "", func(tx *ledgerTx) error {
		if err := tx.requireOwner(caller); err != nil {
			return err
		}
		for name, ratio := range map[string]*big.Int{"mintFeeRatio": mintFee, "burnFeeRatio": burnFee} {
			if ratio == nil || ratio.Sign() < 0 || ratio.Cmp(decimalmath.UnitD18()) > 0 {
				return ledgererrors.InvalidParameter(name, "Must be between 0 and 1")
			}
		}
		if (mintFee.Sign() > 0 || burnFee.Sign() > 0) && recipient == (common.Address{}) {
			return ledgererrors.InvalidParameter("feeRecipient", "Zero address")
		}
		tx.params.MintFeeRatio = decimalmath.Clone(mintFee)
		tx.params.BurnFeeRatio = decimalmath.Clone(burnFee)
		tx.params.FeeRecipient = recipient
		tx.emit(attrs{}.
			amount("mintFeeRatio", mintFee).
			amount("burnFeeRatio", burnFee).
			addr("feeRecipient", recipient).
			event(EventTypeSystemConfigured))
		return nil
	})
}

// GetSystemParams returns a copy of the ledger wide settings.
func (e *Engine) GetSystemParams(ctx context.Context) (SystemParams, error) {
	var out SystemParams
	err := e.view(ctx, "GetSystemParams", func(tx *ledgerTx) error {
		params, err := tx.loadParams()
		if err != nil {
			return err
		}
		out = *params
		out.MinLiquidityRatio = decimalmath.Clone(params.MinLiquidityRatio)
		out.MintFeeRatio = decimalmath.Clone(params.MintFeeRatio)
		out.BurnFeeRatio = decimalmath.Clone(params.BurnFeeRatio)
		return nil
	})
	return out, err
}
