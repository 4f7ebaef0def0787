package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"synthledger/core/decimalmath"
	"synthledger/core/types"
	"synthledger/native/distribution"
	"synthledger/native/rewards"
)

// Permission is a capability an account owner grants to another address.
type Permission string

const (
	PermissionAdmin    Permission = "ADMIN"
	PermissionWithdraw Permission = "WITHDRAW"
	PermissionDelegate Permission = "DELEGATE"
	PermissionMint     Permission = "MINT"
	PermissionRewards  Permission = "REWARDS"
)

// Valid reports whether p is a known permission.
func (p Permission) Valid() bool {
	switch p {
	case PermissionAdmin, PermissionWithdraw, PermissionDelegate, PermissionMint, PermissionRewards:
		return true
	}
	return false
}

// SystemParams holds ledger wide settings and counters.
type SystemParams struct {
	Owner             common.Address `json:"owner"`
	MinLiquidityRatio *big.Int       `json:"minLiquidityRatio"`
	MintFeeRatio      *big.Int       `json:"mintFeeRatio"`
	BurnFeeRatio      *big.Int       `json:"burnFeeRatio"`
	FeeRecipient      common.Address `json:"feeRecipient"`
	NextMarketID      types.ID       `json:"nextMarketId"`
	NextIntentID      uint64         `json:"nextIntentId"`
	Sequence          uint64         `json:"sequence"`
}

// Account owns deposited collateral and positions.
type Account struct {
	ID          types.ID                        `json:"id"`
	Owner       common.Address                  `json:"owner"`
	Permissions map[common.Address][]Permission `json:"permissions,omitempty"`
	CreatedAt   uint64                          `json:"createdAt"`
}

// HasPermission reports whether target may act on the account with perm. The
// owner and ADMIN holders implicitly hold every permission.
func (a *Account) HasPermission(target common.Address, perm Permission) bool {
	if a == nil {
		return false
	}
	if target == a.Owner {
		return true
	}
	for _, granted := range a.Permissions[target] {
		if granted == perm || granted == PermissionAdmin {
			return true
		}
	}
	return false
}

// CollateralType is a registered collateral asset and its risk parameters.
type CollateralType struct {
	Address           common.Address `json:"address"`
	IssuanceRatio     *big.Int       `json:"issuanceRatio"`
	LiquidationRatio  *big.Int       `json:"liquidationRatio"`
	LiquidationReward *big.Int       `json:"liquidationReward"`
	MinDelegation     *big.Int       `json:"minDelegation"`
	DepositingEnabled bool           `json:"depositingEnabled"`
}

// AccountCollateral tracks an account's undelegated balance of a collateral
// type and the pools it has delegated that collateral to. The assigned amount
// is derived from the account's vault positions.
type AccountCollateral struct {
	AccountID      types.ID       `json:"accountId"`
	CollateralType common.Address `json:"collateralType"`
	Available      *big.Int       `json:"available"`
	Pools          []types.ID     `json:"pools,omitempty"`
}

// CollateralBalance is the read model for an account's collateral.
type CollateralBalance struct {
	Deposited *big.Int
	Assigned  *big.Int
	Available *big.Int
}

// MarketConfiguration is one weighted market entry of a pool.
type MarketConfiguration struct {
	MarketID          types.ID `json:"marketId"`
	Weight            *big.Int `json:"weight"`
	MaxDebtShareValue *big.Int `json:"maxDebtShareValue"`
	UpdatedAt         uint64   `json:"updatedAt"`
}

// PoolCollateralConfiguration narrows a collateral type for a single pool.
// Zero values fall back to the collateral type defaults (no limit, the type's
// issuance ratio).
type PoolCollateralConfiguration struct {
	CollateralLimit *big.Int `json:"collateralLimit"`
	IssuanceRatio   *big.Int `json:"issuanceRatio"`
}

// Pool aggregates delegated collateral and backs a weighted set of markets.
type Pool struct {
	ID             types.ID                   `json:"id"`
	Name           string                     `json:"name"`
	Owner          common.Address             `json:"owner"`
	NominatedOwner common.Address             `json:"nominatedOwner"`
	Markets        []MarketConfiguration      `json:"markets,omitempty"`
	VaultsDebt     *distribution.Distribution `json:"vaultsDebt"`
	PendingDebt    *big.Int                   `json:"pendingDebt"`
	CreatedAt      uint64                     `json:"createdAt"`
}

// TotalWeight sums the configured market weights.
func (p *Pool) TotalWeight() *big.Int {
	total := big.NewInt(0)
	for _, cfg := range p.Markets {
		total.Add(total, decimalmath.Clone(cfg.Weight))
	}
	return total
}

// MarketPool is a pool's stake in a market's debt distribution.
type MarketPool struct {
	PoolID            types.ID           `json:"poolId"`
	Capacity          *big.Int           `json:"capacity"`
	MaxDebtShareValue *big.Int           `json:"maxDebtShareValue"`
	InRange           bool               `json:"inRange"`
	Actor             distribution.Actor `json:"actor"`
	Pending           *big.Int           `json:"pending"`
}

// Market is an external debt generating venue backed by pools.
type Market struct {
	ID                  types.ID                   `json:"id"`
	Address             common.Address             `json:"address"`
	ReportedDebt        *big.Int                   `json:"reportedDebt"`
	UsdDeposited        *big.Int                   `json:"usdDeposited"`
	UsdWithdrawn        *big.Int                   `json:"usdWithdrawn"`
	LastDistributedDebt *big.Int                   `json:"lastDistributedDebt"`
	PoolsDebt           *distribution.Distribution `json:"poolsDebt"`
	Pools               []MarketPool               `json:"pools,omitempty"`
	MinDelegateTime     uint64                     `json:"minDelegateTime"`
	LockedCapacity      *big.Int                   `json:"lockedCapacity"`
	DelegateDelay       uint64                     `json:"delegateDelay"`
	DelegateWindow      uint64                     `json:"delegateWindow"`
	UndelegateDelay     uint64                     `json:"undelegateDelay"`
	UndelegateWindow    uint64                     `json:"undelegateWindow"`
	RegisteredAt        uint64                     `json:"registeredAt"`
}

// Vault is the per (pool, collateral type) ledger of delegated positions.
type Vault struct {
	PoolID                types.ID                   `json:"poolId"`
	CollateralType        common.Address             `json:"collateralType"`
	Epoch                 uint64                     `json:"epoch"`
	Collateral            *distribution.Scalable     `json:"collateral"`
	AccountsDebt          *distribution.Distribution `json:"accountsDebt"`
	UnconsolidatedDebt    *big.Int                   `json:"unconsolidatedDebt"`
	TotalConsolidatedDebt *big.Int                   `json:"totalConsolidatedDebt"`
	DebtActor             distribution.Actor         `json:"debtActor"`
	Distributors          []common.Address           `json:"distributors,omitempty"`
}

// VaultPosition is an account's stored stake in a vault epoch.
type VaultPosition struct {
	AccountID          types.ID           `json:"accountId"`
	PoolID             types.ID           `json:"poolId"`
	CollateralType     common.Address     `json:"collateralType"`
	Epoch              uint64             `json:"epoch"`
	CollateralShares   *big.Int           `json:"collateralShares"`
	DebtActor          distribution.Actor `json:"debtActor"`
	ConsolidatedDebt   *big.Int           `json:"consolidatedDebt"`
	LastDelegationTime uint64             `json:"lastDelegationTime"`
}

// Position is the derived view of an account's stake in a vault.
type Position struct {
	AccountID       types.ID
	PoolID          types.ID
	CollateralType  common.Address
	Collateral      *big.Int
	CollateralValue *big.Int
	Debt            *big.Int
	CollateralRatio *big.Int
}

// VaultSummary is the derived view of a whole vault.
type VaultSummary struct {
	PoolID          types.ID
	CollateralType  common.Address
	Epoch           uint64
	Collateral      *big.Int
	CollateralValue *big.Int
	Debt            *big.Int
	CollateralRatio *big.Int
}

// MarketSummary is the derived view of a market.
type MarketSummary struct {
	ID                types.ID
	Address           common.Address
	ReportedDebt      *big.Int
	TotalDebt         *big.Int
	Capacity          *big.Int
	Withdrawable      *big.Int
	UndistributedDebt *big.Int
	DebtPerShare      *big.Int
}

// DelegationIntent is a declared, not yet applied, delegation change.
type DelegationIntent struct {
	ID              uint64         `json:"id"`
	AccountID       types.ID       `json:"accountId"`
	PoolID          types.ID       `json:"poolId"`
	CollateralType  common.Address `json:"collateralType"`
	RequestedAmount *big.Int       `json:"requestedAmount"`
	Leverage        *big.Int       `json:"leverage"`
	DeclaredAt      uint64         `json:"declaredAt"`
	Undelegation    bool           `json:"undelegation"`
	ProcessingStart uint64         `json:"processingStart"`
	// ProcessingEnd is zero when no backing market bounds the window.
	ProcessingEnd uint64 `json:"processingEnd"`
}

// Expired reports whether the intent can no longer be processed at now.
func (i *DelegationIntent) Expired(now uint64) bool {
	return i.ProcessingEnd != 0 && now >= i.ProcessingEnd
}

// RewardDistributor is a registered reward source for a vault.
type RewardDistributor struct {
	PoolID         types.ID            `json:"poolId"`
	CollateralType common.Address      `json:"collateralType"`
	Distributor    common.Address      `json:"distributor"`
	Stream         *rewards.Stream     `json:"stream"`
	ClosedEpochs   map[uint64]*big.Int `json:"closedEpochs,omitempty"`
}

// PriceOracle returns the D18 USD price of a collateral type.
type PriceOracle interface {
	Price(ctx context.Context, collateralType common.Address) (*big.Int, error)
}

// Custodian moves collateral tokens in and out of the ledger's custody.
type Custodian interface {
	Pull(ctx context.Context, from, collateralType common.Address, amount *big.Int) error
	Push(ctx context.Context, to, collateralType common.Address, amount *big.Int) error
}

// RewardsPayer transfers claimed rewards on behalf of a distributor.
type RewardsPayer interface {
	PayReward(ctx context.Context, distributor common.Address, poolID, accountID types.ID, collateralType, recipient common.Address, amount *big.Int) error
}
