package ledger

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"synthledger/core/types"
)

const (
	EventTypeAccountCreated           = "account.created"
	EventTypeAccountOwnershipMoved    = "account.ownership_transferred"
	EventTypePermissionGranted        = "permission.granted"
	EventTypePermissionRevoked        = "permission.revoked"
	EventTypeCollateralConfigured     = "collateral.configured"
	EventTypeCollateralDeposited      = "collateral.deposited"
	EventTypeCollateralWithdrawn      = "collateral.withdrawn"
	EventTypePoolCreated              = "pool.created"
	EventTypePoolConfigured           = "pool.configured"
	EventTypePoolCollateralConfigured = "pool.collateral_configured"
	EventTypePoolOwnerNominated       = "pool.owner_nominated"
	EventTypePoolOwnershipAccepted    = "pool.ownership_accepted"
	EventTypePoolRenamed              = "pool.renamed"
	EventTypeMarketRegistered         = "market.registered"
	EventTypeMarketDebtReported       = "market.debt_reported"
	EventTypeMarketUsdDeposited       = "market.usd_deposited"
	EventTypeMarketUsdWithdrawn       = "market.usd_withdrawn"
	EventTypeMarketSettingsUpdated    = "market.settings_updated"
	EventTypeDelegationUpdated        = "delegation.updated"
	EventTypeIntentDeclared           = "intent.declared"
	EventTypeIntentProcessed          = "intent.processed"
	EventTypeIntentDeleted            = "intent.deleted"
	EventTypeUsdMinted                = "usd.minted"
	EventTypeUsdBurned                = "usd.burned"
	EventTypeUsdFeePaid               = "usd.fee_paid"
	EventTypeUsdTransferred           = "usd.transferred"
	EventTypeDebtAssociated           = "debt.associated"
	EventTypePositionLiquidated       = "position.liquidated"
	EventTypeVaultLiquidated          = "vault.liquidated"
	EventTypeDistributorRegistered    = "rewards.distributor_registered"
	EventTypeDistributorRemoved       = "rewards.distributor_removed"
	EventTypeRewardsDistributed       = "rewards.distributed"
	EventTypeRewardsClaimed           = "rewards.claimed"
	EventTypeSystemConfigured         = "system.configured"
)

// attrs is a small builder for event attributes.
type attrs map[string]string

func (a attrs) id(key string, id types.ID) attrs {
	a[key] = id.String()
	return a
}

func (a attrs) addr(key string, addr common.Address) attrs {
	a[key] = addr.Hex()
	return a
}

func (a attrs) amount(key string, v *big.Int) attrs {
	if v == nil {
		a[key] = "0"
	} else {
		a[key] = v.String()
	}
	return a
}

func (a attrs) num(key string, v uint64) attrs {
	a[key] = strconv.FormatUint(v, 10)
	return a
}

func (a attrs) str(key, v string) attrs {
	a[key] = v
	return a
}

func (a attrs) event(eventType string) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string(a)}
}

func vaultAttrs(pool types.ID, ct common.Address) attrs {
	return attrs{}.id("poolId", pool).addr("collateralType", ct)
}

func positionAttrs(account, pool types.ID, ct common.Address) attrs {
	return vaultAttrs(pool, ct).id("accountId", account)
}
