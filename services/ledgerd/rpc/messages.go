package rpc

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"synthledger/core/decimalmath"
	"synthledger/core/types"
	"synthledger/native/ledger"
)

// Amounts travel as decimal strings and are converted to D18 fixed point on
// arrival.

type AccountRequest struct {
	AccountID types.ID `json:"accountId"`
}

type PermissionRequest struct {
	AccountID  types.ID       `json:"accountId"`
	Permission string         `json:"permission"`
	Target     common.Address `json:"target"`
}

type CollateralRequest struct {
	AccountID      types.ID       `json:"accountId"`
	CollateralType common.Address `json:"collateralType"`
	Amount         string         `json:"amount"`
}

// DelegateRequest delegates Amount to a vault. Leverage defaults to 1.
type DelegateRequest struct {
	AccountID      types.ID       `json:"accountId"`
	PoolID         types.ID       `json:"poolId"`
	CollateralType common.Address `json:"collateralType"`
	Amount         string         `json:"amount"`
	Leverage       string         `json:"leverage,omitempty"`
}

type IntentsRequest struct {
	AccountID types.ID `json:"accountId"`
	IntentIDs []uint64 `json:"intentIds"`
}

type IntentResponse struct {
	IntentID uint64 `json:"intentId"`
}

// PositionRequest addresses one position; Amount is used by mint and burn.
type PositionRequest struct {
	AccountID      types.ID       `json:"accountId"`
	PoolID         types.ID       `json:"poolId"`
	CollateralType common.Address `json:"collateralType"`
	Amount         string         `json:"amount,omitempty"`
}

type TransferRequest struct {
	To     common.Address `json:"to"`
	Amount string         `json:"amount"`
}

type LiquidateRequest struct {
	AccountID           types.ID       `json:"accountId"`
	PoolID              types.ID       `json:"poolId"`
	CollateralType      common.Address `json:"collateralType"`
	LiquidatorAccountID types.ID       `json:"liquidatorAccountId"`
}

type LiquidateVaultRequest struct {
	PoolID              types.ID       `json:"poolId"`
	CollateralType      common.Address `json:"collateralType"`
	LiquidatorAccountID types.ID       `json:"liquidatorAccountId"`
	MaxUsd              string         `json:"maxUsd"`
}

type RegisterMarketRequest struct{}

type MarketResponse struct {
	MarketID types.ID `json:"marketId"`
}

type ReportDebtRequest struct {
	MarketID types.ID `json:"marketId"`
	Debt     string   `json:"debt"`
}

type MarketUsdRequest struct {
	MarketID types.ID       `json:"marketId"`
	Target   common.Address `json:"target"`
	Amount   string         `json:"amount"`
}

type AssociateDebtRequest struct {
	MarketID       types.ID       `json:"marketId"`
	PoolID         types.ID       `json:"poolId"`
	CollateralType common.Address `json:"collateralType"`
	AccountID      types.ID       `json:"accountId"`
	Amount         string         `json:"amount"`
}

// CreatePoolRequest creates a pool owned by Owner, or by the caller when
// Owner is zero.
type CreatePoolRequest struct {
	PoolID types.ID       `json:"poolId"`
	Owner  common.Address `json:"owner,omitempty"`
}

type MarketWeight struct {
	MarketID          types.ID `json:"marketId"`
	Weight            string   `json:"weight"`
	MaxDebtShareValue string   `json:"maxDebtShareValue"`
}

type PoolConfigurationRequest struct {
	PoolID  types.ID       `json:"poolId"`
	Markets []MarketWeight `json:"markets"`
}

type DistributeRewardsRequest struct {
	PoolID         types.ID       `json:"poolId"`
	CollateralType common.Address `json:"collateralType"`
	Amount         string         `json:"amount"`
	Start          uint64         `json:"start"`
	Duration       uint64         `json:"duration"`
}

type ClaimRewardsRequest struct {
	AccountID      types.ID       `json:"accountId"`
	PoolID         types.ID       `json:"poolId"`
	CollateralType common.Address `json:"collateralType"`
	Distributor    common.Address `json:"distributor"`
}

type AmountResponse struct {
	Amount string `json:"amount"`
}

type PositionResponse struct {
	AccountID       types.ID       `json:"accountId"`
	PoolID          types.ID       `json:"poolId"`
	CollateralType  common.Address `json:"collateralType"`
	Collateral      string         `json:"collateral"`
	CollateralValue string         `json:"collateralValue"`
	Debt            string         `json:"debt"`
	CollateralRatio string         `json:"collateralRatio"`
}

// EventsRequest opens an event stream. An empty Types list streams every
// event.
type EventsRequest struct {
	Types []string `json:"types,omitempty"`
}

func newPositionResponse(p ledger.Position) *PositionResponse {
	return &PositionResponse{
		AccountID:       p.AccountID,
		PoolID:          p.PoolID,
		CollateralType:  p.CollateralType,
		Collateral:      decimalmath.FormatD18(p.Collateral),
		CollateralValue: decimalmath.FormatD18(p.CollateralValue),
		Debt:            decimalmath.FormatD18(p.Debt),
		CollateralRatio: decimalmath.FormatD18(p.CollateralRatio),
	}
}

func amountResponse(v *big.Int) *AmountResponse {
	return &AmountResponse{Amount: decimalmath.FormatD18(v)}
}

func parseAmount(field, raw string) (*big.Int, error) {
	value, err := decimalmath.ParseD18(raw)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%s: %v", field, err)
	}
	return value, nil
}
