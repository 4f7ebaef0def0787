package server

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"synthledger/native/ledger"
)

type accountView struct {
	ID          string              `json:"id"`
	Owner       string              `json:"owner"`
	Permissions map[string][]string `json:"permissions,omitempty"`
	CreatedAt   uint64              `json:"createdAt"`
}

func newAccountView(a *ledger.Account) accountView {
	view := accountView{ID: a.ID.String(), Owner: a.Owner.Hex(), CreatedAt: a.CreatedAt}
	if len(a.Permissions) > 0 {
		view.Permissions = make(map[string][]string, len(a.Permissions))
		for target, perms := range a.Permissions {
			names := make([]string, 0, len(perms))
			for _, p := range perms {
				names = append(names, string(p))
			}
			sort.Strings(names)
			view.Permissions[target.Hex()] = names
		}
	}
	return view
}

type collateralBalanceView struct {
	Deposited string `json:"deposited"`
	Assigned  string `json:"assigned"`
	Available string `json:"available"`
}

type collateralTypeView struct {
	Address           string `json:"address"`
	IssuanceRatio     string `json:"issuanceRatio"`
	LiquidationRatio  string `json:"liquidationRatio"`
	LiquidationReward string `json:"liquidationReward"`
	MinDelegation     string `json:"minDelegation"`
	DepositingEnabled bool   `json:"depositingEnabled"`
}

func newCollateralTypeView(c *ledger.CollateralType) collateralTypeView {
	return collateralTypeView{
		Address:           c.Address.Hex(),
		IssuanceRatio:     fmtAmount(c.IssuanceRatio),
		LiquidationRatio:  fmtAmount(c.LiquidationRatio),
		LiquidationReward: fmtAmount(c.LiquidationReward),
		MinDelegation:     fmtAmount(c.MinDelegation),
		DepositingEnabled: c.DepositingEnabled,
	}
}

type positionView struct {
	AccountID       string `json:"accountId"`
	PoolID          string `json:"poolId"`
	CollateralType  string `json:"collateralType"`
	Collateral      string `json:"collateral"`
	CollateralValue string `json:"collateralValue"`
	Debt            string `json:"debt"`
	CollateralRatio string `json:"collateralRatio"`
}

func newPositionView(p ledger.Position) positionView {
	return positionView{
		AccountID:       p.AccountID.String(),
		PoolID:          p.PoolID.String(),
		CollateralType:  p.CollateralType.Hex(),
		Collateral:      fmtAmount(p.Collateral),
		CollateralValue: fmtAmount(p.CollateralValue),
		Debt:            fmtAmount(p.Debt),
		CollateralRatio: fmtAmount(p.CollateralRatio),
	}
}

type vaultView struct {
	PoolID          string `json:"poolId"`
	CollateralType  string `json:"collateralType"`
	Epoch           uint64 `json:"epoch"`
	Collateral      string `json:"collateral"`
	CollateralValue string `json:"collateralValue"`
	Debt            string `json:"debt"`
	CollateralRatio string `json:"collateralRatio"`
}

func newVaultView(v ledger.VaultSummary) vaultView {
	return vaultView{
		PoolID:          v.PoolID.String(),
		CollateralType:  v.CollateralType.Hex(),
		Epoch:           v.Epoch,
		Collateral:      fmtAmount(v.Collateral),
		CollateralValue: fmtAmount(v.CollateralValue),
		Debt:            fmtAmount(v.Debt),
		CollateralRatio: fmtAmount(v.CollateralRatio),
	}
}

type marketView struct {
	ID                string `json:"id"`
	Address           string `json:"address"`
	ReportedDebt      string `json:"reportedDebt"`
	TotalDebt         string `json:"totalDebt"`
	Capacity          string `json:"capacity"`
	Withdrawable      string `json:"withdrawable"`
	UndistributedDebt string `json:"undistributedDebt"`
	DebtPerShare      string `json:"debtPerShare"`
}

func newMarketView(m ledger.MarketSummary) marketView {
	return marketView{
		ID:                m.ID.String(),
		Address:           m.Address.Hex(),
		ReportedDebt:      fmtAmount(m.ReportedDebt),
		TotalDebt:         fmtAmount(m.TotalDebt),
		Capacity:          fmtAmount(m.Capacity),
		Withdrawable:      fmtAmount(m.Withdrawable),
		UndistributedDebt: fmtAmount(m.UndistributedDebt),
		DebtPerShare:      fmtAmount(m.DebtPerShare),
	}
}

type marketConfigView struct {
	MarketID          string `json:"marketId"`
	Weight            string `json:"weight"`
	MaxDebtShareValue string `json:"maxDebtShareValue"`
}

type poolView struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Owner          string             `json:"owner"`
	NominatedOwner string             `json:"nominatedOwner,omitempty"`
	Markets        []marketConfigView `json:"markets"`
	CreatedAt      uint64             `json:"createdAt"`
}

func newMarketConfigViews(cfgs []ledger.MarketConfiguration) []marketConfigView {
	out := make([]marketConfigView, 0, len(cfgs))
	for _, cfg := range cfgs {
		out = append(out, marketConfigView{
			MarketID:          cfg.MarketID.String(),
			Weight:            fmtAmount(cfg.Weight),
			MaxDebtShareValue: fmtAmount(cfg.MaxDebtShareValue),
		})
	}
	return out
}

func newPoolView(p *ledger.Pool) poolView {
	view := poolView{
		ID:        p.ID.String(),
		Name:      p.Name,
		Owner:     p.Owner.Hex(),
		Markets:   newMarketConfigViews(p.Markets),
		CreatedAt: p.CreatedAt,
	}
	if p.NominatedOwner != (common.Address{}) {
		view.NominatedOwner = p.NominatedOwner.Hex()
	}
	return view
}

type intentView struct {
	ID              uint64 `json:"id"`
	AccountID       string `json:"accountId"`
	PoolID          string `json:"poolId"`
	CollateralType  string `json:"collateralType"`
	RequestedAmount string `json:"requestedAmount"`
	Leverage        string `json:"leverage"`
	DeclaredAt      uint64 `json:"declaredAt"`
	Undelegation    bool   `json:"undelegation"`
	ProcessingStart uint64 `json:"processingStart"`
	ProcessingEnd   uint64 `json:"processingEnd,omitempty"`
}

func newIntentView(i *ledger.DelegationIntent) intentView {
	return intentView{
		ID:              i.ID,
		AccountID:       i.AccountID.String(),
		PoolID:          i.PoolID.String(),
		CollateralType:  i.CollateralType.Hex(),
		RequestedAmount: fmtAmount(i.RequestedAmount),
		Leverage:        fmtAmount(i.Leverage),
		DeclaredAt:      i.DeclaredAt,
		Undelegation:    i.Undelegation,
		ProcessingStart: i.ProcessingStart,
		ProcessingEnd:   i.ProcessingEnd,
	}
}

type rewardView struct {
	Distributor string `json:"distributor"`
	Amount      string `json:"amount"`
}

type amountView struct {
	Amount string `json:"amount"`
}
