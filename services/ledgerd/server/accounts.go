package server

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"synthledger/core/decimalmath"
	"synthledger/core/types"
	"synthledger/native/ledger"
)

type permissionArgs struct {
	account types.ID
	perm    ledger.Permission
	target  common.Address
}

type collateralArgs struct {
	account        types.ID
	collateralType common.Address
	amount         *big.Int
}

type positionArgs struct {
	account        types.ID
	pool           types.ID
	collateralType common.Address
	amount         *big.Int
	leverage       *big.Int
}

type rewardArgs struct {
	account        types.ID
	pool           types.ID
	collateralType common.Address
	distributor    common.Address
}

func (s *Server) mountAccounts(r chi.Router) {
	r.Post("/", s.createAccount)
	r.Route("/{accountId}", func(r chi.Router) {
		r.Get("/", s.getAccount)
		r.Post("/owner", s.transferAccountOwnership)
		r.Post("/permissions/grant", s.grantPermission)
		r.Post("/permissions/revoke", s.revokePermission)
		r.Post("/permissions/renounce", s.renouncePermission)
		r.Get("/collateral/{collateralType}", s.getAccountCollateral)
		r.Get("/positions/{poolId}/{collateralType}", s.getPosition)
		r.Post("/deposit", s.deposit)
		r.Post("/withdraw", s.withdraw)
		r.Post("/delegate", s.delegate)
		r.Get("/intents", s.listAccountIntents)
		r.Post("/intents", s.declareIntent)
		r.Post("/intents/process", s.processIntents)
		r.Post("/intents/delete-expired", s.deleteExpiredIntents)
		r.Post("/mint", s.mintUsd)
		r.Post("/burn", s.burnUsd)
		r.Post("/liquidate", s.liquidatePosition)
		r.Get("/rewards", s.availableRewards)
		r.Post("/rewards/update", s.updateRewards)
		r.Post("/rewards/claim", s.claimRewards)
	})
}

type createAccountRequest struct {
	ID string `json:"id"`
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.CreateAccount(r.Context(), caller(r), id); err != nil {
		writeError(w, err)
		return
	}
	account, err := s.engine.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAccountView(account))
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "accountId")
	if err != nil {
		writeError(w, err)
		return
	}
	account, err := s.engine.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountView(account))
}

type ownerRequest struct {
	Owner string `json:"owner"`
}

func (s *Server) transferAccountOwnership(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	id, err := pathID(r, "accountId")
	if err == nil {
		err = decodeJSON(r, &req)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.TransferAccountOwnership(r.Context(), caller(r), id, owner); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type permissionRequest struct {
	Permission string `json:"permission"`
	Target     string `json:"target,omitempty"`
}

func (s *Server) permissionArgs(r *http.Request, needTarget bool) (args permissionArgs, err error) {
	var req permissionRequest
	if args.account, err = pathID(r, "accountId"); err != nil {
		return
	}
	if err = decodeJSON(r, &req); err != nil {
		return
	}
	args.perm = ledger.Permission(req.Permission)
	if needTarget {
		args.target, err = parseAddress("target", req.Target)
	}
	return
}

func (s *Server) grantPermission(w http.ResponseWriter, r *http.Request) {
	args, err := s.permissionArgs(r, true)
	if err == nil {
		err = s.engine.GrantPermission(r.Context(), caller(r), args.account, args.perm, args.target)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) revokePermission(w http.ResponseWriter, r *http.Request) {
	args, err := s.permissionArgs(r, true)
	if err == nil {
		err = s.engine.RevokePermission(r.Context(), caller(r), args.account, args.perm, args.target)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) renouncePermission(w http.ResponseWriter, r *http.Request) {
	args, err := s.permissionArgs(r, false)
	if err == nil {
		err = s.engine.RenouncePermission(r.Context(), caller(r), args.account, args.perm)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getAccountCollateral(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "accountId")
	if err != nil {
		writeError(w, err)
		return
	}
	ct, err := pathAddress(r, "collateralType")
	if err != nil {
		writeError(w, err)
		return
	}
	balance, err := s.engine.GetAccountCollateral(r.Context(), id, ct)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, collateralBalanceView{
		Deposited: fmtAmount(balance.Deposited),
		Assigned:  fmtAmount(balance.Assigned),
		Available: fmtAmount(balance.Available),
	})
}

type collateralRequest struct {
	CollateralType string `json:"collateralType"`
	Amount         string `json:"amount"`
}

func (s *Server) collateralArgs(r *http.Request) (args collateralArgs, err error) {
	var req collateralRequest
	if args.account, err = pathID(r, "accountId"); err != nil {
		return
	}
	if err = decodeJSON(r, &req); err != nil {
		return
	}
	if args.collateralType, err = parseAddress("collateralType", req.CollateralType); err != nil {
		return
	}
	args.amount, err = parseAmount("amount", req.Amount)
	return
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	args, err := s.collateralArgs(r)
	if err == nil {
		err = s.engine.Deposit(r.Context(), caller(r), args.account, args.collateralType, args.amount)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	args, err := s.collateralArgs(r)
	if err == nil {
		err = s.engine.Withdraw(r.Context(), caller(r), args.account, args.collateralType, args.amount)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type delegateRequest struct {
	PoolID         string `json:"poolId"`
	CollateralType string `json:"collateralType"`
	Amount         string `json:"amount"`
	Leverage       string `json:"leverage,omitempty"`
}

func (s *Server) delegateArgs(r *http.Request) (args positionArgs, err error) {
	var req delegateRequest
	if args.account, err = pathID(r, "accountId"); err != nil {
		return
	}
	if err = decodeJSON(r, &req); err != nil {
		return
	}
	if args.pool, err = parseID("poolId", req.PoolID); err != nil {
		return
	}
	if args.collateralType, err = parseAddress("collateralType", req.CollateralType); err != nil {
		return
	}
	if args.amount, err = parseAmount("amount", req.Amount); err != nil {
		return
	}
	args.leverage = decimalmath.UnitD18()
	if req.Leverage != "" {
		args.leverage, err = parseAmount("leverage", req.Leverage)
	}
	return
}

func (s *Server) delegate(w http.ResponseWriter, r *http.Request) {
	args, err := s.delegateArgs(r)
	if err == nil {
		err = s.engine.DelegateCollateral(r.Context(), caller(r), args.account, args.pool, args.collateralType, args.amount, args.leverage)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.writePosition(w, r, args)
}

func (s *Server) getPosition(w http.ResponseWriter, r *http.Request) {
	var args positionArgs
	var err error
	if args.account, err = pathID(r, "accountId"); err == nil {
		if args.pool, err = pathID(r, "poolId"); err == nil {
			args.collateralType, err = pathAddress(r, "collateralType")
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.writePosition(w, r, args)
}

func (s *Server) writePosition(w http.ResponseWriter, r *http.Request, args positionArgs) {
	pos, err := s.engine.GetPosition(r.Context(), args.account, args.pool, args.collateralType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPositionView(pos))
}

func (s *Server) declareIntent(w http.ResponseWriter, r *http.Request) {
	args, err := s.delegateArgs(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := s.engine.DeclareDelegateIntent(r.Context(), caller(r), args.account, args.pool, args.collateralType, args.amount, args.leverage)
	if err != nil {
		writeError(w, err)
		return
	}
	intent, err := s.engine.GetIntent(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newIntentView(intent))
}

func (s *Server) listAccountIntents(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "accountId")
	if err != nil {
		writeError(w, err)
		return
	}
	intents, err := s.engine.GetAccountIntents(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]intentView, 0, len(intents))
	for _, intent := range intents {
		out = append(out, newIntentView(intent))
	}
	writeJSON(w, http.StatusOK, out)
}

type intentIDsRequest struct {
	IntentIDs []uint64 `json:"intentIds"`
}

func (s *Server) processIntents(w http.ResponseWriter, r *http.Request) {
	var req intentIDsRequest
	id, err := pathID(r, "accountId")
	if err == nil {
		err = decodeJSON(r, &req)
	}
	if err == nil {
		err = s.engine.ProcessIntentToDelegateCollateralByIntents(r.Context(), caller(r), id, req.IntentIDs)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteExpiredIntents(w http.ResponseWriter, r *http.Request) {
	var req intentIDsRequest
	id, err := pathID(r, "accountId")
	if err == nil {
		err = decodeJSON(r, &req)
	}
	if err == nil {
		err = s.engine.DeleteExpiredIntents(r.Context(), caller(r), id, req.IntentIDs)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type issuanceRequest struct {
	PoolID         string `json:"poolId"`
	CollateralType string `json:"collateralType"`
	Amount         string `json:"amount"`
}

func (s *Server) issuanceArgs(r *http.Request) (args positionArgs, err error) {
	var req issuanceRequest
	if args.account, err = pathID(r, "accountId"); err != nil {
		return
	}
	if err = decodeJSON(r, &req); err != nil {
		return
	}
	if args.pool, err = parseID("poolId", req.PoolID); err != nil {
		return
	}
	if args.collateralType, err = parseAddress("collateralType", req.CollateralType); err != nil {
		return
	}
	args.amount, err = parseAmount("amount", req.Amount)
	return
}

func (s *Server) mintUsd(w http.ResponseWriter, r *http.Request) {
	args, err := s.issuanceArgs(r)
	if err == nil {
		err = s.engine.MintUsd(r.Context(), caller(r), args.account, args.pool, args.collateralType, args.amount)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.writePosition(w, r, args)
}

func (s *Server) burnUsd(w http.ResponseWriter, r *http.Request) {
	args, err := s.issuanceArgs(r)
	if err == nil {
		err = s.engine.BurnUsd(r.Context(), caller(r), args.account, args.pool, args.collateralType, args.amount)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.writePosition(w, r, args)
}

type liquidateRequest struct {
	PoolID              string `json:"poolId"`
	CollateralType      string `json:"collateralType"`
	LiquidatorAccountID string `json:"liquidatorAccountId"`
}

func (s *Server) liquidatePosition(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	account, err := pathID(r, "accountId")
	if err == nil {
		err = decodeJSON(r, &req)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	pool, err := parseID("poolId", req.PoolID)
	if err != nil {
		writeError(w, err)
		return
	}
	ct, err := parseAddress("collateralType", req.CollateralType)
	if err != nil {
		writeError(w, err)
		return
	}
	liquidator, err := parseID("liquidatorAccountId", req.LiquidatorAccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.Liquidate(r.Context(), caller(r), account, pool, ct, liquidator); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) rewardArgs(r *http.Request, req *rewardRequest) (args rewardArgs, err error) {
	if args.account, err = pathID(r, "accountId"); err != nil {
		return
	}
	if args.pool, err = parseID("poolId", req.PoolID); err != nil {
		return
	}
	if args.collateralType, err = parseAddress("collateralType", req.CollateralType); err != nil {
		return
	}
	if req.Distributor != "" {
		args.distributor, err = parseAddress("distributor", req.Distributor)
	}
	return
}

type rewardRequest struct {
	PoolID         string `json:"poolId"`
	CollateralType string `json:"collateralType"`
	Distributor    string `json:"distributor,omitempty"`
}

func (s *Server) availableRewards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := rewardRequest{PoolID: q.Get("poolId"), CollateralType: q.Get("collateralType"), Distributor: q.Get("distributor")}
	args, err := s.rewardArgs(r, &req)
	if err == nil && req.Distributor == "" {
		err = badRequest("distributor: required")
	}
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := s.engine.GetAvailableRewards(r.Context(), args.account, args.pool, args.collateralType, args.distributor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountView{Amount: fmtAmount(amount)})
}

func (s *Server) updateRewards(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	args, err := s.rewardArgs(r, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	balances, err := s.engine.UpdateRewards(r.Context(), args.account, args.pool, args.collateralType)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]rewardView, 0, len(balances))
	for _, b := range balances {
		out = append(out, rewardView{Distributor: b.Distributor.Hex(), Amount: fmtAmount(b.Amount)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) claimRewards(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	args, err := s.rewardArgs(r, &req)
	if err == nil && req.Distributor == "" {
		err = badRequest("distributor: required")
	}
	if err != nil {
		writeError(w, err)
		return
	}
	claimed, err := s.engine.ClaimRewards(r.Context(), caller(r), args.account, args.pool, args.collateralType, args.distributor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountView{Amount: fmtAmount(claimed)})
}
