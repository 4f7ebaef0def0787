package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"synthledger/core/types"
)

type vaultKeyView struct {
	PoolID         string `json:"poolId"`
	CollateralType string `json:"collateralType"`
}

type distributorView struct {
	Distributor    string `json:"distributor"`
	Active         bool   `json:"active"`
	RewardPerShare string `json:"rewardPerShare"`
	Tranches       int    `json:"tranches"`
	LastUpdate     uint64 `json:"lastUpdate"`
}

func (s *Server) mountVaults(r chi.Router) {
	r.Get("/", s.listVaults)
	r.Route("/{poolId}/{collateralType}", func(r chi.Router) {
		r.Get("/", s.getVault)
		r.Get("/positions", s.listPositions)
		r.Post("/liquidate", s.liquidateVault)
		r.Get("/distributors/{distributor}", s.getDistributor)
		r.Post("/distributors", s.registerDistributor)
		r.Delete("/distributors/{distributor}", s.removeDistributor)
		r.Post("/distributors/{distributor}/distribute", s.distributeRewards)
	})
}

func vaultPath(r *http.Request) (types.ID, string, error) {
	pool, err := pathID(r, "poolId")
	return pool, chi.URLParam(r, "collateralType"), err
}

func (s *Server) listVaults(w http.ResponseWriter, r *http.Request) {
	keys, err := s.engine.ListVaultKeys(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]vaultKeyView, 0, len(keys))
	for _, key := range keys {
		out = append(out, vaultKeyView{PoolID: key.PoolID.String(), CollateralType: key.CollateralType.Hex()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getVault(w http.ResponseWriter, r *http.Request) {
	pool, rawCT, err := vaultPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ct, err := parseAddress("collateralType", rawCT)
	if err != nil {
		writeError(w, err)
		return
	}
	vault, err := s.engine.GetVault(r.Context(), pool, ct)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newVaultView(vault))
}

func (s *Server) listPositions(w http.ResponseWriter, r *http.Request) {
	pool, rawCT, err := vaultPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ct, err := parseAddress("collateralType", rawCT)
	if err != nil {
		writeError(w, err)
		return
	}
	positions, err := s.engine.ListPositions(r.Context(), pool, ct)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]positionView, 0, len(positions))
	for _, pos := range positions {
		out = append(out, newPositionView(pos))
	}
	writeJSON(w, http.StatusOK, out)
}

type liquidateVaultRequest struct {
	LiquidatorAccountID string `json:"liquidatorAccountId"`
	MaxUsd              string `json:"maxUsd"`
}

func (s *Server) liquidateVault(w http.ResponseWriter, r *http.Request) {
	var req liquidateVaultRequest
	pool, rawCT, err := vaultPath(r)
	if err == nil {
		err = decodeJSON(r, &req)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	ct, err := parseAddress("collateralType", rawCT)
	if err != nil {
		writeError(w, err)
		return
	}
	liquidator, err := parseID("liquidatorAccountId", req.LiquidatorAccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	maxUsd, err := parseAmount("maxUsd", req.MaxUsd)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.LiquidateVault(r.Context(), caller(r), pool, ct, liquidator, maxUsd); err != nil {
		writeError(w, err)
		return
	}
	vault, err := s.engine.GetVault(r.Context(), pool, ct)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newVaultView(vault))
}

type distributorRequest struct {
	Distributor string `json:"distributor"`
}

func (s *Server) distributorArgs(r *http.Request, raw string) (args rewardArgs, err error) {
	var rawCT string
	if args.pool, rawCT, err = vaultPath(r); err != nil {
		return
	}
	if args.collateralType, err = parseAddress("collateralType", rawCT); err != nil {
		return
	}
	args.distributor, err = parseAddress("distributor", raw)
	return
}

func (s *Server) getDistributor(w http.ResponseWriter, r *http.Request) {
	args, err := s.distributorArgs(r, chi.URLParam(r, "distributor"))
	if err != nil {
		writeError(w, err)
		return
	}
	dist, err := s.engine.GetRewardDistributor(r.Context(), args.pool, args.collateralType, args.distributor)
	if err != nil {
		writeError(w, err)
		return
	}
	view := distributorView{Distributor: dist.Distributor.Hex()}
	if dist.Stream != nil {
		view.Active = dist.Stream.Active
		view.RewardPerShare = fmtAmount(dist.Stream.RewardPerShare)
		view.Tranches = len(dist.Stream.Tranches)
		view.LastUpdate = dist.Stream.LastUpdate
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) registerDistributor(w http.ResponseWriter, r *http.Request) {
	var req distributorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	args, err := s.distributorArgs(r, req.Distributor)
	if err == nil {
		err = s.engine.RegisterRewardsDistributor(r.Context(), caller(r), args.pool, args.collateralType, args.distributor)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) removeDistributor(w http.ResponseWriter, r *http.Request) {
	args, err := s.distributorArgs(r, chi.URLParam(r, "distributor"))
	if err == nil {
		err = s.engine.RemoveRewardsDistributor(r.Context(), caller(r), args.pool, args.collateralType, args.distributor)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type distributeRequest struct {
	Amount   string `json:"amount"`
	Start    uint64 `json:"start"`
	Duration uint64 `json:"duration"`
}

// distributeRewards is called by the distributor itself; the path names the
// stream and the caller must match it.
func (s *Server) distributeRewards(w http.ResponseWriter, r *http.Request) {
	var req distributeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	args, err := s.distributorArgs(r, chi.URLParam(r, "distributor"))
	if err != nil {
		writeError(w, err)
		return
	}
	if caller(r) != args.distributor {
		writeProblem(w, http.StatusForbidden, "Forbidden", "caller is not the distributor")
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err == nil {
		err = s.engine.DistributeRewards(r.Context(), args.distributor, args.pool, args.collateralType, amount, req.Start, req.Duration)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
