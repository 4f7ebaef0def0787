package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"synthledger/core/decimalmath"
	"synthledger/native/ledger"
)

type systemView struct {
	Owner             string `json:"owner"`
	MinLiquidityRatio string `json:"minLiquidityRatio"`
	MintFeeRatio      string `json:"mintFeeRatio"`
	BurnFeeRatio      string `json:"burnFeeRatio"`
	FeeRecipient      string `json:"feeRecipient"`
	NextMarketID      string `json:"nextMarketId"`
	NextIntentID      uint64 `json:"nextIntentId"`
	Sequence          uint64 `json:"sequence"`
}

func (s *Server) mountSystem(r chi.Router) {
	r.Get("/", s.getSystem)
	r.Post("/owner", s.transferSystemOwnership)
	r.Put("/min-liquidity-ratio", s.setMinLiquidityRatio)
	r.Put("/fees", s.setFees)
	r.Put("/collateral", s.configureCollateral)
	r.Get("/collateral/{collateralType}", s.getCollateralType)
}

func (s *Server) getSystem(w http.ResponseWriter, r *http.Request) {
	params, err := s.engine.GetSystemParams(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, systemView{
		Owner:             params.Owner.Hex(),
		MinLiquidityRatio: fmtAmount(params.MinLiquidityRatio),
		MintFeeRatio:      fmtAmount(params.MintFeeRatio),
		BurnFeeRatio:      fmtAmount(params.BurnFeeRatio),
		FeeRecipient:      params.FeeRecipient.Hex(),
		NextMarketID:      params.NextMarketID.String(),
		NextIntentID:      params.NextIntentID,
		Sequence:          params.Sequence,
	})
}

func (s *Server) transferSystemOwnership(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.TransferSystemOwnership(r.Context(), caller(r), owner); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ratioRequest struct {
	Ratio string `json:"ratio"`
}

func (s *Server) setMinLiquidityRatio(w http.ResponseWriter, r *http.Request) {
	var req ratioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ratio, err := parseAmount("ratio", req.Ratio)
	if err == nil {
		err = s.engine.SetMinLiquidityRatio(r.Context(), caller(r), ratio)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type feesRequest struct {
	MintFee   string `json:"mintFee"`
	BurnFee   string `json:"burnFee"`
	Recipient string `json:"recipient"`
}

func (s *Server) setFees(w http.ResponseWriter, r *http.Request) {
	var req feesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	mintFee, err := parseAmount("mintFee", req.MintFee)
	if err != nil {
		writeError(w, err)
		return
	}
	burnFee, err := parseAmount("burnFee", req.BurnFee)
	if err != nil {
		writeError(w, err)
		return
	}
	recipient, err := parseAddress("recipient", req.Recipient)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.SetFeeConfiguration(r.Context(), caller(r), mintFee, burnFee, recipient); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) configureCollateral(w http.ResponseWriter, r *http.Request) {
	var req collateralTypeView
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	cfg := ledger.CollateralType{DepositingEnabled: req.DepositingEnabled}
	var err error
	if cfg.Address, err = parseAddress("address", req.Address); err != nil {
		writeError(w, err)
		return
	}
	if cfg.IssuanceRatio, err = parseAmount("issuanceRatio", req.IssuanceRatio); err != nil {
		writeError(w, err)
		return
	}
	if cfg.LiquidationRatio, err = parseAmount("liquidationRatio", req.LiquidationRatio); err != nil {
		writeError(w, err)
		return
	}
	if cfg.LiquidationReward, err = parseAmount("liquidationReward", req.LiquidationReward); err != nil {
		writeError(w, err)
		return
	}
	cfg.MinDelegation = decimalmath.Zero()
	if req.MinDelegation != "" {
		if cfg.MinDelegation, err = parseAmount("minDelegation", req.MinDelegation); err != nil {
			writeError(w, err)
			return
		}
	}
	if err := s.engine.ConfigureCollateral(r.Context(), caller(r), cfg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCollateralTypeView(&cfg))
}

func (s *Server) getCollateralType(w http.ResponseWriter, r *http.Request) {
	ct, err := pathAddress(r, "collateralType")
	if err != nil {
		writeError(w, err)
		return
	}
	cfg, err := s.engine.GetCollateralType(r.Context(), ct)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCollateralTypeView(cfg))
}
