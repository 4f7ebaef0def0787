package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"synthledger/core/types"
	"synthledger/native/ledger"
)

func (s *Server) mountPools(r chi.Router) {
	r.Post("/", s.createPool)
	r.Route("/{poolId}", func(r chi.Router) {
		r.Get("/", s.getPool)
		r.Put("/name", s.setPoolName)
		r.Get("/markets", s.getPoolConfiguration)
		r.Put("/markets", s.setPoolConfiguration)
		r.Get("/collateral/{collateralType}", s.getPoolCollateral)
		r.Put("/collateral/{collateralType}", s.setPoolCollateral)
		r.Post("/nominate", s.nominatePoolOwner)
		r.Post("/accept", s.acceptPoolOwnership)
	})
}

type createPoolRequest struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
	Name  string `json:"name,omitempty"`
}

func (s *Server) createPool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	owner := caller(r)
	if req.Owner != "" {
		if owner, err = parseAddress("owner", req.Owner); err != nil {
			writeError(w, err)
			return
		}
	}
	if err := s.engine.CreatePool(r.Context(), caller(r), id, owner); err != nil {
		writeError(w, err)
		return
	}
	if req.Name != "" && owner == caller(r) {
		if err := s.engine.SetPoolName(r.Context(), owner, id, req.Name); err != nil {
			writeError(w, err)
			return
		}
	}
	s.writePool(w, r, id, http.StatusCreated)
}

func (s *Server) writePool(w http.ResponseWriter, r *http.Request, id types.ID, status int) {
	pool, err := s.engine.GetPool(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, newPoolView(pool))
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "poolId")
	if err != nil {
		writeError(w, err)
		return
	}
	s.writePool(w, r, id, http.StatusOK)
}

type nameRequest struct {
	Name string `json:"name"`
}

func (s *Server) setPoolName(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	id, err := pathID(r, "poolId")
	if err == nil {
		err = decodeJSON(r, &req)
	}
	if err == nil {
		err = s.engine.SetPoolName(r.Context(), caller(r), id, req.Name)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.writePool(w, r, id, http.StatusOK)
}

func (s *Server) getPoolConfiguration(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "poolId")
	if err != nil {
		writeError(w, err)
		return
	}
	markets, err := s.engine.GetPoolConfiguration(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newMarketConfigViews(markets))
}

type poolConfigurationRequest struct {
	Markets []marketConfigView `json:"markets"`
}

func (s *Server) setPoolConfiguration(w http.ResponseWriter, r *http.Request) {
	var req poolConfigurationRequest
	id, err := pathID(r, "poolId")
	if err == nil {
		err = decodeJSON(r, &req)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	markets := make([]ledger.MarketConfiguration, 0, len(req.Markets))
	for _, m := range req.Markets {
		var cfg ledger.MarketConfiguration
		if cfg.MarketID, err = parseID("marketId", m.MarketID); err != nil {
			writeError(w, err)
			return
		}
		if cfg.Weight, err = parseAmount("weight", m.Weight); err != nil {
			writeError(w, err)
			return
		}
		if cfg.MaxDebtShareValue, err = parseAmount("maxDebtShareValue", m.MaxDebtShareValue); err != nil {
			writeError(w, err)
			return
		}
		markets = append(markets, cfg)
	}
	if err := s.engine.SetPoolConfiguration(r.Context(), caller(r), id, markets); err != nil {
		writeError(w, err)
		return
	}
	s.writePool(w, r, id, http.StatusOK)
}

type poolCollateralView struct {
	CollateralLimit string `json:"collateralLimit"`
	IssuanceRatio   string `json:"issuanceRatio"`
}

func (s *Server) getPoolCollateral(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "poolId")
	if err != nil {
		writeError(w, err)
		return
	}
	ct, err := pathAddress(r, "collateralType")
	if err != nil {
		writeError(w, err)
		return
	}
	cfg, err := s.engine.GetPoolCollateralConfiguration(r.Context(), id, ct)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poolCollateralView{
		CollateralLimit: fmtAmount(cfg.CollateralLimit),
		IssuanceRatio:   fmtAmount(cfg.IssuanceRatio),
	})
}

func (s *Server) setPoolCollateral(w http.ResponseWriter, r *http.Request) {
	var req poolCollateralView
	id, err := pathID(r, "poolId")
	if err == nil {
		err = decodeJSON(r, &req)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	ct, err := pathAddress(r, "collateralType")
	if err != nil {
		writeError(w, err)
		return
	}
	var cfg ledger.PoolCollateralConfiguration
	if req.CollateralLimit != "" {
		if cfg.CollateralLimit, err = parseAmount("collateralLimit", req.CollateralLimit); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.IssuanceRatio != "" {
		if cfg.IssuanceRatio, err = parseAmount("issuanceRatio", req.IssuanceRatio); err != nil {
			writeError(w, err)
			return
		}
	}
	if err := s.engine.SetPoolCollateralConfiguration(r.Context(), caller(r), id, ct, cfg); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type nominateRequest struct {
	Nominee string `json:"nominee"`
}

func (s *Server) nominatePoolOwner(w http.ResponseWriter, r *http.Request) {
	var req nominateRequest
	id, err := pathID(r, "poolId")
	if err == nil {
		err = decodeJSON(r, &req)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	nominee, err := parseAddress("nominee", req.Nominee)
	if err == nil {
		err = s.engine.NominatePoolOwner(r.Context(), caller(r), id, nominee)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.writePool(w, r, id, http.StatusOK)
}

func (s *Server) acceptPoolOwnership(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "poolId")
	if err == nil {
		err = s.engine.AcceptPoolOwnership(r.Context(), caller(r), id)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.writePool(w, r, id, http.StatusOK)
}
