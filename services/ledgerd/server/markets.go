package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) mountMarkets(r chi.Router) {
	r.Post("/", s.registerMarket)
	r.Route("/{marketId}", func(r chi.Router) {
		r.Get("/", s.getMarket)
		r.Post("/debt", s.reportDebt)
		r.Post("/deposit-usd", s.depositMarketUsd)
		r.Post("/withdraw-usd", s.withdrawMarketUsd)
		r.Put("/settings", s.setMarketSettings)
		r.Post("/associate-debt", s.associateDebt)
	})
}

// registerMarket binds a new market id to the caller's address.
func (s *Server) registerMarket(w http.ResponseWriter, r *http.Request) {
	id, err := s.engine.RegisterMarket(r.Context(), caller(r))
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeMarket(w, r, id.String(), http.StatusCreated)
}

func (s *Server) writeMarket(w http.ResponseWriter, r *http.Request, raw string, status int) {
	id, err := parseID("marketId", raw)
	if err != nil {
		writeError(w, err)
		return
	}
	summary, err := s.engine.GetMarket(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, newMarketView(summary))
}

func (s *Server) getMarket(w http.ResponseWriter, r *http.Request) {
	s.writeMarket(w, r, chi.URLParam(r, "marketId"), http.StatusOK)
}

type debtRequest struct {
	Debt string `json:"debt"`
}

func (s *Server) reportDebt(w http.ResponseWriter, r *http.Request) {
	var req debtRequest
	id, err := pathID(r, "marketId")
	if err == nil {
		err = decodeJSON(r, &req)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	debt, err := parseAmount("debt", req.Debt)
	if err == nil {
		err = s.engine.ReportDebt(r.Context(), caller(r), id, debt)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeMarket(w, r, id.String(), http.StatusOK)
}

type marketUsdRequest struct {
	Target string `json:"target"`
	Amount string `json:"amount"`
}

func (s *Server) marketUsd(w http.ResponseWriter, r *http.Request, deposit bool) {
	var req marketUsdRequest
	id, err := pathID(r, "marketId")
	if err == nil {
		err = decodeJSON(r, &req)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	target, err := parseAddress("target", req.Target)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if deposit {
		err = s.engine.DepositMarketUsd(r.Context(), caller(r), id, target, amount)
	} else {
		err = s.engine.WithdrawMarketUsd(r.Context(), caller(r), id, target, amount)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeMarket(w, r, id.String(), http.StatusOK)
}

func (s *Server) depositMarketUsd(w http.ResponseWriter, r *http.Request) {
	s.marketUsd(w, r, true)
}

func (s *Server) withdrawMarketUsd(w http.ResponseWriter, r *http.Request) {
	s.marketUsd(w, r, false)
}

// marketSettingsRequest carries optional market knobs; absent fields are left
// untouched.
type marketSettingsRequest struct {
	MinDelegateTime *uint64 `json:"minDelegateTime,omitempty"`
	LockedCapacity  *string `json:"lockedCapacity,omitempty"`
	Windows         *struct {
		DelegateDelay    uint64 `json:"delegateDelay"`
		DelegateWindow   uint64 `json:"delegateWindow"`
		UndelegateDelay  uint64 `json:"undelegateDelay"`
		UndelegateWindow uint64 `json:"undelegateWindow"`
	} `json:"windows,omitempty"`
}

func (s *Server) setMarketSettings(w http.ResponseWriter, r *http.Request) {
	var req marketSettingsRequest
	id, err := pathID(r, "marketId")
	if err == nil {
		err = decodeJSON(r, &req)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, who := r.Context(), caller(r)
	if req.MinDelegateTime != nil {
		if err := s.engine.SetMarketMinDelegateTime(ctx, who, id, *req.MinDelegateTime); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.LockedCapacity != nil {
		locked, err := parseAmount("lockedCapacity", *req.LockedCapacity)
		if err == nil {
			err = s.engine.SetMarketLockedCapacity(ctx, who, id, locked)
		}
		if err != nil {
			writeError(w, err)
			return
		}
	}
	if win := req.Windows; win != nil {
		err := s.engine.SetMarketDelegationWindows(ctx, who, id, win.DelegateDelay, win.DelegateWindow, win.UndelegateDelay, win.UndelegateWindow)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	s.writeMarket(w, r, id.String(), http.StatusOK)
}

type associateDebtRequest struct {
	PoolID         string `json:"poolId"`
	CollateralType string `json:"collateralType"`
	AccountID      string `json:"accountId"`
	Amount         string `json:"amount"`
}

func (s *Server) associateDebt(w http.ResponseWriter, r *http.Request) {
	var req associateDebtRequest
	id, err := pathID(r, "marketId")
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
	account, err := parseID("accountId", req.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	debt, err := s.engine.AssociateDebt(r.Context(), caller(r), id, pool, ct, account, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountView{Amount: fmtAmount(debt)})
}
