package server

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"synthledger/native/ledger"
)

type pausesView struct {
	Modules []string `json:"modules"`
	Paused  []string `json:"paused"`
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

type priceRequest struct {
	Price string `json:"price"`
}

func (s *Server) listPauses(w http.ResponseWriter, _ *http.Request) {
	if s.pauses == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Unavailable", "pauses not configured")
		return
	}
	writeJSON(w, http.StatusOK, pausesView{Modules: ledger.Modules, Paused: s.pauses.Paused()})
}

func (s *Server) setPause(w http.ResponseWriter, r *http.Request) {
	if s.pauses == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Unavailable", "pauses not configured")
		return
	}
	module := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "module")))
	if !slices.Contains(ledger.Modules, module) {
		writeError(w, badRequest("module: unknown module %q", module))
		return
	}
	var req pauseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.pauses.Set(module, req.Paused)
	s.logger.Info("module pause updated", "module", module, "paused", req.Paused, "sender", caller(r).Hex())
	writeJSON(w, http.StatusOK, pausesView{Modules: ledger.Modules, Paused: s.pauses.Paused()})
}

func (s *Server) setPrice(w http.ResponseWriter, r *http.Request) {
	if s.oracle == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Unavailable", "oracle not configured")
		return
	}
	ct, err := pathAddress(r, "collateralType")
	if err != nil {
		writeError(w, err)
		return
	}
	var req priceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.oracle.Set(ct, price); err != nil {
		writeError(w, badRequest("price: %v", err))
		return
	}
	s.logger.Info("collateral price updated", "collateralType", ct.Hex(), "price", fmtAmount(price))
	writeJSON(w, http.StatusOK, amountView{Amount: fmtAmount(price)})
}
