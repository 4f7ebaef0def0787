package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) mountUsd(r chi.Router) {
	r.Get("/{address}", s.getUsdBalance)
	r.Post("/transfer", s.transferUsd)
}

func (s *Server) mountIntents(r chi.Router) {
	r.Get("/{intentId}", s.getIntent)
	r.Post("/force-delete", s.forceDeleteIntents)
}

func (s *Server) getUsdBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "address")
	if err != nil {
		writeError(w, err)
		return
	}
	balance, err := s.engine.GetUsdBalance(r.Context(), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountView{Amount: fmtAmount(balance)})
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) transferUsd(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err == nil {
		err = s.engine.TransferUsd(r.Context(), caller(r), to, amount)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getIntent(w http.ResponseWriter, r *http.Request) {
	id, err := parseUint("intentId", chi.URLParam(r, "intentId"))
	if err != nil {
		writeError(w, err)
		return
	}
	intent, err := s.engine.GetIntent(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newIntentView(intent))
}

func (s *Server) forceDeleteIntents(w http.ResponseWriter, r *http.Request) {
	var req intentIDsRequest
	err := decodeJSON(r, &req)
	if err == nil {
		err = s.engine.ForceDeleteIntents(r.Context(), caller(r), req.IntentIDs)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
