package http

import (
	"net/http"

	"finanzen/internal/services"
)

func (s *Server) handleVatRates(w http.ResponseWriter, r *http.Request) {
	OK(w, s.svc.Vat.Rates())
}

func (s *Server) handleVatCalculate(w http.ResponseWriter, r *http.Request) {
	var req services.VatCalculateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.Vat.Calculate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(w, res)
}
