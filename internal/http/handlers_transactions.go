package http

import (
	"net/http"

	"finanzen/internal/services"
)

// handleListTransactions returns one page of bookings matching the query filters.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter, err := parseTransactionFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := s.svc.Transactions.List(r.Context(), uid, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(w, page)
}

func (s *Server) handleTransactionSummary(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := parseSummaryRequest(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	sum, err := s.svc.Transactions.Summary(r.Context(), uid, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(w, sum)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.svc.Transactions.Get(r.Context(), uid, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(w, t)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req services.TransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.svc.Transactions.Create(r.Context(), uid, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	Created(w, t, "Buchung angelegt.")
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req services.TransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.svc.Transactions.Update(r.Context(), uid, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(w, t)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Transactions.Delete(r.Context(), uid, id); err != nil {
		writeError(w, r, err)
		return
	}
	Done(w, "Buchung gelöscht.")
}
