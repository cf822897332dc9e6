package http

import (
	"net/http"

	"finanzen/internal/services"
)

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	accounts, err := s.svc.Accounts.List(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(w, accounts)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
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
	a, err := s.svc.Accounts.Get(r.Context(), uid, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(w, a)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req services.AccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.svc.Accounts.Create(r.Context(), uid, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	Created(w, a, "Konto angelegt.")
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
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
	var req services.AccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.svc.Accounts.Update(r.Context(), uid, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(w, a)
}

// handleDeleteAccount refuses accounts with bookings unless ?force=true.
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
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
	p := newQueryParser(r.URL.Query())
	force := p.bool("force")
	if err := p.err(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Accounts.Delete(r.Context(), uid, id, force); err != nil {
		writeError(w, r, err)
		return
	}
	Done(w, "Konto gelöscht.")
}
