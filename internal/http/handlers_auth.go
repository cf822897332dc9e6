package http

import (
	"net/http"

	"finanzen/internal/services"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.Auth.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	Created(w, res, "Registrierung erfolgreich.")
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req services.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.Auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(w, res)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.svc.Auth.Me(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(w, u)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req services.UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.svc.Auth.UpdateProfile(r.Context(), uid, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(w, u)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req services.ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Auth.ChangePassword(r.Context(), uid, req); err != nil {
		writeError(w, r, err)
		return
	}
	Done(w, "Passwort geändert.")
}
