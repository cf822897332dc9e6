package http

import (
	"net/http"

	"finanzen/internal/services"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cats, err := s.svc.Categories.List(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(w, cats)
}

func (s *Server) handleCategoryTree(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tree, err := s.svc.Categories.Tree(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(w, tree)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
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
	c, err := s.svc.Categories.Get(r.Context(), uid, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(w, c)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req services.CategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.svc.Categories.Create(r.Context(), uid, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	Created(w, c, "Kategorie angelegt.")
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
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
	var req services.CategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.svc.Categories.Update(r.Context(), uid, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(w, c)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
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
	if err := s.svc.Categories.Delete(r.Context(), uid, id); err != nil {
		writeError(w, r, err)
		return
	}
	Done(w, "Kategorie gelöscht.")
}

func (s *Server) handleSuggestCategory(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req services.SuggestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	suggestions, err := s.svc.Categories.Suggest(r.Context(), uid, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(w, suggestions)
}
