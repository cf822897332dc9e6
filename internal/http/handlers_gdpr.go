package http

import (
	"net/http"

	"finanzen/internal/log"
	"finanzen/internal/services"
)

// handleGDPRExport sends all personal data as a JSON or XLSX attachment.
func (s *Server) handleGDPRExport(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.svc.GDPR.Export(r.Context(), uid, r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Personal data exported",
		log.FieldComponent, log.ComponentGDPR,
		log.FieldOperation, log.OpExport,
		"format", out.ContentType,
		"bytes", len(out.Data))
	Attachment(w, out.Name, out.ContentType, out.Data)
}

// handleGDPRErase deletes the account after password confirmation.
func (s *Server) handleGDPRErase(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req services.EraseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.GDPR.Erase(r.Context(), uid, req); err != nil {
		writeError(w, r, err)
		return
	}
	Done(w, "Alle personenbezogenen Daten wurden gelöscht.")
}
