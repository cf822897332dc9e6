package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"finanzen/internal/core"
	"finanzen/internal/log"
	"finanzen/internal/services"
)

// multipartOverhead is the allowance for boundaries and form fields on top
// of the statement itself.
const multipartOverhead = 64 << 10

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	files, err := s.svc.Files.List(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(w, files)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
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
	f, err := s.svc.Files.Get(r.Context(), uid, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(w, f)
}

// handleUploadFile accepts a multipart form with the PDF in "file" and the
// optional fields "accountId" and "autoImport".
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+multipartOverhead)
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, badRequest("expected a multipart/form-data body"))
		return
	}

	req := services.UploadRequest{}
	verrs := core.NewValidationError()
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeError(w, r, uploadReadError(err))
			return
		}

		switch part.FormName() {
		case "accountId":
			v, err := formValue(part)
			if err != nil {
				writeError(w, r, uploadReadError(err))
				return
			}
			if v == "" {
				continue
			}
			if _, err := uuid.Parse(v); err != nil {
				verrs.Add("accountId", "must be a UUID")
				continue
			}
			req.AccountID = &v
		case "autoImport":
			v, err := formValue(part)
			if err != nil {
				writeError(w, r, uploadReadError(err))
				return
			}
			if v == "" {
				continue
			}
			b, err := strconv.ParseBool(v)
			if err != nil {
				verrs.Add("autoImport", "must be true or false")
				continue
			}
			req.AutoImport = b
		case "file":
			if err := verrs.OrNil(); err != nil {
				writeError(w, r, err)
				return
			}
			req.FileName = part.FileName()
			req.ContentType = part.Header.Get("Content-Type")
			f, err := s.uploadPart(r, uid, req, part)
			if err != nil {
				writeError(w, r, err)
				return
			}
			Created(w, f, uploadMessage(f))
			return
		default:
			_ = part.Close()
		}
	}

	verrs.Add("file", "is required")
	writeError(w, r, verrs)
}

// uploadPart stores the file part. Fields after the file are ignored, so
// clients send accountId and autoImport first.
func (s *Server) uploadPart(r *http.Request, uid string, req services.UploadRequest, part io.Reader) (core.UploadedFile, error) {
	f, err := s.svc.Files.Upload(r.Context(), uid, req, part)
	if err != nil {
		return core.UploadedFile{}, uploadReadError(err)
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Statement uploaded",
		log.FieldComponent, log.ComponentFile,
		log.FieldOperation, log.OpUpload,
		log.FieldFileID, f.ID,
		"status", string(f.Status))
	return f, nil
}

func uploadMessage(f core.UploadedFile) string {
	switch f.Status {
	case core.FileProcessed:
		return "Kontoauszug hochgeladen und importiert."
	case core.FileFailed:
		return "Kontoauszug hochgeladen, der Import ist fehlgeschlagen: " + f.ErrorMessage
	default:
		return "Kontoauszug hochgeladen."
	}
}

// formValue reads a small text field.
func formValue(part io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(part, 1024))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// uploadReadError maps an exhausted body limit to ErrTooLarge.
func uploadReadError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return core.ErrTooLarge
	}
	return err
}

// handleDownloadFile streams the stored statement.
func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
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
	f, body, err := s.svc.Files.Download(r.Context(), uid, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	setAttachmentHeaders(w, f.OriginalName, "application/pdf")
	if f.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Download interrupted",
			log.FieldComponent, log.ComponentFile,
			log.FieldFileID, f.ID,
			log.FieldError, err)
	}
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
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
	if err := s.svc.Files.Delete(r.Context(), uid, id); err != nil {
		writeError(w, r, err)
		return
	}
	Done(w, "Kontoauszug gelöscht.")
}

// handleImportFile (re)imports a statement synchronously.
func (s *Server) handleImportFile(w http.ResponseWriter, r *http.Request) {
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
	res, err := s.svc.Files.Import(r.Context(), uid, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg := "Kontoauszug importiert."
	if !res.Reconciled {
		msg = "Kontoauszug importiert. Die Buchungen ergeben nicht den ausgewiesenen Endsaldo."
	}
	NewResponse().Data(res).Message(msg).Write(w)
}
