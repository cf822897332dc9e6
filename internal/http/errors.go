package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"finanzen/internal/core"
	"finanzen/internal/log"
)

// errBadRequest marks request bodies or parameters that could not be read.
var errBadRequest = errors.New("bad request")

const msgInternal = "Ein interner Fehler ist aufgetreten."

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// problem is the client-facing view of an error.
type problem struct {
	status  int
	message string
	fields  map[string][]string
}

// classify maps an error to its status code and public message. Only the
// text a service attached after a sentinel is exposed; everything else is
// replaced by a fixed message.
func classify(err error) problem {
	var ve *core.ValidationError
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &ve):
		return problem{http.StatusBadRequest, "Die Eingaben sind ungültig.", ve.Fields}
	case errors.Is(err, errBadRequest):
		return problem{status: http.StatusBadRequest, message: detail(err, errBadRequest, "Ungültige Anfrage.")}
	case errors.Is(err, core.ErrUnauthorized):
		return problem{status: http.StatusUnauthorized, message: detail(err, core.ErrUnauthorized, "Nicht angemeldet.")}
	case errors.Is(err, core.ErrForbidden):
		return problem{status: http.StatusForbidden, message: "Zugriff verweigert."}
	case errors.Is(err, core.ErrNotFound):
		return problem{status: http.StatusNotFound, message: detail(err, core.ErrNotFound, "Nicht gefunden.")}
	case errors.Is(err, core.ErrConcurrencyConflict):
		return problem{status: http.StatusConflict, message: "Der Datensatz wurde zwischenzeitlich geändert. Bitte neu laden."}
	case errors.Is(err, core.ErrConflict):
		return problem{status: http.StatusConflict, message: detail(err, core.ErrConflict, "Konflikt mit dem aktuellen Stand.")}
	case errors.Is(err, core.ErrTooLarge), errors.As(err, &mbe):
		return problem{status: http.StatusRequestEntityTooLarge, message: detail(err, core.ErrTooLarge, "Die Anfrage ist zu groß.")}
	case errors.Is(err, core.ErrUnprocessable):
		return problem{status: http.StatusUnprocessableEntity, message: detail(err, core.ErrUnprocessable, "Die Anfrage konnte nicht verarbeitet werden.")}
	default:
		return problem{status: http.StatusInternalServerError, message: msgInternal}
	}
}

// detail returns the text following "<sentinel>: " in err, or fallback.
func detail(err, sentinel error, fallback string) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		if d := strings.TrimSpace(msg[i+len(prefix):]); d != "" {
			return d
		}
	}
	return fallback
}

// writeError is the single translation point from errors to responses.
// Client errors are logged at warn, server errors at error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	p := classify(err)

	level := slog.LevelWarn
	if p.status >= 500 {
		level = slog.LevelError
	}
	log.FromContext(r.Context()).Log(r.Context(), level, "Request failed",
		log.FieldComponent, log.ComponentHTTP,
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path,
		log.FieldStatusCode, p.status,
		log.FieldError, err)

	NewResponse().Status(p.status).Message(p.message).Errors(p.fields).Write(w)
}

// writeStatus writes an error envelope without an underlying error.
func writeStatus(w http.ResponseWriter, status int, message string) {
	NewResponse().Status(status).Message(message).Write(w)
}

// recoverer turns panics into 500 responses.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Handler panicked",
				log.FieldComponent, log.ComponentHTTP,
				log.FieldPath, r.URL.Path,
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()))
			writeStatus(w, http.StatusInternalServerError, msgInternal)
		}()
		next.ServeHTTP(w, r)
	})
}
