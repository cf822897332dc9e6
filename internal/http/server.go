package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"finanzen/internal/auth"
	"finanzen/internal/core"
	"finanzen/internal/log"
	"finanzen/internal/middleware/ratelimit"
	"finanzen/internal/middleware/security"
	"finanzen/internal/middleware/trace"
	"finanzen/internal/services"
)

// Services bundles the application services the API exposes.
type Services struct {
	Auth         *services.AuthService
	Accounts     *services.AccountService
	Categories   *services.CategoryService
	Transactions *services.TransactionService
	Files        *services.FileService
	Vat          *services.VatService
	GDPR         *services.GDPRService
}

// Pinger is the database health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the middleware chain.
type Options struct {
	CORSOrigins    []string
	RateLimit      int // requests per minute per client on /api
	MaxUploadBytes int64
	TrustedProxies []string
	APIDocs        bool // serve the OpenAPI document at /openapi.json
}

type Server struct {
	http.Server
	svc     Services
	tokens  *auth.TokenIssuer
	db      Pinger
	logger  *log.Logger
	opts    Options
	started time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, svc Services, tokens *auth.TokenIssuer, db Pinger, logger *log.Logger, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}

	s := &Server{
		svc:              svc,
		tokens:           tokens,
		db:               db,
		logger:           logger,
		opts:             opts,
		started:          time.Now(),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimit}),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(logger, detector.ExtractClientIP),
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes() http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("POST /api/auth/register", s.handleRegister)
	api.HandleFunc("POST /api/auth/login", s.handleLogin)
	api.Handle("GET /api/auth/me", s.authenticated(s.handleMe))
	api.Handle("PUT /api/auth/me", s.authenticated(s.handleUpdateProfile))
	api.Handle("POST /api/auth/change-password", s.authenticated(s.handleChangePassword))

	api.Handle("GET /api/accounts", s.authenticated(s.handleListAccounts))
	api.Handle("POST /api/accounts", s.authenticated(s.handleCreateAccount))
	api.Handle("GET /api/accounts/{id}", s.authenticated(s.handleGetAccount))
	api.Handle("PUT /api/accounts/{id}", s.authenticated(s.handleUpdateAccount))
	api.Handle("DELETE /api/accounts/{id}", s.authenticated(s.handleDeleteAccount))

	api.Handle("GET /api/categories", s.authenticated(s.handleListCategories))
	api.Handle("POST /api/categories", s.authenticated(s.handleCreateCategory))
	api.Handle("GET /api/categories/tree", s.authenticated(s.handleCategoryTree))
	api.Handle("POST /api/categories/suggest", s.authenticated(s.handleSuggestCategory))
	api.Handle("GET /api/categories/{id}", s.authenticated(s.handleGetCategory))
	api.Handle("PUT /api/categories/{id}", s.authenticated(s.handleUpdateCategory))
	api.Handle("DELETE /api/categories/{id}", s.authenticated(s.handleDeleteCategory))

	api.Handle("GET /api/transactions", s.authenticated(s.handleListTransactions))
	api.Handle("POST /api/transactions", s.authenticated(s.handleCreateTransaction))
	api.Handle("GET /api/transactions/summary", s.authenticated(s.handleTransactionSummary))
	api.Handle("GET /api/transactions/{id}", s.authenticated(s.handleGetTransaction))
	api.Handle("PUT /api/transactions/{id}", s.authenticated(s.handleUpdateTransaction))
	api.Handle("DELETE /api/transactions/{id}", s.authenticated(s.handleDeleteTransaction))

	api.Handle("GET /api/files", s.authenticated(s.handleListFiles))
	api.Handle("POST /api/files", s.authenticated(s.handleUploadFile))
	api.Handle("GET /api/files/{id}", s.authenticated(s.handleGetFile))
	api.Handle("DELETE /api/files/{id}", s.authenticated(s.handleDeleteFile))
	api.Handle("GET /api/files/{id}/download", s.authenticated(s.handleDownloadFile))
	api.Handle("POST /api/files/{id}/import", s.authenticated(s.handleImportFile))

	api.Handle("GET /api/vat/rates", s.authenticated(s.handleVatRates))
	api.Handle("POST /api/vat/calculate", s.authenticated(s.handleVatCalculate))

	api.Handle("GET /api/gdpr/export", s.authenticated(s.handleGDPRExport))
	api.Handle("POST /api/gdpr/erase", s.authenticated(s.handleGDPRErase))

	api.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusNotFound, "Unbekannter Endpunkt.")
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /healthz", s.handleLiveness)
	mux.HandleFunc("GET /readyz", s.handleReadiness)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	if s.opts.APIDocs {
		mux.HandleFunc("GET /openapi.json", s.handleOpenAPI)
	}
	mux.Handle("/api/", s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.onRateLimit)(api))

	var h http.Handler = mux
	h = recoverer(h)
	h = s.securityDetector.Middleware(h)
	h = security.CORS(security.DefaultCORSConfig(s.opts.CORSOrigins))(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.traceMiddleware.Middleware(h)
	return h
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldComponent, log.ComponentRateLimit,
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeStatus(w, http.StatusTooManyRequests, "Zu viele Anfragen. Bitte später erneut versuchen.")
}

// authenticated requires a valid bearer token and stores its claims in the
// request context.
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="finanzen"`)
			writeStatus(w, http.StatusUnauthorized, "Anmeldung erforderlich.")
			return
		}
		claims, err := s.tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			log.FromContext(r.Context()).InfoContext(r.Context(), "Rejected bearer token",
				log.FieldComponent, log.ComponentAuth,
				log.FieldError, err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="finanzen", error="invalid_token"`)
			writeStatus(w, http.StatusUnauthorized, "Die Sitzung ist ungültig oder abgelaufen.")
			return
		}

		if _, err := s.svc.Auth.Active(r.Context(), claims.UserID()); err != nil {
			if !errors.Is(err, core.ErrUnauthorized) {
				writeError(w, r, err)
				return
			}
			log.FromContext(r.Context()).InfoContext(r.Context(), "Rejected token of inactive user",
				log.FieldComponent, log.ComponentAuth,
				log.FieldUserID, claims.UserID())
			w.Header().Set("WWW-Authenticate", `Bearer realm="finanzen", error="invalid_token"`)
			writeStatus(w, http.StatusUnauthorized, "Die Sitzung ist ungültig oder abgelaufen.")
			return
		}

		ctx := auth.WithClaims(r.Context(), claims)
		ctx = log.WithLogger(ctx, log.FromContext(ctx).With(log.FieldUserID, claims.UserID()))
		next(w, r.WithContext(ctx))
	})
}

// userID returns the authenticated user. Handlers behind authenticated
// always have one.
func userID(r *http.Request) (string, error) {
	return auth.UserIDFromContext(r.Context())
}

// Shutdown gracefully shuts down the server and the rate limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
