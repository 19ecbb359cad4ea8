package http

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"r2r/internal/auth"
	applog "r2r/internal/log"
	"r2r/internal/middleware/ratelimit"
	"r2r/internal/middleware/security"
	"r2r/internal/middleware/trace"
	"r2r/internal/services"
)

// Deps are the services behind the API. Checks are run by /readyz.
type Deps struct {
	Tokens       *auth.Tokens
	Accounts     *services.AccountService
	Transactions *services.TransactionService
	Ingest       *services.IngestService
	Analysis     *services.AnalysisService
	Budgets      *services.BudgetService
	Chat         *services.ChatService
	Export       *services.ExportService

	Checks             map[string]func(context.Context) error
	RateLimitPerMinute int
}

type appMetrics struct {
	started              time.Time
	transactionsIngested int64
	jobsQueued           int64
}

type Server struct {
	http.Server
	deps   Deps
	logger *applog.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	metrics  *appMetrics

	shutdownOnce sync.Once
}

// NewServer wires routes and the middleware chain, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	detector := security.NewDetector()
	s := &Server{
		deps:     deps,
		logger:   applog.New(applog.Config{Component: applog.ComponentHTTP, Handler: slog.Default().Handler()}),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		detector: detector,
		tracer:   trace.NewMiddleware(detector.ExtractClientIP),
		metrics:  &appMetrics{started: time.Now()},
	}

	mux := http.NewServeMux()
	s.routes(mux)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.chain(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/signup", s.handleSignup)
	mux.HandleFunc("POST /api/login", s.handleLogin)

	protected := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, auth.Middleware(s.deps.Tokens)(h))
	}
	protected("GET /api/me", s.handleMe)
	protected("PUT /api/household", s.handleJoinHousehold)
	protected("DELETE /api/household", s.handleLeaveHousehold)

	protected("GET /api/transactions", s.handleListTransactions)
	protected("PATCH /api/transactions/{id}", s.handlePatchTransaction)

	protected("POST /api/ingest", s.handleIngest)
	protected("GET /api/jobs/{id}", s.handleGetJob)

	protected("POST /api/analyze", s.handleAnalyze)
	protected("GET /api/summaries", s.handleListSummaries)
	protected("GET /api/summaries/latest", s.handleLatestSummary)
	protected("GET /api/summaries/latest/report", s.handleLatestReport)
	protected("GET /api/budgets/{year}/{month}", s.handleGetBudget)
	protected("PUT /api/budgets/{year}/{month}", s.handlePutBudget)
	protected("GET /api/bills", s.handleBills)
	protected("GET /api/dashboard", s.handleDashboard)

	protected("POST /api/chat", s.handleStartChat)
	protected("GET /api/chat/{id}", s.handleGetChat)
	protected("POST /api/chat/{id}/messages", s.handleChatMessage)

	protected("GET /api/tax/export.csv", s.handleTaxCSV)
	protected("POST /api/tax/export/sheets", s.handleTaxSheets)
}

// chain wraps h, outermost first: panic recovery, tracing, request logger,
// security headers, suspicious request detection, rate limiting.
func (s *Server) chain(h http.Handler) http.Handler {
	h = s.limiter.Middleware(s.detector.ExtractClientIP, ratelimit.Mutating, s.onRateLimit)(h)
	h = s.detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = applog.RequestIDMiddleware(func(r *http.Request) string { return trace.GetRequestID(r.Context()) })(h)
	h = applog.Middleware(s.logger)(h)
	h = s.tracer.Middleware(h)
	return s.recoverer(h)
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	s.logger.WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded, try again later"})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.ErrorContext(r.Context(), "Panic in handler",
					applog.FieldMethod, r.Method,
					applog.FieldPath, r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()))
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Shutdown stops background routines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
