// Package http hosts both interface variants over the bill service: the JSON
// REST API under /api and the server-rendered HTMX pages.
package http

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"bollette/internal/observability/metrics"
	"bollette/internal/services"
	appweb "bollette/web"
)

type Server struct {
	http.Server
	templates    *template.Template
	bills        *services.BillService
	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(addr string, bills *services.BillService) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		bills:       bills,
		rateLimiter: newRateLimiter(),
	}

	t, err := template.New("").Funcs(template.FuncMap{
		"currency":   formatDollars,
		"prettyDate": prettyDate,
		"quantity":   formatQuantity,
	}).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("GET /api/health", handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	// JSON REST API
	mux.HandleFunc("GET /api/bills", s.withMiddleware(s.handleListBills))
	mux.HandleFunc("POST /api/bills", s.withMiddleware(s.handleCreateBill))
	mux.HandleFunc("GET /api/bills/export", s.withMiddleware(s.handleExportBills))
	mux.HandleFunc("GET /api/bills/{id}", s.withMiddleware(s.handleGetBill))
	mux.HandleFunc("PUT /api/bills/{id}", s.withMiddleware(s.handleUpdateBill))
	mux.HandleFunc("DELETE /api/bills/{id}", s.withMiddleware(s.handleDeleteBill))

	// Server-rendered pages
	mux.HandleFunc("GET /{$}", s.withMiddleware(s.handleBillsList))
	mux.HandleFunc("GET /add", s.withMiddleware(s.handleAddForm))
	mux.HandleFunc("GET /edit/{id}", s.withMiddleware(s.handleEditForm))
	mux.HandleFunc("GET /history", s.withMiddleware(s.handleHistory))
	mux.HandleFunc("POST /bills/create", s.withMiddleware(s.handleCreateBillForm))
	mux.HandleFunc("POST /bills/update/{id}", s.withMiddleware(s.handleUpdateBillForm))

	return s
}

// Shutdown stops the server and its background cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withMiddleware adds security headers, rate limiting, request IDs and
// structured request logging around a handler.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		if isMutating(r.Method) && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' https://unpkg.com https://cdn.jsdelivr.net 'unsafe-eval'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		metrics.ObserveHTTPRequest(r.Method, rw.statusCode, duration)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

type requestIDKey struct{}

func isMutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodDelete
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
