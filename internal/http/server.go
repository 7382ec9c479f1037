// Package http serves the upload form, runs closings, and exposes the
// local history for download.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"fechamento/internal/closing"
	"fechamento/internal/history"
	"fechamento/internal/log"
	appweb "fechamento/web"
)

// ClosingRunner executes one monthly closing end to end.
type ClosingRunner interface {
	Run(ctx context.Context, in closing.RunInput) (*closing.RunResult, error)
}

// HistoryBrowser is the slice of the history store the UI needs: past
// closings for listing/download plus the manually kept cash book.
type HistoryBrowser interface {
	List(ctx context.Context) ([]history.Entry, error)
	ReadArtifact(ctx context.Context, id int64) ([]byte, string, error)
	AddCashEntry(ctx context.Context, e history.CashEntry) (history.CashEntry, error)
	ListCashEntries(ctx context.Context, periodLabel string) ([]history.CashEntry, error)
	DeleteCashEntry(ctx context.Context, id int64) error
}

type Server struct {
	http.Server
	templates   *template.Template
	runner      ClosingRunner
	store       HistoryBrowser
	rateLimiter *rateLimiter
	logger      *log.Logger

	// Closings mutate the same history tables and share the reports
	// directory, so runs are serialized.
	runMu sync.Mutex

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, runner ClosingRunner, store HistoryBrowser, logger *log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		runner:      runner,
		store:       store,
		rateLimiter: newRateLimiter(10),
		logger:      logger.WithComponent(log.ComponentHTTP),
	}

	// Parse embedded templates at startup.
	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", log.FieldError, err)
	}
	s.templates = t

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("/", s.withSecurityHeaders(s.handleIndex))
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.withSecurityHeaders(s.handleReady))
	mux.HandleFunc("/closings", s.withSecurityHeaders(s.handleRunClosing))
	mux.HandleFunc("/closings/download", s.withSecurityHeaders(s.handleDownload))
	mux.HandleFunc("/cash", s.withSecurityHeaders(s.handleAddCashEntry))
	mux.HandleFunc("/cash/delete", s.withSecurityHeaders(s.handleDeleteCashEntry))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines.
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

// withSecurityHeaders adds security headers, rate limiting, and request logging to responses
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := r.Context()
		logger := s.logger.With(log.FieldRequestID, requestID)
		r = r.WithContext(ctx)

		logger.InfoContext(ctx, "Request started",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldClientIP, clientIP)

		// Closing runs are the only expensive operation; only POSTs
		// are rate limited.
		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			logger.WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		logger.InfoContext(ctx, "Request completed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds(),
			log.FieldClientIP, clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
