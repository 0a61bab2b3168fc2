// Package web provides the HTTP API of the verifier: session management,
// the live item view with its SSE stream, alerts and report export.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/verifier/internal/channel"
	"github.com/JonMunkholm/verifier/internal/config"
	"github.com/JonMunkholm/verifier/internal/core"
	"github.com/JonMunkholm/verifier/internal/session"
	"github.com/JonMunkholm/verifier/internal/store"
	"github.com/JonMunkholm/verifier/internal/verify"
	mw "github.com/JonMunkholm/verifier/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// Directory looks up persisted mappings and suppliers.
type Directory interface {
	GetMapping(ctx context.Context, supplierCode string) (core.FieldMapping, error)
	SearchSuppliers(ctx context.Context, query string) ([]store.Supplier, error)
	AddSupplier(ctx context.Context, sup store.Supplier) error
}

// ChannelStatus reports the live channel connection state.
type ChannelStatus interface {
	State() channel.State
}

// Deps are the services the server exposes.
type Deps struct {
	Session    *session.Service
	Reconciler *verify.Reconciler
	Directory  Directory
	Channel    ChannelStatus // nil when no channel is configured
}

// Server is the HTTP server for the verifier.
type Server struct {
	session    *session.Service
	reconciler *verify.Reconciler
	directory  Directory
	channel    ChannelStatus

	cfg      *config.Config
	validate *validator.Validate
	router   *chi.Mux
	server   *http.Server

	limiters []*rateLimiter
}

// NewServer creates a new Server instance.
func NewServer(deps Deps, cfg *config.Config) *Server {
	s := &Server{
		session:    deps.Session,
		reconciler: deps.Reconciler,
		directory:  deps.Directory,
		channel:    deps.Channel,
		cfg:        cfg,
		validate:   newValidator(),
		router:     chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.securityHeaders)

	if s.cfg.Rate.Enabled {
		limiter := s.newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	timeout := middleware.Timeout(s.cfg.Server.RequestTimeout)

	heavy := func(next http.Handler) http.Handler { return next }
	if s.cfg.Rate.Enabled && s.cfg.Rate.UploadLimit > 0 {
		heavy = s.newRateLimiter(s.cfg.Rate.UploadLimit, time.Minute).middleware
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))

		// The stream outlives the request timeout.
		r.Get("/items/stream", s.handleItemStream)

		r.Group(func(r chi.Router) {
			r.Use(timeout)

			// Session
			r.With(heavy).Post("/session/upload", s.handleUpload)
			r.Get("/session", s.handleGetSession)
			r.Delete("/session", s.handleDiscardSession)
			r.Put("/session/mapping", s.handleSetMapping)
			r.Post("/session/apply", s.handleApply)
			r.Get("/session/download", s.handleDownloadCSV)
			r.Post("/session/supplier", s.handleSelectSupplier)

			// Persisted mappings and suppliers
			r.Post("/mappings", s.handleSaveMapping)
			r.Get("/mappings/{supplier}", s.handleGetMapping)
			r.Get("/suppliers", s.handleSearchSuppliers)
			r.Post("/suppliers", s.handleAddSupplier)

			// Live view
			r.Get("/items", s.handleListItems)
			r.Post("/items/sort/{key}", s.handleSortItems)
			r.Post("/events", s.handleInjectEvent)

			// Alerts
			r.Get("/alerts", s.handleGetAlerts)
			r.Post("/alerts/error/dismiss", s.handleDismissError)
			r.Post("/alerts/quantity/ack", s.handleAcknowledgeAlert)

			// Report
			r.With(heavy).Post("/report", s.handleExportReport)

			r.Get("/channel", s.handleChannelStatus)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // 0 keeps SSE streams open
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and its background cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, l := range s.limiters {
		l.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if s.cfg.Security.EnableCSP {
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimiter implements a fixed-window limiter per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
	now      func() time.Time
	done     chan struct{}
	once     sync.Once
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a limiter whose cleanup stops on Shutdown.
func (s *Server) newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	s.limiters = append(s.limiters, rl)
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries every window.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, v := range rl.visitors {
				if rl.now().Sub(v.lastReset) > rl.window*2 {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.once.Do(func() { close(rl.done) })
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: now}
		return true
	}

	if now.Sub(v.lastReset) > rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = now
		return true
	}

	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

// middleware returns an HTTP middleware that rate limits by IP.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(mw.ClientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON and writes it to w with status.
// Encoding errors are logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
