// Package api serves the persistence collaborator over HTTP so a remote
// session can use the "rest" backend.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/hpungsan/stream/internal/backend"
	"github.com/hpungsan/stream/internal/config"
	"github.com/hpungsan/stream/internal/logger"
)

// maxBodyBytes caps request bodies. Prompts are text, so 1 MiB is plenty.
const maxBodyBytes = 1 << 20

// NewHandler builds the routed handler with middleware applied.
func NewHandler(b backend.Backend, cfg *config.Config, log *logger.Logger) http.Handler {
	log = logger.OrNop(log).With("component", "api")
	h := &Handlers{backend: b, log: log}

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("GET /{$}", h.HandleHealth)
	mux.HandleFunc("GET /api/health", h.HandleHealth)

	mux.HandleFunc("GET /api/blocks", h.HandleListBlocks)
	mux.HandleFunc("POST /api/blocks", h.HandleCreateBlock)
	mux.HandleFunc("PATCH /api/blocks/{id}", h.HandleUpdateBlock)
	mux.HandleFunc("DELETE /api/blocks/{id}", h.HandleDeleteBlock)

	mux.HandleFunc("GET /api/tag-colors", h.HandleListTagColors)
	mux.HandleFunc("PUT /api/tag-colors/{name}", h.HandleSetTagColor)
	mux.HandleFunc("DELETE /api/tag-colors/{name}", h.HandleDeleteTagColor)

	mux.HandleFunc("GET /api/stacks", h.HandleListStacks)
	mux.HandleFunc("POST /api/stacks", h.HandleCreateStack)
	mux.HandleFunc("PATCH /api/stacks/{id}", h.HandleRenameStack)
	mux.HandleFunc("DELETE /api/stacks/{id}", h.HandleDeleteStack)

	mux.HandleFunc("POST /api/classify", h.HandleClassify)
	mux.HandleFunc("POST /api/rack/preview", h.HandlePreview)

	var origins []string
	if cfg != nil {
		origins = cfg.CORSOrigins
	}
	return logRequests(log, cors(origins, securityHeaders(mux)))
}

// NewServer creates the HTTP server for the Stream API.
func NewServer(b backend.Backend, cfg *config.Config, log *logger.Logger) *http.Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.APIBind, cfg.APIPort),
		Handler:           NewHandler(b, cfg, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// cors allows the configured browser origins. "*" allows any origin.
// Preflight requests are answered here and never reach the mux.
func cors(origins []string, next http.Handler) http.Handler {
	allowAll := slices.Contains(origins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || slices.Contains(origins, origin)) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func logRequests(log *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, log *logger.Logger) error {
	log = logger.OrNop(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, srv, log)
}

func serve(ctx context.Context, srv *http.Server, log *logger.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("stream API running", "addr", "http://"+srv.Addr)
	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
