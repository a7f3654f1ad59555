package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/markdave123-py/Simplifai/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/Simplifai/internal/api/middlewares"
	"github.com/markdave123-py/Simplifai/internal/config"
	"github.com/markdave123-py/Simplifai/internal/core"
	"github.com/markdave123-py/Simplifai/internal/logging"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps are the services the HTTP routes call into.
type RouterDeps struct {
	Jobs   handlers.JobService
	Index  core.VectorIndex
	LLM    core.LLMProvider
	Health Pinger
	TopK   int
}

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, deps RouterDeps, log *zap.Logger) *Server {
	log = logging.OrNop(log)
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(cfg, deps, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &Server{httpServer: httpSrv, log: log}
}

// NewRouter mounts the health probe and the authenticated job API.
func NewRouter(cfg *config.Config, deps RouterDeps, log *zap.Logger) http.Handler {
	log = logging.OrNop(log)
	jobHandler := handlers.NewJobHandler(deps.Jobs, cfg.Pipeline.MaxUploadBytes, log)
	chatHandler := handlers.NewChatHandler(deps.Jobs, deps.Index, deps.LLM, deps.TopK, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Health.Ping(r.Context()); err != nil {
			log.Warn("health check failed", zap.Error(err))
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	// API routes
	r.Route("/api", func(api chi.Router) {
		api.Use(appMiddleware.JWT([]byte(cfg.JWTSecret)))

		api.Post("/jobs", jobHandler.Submit)
		api.Get("/jobs", jobHandler.List)
		api.Get("/jobs/{jobID}", jobHandler.Status)
		api.Get("/jobs/{jobID}/result", jobHandler.Result)
		api.Get("/jobs/{jobID}/chunks", jobHandler.Chunks)
		api.Post("/jobs/{jobID}/ask", chatHandler.Ask)
		api.Get("/chains/{chainID}", jobHandler.Chain)
	})

	return r
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
