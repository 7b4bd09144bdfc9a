package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/paperbase-io/paperbase/internal/api/handlers"
	appMiddleware "github.com/paperbase-io/paperbase/internal/api/middlewares"
	"github.com/paperbase-io/paperbase/internal/config"
	"github.com/paperbase-io/paperbase/internal/core"
	"github.com/paperbase-io/paperbase/internal/ingest"
	"github.com/paperbase-io/paperbase/internal/retrieval"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, db core.DbClient, intake *ingest.Intake, retriever *retrieval.Retriever, reindexer handlers.Reindexer, log *zap.Logger) *Server {
	docHandler := handlers.NewDocumentHandler(db, intake, retriever, reindexer, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWT(cfg.JWTSecret))
			protected.Post("/documents/upload", docHandler.Upload)
			protected.Get("/documents", docHandler.List)
			protected.Get("/documents/{documentID}/status", docHandler.Status)
			protected.Get("/documents/{documentID}/search", docHandler.Search)
			protected.Get("/documents/{documentID}/related", docHandler.Related)
			protected.Post("/documents/{documentID}/reindex", docHandler.Reindex)
			protected.Delete("/documents/{documentID}", docHandler.Delete)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, log: log}
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.log.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
