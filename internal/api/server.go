// Package api serves the editor operations over HTTP for browser-based
// builders.
package api

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/rendis/blockflow/internal/editor"
	"github.com/rendis/blockflow/internal/logging"
	"github.com/rendis/blockflow/internal/streaming"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 10 << 20

// Deps holds the dependencies of the API server. Without a Hub the event
// stream endpoints answer 404.
type Deps struct {
	Editor         *editor.Service
	Hub            streaming.Hub
	Logger         *slog.Logger
	AllowedOrigins []string
}

// Server is the HTTP API.
type Server struct {
	editor  *editor.Service
	hub     streaming.Hub
	logger  *slog.Logger
	origins []string
}

// NewServer creates a Server. An empty AllowedOrigins allows every origin.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{editor: deps.Editor, hub: deps.Hub, logger: logger, origins: origins}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/workflows", func(r chi.Router) {
			r.Get("/", s.listWorkflows)
			r.Post("/", s.createWorkflow)
			r.Get("/{id}", s.getWorkflow)
			r.Delete("/{id}", s.deleteWorkflow)
			r.Get("/{id}/graph", s.getGraph)
			r.Put("/{id}/graph", s.saveGraph)
			r.Get("/{id}/diagram", s.getDiagram)
			r.Get("/{id}/events", s.streamWorkflowEvents)
			r.Get("/{id}/revisions", s.listRevisions)
			r.Post("/{id}/revisions/{seq}/restore", s.revertWorkflow)
		})
		r.Get("/events", s.streamEvents)
		r.Route("/convert", func(r chi.Router) {
			r.Post("/to-graph", s.convertToGraph)
			r.Post("/to-definition", s.convertToDefinition)
		})
		r.Post("/upgrade", s.upgradeDefinition)
		r.Post("/validate", s.validateDefinition)
		r.Route("/graph", func(r chi.Router) {
			r.Post("/blocks", s.addBlock)
			r.Post("/blocks/{nodeId}/remove", s.removeBlock)
			r.Post("/blocks/{nodeId}/duplicate", s.duplicateBlock)
			r.Post("/blocks/{nodeId}/rename", s.renameBlock)
			r.Post("/conditionals/{nodeId}/branch", s.setActiveBranch)
		})
	})
	return r
}

// requestLogger logs every request once it completes, tagged with the
// request id chi assigned.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logging.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		s.logger.InfoContext(ctx, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
