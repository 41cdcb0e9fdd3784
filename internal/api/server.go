// Package api serves dashboards over HTTP/JSON. Each browser session owns
// one in-memory dashboard.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/equity-map/internal/dashboard"
	"github.com/sells-group/equity-map/internal/registry"
)

// Factory creates an unloaded dashboard for a new session.
type Factory func() *dashboard.Dashboard

// Options configures the server.
type Options struct {
	MaxSessions int
	SessionTTL  time.Duration
	CORSOrigins []string
}

// Server routes requests to session dashboards.
type Server struct {
	reg      *registry.Registry
	factory  Factory
	sessions *SessionStore
	router   *chi.Mux
}

// NewServer creates a server. Sessions are created on demand by factory.
func NewServer(reg *registry.Registry, factory Factory, opts Options) *Server {
	s := &Server{
		reg:      reg,
		factory:  factory,
		sessions: NewSessionStore(opts.MaxSessions, opts.SessionTTL),
		router:   chi.NewRouter(),
	}
	s.setupMiddleware(opts.CORSOrigins)
	s.setupRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Sessions returns the session store.
func (s *Server) Sessions() *SessionStore { return s.sessions }

func (s *Server) setupMiddleware(origins []string) {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.handleHealth)
	r.Get("/api/fields", s.handleCatalog)
	r.Get("/api/sessions/stats", s.handleSessionStats)
	r.Post("/api/sessions", s.handleCreateSession)

	r.Route("/api/sessions/{id}", func(r chi.Router) {
		r.Use(s.withSession)

		r.Get("/", s.handleStatus)
		r.Delete("/", s.handleDeleteSession)
		r.Get("/index-fields", s.handleIndexFields)

		r.Put("/field", s.handleSelectField)
		r.Get("/layers/{pane}", s.handleLayer)
		r.Get("/layers/{pane}/overlay", s.handleOverlay)
		r.Get("/legends/{pane}", s.handleLegends)

		r.Put("/selection", s.handleSetSelection)
		r.Delete("/selection", s.handleClearSelection)
		r.Put("/race-groups", s.handleRaceGroups)

		r.Post("/indices/{kind}", s.handleGenerate)
		r.Delete("/indices/{kind}", s.handleResetIndex)
		r.Get("/indices/{kind}/table", s.handleTable)
		r.Get("/indices/{kind}/histogram", s.handleHistogram)
		r.Post("/reset", s.handleReset)

		r.Put("/view", s.handleView)
		r.Put("/viewport", s.handleViewport)
		r.Post("/analysis", s.handleAnalyze)

		r.Get("/exports/indices/{kind}", s.handleExportIndex)
		r.Get("/exports/race-stats", s.handleExportRaceStats)
		r.Get("/exports/map", s.handleExportMap)
		r.Get("/exports/workbook", s.handleExportWorkbook)
	})
}

// requestLogger logs every request through zap.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			zap.L().Info("api: request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
