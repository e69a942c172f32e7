package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tidemark/cadence/internal/engine"
	"github.com/tidemark/cadence/internal/store"
)

// Server is the cadence HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	loc     *time.Location
	router  chi.Router
	version string
	started time.Time
}

// New creates a Server over the given database and engine.
func New(db *store.DB, eng *engine.Engine, loc *time.Location, version string) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		db:      db,
		engine:  eng,
		loc:     loc,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// App-foreground lifecycle event: reconcile + resync.
		r.Post("/activate", s.handleActivate)

		r.Get("/templates", s.handleListTemplates)
		r.Post("/templates", s.handleCreateTemplate)
		r.Put("/templates/{entryID}", s.handleUpdateTemplate)
		r.Delete("/templates/{entryID}", s.handleDeleteTemplate)

		r.Get("/entries", s.handleListEntries)
		r.Post("/entries", s.handleCreateEntry)
		r.Put("/entries/{entryID}", s.handleUpdateEntry)
		r.Delete("/entries/{entryID}", s.handleDeleteEntry)
		r.Post("/entries/{entryID}/complete", s.handleCompleteEntry)

		r.Get("/sections", s.handleListSections)
		r.Post("/sections", s.handleCreateSection)
		r.Post("/sections/{sectionID}/notifications", s.handleSectionNotifications)

		r.Get("/export.ics", s.handleExportICS)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}
