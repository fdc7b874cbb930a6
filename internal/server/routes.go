package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/peerlink/internal/version"
)

// Handler builds the HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Metrics first so every request is counted
	r.Use(requestMetrics)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimw.Recoverer)

	r.Get(s.cfg.Server.WSPath, s.handleWS)
	r.Get("/health", s.handleHealth)
	r.Get("/debug/users", s.handleUsers)
	if !s.cfg.Metrics.Disabled {
		r.Handle(s.cfg.Metrics.Path, promhttp.Handler())
	}

	return r
}

type healthResponse struct {
	Status      string            `json:"status"`
	Version     map[string]string `json:"version"`
	Peers       int               `json:"peers"`
	Connections int64             `json:"connections"`
	Audit       *auditHealth      `json:"audit,omitempty"`
}

type auditHealth struct {
	Inserts int64 `json:"inserts"`
	Errors  int64 `json:"errors"`
	Dropped int64 `json:"dropped"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "ok",
		Version:     version.Info(),
		Peers:       s.router.Registry().Len(),
		Connections: s.active.Load(),
	}
	if s.auditStats != nil {
		st := s.auditStats()
		resp.Audit = &auditHealth{
			Inserts: st.Inserts,
			Errors:  st.Errors,
			Dropped: st.Dropped,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"users": s.router.Registry().List(""),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
