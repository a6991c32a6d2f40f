package api

import (
	"net/http"
	"time"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/metrics"
)

// VersionResponse is returned by /api/version
type VersionResponse struct {
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// registerHealthRoutes adds the probe and scrape endpoints. They are never
// behind authentication.
func (s *Server) registerHealthRoutes() {
	s.mux.Handle("GET /health", instrument("GET /health", metrics.HealthHandler()))
	s.mux.Handle("GET /ready", instrument("GET /ready", metrics.ReadyHandler()))
	s.mux.Handle("GET /metrics", metrics.Handler())
	s.mux.Handle("GET /api/version", instrument("GET /api/version", http.HandlerFunc(s.version)))
}

func (s *Server) version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.opts.Version, Timestamp: time.Now()})
}
