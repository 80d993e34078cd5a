package gateway

import "net/http"

// maxActivityBytes bounds inbound activity bodies.
const maxActivityBytes = 4 << 20

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/messages", s.handleMessages)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
	if s.cfg.Devtools.Enabled {
		mux.HandleFunc("GET /devtools", s.handleDevtools)
	}

	mux.HandleFunc("/", handleNotFound)
}
