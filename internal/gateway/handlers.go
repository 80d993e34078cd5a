package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/soyeahso/botkit/internal/domain"
	"github.com/soyeahso/botkit/internal/plugin"
	"github.com/soyeahso/botkit/internal/version"
)

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status   string              `json:"status"`
	App      string              `json:"app"`
	Name     string              `json:"name,omitempty"`
	Version  string              `json:"version,omitempty"`
	UptimeMs int64               `json:"uptimeMs,omitempty"`
	Clients  int                 `json:"clients"`
	Plugins  []plugin.PluginInfo `json:"plugins,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleMessages authenticates and dispatches one inbound activity, then
// writes the dispatch envelope status and body.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if s.dispatch == nil {
		writeError(w, http.StatusServiceUnavailable, "app not initialized")
		return
	}
	if !s.authLimiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited after failed auth attempts")
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	token, auth := Authenticate(s.auth, r)
	if !auth.OK {
		s.authLimiter.recordFailure(r.RemoteAddr)
		s.log.Warn().Str("remote", r.RemoteAddr).Str("reason", auth.Reason).Msg("unauthorized activity request")
		writeError(w, http.StatusUnauthorized, auth.Reason)
		return
	}

	var act domain.Activity
	body := http.MaxBytesReader(w, r.Body, maxActivityBytes)
	if err := json.NewDecoder(body).Decode(&act); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "activity too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid activity: "+err.Error())
		return
	}
	if act.Type == "" {
		writeError(w, http.StatusBadRequest, "activity type is required")
		return
	}

	extra := map[string]any{
		"requestId": w.Header().Get("X-Request-ID"),
		"authMode":  auth.Method,
	}
	resp := s.dispatch.Process(r.Context(), s, token, &act, extra)

	w.Header().Set("X-Dispatch-Routes", strconv.Itoa(resp.Meta.Routes))
	w.Header().Set("X-Dispatch-Elapsed-Ms", strconv.FormatInt(resp.Meta.ElapseMs, 10))
	if resp.Body == nil {
		w.WriteHeader(resp.Status)
		return
	}
	writeJSON(w, resp.Status, resp.Body)
}

// handleHealth reports the gateway and app lifecycle state.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	app := "unknown"
	if s.status != nil {
		app = s.status()
	}

	h := HealthResponse{
		Status:  "ok",
		App:     app,
		Name:    s.appName,
		Version: version.Version,
		Clients: s.clients.Count(),
	}
	s.mu.Lock()
	if !s.startedAt.IsZero() {
		h.UptimeMs = time.Since(s.startedAt).Milliseconds()
	}
	s.mu.Unlock()
	if s.plugins != nil {
		h.Plugins = s.plugins()
	}

	status := http.StatusOK
	if app == "stopped" {
		h.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}
