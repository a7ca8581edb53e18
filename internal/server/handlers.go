package server

import (
	"encoding/json"
	"net/http"
)

// handleHealth handles health check requests. Each database is pinged so a
// wedged connection pool flips the probe before requests start failing.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	databases := map[string]string{}
	healthy := true

	for name, check := range map[string]func() error{
		"analytics": func() error { return s.analyticsDB.QuickCheck(ctx) },
		"config":    func() error { return s.configDB.QuickCheck(ctx) },
		"cache":     func() error { return s.cacheDB.QuickCheck(ctx) },
		"history":   func() error { return s.history.Conn().PingContext(ctx) },
	} {
		if err := check(); err != nil {
			s.log.Error().Err(err).Str("database", name).Msg("Health check ping failed")
			databases[name] = "unreachable"
			healthy = false
		} else {
			databases[name] = "ok"
		}
	}

	status := http.StatusOK
	response := map[string]interface{}{
		"status":    "healthy",
		"version":   "1.0.0",
		"service":   "portfolio-analytics",
		"databases": databases,
	}

	if !healthy {
		response["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
