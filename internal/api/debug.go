package api

import (
	"encoding/json"
	"net/http"
	"time"

	"freightplan/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	c := s.Config
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":                 c.Port,
			"WEBHOOK_MAX_ATTEMPTS": c.Webhooks.MaxAttempts,
			"SOLVER_TIME_LIMIT":    c.Solver.TimeLimit.String(),
			"SOLVER_MAX_NODES":     c.Solver.MaxNodes,
			"MISSING_TRAVEL_TIME":  c.Solver.MissingTravelTime,
			"RETENTION_DAYS":       c.Retention.Days,
			"TRAVEL_PROVIDER":      s.Travel.Name(),
			"HAS_DATABASE_URL":     c.DatabaseURL != "",
			"HAS_REDIS_URL":        c.RedisURL != "",
			"HAS_ORS_API_KEY":      c.Travel.ORSAPIKey != "",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
