// Package httptransport assembles the public HTTP surface. Domain handlers
// register their own subrouters; this package only decides what is mounted
// and exposes the operational endpoints.
package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registrar is any domain handler that can attach its routes to the root
// router.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether one backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// NewRouter mounts the domain handlers plus /health and /metrics. Checks are
// keyed by dependency name and run on every /health call.
func NewRouter(checks map[string]HealthCheck, handlers ...Registrar) http.Handler {
	r := chi.NewRouter()
	for _, h := range handlers {
		h.Register(r)
	}
	r.Get("/health", handleHealth(checks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func handleHealth(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
