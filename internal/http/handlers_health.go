package httpx

import (
	"context"
	"io"
	"net/http"
	"time"
)

const healthResponse = `{"status":"ok"}`

// readinessTimeout bounds each dependency check.
const readinessTimeout = 2 * time.Second

// healthHandler returns a simple 200 OK status for liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// ReadinessCheck probes one dependency. Only Critical checks can fail readiness.
type ReadinessCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Critical bool
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// readinessHandler reports each dependency as ok or unavailable. It answers 503 when a
// critical dependency is down and 200 otherwise.
func readinessHandler(checks []ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := readinessResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		code := http.StatusOK

		for _, c := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
			err := c.Check(ctx)
			cancel()

			if err == nil {
				resp.Checks[c.Name] = "ok"
				continue
			}
			resp.Checks[c.Name] = "unavailable"
			if c.Critical {
				resp.Status = "unavailable"
				code = http.StatusServiceUnavailable
			} else if resp.Status == "ok" {
				resp.Status = "degraded"
			}
		}

		WriteJSON(w, code, resp)
	}
}
