package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/subledger/pkg/logger"
)

// Check is a named readiness dependency.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type probeResponse struct {
	Status string   `json:"status"`
	Failed []string `json:"failed,omitempty"`
}

// LivenessHandler always answers 200 while the process serves requests.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, http.StatusOK, probeResponse{Status: "ok"})
	}
}

// ReadinessHandler runs every check within timeout and answers 503 with
// the names of the failed checks when any of them fails.
func ReadinessHandler(log *slog.Logger, timeout time.Duration, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		var failed []string
		for _, c := range checks {
			if err := c.Fn(ctx); err != nil {
				log.WarnContext(ctx, "readiness check failed", slog.String("check", c.Name), logger.Error(err))
				failed = append(failed, c.Name)
			}
		}

		if len(failed) > 0 {
			writeProbe(w, http.StatusServiceUnavailable, probeResponse{Status: "unavailable", Failed: failed})
			return
		}
		writeProbe(w, http.StatusOK, probeResponse{Status: "ok"})
	}
}

func writeProbe(w http.ResponseWriter, status int, body probeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
