package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
	// Optional checks are reported but never fail readiness.
	Optional bool
}

type readyReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// RunChecks runs every check with a short timeout. ready is false when a
// required check fails.
func RunChecks(ctx context.Context, checks []ReadyCheck) (ready bool, results map[string]string) {
	ready = true
	results = map[string]string{}
	for _, check := range checks {
		if check.Check == nil {
			continue
		}
		name := check.Name
		if name == "" {
			name = "dependency"
		}
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := check.Check(checkCtx)
		cancel()
		if err == nil {
			results[name] = "ok"
			continue
		}
		results[name] = err.Error()
		if !check.Optional {
			ready = false
		}
	}
	return ready, results
}

// NewBaseMuxWithReady serves /healthz and a JSON /readyz.
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ready, results := RunChecks(r.Context(), checks)
		report := readyReport{Status: "ok", Checks: results}
		code := http.StatusOK
		if !ready {
			report.Status = "unavailable"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	})
	return mux
}
