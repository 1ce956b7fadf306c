package server

import (
	"fmt"
	"net/http"
)

// HandleHealthz is the liveness probe.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with detailed system checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"discord", func() error {
			if h.job == nil || h.job.Upstream == nil {
				return fmt.Errorf("discord client not configured")
			}
			return nil
		}},
		{"channels", func() error {
			if h.job == nil {
				return nil
			}
			for _, ep := range h.job.Endpoints {
				if h.job.Channels[ep.ChannelKey] != "" {
					return nil
				}
			}
			return fmt.Errorf("no catalog channel configured")
		}},
		{"database", func() error {
			if h.db == nil {
				return nil
			}
			return h.db.PingContext(r.Context())
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
