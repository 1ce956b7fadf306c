package server

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/onnwee/officer-sync/config"
	"github.com/onnwee/officer-sync/syncjob"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	cfg  *config.Config
	job  *syncjob.Job
	runs RunLister
	db   *sql.DB
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &Handlers{cfg: cfg, job: deps.Job, runs: deps.Runs, db: deps.DB}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseIntQuery extracts an int parameter from query string with a default value.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
