package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"liftlog/internal/observability"
)

const readyTimeout = 5 * time.Second

// Health is the liveness probe. It never touches the session store.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StoreCheck describes one probe of the session store.
type StoreCheck struct {
	Status    string     `json:"status"`
	LatencyMs int64      `json:"latency_ms"`
	Pool      *PoolStats `json:"metadata,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// PoolStats is the subset of sql.DBStats exposed on the readiness probe.
type PoolStats struct {
	Open      int   `json:"connections_open"`
	InUse     int   `json:"connections_in_use"`
	Idle      int   `json:"connections_idle"`
	MaxOpen   int   `json:"max_open"`
	WaitCount int64 `json:"wait_count"`
}

// ReadyResponse is the body of GET /health/ready.
type ReadyResponse struct {
	Status    string                `json:"status"`
	Timestamp string                `json:"timestamp"`
	Checks    map[string]StoreCheck `json:"checks"`
}

// Ready reports whether the session store is reachable. Every probe also
// refreshes the connection pool gauges.
func Ready(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		check := probeStore(ctx, db)
		resp := ReadyResponse{
			Status:    "ready",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    map[string]StoreCheck{"database": check},
		}

		status := http.StatusOK
		if check.Status != "up" {
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			observability.FromContext(r.Context()).Warn("session store not reachable", "error", check.Error)
		}
		writeJSON(w, status, resp)
	}
}

func probeStore(ctx context.Context, db *sql.DB) StoreCheck {
	start := time.Now()
	err := db.PingContext(ctx)
	check := StoreCheck{LatencyMs: time.Since(start).Milliseconds()}

	stats := db.Stats()
	observability.RecordDBStats(stats)

	if err != nil {
		check.Status = "down"
		check.Error = err.Error()
		return check
	}

	check.Status = "up"
	check.Pool = &PoolStats{
		Open:      stats.OpenConnections,
		InUse:     stats.InUse,
		Idle:      stats.Idle,
		MaxOpen:   stats.MaxOpenConnections,
		WaitCount: stats.WaitCount,
	}
	return check
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		observability.FromContext(context.Background()).Error("failed to encode response", "error", err)
	}
}
