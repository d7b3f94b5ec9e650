package http

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/sawpanic/earnrun/internal/persistence"
)

// HealthHandler provides the system health endpoint
type HealthHandler struct {
	db        persistence.RepositoryHealth
	cycles    CycleSource
	hub       *Hub
	startTime time.Time
	version   string
	staleness time.Duration
}

// NewHealthHandler creates a health handler. db and cycles may be nil.
func NewHealthHandler(db persistence.RepositoryHealth, cycles CycleSource, hub *Hub, version string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		cycles:    cycles,
		hub:       hub,
		startTime: time.Now(),
		version:   version,
		staleness: 36 * time.Hour,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                 `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version"`
	System    SystemInfo             `json:"system"`
	Checks    map[string]CheckResult `json:"checks"`
}

// SystemInfo provides system-level information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	MemAlloc      uint64 `json:"mem_alloc_bytes"`
	NumGC         uint32 `json:"num_gc"`
	Subscribers   int    `json:"ws_subscribers"`
}

// CheckResult represents individual health check results
type CheckResult struct {
	Status   string        `json:"status"` // "pass", "warn", "fail"
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
}

// ServeHTTP implements the health check endpoint
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.gather(r.Context())

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	status := http.StatusOK
	if resp.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *HealthHandler) gather(ctx context.Context) HealthResponse {
	now := time.Now()
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := HealthResponse{
		Timestamp: now.UTC(),
		Uptime:    now.Sub(h.startTime).Round(time.Second).String(),
		Version:   h.version,
		System: SystemInfo{
			GoVersion:     runtime.Version(),
			NumGoroutines: runtime.NumGoroutine(),
			MemAlloc:      mem.Alloc,
			NumGC:         mem.NumGC,
		},
		Checks: make(map[string]CheckResult),
	}
	if h.hub != nil {
		resp.System.Subscribers = h.hub.Len()
	}

	if h.db != nil {
		start := time.Now()
		check := h.db.Health(ctx)
		result := CheckResult{Status: "pass", Message: "database reachable", Duration: time.Since(start)}
		if !check.Healthy {
			result.Status, result.Message = "fail", "database unavailable"
			if len(check.Errors) > 0 {
				result.Message = check.Errors[0]
			}
		}
		resp.Checks["database"] = result
	}

	if h.cycles != nil {
		result := CheckResult{Status: "warn", Message: "no decision cycle yet"}
		if last := h.cycles.LastCycle(); last != nil {
			age := now.Sub(last.Time)
			result = CheckResult{Status: "pass", Message: "last cycle " + string(last.Outcome) + " " + age.Round(time.Second).String() + " ago"}
			if age > h.staleness {
				result.Status = "warn"
			}
		}
		resp.Checks["decision_cycle"] = result
	}

	resp.Status = "healthy"
	for _, c := range resp.Checks {
		switch c.Status {
		case "fail":
			resp.Status = "unhealthy"
		case "warn":
			if resp.Status == "healthy" {
				resp.Status = "degraded"
			}
		}
	}
	return resp
}
